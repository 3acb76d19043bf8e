// Package preflight detects host-inspection conditions that silently break
// inspection from inside a container: a user namespace, a private PID
// namespace, a missing capability, or a mandatory-access-control label.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Check is one preflight condition evaluated against a procfs root. It
// returns a human-readable problem description, or empty when the
// condition is satisfied. Returning empty on an unreadable procfs file
// makes the check best-effort on non-Linux.
type Check func(procRoot string) string

// Result is the outcome of running every check.
type Result struct {
	Problems []string
}

// OK reports whether every check passed.
func (r Result) OK() bool { return len(r.Problems) == 0 }

// DefaultProcRoot is the procfs mount point used by Run. Tests use
// RunWithRoot against a fixture directory instead of overriding this.
const DefaultProcRoot = "/proc"

// Run executes every built-in check against /proc and collects problem
// descriptions. An override caller that wants to skip preflight entirely
// should simply not call Run.
func Run() Result {
	return RunWithRoot(DefaultProcRoot)
}

// RunWithRoot is Run against an arbitrary procfs root, so tests can exercise
// the checks against a fixture directory instead of the real /proc.
func RunWithRoot(procRoot string) Result {
	checks := []Check{
		checkUserNamespace,
		checkPIDNamespace,
		checkCapSysAdmin,
		checkMACLabel,
	}

	var problems []string
	for _, c := range checks {
		if msg := c(procRoot); msg != "" {
			problems = append(problems, msg)
		}
	}
	return Result{Problems: problems}
}

// checkUserNamespace detects running in a user namespace by comparing the
// inside and outside uid of the current process's uid_map entry: inside
// uid 0 mapped to an outside non-zero uid means host operations performed
// as "root" do not actually carry host root privileges.
func checkUserNamespace(procRoot string) string {
	b, err := os.ReadFile(filepath.Join(procRoot, "self", "uid_map"))
	if err != nil {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(string(b)))
	if len(fields) < 2 {
		return ""
	}
	insideUID, err1 := strconv.Atoi(fields[0])
	outsideUID, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return ""
	}
	if insideUID == 0 && outsideUID != 0 {
		return "running in a user namespace: container uid 0 does not map to host uid 0"
	}
	return ""
}

// checkPIDNamespace detects whether the container shares the host's PID
// namespace by checking whether process 1, as seen from inside, is this
// container's own entrypoint rather than the host's init.
func checkPIDNamespace(procRoot string) string {
	b, err := os.ReadFile(filepath.Join(procRoot, "1", "comm"))
	if err != nil {
		return ""
	}
	comm := strings.TrimSpace(string(b))
	self, err := os.Readlink(filepath.Join(procRoot, "self", "exe"))
	if err != nil {
		return ""
	}
	if strings.HasSuffix(self, comm) {
		return "not sharing the host PID namespace: PID 1 is this container's entrypoint, not host init"
	}
	return ""
}

// capSysAdminBit is CAP_SYS_ADMIN's bit position in the capability bitmasks
// reported by /proc/self/status.
const capSysAdminBit = 21

// checkCapSysAdmin parses the CapEff line of /proc/self/status and tests
// the CAP_SYS_ADMIN bit.
func checkCapSysAdmin(procRoot string) string {
	b, err := os.ReadFile(filepath.Join(procRoot, "self", "status"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		hex := strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
		mask, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return ""
		}
		if mask&(1<<capSysAdminBit) == 0 {
			return "missing CAP_SYS_ADMIN: host filesystem inspection requires it"
		}
		return ""
	}
	return ""
}

// checkMACLabel detects confinement by a mandatory-access-control label
// (SELinux or AppArmor) that would block reads of host paths mounted into
// the container.
func checkMACLabel(procRoot string) string {
	b, err := os.ReadFile(filepath.Join(procRoot, "self", "attr", "current"))
	if err != nil {
		return ""
	}
	label := strings.TrimSpace(string(b))
	if label == "" || label == "unconfined" {
		return ""
	}
	if strings.Contains(label, "container") {
		return fmt.Sprintf("confined by mandatory-access-control label %q: host reads may be blocked", label)
	}
	return ""
}
