// Package containerfile renders the bootc build recipe from a populated
// snapshot and materializes the staging tree the recipe references. The
// two are produced together so they stay consistent by construction: the
// recipe never names a path the staging pass did not write.
package containerfile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/render/pathutil"
	"github.com/nvidia/rhel2bootc/internal/render/shellsafe"
	"github.com/nvidia/rhel2bootc/internal/render/stage"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Result is the renderer's output: the recipe text plus the relative
// staging paths it wrote, reused by the HTML renderer's file browser.
type Result struct {
	Recipe  string
	Staged  []string
	FixmeCount int
}

// Render produces the Containerfile text and writes the staging tree under
// outputDir/config (captured files) and outputDir/quadlet (unit files).
func Render(outputDir string, snap *schema.Snapshot) (*Result, error) {
	configStage := stage.New(filepath.Join(outputDir, "config"))
	quadletStage := stage.New(filepath.Join(outputDir, "quadlet"))

	var b strings.Builder
	fixmes := 0
	emit := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		if strings.Contains(line, "FIXME") {
			fixmes++
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	baseImage := snap.RPM.BaseImage
	if baseImage == "" {
		baseImage = "quay.io/centos-bootc/centos-bootc:stream9"
	}

	if err := pipPrelude(&b, snap, emit); err != nil {
		return nil, err
	}
	fromLayer(&b, snap, baseImage, emit)
	if err := repoLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	packageLayer(&b, snap, emit)
	serviceLayer(&b, snap, emit)
	if err := firewallLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	if err := scheduledLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	if err := configLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	nonRpmLayer(&b, snap, emit)
	if err := quadletLayer(quadletStage, &b, snap, emit); err != nil {
		return nil, err
	}
	if err := userGroupLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	kernelLayer(&b, snap, emit)
	selinuxLayer(&b, snap, emit)
	if err := networkLayer(configStage, &b, snap, emit); err != nil {
		return nil, err
	}
	tmpfilesLayer(&b, snap, emit)

	staged := append([]string{}, configStage.Written...)
	staged = append(staged, quadletStage.Written...)

	return &Result{Recipe: b.String(), Staged: staged, FixmeCount: fixmes}, nil
}

// 1. Optional multi-stage pip prelude, only emitted when a non-RPM item
// needs native compilation (has C extensions) so the final image doesn't
// carry a compiler toolchain.
func pipPrelude(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	var native []schema.NonRpmItem
	for _, it := range snap.NonRPM.Items {
		if (it.Method == schema.MethodSystemPip || it.Method == schema.MethodPythonVenv) && it.HasCExtensions {
			native = append(native, it)
		}
	}
	if len(native) == 0 {
		return nil
	}

	emit("# syntax=docker/dockerfile:1")
	emit("FROM quay.io/centos-bootc/centos-bootc:stream9 AS pip-build")
	emit("RUN dnf install -y gcc python3-devel && dnf clean all")
	for _, it := range native {
		for _, pkg := range it.Packages {
			if safe, ok := shellsafe.Sanitize(pkg); ok {
				emit("RUN pip install --prefix=/pip-root %s", safe)
			} else {
				emit("%s", safe)
			}
		}
	}
	emit("")
	return nil
}

// 2. FROM plus a block comment flagging a cross-major-version rebase.
func fromLayer(b *strings.Builder, snap *schema.Snapshot, baseImage string, emit func(string, ...any)) {
	for _, w := range snap.Warnings {
		if w.Source == "baseline" && strings.Contains(w.Message, "cross-major-version") {
			emit("# WARNING: %s", w.Message)
		}
	}
	emit("FROM %s", baseImage)
	emit("")
}

// 3. Repository configuration: yum.repos.d/dnf config copied verbatim.
func repoLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	if len(snap.RPM.RepoFiles) == 0 {
		return nil
	}
	emit("# repository configuration")
	for _, rf := range snap.RPM.RepoFiles {
		target := pathutil.Target(snap.Meta.HostRoot, rf.Path)
		rel := filepath.Join(strings.TrimPrefix(target, "/"))
		if _, err := st.WriteString(rel, rf.Content); err != nil {
			return err
		}
		emit("COPY config/%s %s", rel, target)
	}
	emit("")
	return nil
}

// 4. Package installation: a single dnf install of sorted, unique, shell-
// sanitized added package names.
func packageLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	names := snap.RPM.AddedNames()
	if len(names) == 0 {
		return
	}
	seen := map[string]bool{}
	var safeNames []string
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if safe, ok := shellsafe.Sanitize(n); ok {
			safeNames = append(safeNames, safe)
		} else {
			emit("%s", safe)
		}
	}
	sort.Strings(safeNames)
	if len(safeNames) == 0 {
		return
	}
	emit("RUN dnf install -y \\")
	for i, n := range safeNames {
		sep := " \\"
		if i == len(safeNames)-1 {
			sep = ""
		}
		emit("    %s%s", n, sep)
	}
	emit("    && dnf clean all")
	emit("")
}

// 5. Service enable/disable, derived against the base image's presets.
func serviceLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	if len(snap.Service.EnabledUnits) == 0 && len(snap.Service.DisabledUnits) == 0 {
		return
	}
	emit("# service state")
	for _, u := range snap.Service.EnabledUnits {
		if safe, ok := shellsafe.Sanitize(u); ok {
			emit("RUN systemctl enable %s", safe)
		} else {
			emit("%s", safe)
		}
	}
	for _, u := range snap.Service.DisabledUnits {
		if safe, ok := shellsafe.Sanitize(u); ok {
			emit("RUN systemctl disable %s", safe)
		} else {
			emit("%s", safe)
		}
	}
	emit("")
}

// 6. Firewall: zone XML copied, direct rules noted; firewall-cmd invocations
// are emitted as commented alternatives rather than RUN steps since
// firewalld is not running at build time.
func firewallLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	if len(snap.Network.FirewallZones) == 0 && len(snap.Network.FirewallDirectRules) == 0 {
		return nil
	}
	emit("# firewalld configuration")
	for _, z := range snap.Network.FirewallZones {
		target := pathutil.Target(snap.Meta.HostRoot, z.Path)
		rel := strings.TrimPrefix(target, "/")
		if _, err := st.WriteString(rel, z.Content); err != nil {
			return err
		}
		emit("COPY config/%s %s", rel, target)
		emit("# equivalent: firewall-offline-cmd --zone=%s --load-zone-from-file=%s", z.Name, target)
	}
	for _, r := range snap.Network.FirewallDirectRules {
		emit("# direct rule: firewall-cmd --direct --add-rule %s %s %s %s %s",
			r.IPVersion, r.Table, r.Chain, r.Priority, r.Args)
	}
	emit("")
	return nil
}

// 7. Scheduled tasks: local timers enabled, vendor timers only noted,
// cron-converted units enabled, at-jobs flagged for manual review.
func scheduledLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	s := snap.Scheduled
	if len(s.SystemdTimers) == 0 && len(s.GeneratedTimerUnits) == 0 && len(s.AtJobs) == 0 {
		return nil
	}
	emit("# scheduled tasks")
	for _, t := range s.SystemdTimers {
		switch t.Source {
		case schema.TimerLocal:
			if safe, ok := shellsafe.Sanitize(t.Name); ok {
				emit("RUN systemctl enable %s", safe)
			} else {
				emit("%s", safe)
			}
		case schema.TimerVendor:
			emit("# vendor timer present, left at package default: %s", t.Name)
		}
	}
	for _, u := range s.GeneratedTimerUnits {
		timerRel := filepath.Join("timers", u.Name+".timer")
		serviceRel := filepath.Join("timers", u.Name+".service")
		if _, err := st.WriteString(timerRel, u.TimerContent); err != nil {
			return err
		}
		if _, err := st.WriteString(serviceRel, u.ServiceContent); err != nil {
			return err
		}
		emit("COPY config/%s /etc/systemd/system/%s.timer", timerRel, u.Name)
		emit("COPY config/%s /etc/systemd/system/%s.service", serviceRel, u.Name)
		emit("RUN systemctl enable %s.timer", u.Name)
	}
	for _, a := range s.AtJobs {
		emit("# FIXME needs-review: at-job from %s requires manual conversion: %s", a.Path, describeCommand(a.Command))
	}
	for _, c := range s.CronJobs {
		if !c.Converted {
			emit("# FIXME needs-review: cron entry could not be converted deterministically: %s", describeCommand(c.Schedule+" "+c.Command))
		}
	}
	emit("")
	return nil
}

// 8. Configuration files: one consolidated copy of /etc plus an inventory
// comment of every modified/unowned/orphaned entry.
func configLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	if len(snap.Config.Files) == 0 {
		return nil
	}
	emit("# configuration inventory")
	for _, f := range snap.Config.Files {
		target := pathutil.Target(snap.Meta.HostRoot, f.Path)
		rel := strings.TrimPrefix(target, "/")
		if _, err := st.WriteString(rel, f.Content); err != nil {
			return err
		}
		switch f.Kind {
		case schema.ConfigRpmOwnedModified:
			emit("#   modified  %s (package %s)%s", target, f.Package, summarizeDiff(f.DiffAgainstRpm))
		case schema.ConfigOrphaned:
			emit("#   orphaned  %s (package %s removed)", target, f.Package)
		case schema.ConfigUnowned:
			emit("#   unowned   %s", target)
		}
	}
	emit("COPY config/etc /etc")
	emit("")
	return nil
}

func summarizeDiff(diff string) string {
	if diff == "" {
		return ""
	}
	lines := strings.Count(diff, "\n") + 1
	return fmt.Sprintf(", %d line(s) changed", lines)
}

// 9. Non-RPM software, one branch per detection method.
func nonRpmLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	if len(snap.NonRPM.Items) == 0 {
		return
	}
	emit("# non-RPM software")
	for _, it := range snap.NonRPM.Items {
		switch it.Method {
		case schema.MethodSystemPip:
			for _, pkg := range it.Packages {
				if safe, ok := shellsafe.Sanitize(pkg); ok {
					emit("RUN pip install %s", safe)
				} else {
					emit("%s", safe)
				}
			}
		case schema.MethodPythonVenv:
			emit("# FIXME needs-review: recreate virtualenv at %s (%d package(s))", it.Path, len(it.Packages))
		case schema.MethodGit:
			emit("# FIXME needs-review: git checkout hint for %s: remote=%s branch=%s commit=%s", it.Path, it.GitRemote, it.GitBranch, it.GitCommit)
		case schema.MethodLockfile:
			emit("# FIXME needs-review: reinstall from lockfile(s) at %s: %s", it.Path, strings.Join(it.Files, ", "))
		case schema.MethodCompiledBinary:
			emit("# FIXME needs-review: copy-binary placeholder for %s (lang=%s static=%t)", it.Path, it.Lang, it.Static)
		}
	}
	emit("")
}

// 10. Quadlet unit files copied verbatim.
func quadletLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	if len(snap.Container.QuadletUnits) == 0 {
		return nil
	}
	emit("# quadlet units")
	for _, q := range snap.Container.QuadletUnits {
		if _, err := st.WriteString(q.Name, q.Content); err != nil {
			return err
		}
		emit("COPY quadlet/%s /etc/containers/systemd/%s", q.Name, q.Name)
	}
	emit("")
	return nil
}

// 11. Users/groups: append fragments staged under config/tmp, copied and
// applied in a single run step, then home directories created and chowned.
func userGroupLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	ug := snap.UserGroup
	if len(ug.Users) == 0 && len(ug.Groups) == 0 && len(ug.SudoersRules) == 0 {
		return nil
	}
	emit("# users and groups")

	if len(ug.Groups) > 0 {
		var lines []string
		for _, g := range ug.Groups {
			lines = append(lines, fmt.Sprintf("%s:x:%d:%s", g.Name, g.GID, strings.Join(g.Members, ",")))
		}
		if _, err := st.WriteString("tmp/group.append", strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}
	if len(ug.Users) > 0 {
		var lines []string
		for _, u := range ug.Users {
			lines = append(lines, fmt.Sprintf("%s:x:%d:%d::%s:%s", u.Name, u.UID, u.GID, u.Home, u.Shell))
		}
		if _, err := st.WriteString("tmp/passwd.append", strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}
	if len(ug.SudoersRules) > 0 {
		var lines []string
		for _, r := range ug.SudoersRules {
			lines = append(lines, r.Rule)
		}
		if _, err := st.WriteString("tmp/sudoers.append", strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}

	emit("COPY config/tmp /tmp/r2bctl-append")
	emit("RUN cat /tmp/r2bctl-append/group.append >> /etc/group 2>/dev/null; \\")
	emit("    cat /tmp/r2bctl-append/passwd.append >> /etc/passwd 2>/dev/null; \\")
	emit("    cat /tmp/r2bctl-append/sudoers.append >> /etc/sudoers.d/r2bctl-imported 2>/dev/null; \\")
	emit("    rm -rf /tmp/r2bctl-append")
	for _, u := range ug.Users {
		if u.Home == "" {
			continue
		}
		if safe, ok := shellsafe.Sanitize(u.Home); ok {
			emit("RUN mkdir -p %s && chown %d:%d %s", safe, u.UID, u.GID, safe)
		} else {
			emit("%s", safe)
		}
	}
	for _, ref := range ug.SSHAuthorizedKeysRefs {
		emit("# FIXME needs-review: SSH authorized_keys for %s not baked into the image (%s)", ref.User, ref.Path)
	}
	emit("")
	return nil
}

// 12. Kernel: kargs as commented bootc-compatible lines; module/sysctl
// config is already part of the consolidated /etc copy from configLayer.
func kernelLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	k := snap.Kernel
	if k.Cmdline == "" && len(k.NonDefaultModules) == 0 {
		return
	}
	emit("# kernel configuration")
	for _, karg := range strings.Fields(k.Cmdline) {
		emit("# kargs --append %s", karg)
	}
	for _, m := range k.NonDefaultModules {
		emit("# loaded module not configured anywhere: %s (review before removing modules-load.d copy above)", m)
	}
	emit("")
}

// 13. SELinux: custom modules noted, non-default booleans applied,
// fcontext rules listed, FIPS flagged.
func selinuxLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	s := snap.SELinux
	if len(s.CustomModules) == 0 && len(s.BooleanOverrides) == 0 && len(s.FcontextRules) == 0 && !s.FipsMode {
		return
	}
	emit("# SELinux configuration")
	for _, m := range s.CustomModules {
		emit("# FIXME needs-review: custom SELinux policy module not carried forward: %s", m)
	}
	for _, bo := range s.BooleanOverrides {
		state := "0"
		if bo.Value {
			state = "1"
		}
		if safe, ok := shellsafe.Sanitize(bo.Name); ok {
			emit("RUN semanage boolean -m --on=%s %s || true", state, safe)
		} else {
			emit("%s", safe)
		}
	}
	for _, fc := range s.FcontextRules {
		emit("# fcontext: semanage fcontext -a -t %s '%s'", fc.Type, fc.Pattern)
	}
	if s.FipsMode {
		emit("# FIPS mode was enabled on the source host; enable via kargs --append fips=1 and a post-install fips-mode-setup run")
	}
	emit("")
}

// 14. Network: static connections baked in, DHCP connections deferred to
// the kickstart renderer, proxy env written, hosts additions appended via
// a heredoc.
func networkLayer(st *stage.Writer, b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) error {
	n := snap.Network
	if len(n.Connections) == 0 && len(n.Proxy) == 0 && len(n.HostsAdditions) == 0 {
		return nil
	}
	emit("# network configuration")
	for _, c := range n.Connections {
		target := pathutil.Target(snap.Meta.HostRoot, c.Path)
		switch c.Method {
		case schema.MethodStatic:
			// The nmconnection file itself is staged and copied by
			// configLayer's consolidated "COPY config/etc /etc" — it is
			// just another entry under Config.Files. Emitting a second,
			// per-connection COPY here would either reference a path
			// networkLayer never staged, or double-copy one configLayer
			// already did.
			emit("# connection %s (%s) is static; keyfile carried by the configuration inventory above", c.Name, target)
		case schema.MethodDHCP:
			emit("# connection %s uses DHCP; address assignment deferred to kickstart-suggestion.ks", c.Name)
		default:
			emit("# connection %s: method %s not baked in, review manually", c.Name, c.Method)
		}
	}
	if len(n.Proxy) > 0 {
		var lines []string
		for k, v := range n.Proxy {
			lines = append(lines, fmt.Sprintf("%s=%s", k, v))
		}
		sort.Strings(lines)
		if _, err := st.WriteString("etc/profile.d/r2bctl-proxy.sh", "export "+strings.Join(lines, "\nexport ")+"\n"); err != nil {
			return err
		}
		emit("COPY config/etc/profile.d/r2bctl-proxy.sh /etc/profile.d/r2bctl-proxy.sh")
	}
	if len(n.HostsAdditions) > 0 {
		emit("RUN cat <<'EOF' >> /etc/hosts")
		for _, h := range n.HostsAdditions {
			emit("%s %s", h.IP, strings.Join(h.Hostnames, " "))
		}
		emit("EOF")
	}
	emit("")
	return nil
}

// 15. tmpfiles.d: note-only, since the entries themselves are staged as
// part of the consolidated /etc copy.
func tmpfilesLayer(b *strings.Builder, snap *schema.Snapshot, emit func(string, ...any)) {
	var refs []string
	for _, f := range snap.Config.Files {
		target := pathutil.Target(snap.Meta.HostRoot, f.Path)
		if strings.Contains(target, "/tmpfiles.d/") {
			refs = append(refs, target)
		}
	}
	if len(refs) == 0 {
		return
	}
	emit("# tmpfiles.d entries included in the configuration copy above:")
	for _, r := range refs {
		emit("#   %s", r)
	}
	emit("")
}

func describeCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if len(cmd) > 80 {
		cmd = cmd[:80] + "..."
	}
	return strings.ReplaceAll(cmd, "\n", " ")
}
