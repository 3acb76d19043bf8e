// Package baseline resolves the reference package set for the target bootc
// base image, either from an operator-supplied file or by querying the
// image itself through a namespace-entry invocation of the host's image
// runtime. It degrades to no-baseline on any failure, per spec §4.3/§7.
package baseline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// imageRuntime is the command used to reach into the host's container
// engine. nsenterArgs prefixes every invocation so it crosses into PID 1's
// mount/user/IPC/net namespaces from inside our own container.
const imageRuntime = "podman"

var nsenterArgs = []string{"nsenter", "--target", "1", "--mount", "--uts", "--ipc", "--net", "--"}

// productKey identifies an OS product family and major version for the
// base-image lookup table.
type productKey struct {
	osID         string
	majorVersion int
}

// imageInfo is one entry in the base-image lookup table.
type imageInfo struct {
	image           string
	minMinorSupported int
}

var baseImages = map[productKey]imageInfo{
	{osID: "centos", majorVersion: 9}:    {image: "quay.io/centos-bootc/centos-bootc:stream9"},
	{osID: "centos", majorVersion: 10}:   {image: "quay.io/centos-bootc/centos-bootc:stream10"},
	{osID: "rhel", majorVersion: 9}:      {image: "registry.redhat.io/rhel9/rhel-bootc:9.4"},
	{osID: "rhel", majorVersion: 10}:     {image: "registry.redhat.io/rhel10/rhel-bootc:10.0"},
	{osID: "almalinux", majorVersion: 9}: {image: "quay.io/almalinuxorg/9-bootc:9"},
	{osID: "rocky", majorVersion: 9}:     {image: "quay.io/rockylinux/bootc:9"},
}

// Params selects which baseline-resolution strategy to try, in priority
// order: explicit file, then image lookup/query, then no-baseline.
type Params struct {
	OsID            string
	VersionID       string
	TargetVersion   string
	TargetImage     string
	BaselinePackagesFile string
}

// Result is the resolved baseline.
type Result struct {
	Packages   map[string]struct{}
	BaseImage  string
	NoBaseline bool
}

// Resolver resolves baselines. It memoizes its namespace-entry probe
// per-instance (not globally) so tests can construct independent resolvers
// without cross-contaminating cached state (Design Note: per-instance, not
// process-wide, caches).
type Resolver struct {
	Executor exec.Executor
	Root     inspect.HostRoot

	probed  bool
	probeOK bool
}

// NewResolver builds a Resolver bound to the given executor and host root.
func NewResolver(ex exec.Executor, root inspect.HostRoot) *Resolver {
	return &Resolver{Executor: ex, Root: root}
}

// Resolve determines the baseline package set following the priority order
// in spec §4.3. Every failure mode degrades to NoBaseline=true with a
// warning; it never returns a non-nil error.
func (r *Resolver) Resolve(ctx context.Context, p Params, warn *schema.Warnings) Result {
	// Priority 1: explicit pre-extracted package file.
	if p.BaselinePackagesFile != "" {
		names, err := loadPackageFile(p.BaselinePackagesFile)
		if err != nil {
			warn.Warnf("baseline", fmt.Sprintf("failed to load --baseline-packages file: %v", err))
		} else {
			res := Result{Packages: toSet(names)}
			// The target image, if also supplied, is metadata only in this
			// mode (spec §9 Open Question: preserve this, don't invent a
			// richer semantics for the combination).
			if p.TargetImage != "" {
				res.BaseImage = p.TargetImage
			} else {
				res.BaseImage = r.lookupImage(p.OsID, p.VersionID, p.TargetVersion).image
			}
			return res
		}
	}

	r.checkCrossMajorVersion(p, warn)

	image := p.TargetImage
	if image == "" {
		info := r.lookupImage(p.OsID, p.VersionID, p.TargetVersion)
		image = info.image
	}
	if image == "" {
		warn.Warnf("baseline", fmt.Sprintf("no known base image for %s %s; degrading to no-baseline", p.OsID, p.VersionID))
		return Result{NoBaseline: true}
	}

	if !r.probeNamespaceEntry(ctx) {
		warn.Warnf("baseline", "cross-namespace image query unavailable (user namespace, missing privileges, or no PID sharing); degrading to no-baseline")
		return Result{NoBaseline: true, BaseImage: image}
	}

	names, err := r.queryImagePackages(ctx, image)
	if err != nil {
		warn.Warnf("baseline", fmt.Sprintf("failed to query base image %s: %v", image, err))
		return Result{NoBaseline: true, BaseImage: image}
	}

	return Result{Packages: toSet(names), BaseImage: image}
}

// checkCrossMajorVersion attaches an error-severity warning when the
// requested target is a different major version than the host's, since
// such migrations need manual review (spec §4.3/§7).
func (r *Resolver) checkCrossMajorVersion(p Params, warn *schema.Warnings) {
	if p.TargetVersion == "" {
		return
	}
	hostMajor := majorOf(p.VersionID)
	targetMajor := majorOf(p.TargetVersion)
	if hostMajor != 0 && targetMajor != 0 && hostMajor != targetMajor {
		warn.Errorf("baseline", fmt.Sprintf(
			"cross-major-version target requested (%s -> %s): migration requires manual review", p.VersionID, p.TargetVersion))
	}
}

func majorOf(versionID string) int {
	field := strings.SplitN(versionID, ".", 2)[0]
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0
	}
	return n
}

func (r *Resolver) lookupImage(osID, versionID, targetVersion string) imageInfo {
	version := versionID
	if targetVersion != "" {
		version = targetVersion
	}
	major := majorOf(version)
	return baseImages[productKey{osID: strings.ToLower(osID), majorVersion: major}]
}

// probeNamespaceEntry runs a no-op through the nsenter prefix once and
// memoizes whether it succeeded.
func (r *Resolver) probeNamespaceEntry(ctx context.Context) bool {
	if r.probed {
		return r.probeOK
	}
	r.probed = true

	argv := append(append([]string{}, nsenterArgs...), "true")
	res, err := r.Executor.Run(ctx, "", argv...)
	r.probeOK = err == nil && res != nil && res.ExitCode == 0
	return r.probeOK
}

// queryImagePackages runs the target image and lists its installed
// packages via rpm, through the namespace-entry prefix.
func (r *Resolver) queryImagePackages(ctx context.Context, image string) ([]string, error) {
	argv := append(append([]string{}, nsenterArgs...),
		imageRuntime, "run", "--rm", image, "rpm", "-qa", "--queryformat", "%{NAME}\n")

	res, err := r.Executor.Run(ctx, "", argv...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("image query exited %d: %s", res.ExitCode, res.Stderr)
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	return names, scanner.Err()
}

// QueryPresets returns the concatenated content of the base image's
// systemd preset files, consumed by the service inspector to derive the
// default enable/disable state for every unit.
func (r *Resolver) QueryPresets(ctx context.Context, image string) (string, error) {
	if !r.probeNamespaceEntry(ctx) {
		return "", fmt.Errorf("cross-namespace preset query unavailable")
	}

	argv := append(append([]string{}, nsenterArgs...),
		imageRuntime, "run", "--rm", image,
		"sh", "-c", "cat /usr/lib/systemd/system-preset/*.preset 2>/dev/null")

	res, err := r.Executor.Run(ctx, "", argv...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("preset query exited %d: %s", res.ExitCode, res.Stderr)
	}
	return string(res.Stdout), nil
}

func loadPackageFile(path string) ([]string, error) {
	parser := file.NewParser(file.WithSkipComments(true), file.WithSkipEmptyValues(true))
	return parser.GetLines(path)
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// SortedNames returns the baseline package names in sorted order, used for
// the snapshot's baseline_package_names field.
func SortedNames(packages map[string]struct{}) []string {
	names := make([]string, 0, len(packages))
	for n := range packages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
