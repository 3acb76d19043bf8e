// Package pipeline orchestrates the fixed-order inspection run: preflight,
// then inspectors in dependency order, baseline-fed RPM diffing, and secret
// redaction; the caller persists the result. Inspectors never run in parallel — later
// inspectors (config) depend on the RPM inspector's ownership data, and
// keeping the whole pipeline sequential keeps failure attribution simple.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nvidia/rhel2bootc/internal/baseline"
	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/config"
	"github.com/nvidia/rhel2bootc/internal/inspect/container"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/inspect/kernel"
	"github.com/nvidia/rhel2bootc/internal/inspect/network"
	"github.com/nvidia/rhel2bootc/internal/inspect/nonrpm"
	"github.com/nvidia/rhel2bootc/internal/inspect/rpm"
	"github.com/nvidia/rhel2bootc/internal/inspect/scheduled"
	"github.com/nvidia/rhel2bootc/internal/inspect/selinux"
	"github.com/nvidia/rhel2bootc/internal/inspect/service"
	"github.com/nvidia/rhel2bootc/internal/inspect/storage"
	"github.com/nvidia/rhel2bootc/internal/inspect/usergroup"
	"github.com/nvidia/rhel2bootc/internal/preflight"
	"github.com/nvidia/rhel2bootc/internal/redact"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Params configures one pipeline run.
type Params struct {
	HostRoot            string
	SkipPreflight       bool
	InspectOnly         bool
	TargetVersion       string
	TargetImage         string
	BaselinePackagesFile string
	Flags               inspect.Flags
}

// Pipeline runs the full inspection-to-snapshot flow.
type Pipeline struct {
	Executor exec.Executor
}

// New builds a Pipeline bound to the given executor.
func New(ex exec.Executor) *Pipeline {
	return &Pipeline{Executor: ex}
}

// Run executes preflight (unless skipped), every inspector in fixed order,
// redaction, and returns the populated snapshot. It never returns an error
// for inspection failures — those become warnings on the snapshot; it
// returns an error only for preflight failure. The context is passed to the
// inspectors, but a cancellation is not reported as an error.
func (p *Pipeline) Run(ctx context.Context, params Params) (*schema.Snapshot, error) {
	if !params.SkipPreflight {
		result := preflight.Run()
		if !result.OK() {
			return nil, rerrors.New(rerrors.CodePreflight, strings.Join(result.Problems, "; "))
		}
	}

	root := inspect.HostRoot(params.HostRoot)
	snap := schema.New(params.HostRoot)
	warn := schema.NewWarnings(snap)

	osRelease, err := parseOsRelease(root)
	if err != nil {
		warn.Warnf("preflight", fmt.Sprintf("could not read os-release: %v", err))
	}
	snap.OsRelease = schema.OsRelease{Fields: osRelease}
	snap.Meta.Hostname = readHostname(root)

	resolver := baseline.NewResolver(p.Executor, root)
	baselineParams := baseline.Params{
		OsID:                 osRelease["ID"],
		VersionID:            osRelease["VERSION_ID"],
		TargetVersion:        params.TargetVersion,
		TargetImage:          params.TargetImage,
		BaselinePackagesFile: params.BaselinePackagesFile,
	}

	rpmInspector := rpm.New(resolver, baselineParams)
	rpmSection := p.safeRun(ctx, rpmInspector, root, warn, params.Flags, schema.RpmSection{})
	snap.RPM = rpmSection.(schema.RpmSection)

	verifyFlags := make(map[string]string, len(snap.RPM.RpmVA))
	for _, v := range snap.RPM.RpmVA {
		verifyFlags[v.Path] = v.Flags
	}
	owned := p.ownedFiles(ctx, root)

	configInspector := config.New(verifyFlags, owned, snap.RPM.DnfHistoryRemoved)
	configSection := p.safeRun(ctx, configInspector, root, warn, params.Flags, schema.ConfigSection{Files: []schema.ConfigFileEntry{}})
	snap.Config = configSection.(schema.ConfigSection)

	serviceInspector := service.New(resolver, snap.RPM.BaseImage)
	serviceSection := p.safeRun(ctx, serviceInspector, root, warn, params.Flags, schema.ServiceSection{StateChanges: []schema.ServiceStateChange{}, EnabledUnits: []string{}, DisabledUnits: []string{}})
	snap.Service = serviceSection.(schema.ServiceSection)

	networkSection := p.safeRun(ctx, network.New(), root, warn, params.Flags, schema.NetworkSection{})
	snap.Network = networkSection.(schema.NetworkSection)

	storageSection := p.safeRun(ctx, storage.New(), root, warn, params.Flags, schema.StorageSection{})
	snap.Storage = storageSection.(schema.StorageSection)

	scheduledSection := p.safeRun(ctx, scheduled.New(), root, warn, params.Flags, schema.ScheduledTaskSection{})
	snap.Scheduled = scheduledSection.(schema.ScheduledTaskSection)

	containerSection := p.safeRun(ctx, container.New(), root, warn, params.Flags, schema.ContainerSection{})
	snap.Container = containerSection.(schema.ContainerSection)

	nonRpmSection := p.safeRun(ctx, nonrpm.New(), root, warn, params.Flags, schema.NonRpmSoftwareSection{Items: []schema.NonRpmItem{}})
	snap.NonRPM = nonRpmSection.(schema.NonRpmSoftwareSection)

	kernelSection := p.safeRun(ctx, kernel.New(), root, warn, params.Flags, schema.KernelBootSection{})
	snap.Kernel = kernelSection.(schema.KernelBootSection)

	selinuxSection := p.safeRun(ctx, selinux.New(), root, warn, params.Flags, schema.SelinuxSection{})
	snap.SELinux = selinuxSection.(schema.SelinuxSection)

	userGroupSection := p.safeRun(ctx, usergroup.New(), root, warn, params.Flags, schema.UserGroupSection{})
	snap.UserGroup = userGroupSection.(schema.UserGroupSection)

	if err := schema.ValidatePackagePartition(snap.RPM); err != nil {
		warn.Errorf("pipeline", fmt.Sprintf("package partition invariant violated: %v", err))
	}

	redact.Run(snap)

	return snap, nil
}

// safeRun is the second line of defense against inspector misbehavior: it
// recovers a panic and substitutes the supplied default section, converting
// it into a warning. Inspectors are already expected not to raise on
// ordinary I/O problems; this only guards against a genuinely unexpected
// fault.
func (p *Pipeline) safeRun(ctx context.Context, insp inspect.Inspector, root inspect.HostRoot, warn *schema.Warnings, flags inspect.Flags, fallback any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			warn.Errorf(insp.Name(), fmt.Sprintf("inspector panicked: %v", r))
			result = fallback
		}
	}()

	start := time.Now()
	res, err := insp.Run(ctx, root, p.Executor, warn, flags)
	slog.Debug("inspector completed", "name", insp.Name(), "duration", time.Since(start))
	if err != nil {
		warn.Warnf(insp.Name(), fmt.Sprintf("inspector returned an error: %v", err))
		return fallback
	}
	return res
}

func parseOsRelease(root inspect.HostRoot) (map[string]string, error) {
	parser := file.NewParser(file.WithSkipEmptyValues(true), file.WithVTrimChars(`"'`))
	return parser.GetMap(root.Join("etc", "os-release"))
}

func readHostname(root inspect.HostRoot) string {
	b, err := os.ReadFile(root.Join("etc", "hostname"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// ownedFiles runs a single `rpm -qa --queryformat` invocation listing every
// packaged file together with its owning package against the host's RPM database so the
// config inspector can classify ownership without a separate query per
// file.
func (p *Pipeline) ownedFiles(ctx context.Context, root inspect.HostRoot) map[string]string {
	res, err := p.Executor.Run(ctx, "", "rpm", "--dbpath", root.Join("var", "lib", "rpm"),
		"-qa", "--queryformat", "[%{FILENAMES}\t%{=NAME}\n]")
	if err != nil || res.ExitCode != 0 {
		return map[string]string{}
	}

	owned := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 2)
		if len(fields) != 2 {
			continue
		}
		owned[fields[0]] = fields[1]
	}
	return owned
}
