// Package service inspects systemd unit enablement state and diffs it
// against the base image's preset defaults.
package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/baseline"
	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

var vendorUnitDirs = []string{filepath.Join("usr", "lib", "systemd", "system")}
var etcUnitDir = filepath.Join("etc", "systemd", "system")

// Inspector implements inspect.Inspector for systemd unit enablement.
type Inspector struct {
	Baseline  *baseline.Resolver
	BaseImage string
}

func New(resolver *baseline.Resolver, baseImage string) *Inspector {
	return &Inspector{Baseline: resolver, BaseImage: baseImage}
}

func (i *Inspector) Name() string { return "service" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	units, err := i.listUnitFiles(ctx, root, ex)
	if err != nil {
		warn.Warnf(i.Name(), fmt.Sprintf("systemctl list-unit-files failed, falling back to filesystem scan: %v", err))
		units = i.scanFilesystem(root, warn)
	}

	presetText := i.presetText(ctx, root, ex, warn)
	rules := parsePresets(presetText)

	section := schema.ServiceSection{StateChanges: []schema.ServiceStateChange{}}

	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		current := units[name]
		def := defaultStateFor(rules, name)
		action := reconcile(current, def)
		section.StateChanges = append(section.StateChanges, schema.ServiceStateChange{
			Unit:         name,
			CurrentState: current,
			DefaultState: def,
			Action:       action,
		})
	}

	section.Derive()
	return section, nil
}

// listUnitFiles runs systemctl against the offline root and returns a
// unit->state map ("enabled", "disabled", "static", "masked", ...).
func (i *Inspector) listUnitFiles(ctx context.Context, root inspect.HostRoot, ex exec.Executor) (map[string]string, error) {
	res, err := ex.Run(ctx, "", "systemctl", "list-unit-files", "--root="+string(root), "--no-legend", "--no-pager")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("systemctl exited %d: %s", res.ExitCode, res.Stderr)
	}

	units := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		units[fields[0]] = fields[1]
	}
	return units, nil
}

// scanFilesystem derives enablement state directly from the unit tree when
// systemctl is unusable against the offline root: a unit linked from a
// ".wants" directory is enabled, one symlinked to /dev/null is masked, one
// with no [Install] section is static, everything else is disabled.
func (i *Inspector) scanFilesystem(root inspect.HostRoot, warn *schema.Warnings) map[string]string {
	units := map[string]string{}

	for _, rel := range vendorUnitDirs {
		dir := root.Join(rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".service") && !strings.HasSuffix(e.Name(), ".timer") {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, e.Name()))
			state := "disabled"
			if err == nil && !strings.Contains(string(content), "[Install]") {
				state = "static"
			}
			units[e.Name()] = state
		}
	}

	etc := root.Join(etcUnitDir)
	wantsDirs, _ := filepath.Glob(filepath.Join(etc, "*.wants"))
	for _, wd := range wantsDirs {
		links, err := os.ReadDir(wd)
		if err != nil {
			continue
		}
		for _, l := range links {
			target, err := os.Readlink(filepath.Join(wd, l.Name()))
			if err != nil {
				continue
			}
			if target == "/dev/null" {
				units[l.Name()] = "masked"
			} else {
				units[l.Name()] = "enabled"
			}
		}
	}

	entries, err := os.ReadDir(etc)
	if err == nil {
		for _, e := range entries {
			if e.Type()&os.ModeSymlink == 0 {
				continue
			}
			target, err := os.Readlink(filepath.Join(etc, e.Name()))
			if err == nil && target == "/dev/null" {
				units[e.Name()] = "masked"
			}
		}
	}

	return units
}

// presetRule is one `enable|disable <glob>` line from a systemd preset file.
type presetRule struct {
	enable bool
	glob   string
}

func (i *Inspector) presetText(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings) string {
	if i.Baseline != nil && i.BaseImage != "" {
		text, err := i.Baseline.QueryPresets(ctx, i.BaseImage)
		if err == nil && text != "" {
			return text
		}
	}

	var sb strings.Builder
	dirs := []string{
		root.Join("usr", "lib", "systemd", "system-preset"),
		root.Join("etc", "systemd", "system-preset"),
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".preset") {
				continue
			}
			b, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			sb.Write(b)
			sb.WriteByte('\n')
		}
	}
	if sb.Len() == 0 {
		warn.Warnf("service", "no systemd preset rules found; assuming disable-by-default")
	}
	return sb.String()
}

func parsePresets(text string) []presetRule {
	var rules []presetRule
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "enable":
			rules = append(rules, presetRule{enable: true, glob: fields[1]})
		case "disable":
			rules = append(rules, presetRule{enable: false, glob: fields[1]})
		}
	}
	return rules
}

// defaultStateFor applies the earliest matching literal rule, then the
// earliest matching glob rule ("earlier rules shadow later ones"), and
// defaults to disabled absent a match (a trailing "disable *" makes this
// explicit, but it is also the systemd default).
func defaultStateFor(rules []presetRule, unit string) string {
	for _, r := range rules {
		if r.glob == unit {
			return stateOf(r.enable)
		}
	}
	for _, r := range rules {
		if strings.ContainsAny(r.glob, "*?[") {
			if ok, _ := filepath.Match(r.glob, unit); ok {
				return stateOf(r.enable)
			}
		}
	}
	return "disabled"
}

func stateOf(enable bool) string {
	if enable {
		return "enabled"
	}
	return "disabled"
}

func reconcile(current, def string) schema.ServiceAction {
	if current == "masked" {
		return schema.ServiceMask
	}
	switch {
	case current == def:
		return schema.ServiceUnchanged
	case current == "enabled":
		return schema.ServiceEnable
	case current == "disabled":
		return schema.ServiceDisable
	default:
		return schema.ServiceUnchanged
	}
}
