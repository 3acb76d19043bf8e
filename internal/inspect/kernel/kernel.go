// Package kernel inspects the boot command line, GRUB defaults, sysctl
// overrides against the shipped defaults, and loaded kernel modules.
package kernel

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

const sysctlRoot = "proc/sys"

// Inspector implements inspect.Inspector for boot/kernel configuration.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "kernel_boot" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.KernelBootSection{
		SysctlOverrides:   []schema.SysctlOverride{},
		LoadedModules:     []string{},
		NonDefaultModules: []string{},
		ModulesLoadD:      []schema.ConfigSnippet{},
		ModprobeD:         []schema.ConfigSnippet{},
		DracutConf:        []schema.ConfigSnippet{},
	}

	section.Cmdline = readCmdline(root)
	section.GrubDefaults = readGrubDefaults(root)

	defaults := mergedSysctlDefaults(root, warn)
	section.SysctlOverrides = diffSysctl(ctx, root, defaults, warn)

	section.ModulesLoadD = snippetDir(root.Join("etc", "modules-load.d"), warn)
	section.ModprobeD = snippetDir(root.Join("etc", "modprobe.d"), warn)
	section.DracutConf = snippetDir(root.Join("etc", "dracut.conf.d"), warn)

	loaded, usedBy := readModules(root, warn)
	section.LoadedModules = loaded
	section.NonDefaultModules = nonDefaultModules(loaded, usedBy, section.ModulesLoadD)

	return section, nil
}

func readCmdline(root inspect.HostRoot) string {
	b, err := os.ReadFile(root.Join("proc", "cmdline"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readGrubDefaults(root inspect.HostRoot) string {
	b, err := os.ReadFile(root.Join("etc", "default", "grub"))
	if err != nil {
		return ""
	}
	return string(b)
}

// mergedSysctlDefaults merges /usr/lib/sysctl.d in lexical order, then
// /etc/sysctl.d, then /etc/sysctl.conf, each overriding earlier keys -
// mirroring sysctl's own file-precedence rules.
func mergedSysctlDefaults(root inspect.HostRoot, warn *schema.Warnings) map[string]string {
	defaults := map[string]string{}
	parser := file.NewParser(file.WithSkipEmptyValues(true))

	mergeDir := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			kv, err := parser.GetMap(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			for k, v := range kv {
				defaults[strings.TrimSpace(k)] = v
			}
		}
	}

	mergeDir(root.Join("usr", "lib", "sysctl.d"))
	mergeDir(root.Join("etc", "sysctl.d"))

	if kv, err := parser.GetMap(root.Join("etc", "sysctl.conf")); err == nil {
		for k, v := range kv {
			defaults[strings.TrimSpace(k)] = v
		}
	}

	return defaults
}

// diffSysctl walks /proc/sys (skipping symlinks and enforcing the walk
// stays under its root, same defense as the teacher's sysctl collector)
// and reports every key whose runtime value differs from the merged
// default computed above.
func diffSysctl(ctx context.Context, root inspect.HostRoot, defaults map[string]string, warn *schema.Warnings) []schema.SysctlOverride {
	var overrides []schema.SysctlOverride
	base := root.Join(sysctlRoot)
	parser := file.NewParser()

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type()&fs.ModeSymlink != 0 || d.IsDir() {
			return nil
		}
		if !strings.HasPrefix(path, base) {
			return fmt.Errorf("path traversal detected: %s", path)
		}

		key := strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(path, base), string(filepath.Separator)), string(filepath.Separator), ".")
		lines, err := parser.GetLines(path)
		if err != nil || len(lines) == 0 {
			return nil
		}
		current := strings.Join(lines, "\n")

		def, known := defaults[key]
		if known && def == current {
			return nil
		}
		overrides = append(overrides, schema.SysctlOverride{Key: key, CurrentValue: current, DefaultValue: def})
		return nil
	})
	if err != nil && err != ctx.Err() {
		warn.Warnf("kernel_boot", fmt.Sprintf("sysctl walk aborted early: %v", err))
	}
	if overrides == nil {
		overrides = []schema.SysctlOverride{}
	}
	return overrides
}

func snippetDir(dir string, warn *schema.Warnings) []schema.ConfigSnippet {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []schema.ConfigSnippet{}
	}
	parser := file.NewParser()
	var out []schema.ConfigSnippet
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		content, err := parser.GetContent(p)
		if err != nil {
			warn.Warnf("kernel_boot", fmt.Sprintf("could not read %s: %v", p, err))
			continue
		}
		out = append(out, schema.ConfigSnippet{Path: p, Content: content})
	}
	if out == nil {
		out = []schema.ConfigSnippet{}
	}
	return out
}

// readModules parses /proc/modules, returning the loaded module names and
// a set of names whose "used by" column (the fourth field) is non-empty,
// meaning something else pulled them in as a dependency.
func readModules(root inspect.HostRoot, warn *schema.Warnings) ([]string, map[string]bool) {
	parser := file.NewParser()
	lines, err := parser.GetLines(root.Join("proc", "modules"))
	if err != nil {
		warn.Warnf("kernel_boot", fmt.Sprintf("could not read loaded modules: %v", err))
		return []string{}, map[string]bool{}
	}

	var names []string
	usedBy := map[string]bool{}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
		if len(fields) >= 4 && fields[3] != "-" && strings.TrimSpace(fields[3]) != "" {
			usedBy[fields[0]] = true
		}
	}
	return names, usedBy
}

func nonDefaultModules(loaded []string, usedBy map[string]bool, loadDFiles []schema.ConfigSnippet) []string {
	configured := map[string]bool{}
	for _, snippet := range loadDFiles {
		for _, line := range strings.Split(snippet.Content, "\n") {
			name := strings.TrimSpace(line)
			if name != "" && !strings.HasPrefix(name, "#") {
				configured[name] = true
			}
		}
	}

	var result []string
	for _, m := range loaded {
		if configured[m] || usedBy[m] {
			continue
		}
		result = append(result, m)
	}
	if result == nil {
		result = []string{}
	}
	return result
}
