// Package selinux inspects SELinux mode, custom policy modules, boolean and
// file-context overrides, audit rules, FIPS mode, and PAM configuration.
package selinux

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// customModuleStore is where locally installed SELinux policy modules
// land, at priority 400 (above the base policy's priority 100 modules).
const customModuleStore = "etc/selinux/%s/active/modules/400"

// Inspector implements inspect.Inspector for SELinux configuration.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "selinux" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.SelinuxSection{
		CustomModules:    []string{},
		BooleanOverrides: []schema.BooleanOverride{},
		FcontextRules:    []schema.FcontextRule{},
		AuditRules:       []string{},
		PamConfigs:       []string{},
	}

	mode, policyType := readConfig(root)
	section.Mode = mode

	section.CustomModules = customModules(root, policyType)
	section.BooleanOverrides = booleans(ctx, root, ex, policyType, warn)
	section.FcontextRules = fcontextRules(ctx, root, ex, warn)
	section.AuditRules = auditRuleFiles(root)
	section.FipsMode = fipsEnabled(root)
	section.PamConfigs = pamConfigFiles(root)

	return section, nil
}

func readConfig(root inspect.HostRoot) (mode, policyType string) {
	kv, err := file.NewParser(file.WithSkipEmptyValues(true)).GetMap(root.Join("etc", "selinux", "config"))
	if err != nil {
		return "", ""
	}
	return kv["SELINUX"], kv["SELINUXTYPE"]
}

func customModules(root inspect.HostRoot, policyType string) []string {
	if policyType == "" {
		policyType = "targeted"
	}
	dir := root.Join(fmt.Sprintf(customModuleStore, policyType))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if names == nil {
		names = []string{}
	}
	return names
}

// booleans tries `semanage boolean -l` chrooted into the host root first,
// falling back to reading runtime/pending values directly out of
// /sys/fs/selinux/booleans when semanage is unavailable or fails.
func booleans(ctx context.Context, root inspect.HostRoot, ex exec.Executor, policyType string, warn *schema.Warnings) []schema.BooleanOverride {
	res, err := ex.Run(ctx, "", "chroot", string(root), "semanage", "boolean", "-l", "--noheading")
	if err == nil && res.ExitCode == 0 {
		return parseSemanageBooleans(res.Stdout)
	}
	warn.Warnf("selinux", "semanage boolean -l unavailable; falling back to /sys/fs/selinux/booleans")
	return fallbackBooleans(root)
}

func parseSemanageBooleans(out []byte) []schema.BooleanOverride {
	var result []schema.BooleanOverride
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		// semanage prints "name (current , pending) description"; the
		// parentheses and comma are treated as separators.
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '(' || r == ')' || r == ','
		})
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		current := fields[1] == "on"
		pending := fields[2] == "on"
		result = append(result, schema.BooleanOverride{Name: name, Value: current, Pending: pending})
	}
	if result == nil {
		result = []schema.BooleanOverride{}
	}
	return result
}

func fallbackBooleans(root inspect.HostRoot) []schema.BooleanOverride {
	dir := root.Join("sys", "fs", "selinux", "booleans")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []schema.BooleanOverride{}
	}
	var result []schema.BooleanOverride
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		fields := strings.Fields(string(b))
		if len(fields) != 2 {
			continue
		}
		current, _ := strconv.Atoi(fields[0])
		pending, _ := strconv.Atoi(fields[1])
		result = append(result, schema.BooleanOverride{Name: e.Name(), Value: current == 1, Pending: pending == 1})
	}
	if result == nil {
		result = []schema.BooleanOverride{}
	}
	return result
}

func fcontextRules(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings) []schema.FcontextRule {
	res, err := ex.Run(ctx, "", "chroot", string(root), "semanage", "fcontext", "-l", "-C", "--noheading")
	if err == nil && res.ExitCode == 0 {
		return parseFcontext(res.Stdout)
	}

	warn.Warnf("selinux", "semanage fcontext -l -C unavailable; falling back to file_contexts.local")
	b, err := os.ReadFile(root.Join("etc", "selinux", "targeted", "contexts", "files", "file_contexts.local"))
	if err != nil {
		return []schema.FcontextRule{}
	}
	return parseFileContextsLocal(b)
}

func parseFcontext(out []byte) []schema.FcontextRule {
	var rules []schema.FcontextRule
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		rules = append(rules, schema.FcontextRule{Pattern: fields[0], Type: fields[len(fields)-1]})
	}
	if rules == nil {
		rules = []schema.FcontextRule{}
	}
	return rules
}

func parseFileContextsLocal(b []byte) []schema.FcontextRule {
	var rules []schema.FcontextRule
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rules = append(rules, schema.FcontextRule{Pattern: fields[0], Type: fields[len(fields)-1]})
	}
	if rules == nil {
		rules = []schema.FcontextRule{}
	}
	return rules
}

func auditRuleFiles(root inspect.HostRoot) []string {
	dir := root.Join("etc", "audit", "rules.d")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func fipsEnabled(root inspect.HostRoot) bool {
	b, err := os.ReadFile(root.Join("proc", "sys", "crypto", "fips_enabled"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(b)) == "1"
}

func pamConfigFiles(root inspect.HostRoot) []string {
	dir := root.Join("etc", "pam.d")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if names == nil {
		names = []string{}
	}
	return names
}
