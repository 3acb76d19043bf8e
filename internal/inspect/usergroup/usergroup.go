// Package usergroup inspects non-system accounts, groups, sudoers rules,
// and SSH authorized_keys references.
package usergroup

import (
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

// Inspector implements inspect.Inspector for users, groups, and sudoers.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "user_group" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.UserGroupSection{
		Users:                 []schema.UserAccount{},
		Groups:                []schema.GroupAccount{},
		SudoersRules:          []schema.SudoersRule{},
		SSHAuthorizedKeysRefs: []schema.SSHAuthorizedKeysRef{},
		PasswdEntries:         []string{},
		ShadowEntries:         []string{},
		GroupEntries:          []string{},
		GshadowEntries:        []string{},
		SubuidEntries:         []string{},
		SubgidEntries:         []string{},
	}

	parser := file.NewParser(file.WithSkipComments(false))

	passwdLines, _ := parser.GetLines(root.Join("etc", "passwd"))
	for _, line := range passwdLines {
		section.PasswdEntries = append(section.PasswdEntries, line)
		if user, ok := parsePasswdLine(line); ok {
			section.Users = append(section.Users, user)
		}
	}

	groupLines, _ := parser.GetLines(root.Join("etc", "group"))
	for _, line := range groupLines {
		section.GroupEntries = append(section.GroupEntries, line)
		if group, ok := parseGroupLine(line); ok {
			section.Groups = append(section.Groups, group)
		}
	}

	section.ShadowEntries = readAllLinesBestEffort(root.Join("etc", "shadow"), parser, warn)
	section.GshadowEntries = readAllLinesBestEffort(root.Join("etc", "gshadow"), parser, warn)
	section.SubuidEntries = readAllLinesBestEffort(root.Join("etc", "subuid"), parser, warn)
	section.SubgidEntries = readAllLinesBestEffort(root.Join("etc", "subgid"), parser, warn)

	section.SudoersRules = append(section.SudoersRules, sudoersRules(root.Join("etc", "sudoers"), "sudoers")...)
	section.SudoersRules = append(section.SudoersRules, scanSudoersDir(root.Join("etc", "sudoers.d"))...)

	section.SSHAuthorizedKeysRefs = sshKeyRefs(root, section.Users)

	return section, nil
}

func parsePasswdLine(line string) (schema.UserAccount, bool) {
	fields := strings.Split(line, ":")
	if len(fields) < 7 {
		return schema.UserAccount{}, false
	}
	uid, err1 := strconv.Atoi(fields[2])
	gid, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || !schema.InRange(uid) {
		return schema.UserAccount{}, false
	}
	return schema.UserAccount{Name: fields[0], UID: uid, GID: gid, Home: fields[5], Shell: fields[6]}, true
}

func parseGroupLine(line string) (schema.GroupAccount, bool) {
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return schema.GroupAccount{}, false
	}
	gid, err := strconv.Atoi(fields[2])
	if err != nil || !schema.InRange(gid) {
		return schema.GroupAccount{}, false
	}
	var members []string
	if fields[3] != "" {
		members = strings.Split(fields[3], ",")
	} else {
		members = []string{}
	}
	return schema.GroupAccount{Name: fields[0], GID: gid, Members: members}, true
}

func readAllLinesBestEffort(path string, parser *file.Parser, warn *schema.Warnings) []string {
	lines, err := parser.GetLines(path)
	if err != nil {
		warn.Warnf("user_group", fmt.Sprintf("could not read %s: %v", path, err))
		return []string{}
	}
	return lines
}

func sudoersRules(path, source string) []schema.SudoersRule {
	lines, err := file.NewParser().GetLines(path)
	if err != nil {
		return nil
	}
	var rules []schema.SudoersRule
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "Defaults") || strings.HasPrefix(line, "@includedir") || strings.HasPrefix(line, "@include") {
			continue
		}
		rules = append(rules, schema.SudoersRule{Source: source, Rule: line})
	}
	return rules
}

func scanSudoersDir(dir string) []schema.SudoersRule {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var rules []schema.SudoersRule
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		rules = append(rules, sudoersRules(p, filepath.Join("sudoers.d", e.Name()))...)
	}
	return rules
}

func sshKeyRefs(root inspect.HostRoot, users []schema.UserAccount) []schema.SSHAuthorizedKeysRef {
	var refs []schema.SSHAuthorizedKeysRef
	for _, u := range users {
		if u.Home == "" {
			continue
		}
		p := root.Join(u.Home, ".ssh", "authorized_keys")
		if file.Exists(p) {
			refs = append(refs, schema.SSHAuthorizedKeysRef{User: u.Name, Path: p})
		}
	}
	if refs == nil {
		refs = []schema.SSHAuthorizedKeysRef{}
	}
	return refs
}
