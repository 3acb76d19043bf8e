// Package rpm inspects the installed RPM inventory and diffs it against a
// resolved baseline.
package rpm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/baseline"
	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

const queryFormat = `%|EPOCH?{%{EPOCH}}:{(none)}|:%{NAME}-%{VERSION}-%{RELEASE}.%{ARCH}\n`

// Inspector implements inspect.Inspector for the RPM package inventory.
type Inspector struct {
	// Baseline resolves the reference package set this inspector diffs
	// against. Nil is valid; the inspector then reports everything added
	// with no_baseline set.
	Baseline *baseline.Resolver
	Params   baseline.Params
}

func New(resolver *baseline.Resolver, params baseline.Params) *Inspector {
	return &Inspector{Baseline: resolver, Params: params}
}

func (i *Inspector) Name() string { return "rpm" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.RpmSection{
		PackagesAdded:     []schema.Package{},
		PackagesRemoved:   []schema.Package{},
		PackagesModified:  []schema.Package{},
		RpmVA:             []schema.VerifyEntry{},
		RepoFiles:         []schema.RepoFile{},
		DnfHistoryRemoved: []string{},
	}

	installed, err := i.listInstalled(ctx, root, ex)
	if err != nil {
		warn.Warnf(i.Name(), fmt.Sprintf("failed to list installed packages: %v", err))
		return section, nil
	}

	section.RpmVA = i.verify(ctx, root, ex, warn)
	section.RepoFiles = readRepoFiles(root, warn)
	section.DnfHistoryRemoved = i.dnfHistoryRemoved(ctx, root, ex, warn)

	var result baseline.Result
	if i.Baseline != nil {
		result = i.Baseline.Resolve(ctx, i.Params, warn)
	} else {
		result = baseline.Result{NoBaseline: true}
	}

	section.BaseImage = result.BaseImage
	section.NoBaseline = result.NoBaseline

	if result.NoBaseline {
		for name, pkg := range installed {
			pkg.Name = name
			pkg.State = schema.PackageAdded
			section.PackagesAdded = append(section.PackagesAdded, pkg)
		}
		return section, nil
	}

	section.BaselinePackageNames = baseline.SortedNames(result.Packages)

	for name, pkg := range installed {
		if _, ok := result.Packages[name]; !ok {
			pkg.Name = name
			pkg.State = schema.PackageAdded
			section.PackagesAdded = append(section.PackagesAdded, pkg)
		}
	}
	for name := range result.Packages {
		if _, ok := installed[name]; !ok {
			section.PackagesRemoved = append(section.PackagesRemoved, schema.Package{Name: name, State: schema.PackageRemoved})
		}
	}

	return section, nil
}

// listInstalled runs rpm against the host's RPM database, falling back to
// --root if --dbpath fails, and parses the NEVRA queryformat output.
func (i *Inspector) listInstalled(ctx context.Context, root inspect.HostRoot, ex exec.Executor) (map[string]schema.Package, error) {
	dbpath := root.Join("var", "lib", "rpm")
	res, err := ex.Run(ctx, "", "rpm", "--dbpath", dbpath, "-qa", "--queryformat", queryFormat)
	if err != nil || res.ExitCode != 0 {
		res, err = ex.Run(ctx, "", "rpm", "--root", string(root), "-qa", "--queryformat", queryFormat)
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("rpm -qa exited %d: %s", res.ExitCode, res.Stderr)
		}
	}
	return parseNevra(res.Stdout), nil
}

// parseNevra parses lines of the form "epoch:name-version-release.arch",
// filtering virtual packages (gpg-pubkey entries) which have no useful
// version/release semantics for bootc recipe purposes.
func parseNevra(out []byte) map[string]schema.Package {
	packages := map[string]schema.Package{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		epochSep := strings.IndexByte(line, ':')
		if epochSep < 0 {
			continue
		}
		epoch := line[:epochSep]
		if epoch == "(none)" {
			epoch = "0"
		}
		rest := line[epochSep+1:]

		lastDot := strings.LastIndexByte(rest, '.')
		if lastDot < 0 {
			continue
		}
		arch := rest[lastDot+1:]
		nvr := rest[:lastDot]

		relSep := strings.LastIndexByte(nvr, '-')
		if relSep < 0 {
			continue
		}
		release := nvr[relSep+1:]
		nv := nvr[:relSep]

		verSep := strings.LastIndexByte(nv, '-')
		if verSep < 0 {
			continue
		}
		name := nv[:verSep]
		version := nv[verSep+1:]

		if name == "gpg-pubkey" {
			continue
		}

		packages[name] = schema.Package{
			Name:    name,
			Epoch:   epoch,
			Version: version,
			Release: release,
			Arch:    arch,
		}
	}
	return packages
}

func (i *Inspector) verify(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings) []schema.VerifyEntry {
	res, err := ex.Run(ctx, "", "rpm", "--dbpath", root.Join("var", "lib", "rpm"), "-Va")
	if err != nil {
		warn.Warnf("rpm", fmt.Sprintf("rpm -Va failed: %v", err))
		return []schema.VerifyEntry{}
	}

	var entries []schema.VerifyEntry
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 13 {
			continue
		}
		flags := strings.TrimSpace(line[:9])
		path := strings.TrimSpace(line[strings.IndexAny(line, " \t")+1:])
		// Config and doc files carry a one-letter attribute marker before
		// the path ("c /etc/foo").
		if len(path) > 2 && path[0] != '/' && path[1] == ' ' {
			path = strings.TrimSpace(path[2:])
		}
		if path == "" {
			continue
		}
		entries = append(entries, schema.VerifyEntry{Path: path, Flags: flags})
	}
	if entries == nil {
		entries = []schema.VerifyEntry{}
	}
	return entries
}

func readRepoFiles(root inspect.HostRoot, warn *schema.Warnings) []schema.RepoFile {
	var files []schema.RepoFile
	dirs := []string{
		root.Join("etc", "yum.repos.d"),
		root.Join("etc", "dnf"),
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			p := filepath.Join(dir, entry.Name())
			content, err := file.NewParser().GetContent(p)
			if err != nil {
				warn.Warnf("rpm", fmt.Sprintf("could not read repo file %s: %v", p, err))
				continue
			}
			files = append(files, schema.RepoFile{Path: p, Content: content})
		}
	}
	if files == nil {
		files = []schema.RepoFile{}
	}
	return files
}

func (i *Inspector) dnfHistoryRemoved(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings) []string {
	res, err := ex.Run(ctx, "", "dnf", "--installroot", string(root), "history", "list", "--reverse")
	if err != nil || res.ExitCode != 0 {
		return []string{}
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.ToLower(scanner.Text())
		if strings.Contains(line, "erase") || strings.Contains(line, "remove") {
			// The package names are the non-verb, non-flag words of the
			// "Command line" column.
			cols := strings.Split(scanner.Text(), "|")
			if len(cols) < 2 {
				continue
			}
			for _, w := range strings.Fields(cols[1]) {
				lw := strings.ToLower(w)
				if lw == "remove" || lw == "erase" || lw == "autoremove" || strings.HasPrefix(w, "-") {
					continue
				}
				names = append(names, w)
			}
		}
	}
	if names == nil {
		names = []string{}
	}
	return names
}
