// Package nonrpm inspects software installed outside the RPM database:
// compiled binaries, Python virtualenvs, git checkouts, system pip
// packages, and lockfile-managed projects.
package nonrpm

import (
	"bufio"
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"context"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// devArtifactDirs are skipped entirely during recursive scans: they belong
// to a build/dependency tool, not to anything worth staging into the image.
var devArtifactDirs = map[string]bool{
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	".git":         true,
	"__pycache__":  true,
}

var binarySearchRoots = []string{filepath.Join("opt"), filepath.Join("usr", "local")}

var versionPatternsBasic = []*regexp.Regexp{
	regexp.MustCompile(`v?\d+\.\d+\.\d+`),
}
var versionPatternsExtended = []*regexp.Regexp{
	regexp.MustCompile(`v?\d+\.\d+\.\d+`),
	regexp.MustCompile(`v?\d+\.\d+`),
	regexp.MustCompile(`(?i)version[: ]+\S+`),
}

const maxStringsScanBytes = 4 * 1024 * 1024

// Inspector implements inspect.Inspector for non-RPM software discovery.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "non_rpm_software" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.NonRpmSoftwareSection{Items: []schema.NonRpmItem{}}

	for _, rel := range binarySearchRoots {
		items := walkTree(root.Join(rel), root, flags, warn)
		section.Items = append(section.Items, items...)
	}

	section.Items = append(section.Items, SystemPipPackages(root)...)

	return section, nil
}

// walkTree recurses under dir, classifying every recognizable provenance
// and skipping dev-artifact directories (including descending into a
// matched directory, since its internal structure is tool-owned).
func walkTree(dir string, root inspect.HostRoot, flags inspect.Flags, warn *schema.Warnings) []schema.NonRpmItem {
	var items []schema.NonRpmItem

	entries, err := os.ReadDir(dir)
	if err != nil {
		return items
	}

	if file.Exists(filepath.Join(dir, "pyvenv.cfg")) {
		return append(items, classifyVenv(dir, warn))
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		items = append(items, classifyGit(dir, warn))
	}
	if lf := classifyLockfile(dir); lf != nil {
		items = append(items, *lf)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if devArtifactDirs[name] {
				continue
			}
			items = append(items, walkTree(filepath.Join(dir, name), root, flags, warn)...)
			continue
		}
		if isExecutableCandidate(dir, e) {
			if item, ok := classifyBinary(filepath.Join(dir, name), flags); ok {
				items = append(items, item)
			}
		}
	}

	return items
}

func isExecutableCandidate(dir string, e os.DirEntry) bool {
	info, err := e.Info()
	if err != nil {
		return false
	}
	return info.Mode()&0o111 != 0 && !info.IsDir()
}

func classifyBinary(path string, flags inspect.Flags) (schema.NonRpmItem, bool) {
	f, err := elf.Open(path)
	if err != nil {
		return schema.NonRpmItem{}, false
	}
	defer f.Close()

	item := schema.NonRpmItem{Method: schema.MethodCompiledBinary, Path: path, Lang: "c_cpp"}

	for _, sec := range f.Sections {
		switch sec.Name {
		case ".note.go.buildid", ".gopclntab":
			item.Lang = "go"
		case ".rustc":
			item.Lang = "rust"
		}
	}

	dynSyms, err := f.DynamicSymbols()
	item.Static = err != nil || len(dynSyms) == 0

	libs, err := f.ImportedLibraries()
	if err == nil {
		item.SharedLibs = libs
	} else {
		item.SharedLibs = []string{}
	}

	if item.Lang == "c_cpp" {
		patterns := versionPatternsBasic
		if flags.DeepBinaryScan {
			patterns = versionPatternsExtended
		}
		item.DetectedVersion = scanStringsForVersion(path, patterns)
	}

	return item, true
}

// scanStringsForVersion performs a bounded scan of a binary's printable
// ASCII runs looking for a version-shaped token, mirroring what the `strings`
// utility plus a grep for a version pattern would find.
func scanStringsForVersion(path string, patterns []*regexp.Regexp) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(b) > maxStringsScanBytes {
		b = b[:maxStringsScanBytes]
	}

	var run []byte
	flushAndMatch := func() string {
		if len(run) < 4 {
			run = run[:0]
			return ""
		}
		s := string(run)
		run = run[:0]
		for _, p := range patterns {
			if m := p.FindString(s); m != "" {
				return m
			}
		}
		return ""
	}

	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			run = append(run, c)
			continue
		}
		if v := flushAndMatch(); v != "" {
			return v
		}
	}
	return flushAndMatch()
}

func classifyVenv(dir string, warn *schema.Warnings) schema.NonRpmItem {
	item := schema.NonRpmItem{Method: schema.MethodPythonVenv, Path: dir, Packages: []string{}}

	kv, err := file.NewParser(file.WithSkipEmptyValues(true)).GetMap(filepath.Join(dir, "pyvenv.cfg"))
	if err == nil {
		item.IncludeSystemSitePackages = strings.EqualFold(kv["include-system-site-packages"], "true")
	}

	libDirs, _ := filepath.Glob(filepath.Join(dir, "lib", "python*", "site-packages"))
	for _, libDir := range libDirs {
		entries, err := os.ReadDir(libDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && strings.HasSuffix(e.Name(), ".dist-info") {
				item.Packages = append(item.Packages, strings.TrimSuffix(e.Name(), ".dist-info"))
			}
		}
	}
	return item
}

func classifyGit(dir string, warn *schema.Warnings) schema.NonRpmItem {
	item := schema.NonRpmItem{Method: schema.MethodGit, Path: dir}

	kv, err := file.NewParser(file.WithDelimiter("\n"), file.WithSkipComments(false)).GetLines(filepath.Join(dir, ".git", "config"))
	if err == nil {
		for idx, line := range kv {
			if strings.Contains(line, `[remote "origin"]`) && idx+1 < len(kv) {
				for _, follow := range kv[idx+1:] {
					if strings.HasPrefix(strings.TrimSpace(follow), "url") {
						parts := strings.SplitN(follow, "=", 2)
						if len(parts) == 2 {
							item.GitRemote = strings.TrimSpace(parts[1])
						}
						break
					}
					if strings.HasPrefix(follow, "[") {
						break
					}
				}
			}
		}
	}

	headPath := filepath.Join(dir, ".git", "HEAD")
	head, err := os.ReadFile(headPath)
	if err == nil {
		line := strings.TrimSpace(string(head))
		if strings.HasPrefix(line, "ref: ") {
			ref := strings.TrimPrefix(line, "ref: ")
			item.GitBranch = filepath.Base(ref)
			if commit, err := os.ReadFile(filepath.Join(dir, ".git", ref)); err == nil {
				item.GitCommit = strings.TrimSpace(string(commit))
			}
		} else {
			item.GitCommit = line
		}
	} else {
		warn.Warnf("non_rpm_software", fmt.Sprintf("could not read %s: %v", headPath, err))
	}

	return item
}

var lockfileNames = []string{"package-lock.json", "yarn.lock", "Gemfile.lock"}

func classifyLockfile(dir string) *schema.NonRpmItem {
	var found []string
	for _, name := range lockfileNames {
		if file.Exists(filepath.Join(dir, name)) {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	var files []string
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}

	return &schema.NonRpmItem{Method: schema.MethodLockfile, Path: dir, Files: files}
}

// SystemPipPackages scans a system Python's site-packages for dist-info
// directories not belonging to any venv, flagging C-extension packages by
// inspecting RECORD for a .so payload.
func SystemPipPackages(root inspect.HostRoot) []schema.NonRpmItem {
	var items []schema.NonRpmItem
	dirs, _ := filepath.Glob(root.Join("usr", "lib", "python*", "site-packages"))
	dirs = append(dirs, mustGlob(root.Join("usr", "lib64", "python*", "site-packages"))...)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasSuffix(e.Name(), ".dist-info") {
				continue
			}
			recordPath := filepath.Join(dir, e.Name(), "RECORD")
			hasC := false
			if b, err := os.ReadFile(recordPath); err == nil {
				scanner := bufio.NewScanner(bytes.NewReader(b))
				for scanner.Scan() {
					if strings.Contains(scanner.Text(), ".so,") || strings.HasSuffix(scanner.Text(), ".so") {
						hasC = true
						break
					}
				}
			}
			items = append(items, schema.NonRpmItem{
				Method:         schema.MethodSystemPip,
				Path:           filepath.Join(dir, e.Name()),
				Packages:       []string{strings.TrimSuffix(e.Name(), ".dist-info")},
				HasCExtensions: hasC,
			})
		}
	}
	return items
}

func mustGlob(pattern string) []string {
	matches, _ := filepath.Glob(pattern)
	return matches
}
