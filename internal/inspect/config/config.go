// Package config classifies every in-scope file under /etc against the RPM
// package database: rpm-owned-and-modified, unowned, or orphaned by a
// package removal.
package config

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// excludedPrefixes lists OS-generated paths under /etc that are never
// candidates for the recipe: machine identity, caches, compiled policy,
// alternatives symlinks, and runtime PKI extracts regenerate themselves and
// would only add noise.
var excludedPrefixes = []string{
	"machine-id",
	"ld.so.cache",
	"selinux/targeted/policy",
	"selinux/targeted/modules",
	"alternatives",
	"pki/ca-trust/extracted",
	"pki/tls/certs/ca-bundle.crt",
	"mtab",
	"localtime",
	"resolv.conf",
	"hostname",
}

const maxCaptureSize = 256 * 1024

// Inspector implements inspect.Inspector for the /etc file classification.
type Inspector struct {
	// VerifyFlags maps an absolute /etc path to its rpm -Va flag string,
	// populated by the RPM inspector's output and fed in by the pipeline.
	VerifyFlags map[string]string
	// Owned maps a path to the owning package name, also fed in by the
	// pipeline from a bulk rpm -qa file listing run after the RPM inspector.
	Owned map[string]string
	// RemovedPackages names packages dnf history reports as erased, used
	// to classify orphaned files.
	RemovedPackages map[string]struct{}
}

func New(verifyFlags, owned map[string]string, removedPackages []string) *Inspector {
	removed := make(map[string]struct{}, len(removedPackages))
	for _, p := range removedPackages {
		removed[p] = struct{}{}
	}
	return &Inspector{VerifyFlags: verifyFlags, Owned: owned, RemovedPackages: removed}
}

func (i *Inspector) Name() string { return "config" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.ConfigSection{Files: []schema.ConfigFileEntry{}}
	etcRoot := root.Join("etc")
	parser := file.NewParser(file.WithMaxSize(maxCaptureSize))

	err := filepath.WalkDir(etcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, relErr := filepath.Rel(etcRoot, path)
		if relErr != nil || i.excluded(rel) {
			return nil
		}

		entry := i.classify(path, parser, warn)
		if entry != nil {
			section.Files = append(section.Files, *entry)
		}
		return nil
	})
	if err != nil && err != ctx.Err() {
		warn.Warnf(i.Name(), fmt.Sprintf("walk of /etc aborted early: %v", err))
	}

	sort.Slice(section.Files, func(a, b int) bool { return section.Files[a].Path < section.Files[b].Path })
	return section, nil
}

func (i *Inspector) excluded(rel string) bool {
	for _, prefix := range excludedPrefixes {
		if rel == prefix || strings.HasPrefix(rel, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (i *Inspector) classify(path string, parser *file.Parser, warn *schema.Warnings) *schema.ConfigFileEntry {
	pkg, owned := i.Owned[path]

	var kind schema.ConfigFileKind
	var flagStr string
	switch {
	case owned:
		fl, changed := i.VerifyFlags[path]
		if !changed {
			// Owned and untouched: not a candidate for the recipe at all.
			return nil
		}
		if !contentChanged(fl) {
			return nil
		}
		kind = schema.ConfigRpmOwnedModified
		flagStr = fl
	case i.wasOrphaned(path):
		kind = schema.ConfigOrphaned
	default:
		kind = schema.ConfigUnowned
	}

	content, err := parser.GetContent(path)
	if err != nil {
		warn.Warnf("config", fmt.Sprintf("could not read %s: %v", path, err))
		content = ""
	}

	return &schema.ConfigFileEntry{
		Path:       path,
		Kind:       kind,
		Content:    content,
		RpmVaFlags: flagStr,
		Package:    pkg,
	}
}

// wasOrphaned reports whether an unowned path should count as left behind
// by a package removal. The owning package at removal time isn't tracked
// by this lightweight classifier, and path is not matched against the
// removed package names: whenever dnf history records at least one
// removal, every unowned file that isLikelyLocalFile rejects counts.
func (i *Inspector) wasOrphaned(path string) bool {
	return len(i.RemovedPackages) > 0 && !isLikelyLocalFile(path)
}

// isLikelyLocalFile distinguishes operator-authored files (never owned by
// any package, by naming convention or directory) from stray leftovers of a
// package removal, to avoid over-classifying the unowned set as orphaned.
func isLikelyLocalFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".local") || strings.Contains(path, string(filepath.Separator)+"sysconfig"+string(filepath.Separator))
}

// contentChanged reports whether an rpm -Va flag string indicates the
// file's content (not just metadata like mtime) differs from the package's
// shipped version. '5' is the MD5 digest mismatch column; 'S' is size.
func contentChanged(flags string) bool {
	return strings.ContainsAny(flags, "5S") && !strings.Contains(flags, "missing")
}
