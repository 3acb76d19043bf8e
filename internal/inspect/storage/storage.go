// Package storage inspects filesystem layout: fstab, live mounts, LVM
// inventory, and /var subtree storage-class recommendations. iSCSI,
// multipath, and autofs configuration live under /etc and are captured by
// the config inspector rather than duplicated here.
package storage

import (
	"context"
	"encoding/json"
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

// varSubtrees are the fixed set of /var subtrees scanned for size and
// storage-class recommendation.
var varSubtrees = []string{
	filepath.Join("var", "lib"),
	filepath.Join("var", "log"),
	filepath.Join("var", "www"),
	filepath.Join("var", "cache"),
	filepath.Join("var", "spool"),
	filepath.Join("var", "opt"),
}

// osManagedVarDirs are skipped during the /var scan because bootc/rpm-ostree
// already manages them and any recommendation would be redundant.
var osManagedVarDirs = map[string]bool{
	filepath.Join("var", "lib", "rpm"):     true,
	filepath.Join("var", "lib", "dnf"):     true,
	filepath.Join("var", "lib", "selinux"): true,
	filepath.Join("var", "lib", "systemd"): true,
}

// Inspector implements inspect.Inspector for host storage configuration.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "storage" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.StorageSection{
		FstabEntries:   parseFstab(root, warn),
		MountPoints:    findmnt(ctx, ex),
		VarDirectories: scanVarDirectories(root, warn),
		CredentialRefs: cifsCredentialRefs(root, warn),
	}

	section.LvmInfo = lvmInfo(ctx, ex)
	return section, nil
}

func parseFstab(root inspect.HostRoot, warn *schema.Warnings) []schema.FstabEntry {
	parser := file.NewParser()
	lines, err := parser.GetLines(root.Join("etc", "fstab"))
	if err != nil {
		return []schema.FstabEntry{}
	}

	var entries []schema.FstabEntry
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		entry := schema.FstabEntry{
			Device:  fields[0],
			Mount:   fields[1],
			FSType:  fields[2],
			Options: fields[3],
		}
		if len(fields) > 4 {
			entry.Dump, _ = strconv.Atoi(fields[4])
		}
		if len(fields) > 5 {
			entry.Pass, _ = strconv.Atoi(fields[5])
		}
		entries = append(entries, entry)
	}
	if entries == nil {
		entries = []schema.FstabEntry{}
	}
	return entries
}

type findmntOutput struct {
	Filesystems []struct {
		Target  string `json:"target"`
		Source  string `json:"source"`
		FSType  string `json:"fstype"`
		Options string `json:"options"`
	} `json:"filesystems"`
}

func findmnt(ctx context.Context, ex exec.Executor) []schema.MountPoint {
	res, err := ex.Run(ctx, "", "findmnt", "--json", "--real")
	if err != nil || res.ExitCode != 0 {
		return []schema.MountPoint{}
	}

	var parsed findmntOutput
	if err := json.Unmarshal(res.Stdout, &parsed); err != nil {
		return []schema.MountPoint{}
	}

	out := make([]schema.MountPoint, 0, len(parsed.Filesystems))
	for _, fs := range parsed.Filesystems {
		out = append(out, schema.MountPoint{
			Target:  fs.Target,
			Source:  fs.Source,
			FSType:  fs.FSType,
			Options: fs.Options,
		})
	}
	return out
}

func lvmInfo(ctx context.Context, ex exec.Executor) string {
	res, err := ex.Run(ctx, "", "lvs", "--reportformat", "json")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return string(res.Stdout)
}

// recommendationFor maps a well-known /var path prefix to a storage-class
// hint for the rebuilt bootc image.
func recommendationFor(rel string) string {
	switch {
	case strings.Contains(rel, filepath.Join("lib", "pgsql")), strings.Contains(rel, filepath.Join("lib", "mysql")):
		return "persistent_volume"
	case strings.HasPrefix(rel, filepath.Join("var", "log")):
		return "persistent_volume_or_external_shipping"
	case strings.HasPrefix(rel, filepath.Join("var", "cache")):
		return "ephemeral"
	case strings.HasPrefix(rel, filepath.Join("var", "www")):
		return "persistent_volume"
	default:
		return "review_manually"
	}
}

func scanVarDirectories(root inspect.HostRoot, warn *schema.Warnings) []schema.VarDirectory {
	var out []schema.VarDirectory
	for _, sub := range varSubtrees {
		dir := root.Join(sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			rel := filepath.Join(sub, e.Name())
			if osManagedVarDirs[rel] {
				continue
			}
			size, err := dirSize(filepath.Join(dir, e.Name()))
			if err != nil {
				warn.Warnf("storage", fmt.Sprintf("could not estimate size of %s: %v", rel, err))
			}
			out = append(out, schema.VarDirectory{
				Path:           rel,
				SizeEstimate:   size,
				Recommendation: recommendationFor(rel),
			})
		}
	}
	if out == nil {
		out = []schema.VarDirectory{}
	}
	return out
}

func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func cifsCredentialRefs(root inspect.HostRoot, warn *schema.Warnings) []schema.CredentialRef {
	lines, err := file.NewParser().GetLines(root.Join("etc", "fstab"))
	if err != nil {
		return []schema.CredentialRef{}
	}

	var refs []schema.CredentialRef
	for _, line := range lines {
		idx := strings.Index(line, "credentials=")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("credentials="):]
		end := strings.IndexAny(rest, ", \t")
		if end >= 0 {
			rest = rest[:end]
		}
		refs = append(refs, schema.CredentialRef{Path: rest, Use: "cifs"})
	}
	if refs == nil {
		refs = []schema.CredentialRef{}
	}
	return refs
}
