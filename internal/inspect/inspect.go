// Package inspect defines the shared Inspector contract implemented by the
// eleven concrete inspector packages under internal/inspect/<name>.
package inspect

import (
	"context"
	"path/filepath"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// HostRoot is the filesystem path the pipeline treats as the inspected
// host's "/" — typically a bind mount inside a privileged container.
type HostRoot string

// Join resolves a host-relative path against the root.
func (h HostRoot) Join(elem ...string) string {
	return filepath.Join(append([]string{string(h)}, elem...)...)
}

// Flags carries the opt-in heavier-inspection toggles from the CLI
// surface (spec §6): --config-diffs, --deep-binary-scan, --query-podman.
type Flags struct {
	ConfigDiffs   bool
	DeepBinaryScan bool
	QueryPodman   bool
}

// Inspector reads a slice of the host filesystem and returns its typed
// snapshot section. Implementations must never panic or return a bare
// error for host I/O problems — they append a schema.Warning and return
// their best-effort partial result instead. The pipeline's safe-run
// wrapper is a second line of defense against unexpected panics, not the
// primary error-handling mechanism.
type Inspector interface {
	Name() string
	Run(ctx context.Context, root HostRoot, ex exec.Executor, warn *schema.Warnings, flags Flags) (any, error)
}
