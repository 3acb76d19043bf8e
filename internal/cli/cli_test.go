package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

func TestNew_RegistersExpectedFlags(t *testing.T) {
	cmd := New()

	assert.Equal(t, "r2bctl", cmd.Name)
	var names []string
	for _, f := range cmd.Flags {
		names = append(names, f.Names()...)
	}
	for _, want := range []string{"host-root", "output-dir", "from-snapshot", "inspect-only", "validate", "push-to-github", "yes", "metrics"} {
		assert.Contains(t, names, want)
	}
}

func TestRun_FromSnapshotRendersWithoutInspectingAHost(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "snapshot.json")
	snap := schema.New("/host")
	snap.Meta.Hostname = "web01"
	require.NoError(t, schema.Save(snap, snapPath))

	outDir := filepath.Join(t.TempDir(), "out")

	cmd := New()
	err := cmd.Run(context.Background(), []string{
		"r2bctl",
		"--from-snapshot", snapPath,
		"--output-dir", outDir,
	})

	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(outDir, "Containerfile"))
	assert.NoError(t, statErr)
}

func TestRun_InspectOnlyFromSnapshotSkipsRendering(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, schema.Save(schema.New("/host"), snapPath))

	outDir := filepath.Join(t.TempDir(), "out")

	cmd := New()
	err := cmd.Run(context.Background(), []string{
		"r2bctl",
		"--from-snapshot", snapPath,
		"--output-dir", outDir,
		"--inspect-only",
	})

	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(outDir, "Containerfile"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_FromMissingSnapshotReturnsError(t *testing.T) {
	cmd := New()
	err := cmd.Run(context.Background(), []string{
		"r2bctl",
		"--from-snapshot", filepath.Join(t.TempDir(), "missing.json"),
		"--output-dir", filepath.Join(t.TempDir(), "out"),
	})

	assert.Error(t, err)
}

func TestRun_PushWithoutYesFlagIsRefused(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, schema.Save(schema.New("/host"), snapPath))

	cmd := New()
	err := cmd.Run(context.Background(), []string{
		"r2bctl",
		"--from-snapshot", snapPath,
		"--output-dir", filepath.Join(t.TempDir(), "out"),
		"--push-to-github", "acme/rebuilt-host",
	})

	assert.Error(t, err)
}
