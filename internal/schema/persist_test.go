package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveLoad_JSONRoundTrip(t *testing.T) {
	snap := New("/host")
	snap.Meta.Hostname = "web01.example.com"
	snap.RPM.PackagesAdded = append(snap.RPM.PackagesAdded, Package{Name: "httpd", Version: "2.4.57", Release: "1.el9", Arch: "x86_64", State: PackageAdded})

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, Save(snap, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	if diff := cmp.Diff(snap, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoad_YAMLRoundTrip(t *testing.T) {
	snap := New("/host")
	snap.Meta.RunID = "run-123"

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	b, err := yaml.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "run-123", loaded.Meta.RunID)
}

func TestLoad_MissingFieldsDefaultToEmptyNotNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, loaded.RPM.PackagesAdded)
	require.Empty(t, loaded.RPM.PackagesAdded)
	require.NotNil(t, loaded.Warnings)
	require.NotNil(t, loaded.Redactions)
	require.NotNil(t, loaded.Network.Proxy)
}

func TestLoad_NewerSchemaVersionAcceptedBestEffort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":999}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 999, loaded.SchemaVersion)
}
