package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

func newWarnings() *schema.Warnings {
	return schema.NewWarnings(schema.New("/host"))
}

func TestParseFstab_ParsesFieldsAndOptionalColumns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "fstab"),
		[]byte("UUID=abc / ext4 defaults 0 1\n/dev/sdb1 /data xfs noatime 0 2\n"), 0o644))

	entries := parseFstab(inspect.HostRoot(root), newWarnings())

	require.Len(t, entries, 2)
	assert.Equal(t, "UUID=abc", entries[0].Device)
	assert.Equal(t, "/", entries[0].Mount)
	assert.Equal(t, 0, entries[0].Dump)
	assert.Equal(t, 1, entries[0].Pass)
}

func TestFindmnt_ParsesJSONOutput(t *testing.T) {
	ex := exec.NewFakeExecutor().On("findmnt", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
		return &exec.Result{Stdout: []byte(`{"filesystems":[{"target":"/","source":"/dev/sda1","fstype":"xfs","options":"rw,relatime"}]}`), ExitCode: 0}, nil
	})

	out := findmnt(context.Background(), ex)

	require.Len(t, out, 1)
	assert.Equal(t, "/", out[0].Target)
	assert.Equal(t, "xfs", out[0].FSType)
}

func TestFindmnt_CommandFailureReturnsEmpty(t *testing.T) {
	out := findmnt(context.Background(), exec.NewFakeExecutor())
	assert.Empty(t, out)
}

func TestRecommendationFor_KnownPrefixes(t *testing.T) {
	assert.Equal(t, "persistent_volume", recommendationFor(filepath.Join("var", "lib", "pgsql")))
	assert.Equal(t, "persistent_volume_or_external_shipping", recommendationFor(filepath.Join("var", "log", "myapp")))
	assert.Equal(t, "ephemeral", recommendationFor(filepath.Join("var", "cache", "yum")))
	assert.Equal(t, "review_manually", recommendationFor(filepath.Join("var", "spool", "mail")))
}

func TestScanVarDirectories_SkipsOsManagedSubtrees(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "var", "lib", "rpm"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "var", "lib", "pgsql"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "var", "lib", "pgsql", "data.db"), []byte("0123456789"), 0o644))

	out := scanVarDirectories(inspect.HostRoot(root), newWarnings())

	var paths []string
	for _, d := range out {
		paths = append(paths, d.Path)
	}
	assert.Contains(t, paths, filepath.Join("var", "lib", "pgsql"))
	assert.NotContains(t, paths, filepath.Join("var", "lib", "rpm"))
}

func TestCifsCredentialRefs_ExtractsCredentialsPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "fstab"),
		[]byte("//fileserver/share /mnt/share cifs credentials=/etc/samba/creds,uid=1000 0 0\n"), 0o644))

	refs := cifsCredentialRefs(inspect.HostRoot(root), newWarnings())

	require.Len(t, refs, 1)
	assert.Equal(t, "/etc/samba/creds", refs[0].Path)
	assert.Equal(t, "cifs", refs[0].Use)
}

func TestRun_PopulatesAllSections(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "fstab"), []byte("UUID=abc / ext4 defaults 0 1\n"), 0o644))

	i := New()
	warn := newWarnings()
	out, err := i.Run(context.Background(), inspect.HostRoot(root), exec.NewFakeExecutor(), warn, inspect.Flags{})

	require.NoError(t, err)
	section := out.(schema.StorageSection)
	require.Len(t, section.FstabEntries, 1)
	assert.NotNil(t, section.MountPoints)
	assert.NotNil(t, section.VarDirectories)
	assert.NotNil(t, section.CredentialRefs)
}
