package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureRoot builds a /proc-shaped directory fixture: self/uid_map,
// self/status, self/attr/current, self/exe (a symlink), and 1/comm. Any
// field left at its default is set to the value of an unconfined host
// process running as real root outside a container, so individual tests
// only need to override the one file that exercises their check.
func fixtureRoot(t *testing.T, overrides map[string]string) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		filepath.Join("self", "uid_map"):     "0 0 4294967295\n",
		filepath.Join("self", "status"):      "Name:\tr2bctl\nCapEff:\t0000003fffffffff\n",
		filepath.Join("self", "attr", "current"): "unconfined\n",
		filepath.Join("1", "comm"):           "systemd\n",
	}
	for k, v := range overrides {
		files[k] = v
	}

	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	// self/exe resolves to a path that does NOT end in "systemd", so the
	// default fixture represents a process that is not PID 1's entrypoint.
	selfExe := filepath.Join(root, "self", "exe")
	target := filepath.Join(root, "usr", "bin", "r2bctl")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte{}, 0o755))
	require.NoError(t, os.Symlink(target, selfExe))

	return root
}

func TestRunWithRoot_FullyPrivilegedHostPasses(t *testing.T) {
	root := fixtureRoot(t, nil)
	res := RunWithRoot(root)
	assert.True(t, res.OK(), "problems: %v", res.Problems)
}

func TestCheckUserNamespace_MappedUIDFails(t *testing.T) {
	root := fixtureRoot(t, map[string]string{
		filepath.Join("self", "uid_map"): "0 1000 65536\n",
	})
	msg := checkUserNamespace(root)
	assert.Contains(t, msg, "user namespace")
}

func TestCheckUserNamespace_UnmappedMissingFileOK(t *testing.T) {
	root := t.TempDir()
	assert.Empty(t, checkUserNamespace(root))
}

func TestCheckPIDNamespace_SelfIsPID1EntrypointFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "1", "comm"), []byte("r2bctl\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0o755))
	target := filepath.Join(root, "usr", "bin", "r2bctl")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte{}, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "self", "exe")))

	msg := checkPIDNamespace(root)
	assert.Contains(t, msg, "PID namespace")
}

func TestCheckPIDNamespace_HostInitIsPID1OK(t *testing.T) {
	root := fixtureRoot(t, nil)
	assert.Empty(t, checkPIDNamespace(root))
}

func TestCheckCapSysAdmin_MissingBitFails(t *testing.T) {
	root := fixtureRoot(t, map[string]string{
		filepath.Join("self", "status"): "Name:\tr2bctl\nCapEff:\t0000000000000000\n",
	})
	msg := checkCapSysAdmin(root)
	assert.Contains(t, msg, "CAP_SYS_ADMIN")
}

func TestCheckCapSysAdmin_PresentBitOK(t *testing.T) {
	root := fixtureRoot(t, nil)
	assert.Empty(t, checkCapSysAdmin(root))
}

func TestCheckCapSysAdmin_UnreadableFileDegradesToOK(t *testing.T) {
	root := t.TempDir()
	assert.Empty(t, checkCapSysAdmin(root))
}

func TestCheckMACLabel_ContainerLabelFails(t *testing.T) {
	root := fixtureRoot(t, map[string]string{
		filepath.Join("self", "attr", "current"): "system_u:system_r:container_t:s0:c1,c2\n",
	})
	msg := checkMACLabel(root)
	assert.Contains(t, msg, "container_t")
}

func TestCheckMACLabel_UnconfinedOK(t *testing.T) {
	root := fixtureRoot(t, nil)
	assert.Empty(t, checkMACLabel(root))
}

func TestCheckMACLabel_ConfinedButNotContainerLabelOK(t *testing.T) {
	root := fixtureRoot(t, map[string]string{
		filepath.Join("self", "attr", "current"): "system_u:system_r:httpd_t:s0\n",
	})
	assert.Empty(t, checkMACLabel(root))
}

func TestRunWithRoot_AggregatesMultipleProblems(t *testing.T) {
	root := fixtureRoot(t, map[string]string{
		filepath.Join("self", "uid_map"): "0 1000 65536\n",
		filepath.Join("self", "status"):  "Name:\tr2bctl\nCapEff:\t0000000000000000\n",
	})
	res := RunWithRoot(root)
	assert.False(t, res.OK())
	assert.Len(t, res.Problems, 2)
}
