package selinux

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

func TestReadConfig_ParsesModeAndType(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc", "selinux"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "selinux", "config"),
		[]byte("SELINUX=enforcing\nSELINUXTYPE=targeted\n"), 0o644))

	mode, policyType := readConfig(inspect.HostRoot(root))

	assert.Equal(t, "enforcing", mode)
	assert.Equal(t, "targeted", policyType)
}

func TestCustomModules_ListsActivePriority400Modules(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "etc", "selinux", "targeted", "active", "modules", "400")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "myapp_policy"), 0o755))

	names := customModules(inspect.HostRoot(root), "targeted")

	assert.Equal(t, []string{"myapp_policy"}, names)
}

func TestParseSemanageBooleans_ParsesCurrentAndPending(t *testing.T) {
	out := []byte("httpd_can_network_connect     on   on\nhttpd_enable_cgi              off  on\n")
	result := parseSemanageBooleans(out)

	require.Len(t, result, 2)
	assert.Equal(t, "httpd_can_network_connect", result[0].Name)
	assert.True(t, result[0].Value)
	assert.True(t, result[0].Pending)
	assert.False(t, result[1].Value)
	assert.True(t, result[1].Pending)
}

func TestFallbackBooleans_ReadsSysfsTree(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sys", "fs", "selinux", "booleans")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "httpd_can_network_connect"), []byte("1 0"), 0o644))

	result := fallbackBooleans(inspect.HostRoot(root))

	require.Len(t, result, 1)
	assert.Equal(t, "httpd_can_network_connect", result[0].Name)
	assert.True(t, result[0].Value)
	assert.False(t, result[0].Pending)
}

func TestBooleans_FallsBackWhenSemanageUnavailable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sys", "fs", "selinux", "booleans")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "some_bool"), []byte("0 0"), 0o644))

	result := booleans(context.Background(), inspect.HostRoot(root), exec.NewFakeExecutor(), "targeted", newWarnings())

	require.Len(t, result, 1)
	assert.Equal(t, "some_bool", result[0].Name)
}

func TestParseFileContextsLocal_SkipsCommentsAndBlankLines(t *testing.T) {
	content := []byte("# local customizations\n\n/srv/myapp(/.*)?    system_u:object_r:httpd_sys_content_t:s0\n")
	rules := parseFileContextsLocal(content)

	require.Len(t, rules, 1)
	assert.Equal(t, "/srv/myapp(/.*)?", rules[0].Pattern)
	assert.Equal(t, "system_u:object_r:httpd_sys_content_t:s0", rules[0].Type)
}

func TestFipsEnabled_TrueWhenFileContentIsOne(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc", "sys", "crypto"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "sys", "crypto", "fips_enabled"), []byte("1\n"), 0o644))

	assert.True(t, fipsEnabled(inspect.HostRoot(root)))
}

func TestFipsEnabled_MissingFileIsFalse(t *testing.T) {
	assert.False(t, fipsEnabled(inspect.HostRoot(t.TempDir())))
}

func TestPamConfigFiles_ListsFilesNotDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "etc", "pam.d")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sshd"), []byte("auth required pam_unix.so\n"), 0o644))

	names := pamConfigFiles(inspect.HostRoot(root))

	assert.Equal(t, []string{"sshd"}, names)
}

func TestRun_PopulatesSelinuxSection(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc", "selinux"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "selinux", "config"), []byte("SELINUX=enforcing\nSELINUXTYPE=targeted\n"), 0o644))

	i := New()
	out, err := i.Run(context.Background(), inspect.HostRoot(root), exec.NewFakeExecutor(), newWarnings(), inspect.Flags{})

	require.NoError(t, err)
	section := out.(schema.SelinuxSection)
	assert.Equal(t, "enforcing", section.Mode)
	assert.NotNil(t, section.BooleanOverrides)
}
