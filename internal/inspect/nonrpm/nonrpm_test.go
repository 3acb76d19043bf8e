package nonrpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

func newWarnings() *schema.Warnings {
	return schema.NewWarnings(schema.New("/host"))
}

func TestClassifyVenv_ReadsConfigAndPackages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyvenv.cfg"), []byte("include-system-site-packages = true\nversion = 3.9.0\n"), 0o644))
	sitePkgs := filepath.Join(dir, "lib", "python3.9", "site-packages")
	require.NoError(t, os.MkdirAll(filepath.Join(sitePkgs, "requests-2.31.0.dist-info"), 0o755))

	item := classifyVenv(dir, newWarnings())

	assert.Equal(t, schema.MethodPythonVenv, item.Method)
	assert.True(t, item.IncludeSystemSitePackages)
	assert.Contains(t, item.Packages, "requests-2.31.0")
}

func TestClassifyGit_ReadsRemoteBranchAndCommit(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "config"),
		[]byte("[core]\n\trepositoryformatversion = 0\n[remote \"origin\"]\n\turl = https://example.com/app.git\n\tfetch = +refs/heads/*:refs/remotes/origin/*\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte("abc123def456\n"), 0o644))

	item := classifyGit(dir, newWarnings())

	assert.Equal(t, schema.MethodGit, item.Method)
	assert.Equal(t, "https://example.com/app.git", item.GitRemote)
	assert.Equal(t, "main", item.GitBranch)
	assert.Equal(t, "abc123def456", item.GitCommit)
}

func TestClassifyGit_DetachedHeadUsesCommitDirectly(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("abc999\n"), 0o644))

	item := classifyGit(dir, newWarnings())

	assert.Equal(t, "abc999", item.GitCommit)
	assert.Empty(t, item.GitBranch)
}

func TestClassifyLockfile_DetectsPackageLockAndListsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("console.log(1)"), 0o644))

	item := classifyLockfile(dir)

	require.NotNil(t, item)
	assert.Equal(t, schema.MethodLockfile, item.Method)
	assert.Len(t, item.Files, 2)
}

func TestClassifyLockfile_NoLockfilePresentReturnsNil(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, classifyLockfile(dir))
}

func TestSystemPipPackages_FlagsCExtensionFromRecord(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "usr", "lib", "python3.9", "site-packages", "numpy-1.26.0.dist-info")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "RECORD"), []byte("numpy/core/_multiarray_umath.cpython-39-x86_64-linux-gnu.so,sha256=abc,12345\n"), 0o644))

	items := SystemPipPackages(inspect.HostRoot(root))

	require.Len(t, items, 1)
	assert.Equal(t, schema.MethodSystemPip, items[0].Method)
	assert.True(t, items[0].HasCExtensions)
}

func TestWalkTree_SkipsDevArtifactDirectoriesAndDescendsOthers(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "opt", "myapp")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "node_modules", "package-lock.json"), []byte("{}"), 0o644))
	nested := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, ".git", "HEAD"), []byte("abc\n"), 0o644))

	items := walkTree(filepath.Join(root, "opt"), inspect.HostRoot(root), inspect.Flags{}, newWarnings())

	var methods []schema.NonRpmMethod
	for _, it := range items {
		methods = append(methods, it.Method)
	}
	assert.Contains(t, methods, schema.MethodGit)
	assert.NotContains(t, methods, schema.MethodLockfile)
}
