package baseline

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

func TestResolve_ExplicitBaselineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.txt")
	require.NoError(t, os.WriteFile(path, []byte("httpd\n# a comment\nopenssl\n\nbash\n"), 0o644))

	ex := exec.NewFakeExecutor()
	r := NewResolver(ex, inspect.HostRoot("/host"))
	warn := newWarnings()

	res := r.Resolve(context.Background(), Params{
		OsID: "centos", VersionID: "9", BaselinePackagesFile: path,
	}, warn)

	assert.False(t, res.NoBaseline)
	_, ok := res.Packages["httpd"]
	assert.True(t, ok)
	assert.Equal(t, "quay.io/centos-bootc/centos-bootc:stream9", res.BaseImage)
}

func TestResolve_UnknownOsDegradesToNoBaseline(t *testing.T) {
	ex := exec.NewFakeExecutor()
	r := NewResolver(ex, inspect.HostRoot("/host"))
	warn := newWarnings()

	res := r.Resolve(context.Background(), Params{OsID: "fictional-distro", VersionID: "1"}, warn)

	assert.True(t, res.NoBaseline)
}

func TestResolve_NamespaceEntryUnavailableDegradesToNoBaseline(t *testing.T) {
	ex := exec.NewFakeExecutor() // unregistered nsenter -> exit 127
	r := NewResolver(ex, inspect.HostRoot("/host"))
	warn := newWarnings()

	res := r.Resolve(context.Background(), Params{OsID: "centos", VersionID: "9"}, warn)

	assert.True(t, res.NoBaseline)
	assert.Equal(t, "quay.io/centos-bootc/centos-bootc:stream9", res.BaseImage)
}

func TestResolve_SuccessfulImageQuery(t *testing.T) {
	ex := exec.NewFakeExecutor().On("nsenter", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
		for _, a := range argv {
			if a == "rpm" {
				return &exec.Result{Stdout: []byte("httpd\nopenssl\n"), ExitCode: 0}, nil
			}
		}
		return &exec.Result{ExitCode: 0}, nil
	})
	r := NewResolver(ex, inspect.HostRoot("/host"))
	warn := newWarnings()

	res := r.Resolve(context.Background(), Params{OsID: "centos", VersionID: "9"}, warn)

	require.False(t, res.NoBaseline)
	assert.Contains(t, res.Packages, "httpd")
	assert.Contains(t, res.Packages, "openssl")
}

func TestResolve_CrossMajorVersionRecordsErrorWarning(t *testing.T) {
	ex := exec.NewFakeExecutor()
	r := NewResolver(ex, inspect.HostRoot("/host"))
	snap := schema.New("/host")
	warn := schema.NewWarnings(snap)

	r.Resolve(context.Background(), Params{OsID: "centos", VersionID: "8", TargetVersion: "9"}, warn)

	// The cross-major-version error comes first; the fake executor has no
	// nsenter handler, so the probe then fails and adds a no-baseline warning.
	require.Len(t, snap.Warnings, 2)
	assert.Equal(t, schema.SeverityError, snap.Warnings[0].Severity)
}

func TestSortedNames_IsSorted(t *testing.T) {
	names := SortedNames(map[string]struct{}{"zsh": {}, "bash": {}, "awk": {}})
	assert.Equal(t, []string{"awk", "bash", "zsh"}, names)
}

func TestProbeNamespaceEntry_Memoized(t *testing.T) {
	calls := 0
	ex := exec.NewFakeExecutor().On("nsenter", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
		calls++
		return &exec.Result{ExitCode: 0}, nil
	})
	r := NewResolver(ex, inspect.HostRoot("/host"))

	first := r.probeNamespaceEntry(context.Background())
	second := r.probeNamespaceEntry(context.Background())

	assert.True(t, first)
	assert.True(t, second)
	assert.Equal(t, 1, calls)
}
