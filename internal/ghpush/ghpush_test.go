package ghpush

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
)

func TestRun_HappyPathRunsAllStepsInOrder(t *testing.T) {
	var gitArgs, ghArgs [][]string
	ex := exec.NewFakeExecutor().
		On("git", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			gitArgs = append(gitArgs, argv)
			return &exec.Result{ExitCode: 0}, nil
		}).
		On("gh", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			ghArgs = append(ghArgs, argv)
			return &exec.Result{ExitCode: 0}, nil
		})

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host"})

	require.NoError(t, err)
	require.Len(t, gitArgs, 4)
	assert.Equal(t, []string{"git", "init", "-q"}, gitArgs[0])
	assert.Equal(t, []string{"git", "push", "-u", "origin", "HEAD"}, gitArgs[3])
	require.Len(t, ghArgs, 1)
	assert.Contains(t, ghArgs[0], "--private")
}

func TestRun_PublicFlagUsesPublicVisibility(t *testing.T) {
	var ghArgs []string
	ex := exec.NewFakeExecutor().
		On("git", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			return &exec.Result{ExitCode: 0}, nil
		}).
		On("gh", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			ghArgs = argv
			return &exec.Result{ExitCode: 0}, nil
		})

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host", Public: true})

	require.NoError(t, err)
	assert.Contains(t, ghArgs, "--public")
	assert.NotContains(t, ghArgs, "--private")
}

func TestRun_TokenIsExportedAsGHTokenEnvVar(t *testing.T) {
	os.Unsetenv("GH_TOKEN")
	defer os.Unsetenv("GH_TOKEN")

	ex := exec.NewFakeExecutor().
		On("git", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			return &exec.Result{ExitCode: 0}, nil
		}).
		On("gh", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			assert.Equal(t, "ghp_abc123", os.Getenv("GH_TOKEN"))
			return &exec.Result{ExitCode: 0}, nil
		})

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host", Token: "ghp_abc123"})

	require.NoError(t, err)
}

func TestRun_NonZeroExitStopsAtFailingStepAndReturnsPushError(t *testing.T) {
	var commitCalled bool
	ex := exec.NewFakeExecutor().
		On("git", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
			if argv[1] == "add" {
				return &exec.Result{ExitCode: 128, Stderr: "not a git repository"}, nil
			}
			if argv[1] == "commit" {
				commitCalled = true
			}
			return &exec.Result{ExitCode: 0}, nil
		})

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host"})

	require.Error(t, err)
	var structured *rerrors.StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, rerrors.CodePush, structured.Code)
	assert.Contains(t, err.Error(), "not a git repository")
	assert.False(t, commitCalled)
}

func TestRun_MissingGitBinaryReturnsPushError(t *testing.T) {
	ex := exec.NewFakeExecutor()

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host"})

	require.Error(t, err)
	var structured *rerrors.StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, rerrors.CodePush, structured.Code)
}

func TestRun_ExecutorStartFailureIsWrapped(t *testing.T) {
	ex := exec.NewFakeExecutor().On("git", func(ctx context.Context, dir string, argv []string) (*exec.Result, error) {
		return nil, os.ErrNotExist
	})

	err := Run(context.Background(), ex, Params{OutputDir: t.TempDir(), Repo: "acme/rebuilt-host"})

	require.Error(t, err)
	var structured *rerrors.StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, rerrors.CodePush, structured.Code)
	assert.Contains(t, err.Error(), "failed to start")
}
