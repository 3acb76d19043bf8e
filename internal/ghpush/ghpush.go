// Package ghpush pushes a rendered output directory to a GitHub repository
// as a thin wrapper over the `git` and `gh` CLIs, routed through the
// executor like every other subprocess call in the pipeline.
package ghpush

import (
	"context"
	"fmt"
	"os"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
)

// Params configures one push.
type Params struct {
	OutputDir string
	Repo      string // owner/name
	Token     string
	Public    bool
}

// Run runs `git init` in outputDir, commits the rendered output, creates
// the remote repository via `gh repo create`, and pushes. The create step
// runs on every call; if the remote repository already exists, that step
// fails and Run returns its error without pushing.
func Run(ctx context.Context, ex exec.Executor, p Params) error {
	if p.Token != "" {
		if err := os.Setenv("GH_TOKEN", p.Token); err != nil {
			return rerrors.Wrap(rerrors.CodePush, "set GH_TOKEN", err)
		}
	}

	visibility := "--private"
	if p.Public {
		visibility = "--public"
	}

	steps := [][]string{
		{"git", "init", "-q"},
		{"git", "add", "-A"},
		{"git", "-c", "user.email=r2bctl@localhost", "-c", "user.name=r2bctl", "commit", "-q", "-m", "bootc image rebuild artifacts"},
		{"gh", "repo", "create", p.Repo, visibility, "--source", ".", "--remote", "origin"},
		{"git", "push", "-u", "origin", "HEAD"},
	}
	for _, argv := range steps {
		if res, err := ex.Run(ctx, p.OutputDir, argv...); err != nil || res.ExitCode != 0 {
			return pushErr(argv[0], res, err)
		}
	}

	return nil
}

func pushErr(step string, res *exec.Result, err error) error {
	if err != nil {
		return rerrors.Wrap(rerrors.CodePush, fmt.Sprintf("%s failed to start", step), err)
	}
	return rerrors.New(rerrors.CodePush, fmt.Sprintf("%s exited %d: %s", step, res.ExitCode, res.Stderr))
}
