// Package validate runs a real build of the rendered Containerfile as an
// opt-in check (the CLI's --validate flag), since a recipe can be
// syntactically fine and still fail to build against the actual base
// image (a missing repo, an unresolvable package name after sanitization,
// and so on).
package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
)

// Run builds outputDir's Containerfile with the host's image runtime. On
// failure it writes build-errors.log alongside the recipe and returns a
// CodeValidate StructuredError; on success it removes any stale log from a
// previous failed attempt.
func Run(ctx context.Context, ex exec.Executor, outputDir, tag string) error {
	logPath := filepath.Join(outputDir, "build-errors.log")

	res, err := ex.Run(ctx, outputDir, "podman", "build", "--no-cache", "-t", tag, ".")
	if err != nil {
		return rerrors.Wrap(rerrors.CodeValidate, "invoke image build", err)
	}

	if res.ExitCode != 0 {
		content := fmt.Sprintf("build exited %d\n\n--- stdout ---\n%s\n\n--- stderr ---\n%s\n",
			res.ExitCode, string(res.Stdout), res.Stderr)
		if writeErr := os.WriteFile(logPath, []byte(content), 0o644); writeErr != nil {
			return rerrors.Wrap(rerrors.CodeValidate, "write build-errors.log", writeErr)
		}
		return rerrors.New(rerrors.CodeValidate, fmt.Sprintf("build failed, see %s", logPath))
	}

	os.Remove(logPath)
	return nil
}
