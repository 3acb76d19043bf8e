// Package cli wires the r2bctl command-line surface: flag parsing,
// dispatching to the pipeline and renderers, and exit-code selection.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/ghpush"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/logging"
	"github.com/nvidia/rhel2bootc/internal/metrics"
	"github.com/nvidia/rhel2bootc/internal/pipeline"
	"github.com/nvidia/rhel2bootc/internal/render"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
	"github.com/nvidia/rhel2bootc/internal/schema"
	"github.com/nvidia/rhel2bootc/internal/validate"
)

// Version is set at build time via -ldflags; it is included in log
// metadata and the snapshot's run metadata.
var Version = "dev"

// New builds the root r2bctl command.
func New() *cli.Command {
	return &cli.Command{
		Name:                  "r2bctl",
		Usage:                 "Inspect a RHEL-family host and render a bootc image rebuild recipe",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host-root", Value: "/host", Usage: "path the inspected host's filesystem is bind-mounted at"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Value: "./output", Usage: "directory to write the snapshot and rendered artifacts to"},
			&cli.StringFlag{Name: "from-snapshot", Usage: "skip inspection and render from a previously saved snapshot file"},
			&cli.BoolFlag{Name: "inspect-only", Usage: "write the snapshot and skip rendering"},
			&cli.StringFlag{Name: "target-version", Usage: "override the resolved baseline's target OS version"},
			&cli.StringFlag{Name: "target-image", Usage: "override the resolved baseline's target base image"},
			&cli.StringFlag{Name: "baseline-packages", Usage: "path to an explicit baseline package list, for air-gapped hosts"},
			&cli.BoolFlag{Name: "config-diffs", Usage: "compute full diffs for rpm-owned-and-modified config files"},
			&cli.BoolFlag{Name: "deep-binary-scan", Usage: "scan non-RPM binaries for embedded version strings more exhaustively"},
			&cli.BoolFlag{Name: "query-podman", Usage: "query the host's running containers via podman"},
			&cli.BoolFlag{Name: "skip-preflight", Usage: "skip the container-capability preflight checks"},
			&cli.BoolFlag{Name: "validate", Usage: "build the rendered Containerfile and fail if it does not build"},
			&cli.StringFlag{Name: "push-to-github", Usage: "push the rendered output directory to owner/repo on GitHub"},
			&cli.StringFlag{Name: "github-token", Usage: "token used for --push-to-github"},
			&cli.BoolFlag{Name: "public", Usage: "create the GitHub repository as public rather than private"},
			&cli.BoolFlag{Name: "yes", Usage: "skip confirmation prompts"},
			&cli.BoolFlag{Name: "metrics", Usage: "expose stage-duration Prometheus metrics while running"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logging.SetDefault("r2bctl", Version)

	if cmd.Bool("metrics") {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe("127.0.0.1:9090", mux); err != nil {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	outputDir := cmd.String("output-dir")
	ex := exec.NewOSExecutor()

	var snap *schema.Snapshot
	var err error

	if from := cmd.String("from-snapshot"); from != "" {
		snap, err = schema.Load(from)
		if err != nil {
			return exitErr(rerrors.Wrap(rerrors.CodePersist, "load snapshot", err))
		}
	} else {
		p := pipeline.New(ex)
		params := pipeline.Params{
			HostRoot:             cmd.String("host-root"),
			SkipPreflight:        cmd.Bool("skip-preflight"),
			InspectOnly:          cmd.Bool("inspect-only"),
			TargetVersion:        cmd.String("target-version"),
			TargetImage:          cmd.String("target-image"),
			BaselinePackagesFile: cmd.String("baseline-packages"),
			Flags: inspect.Flags{
				ConfigDiffs:    cmd.Bool("config-diffs"),
				DeepBinaryScan: cmd.Bool("deep-binary-scan"),
				QueryPodman:    cmd.Bool("query-podman"),
			},
		}

		snap, err = p.Run(ctx, params)
		if err != nil {
			metrics.ObserveRun("failure")
			return exitErr(err)
		}

		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			metrics.ObserveRun("failure")
			return exitErr(rerrors.Wrap(rerrors.CodePersist, "create output directory", err))
		}
		if err := schema.Save(snap, filepath.Join(outputDir, "inspection-snapshot.json")); err != nil {
			metrics.ObserveRun("failure")
			return exitErr(rerrors.Wrap(rerrors.CodePersist, "save snapshot", err))
		}
	}

	if cmd.Bool("inspect-only") {
		metrics.ObserveRun("success")
		return nil
	}

	if err := render.Run(outputDir, snap); err != nil {
		metrics.ObserveRun("failure")
		return exitErr(err)
	}

	if cmd.Bool("validate") {
		tag := "localhost/r2bctl-validate"
		if err := validate.Run(ctx, ex, outputDir, tag); err != nil {
			metrics.ObserveRun("failure")
			return exitErr(err)
		}
	}

	if repo := cmd.String("push-to-github"); repo != "" {
		if !cmd.Bool("yes") {
			fmt.Fprintf(os.Stderr, "about to push %s to github.com/%s; re-run with --yes to confirm\n", outputDir, repo)
			metrics.ObserveRun("failure")
			return exitErr(rerrors.New(rerrors.CodePush, "push requires --yes confirmation"))
		}
		pushParams := ghpush.Params{
			OutputDir: outputDir,
			Repo:      repo,
			Token:     cmd.String("github-token"),
			Public:    cmd.Bool("public"),
		}
		if err := ghpush.Run(ctx, ex, pushParams); err != nil {
			metrics.ObserveRun("failure")
			return exitErr(err)
		}
	}

	metrics.ObserveRun("success")
	return nil
}

// exitErr implements spec §6's exit-code contract: every path through run
// that reaches this point is exit code 1; success paths return nil
// directly.
func exitErr(err error) error {
	return cli.Exit(err.Error(), 1)
}
