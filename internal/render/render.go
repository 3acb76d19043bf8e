// Package render orchestrates the fixed renderer execution order (spec
// §5): containerfile first, since it materializes the staging tree the
// HTML renderer's file browser reads back, then audit, HTML, README,
// kickstart, and secrets-review.
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvidia/rhel2bootc/internal/render/audit"
	"github.com/nvidia/rhel2bootc/internal/render/containerfile"
	"github.com/nvidia/rhel2bootc/internal/render/html"
	"github.com/nvidia/rhel2bootc/internal/render/kickstart"
	"github.com/nvidia/rhel2bootc/internal/render/readme"
	"github.com/nvidia/rhel2bootc/internal/render/secrets"
	"github.com/nvidia/rhel2bootc/internal/rerrors"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Run writes every renderer's output file under outputDir.
func Run(outputDir string, snap *schema.Snapshot) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return rerrors.Wrap(rerrors.CodeRender, "create output directory", err)
	}

	cf, err := containerfile.Render(outputDir, snap)
	if err != nil {
		return rerrors.Wrap(rerrors.CodeRender, "render containerfile", err)
	}
	if err := writeFile(outputDir, "Containerfile", cf.Recipe); err != nil {
		return err
	}

	if err := writeFile(outputDir, "audit-report.md", audit.Render(snap, cf.Recipe)); err != nil {
		return err
	}

	htmlContent, err := html.Render(snap, cf.Recipe, cf.Staged)
	if err != nil {
		return rerrors.Wrap(rerrors.CodeRender, "render html dashboard", err)
	}
	if err := writeFile(outputDir, "report.html", htmlContent); err != nil {
		return err
	}

	if err := writeFile(outputDir, "README.md", readme.Render(snap)); err != nil {
		return err
	}

	if err := writeFile(outputDir, "kickstart-suggestion.ks", kickstart.Render(snap)); err != nil {
		return err
	}

	if err := writeFile(outputDir, "secrets-review.md", secrets.Render(snap)); err != nil {
		return err
	}

	return nil
}

func writeFile(outputDir, name, content string) error {
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return rerrors.Wrap(rerrors.CodeRender, fmt.Sprintf("write %s", name), err)
	}
	return nil
}
