// Package readme renders the build-and-deploy quick reference shipped
// alongside the generated recipe.
package readme

import (
	"fmt"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Render produces README.md content.
func Render(snap *schema.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# bootc image rebuild: %s\n\n", snap.Meta.Hostname)
	fmt.Fprintf(&b, "Generated from an inspection of `%s` at %s.\n\n", snap.Meta.Hostname, snap.Meta.Timestamp.Format("2006-01-02T15:04:05Z"))

	b.WriteString("## Build\n\n```sh\npodman build -t local/rebuilt-host .\n```\n\n")

	if snap.RPM.BaseImage != "" {
		fmt.Fprintf(&b, "Base image: `%s`\n\n", snap.RPM.BaseImage)
	}
	if snap.RPM.NoBaseline {
		b.WriteString("No baseline package list was resolved; every installed package on the source host is treated as added. Review `audit-report.md` before trusting the install layer.\n\n")
	}

	b.WriteString("## Deploy\n\n```sh\nbootc switch --transport registry local/rebuilt-host\n```\n\n")
	b.WriteString("For a fresh install, see `kickstart-suggestion.ks`.\n\n")

	b.WriteString("## Before you trust this build\n\n")
	b.WriteString("- Read `audit-report.md` for everything the inspector could not translate automatically.\n")
	b.WriteString("- Read `secrets-review.md`: values resembling credentials were replaced with placeholders and must be re-provisioned out of band.\n")
	if len(snap.Scheduled.AtJobs) > 0 {
		b.WriteString("- At-spool jobs were found and are not reproduced automatically; see the scheduled-tasks section of the audit report.\n")
	}
	if len(snap.UserGroup.SSHAuthorizedKeysRefs) > 0 {
		b.WriteString("- SSH authorized_keys files were referenced but not copied into the image.\n")
	}
	b.WriteString("\n")

	b.WriteString("## Files in this directory\n\n")
	b.WriteString("- `Containerfile` — the build recipe.\n")
	b.WriteString("- `config/` — staged file content the recipe copies in.\n")
	b.WriteString("- `quadlet/` — container unit files, if any were found.\n")
	b.WriteString("- `inspection-snapshot.json` — the full machine-readable inspection record.\n")
	b.WriteString("- `audit-report.md`, `report.html` — human-readable findings.\n")
	b.WriteString("- `secrets-review.md` — the redaction index.\n")
	b.WriteString("- `kickstart-suggestion.ks` — deploy-time provisioning suggestions (DHCP networking, etc).\n")

	return b.String()
}
