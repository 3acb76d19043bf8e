// Package audit renders the human-readable Markdown findings report.
package audit

import (
	"fmt"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/render/triage"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Render produces audit-report.md content from the snapshot and the
// already-rendered recipe text (needed for the shared triage pass).
func Render(snap *schema.Snapshot, recipe string) string {
	report := triage.Build(snap, recipe)

	var b strings.Builder
	fmt.Fprintf(&b, "# Inspection audit report\n\n")
	fmt.Fprintf(&b, "Host: `%s`  \nInspected at: %s\n\n", snap.Meta.Hostname, snap.Meta.Timestamp.Format("2006-01-02T15:04:05Z"))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Automatic: %d\n", report.AutomaticCount)
	fmt.Fprintf(&b, "- Needs review: %d\n", report.NeedsReviewCount)
	fmt.Fprintf(&b, "- Manual intervention: %d\n\n", report.ManualCount)

	fmt.Fprintf(&b, "## Packages\n\n")
	fmt.Fprintf(&b, "- Added: %d\n", len(snap.RPM.PackagesAdded))
	fmt.Fprintf(&b, "- Removed: %d\n", len(snap.RPM.PackagesRemoved))
	fmt.Fprintf(&b, "- Modified since baseline: %d\n", len(snap.RPM.PackagesModified))
	if snap.RPM.NoBaseline {
		fmt.Fprintf(&b, "- **No baseline resolved**; every installed package is reported as added.\n")
	}
	b.WriteString("\n")

	section(&b, "Needs review", filterBucket(report, triage.BucketNeedsReview))
	section(&b, "Manual intervention", filterBucket(report, triage.BucketManual))

	if len(snap.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings\n\n")
		for _, w := range snap.Warnings {
			fmt.Fprintf(&b, "- **%s** [%s]: %s\n", w.Source, w.Severity, w.Message)
		}
		b.WriteString("\n")
	}

	if len(snap.Redactions) > 0 {
		fmt.Fprintf(&b, "## Redactions\n\n")
		fmt.Fprintf(&b, "%d value(s) redacted before persistence; see secrets-review.md for the index.\n\n", len(snap.Redactions))
	}

	return b.String()
}

func filterBucket(r triage.Report, bucket triage.Bucket) []string {
	var out []string
	for _, it := range r.Items {
		if it.Bucket == bucket {
			out = append(out, it.Description)
		}
	}
	return out
}

func section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
