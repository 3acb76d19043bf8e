// Package secrets renders the redaction index: every placeholder the
// redaction pass introduced, with enough context to re-provision the real
// value out of band.
package secrets

import (
	"fmt"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Render produces secrets-review.md content.
func Render(snap *schema.Snapshot) string {
	var b strings.Builder

	b.WriteString("# Secrets review\n\n")
	if len(snap.Redactions) == 0 {
		b.WriteString("No credential-shaped values were found during inspection.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d value(s) were replaced with placeholders before this snapshot was written. ", len(snap.Redactions))
	b.WriteString("None of the original values are recoverable from this output; re-provision them out of band (sealed secrets, a vault, or manual entry at deploy time).\n\n")

	b.WriteString("| Field | Type | Placeholder |\n")
	b.WriteString("|---|---|---|\n")
	for _, r := range snap.Redactions {
		fmt.Fprintf(&b, "| `%s` | %s | `%s` |\n", r.Field, r.Type, r.Placeholder)
	}

	return b.String()
}
