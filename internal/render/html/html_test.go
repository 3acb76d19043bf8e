package html

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

func TestRender_SummaryBadgesReflectTriageCounts(t *testing.T) {
	snap := schema.New("/host")
	snap.RPM.PackagesAdded = []schema.Package{{Name: "httpd"}}
	snap.RPM.PackagesModified = []schema.Package{{Name: "bash"}}
	snap.RPM.NoBaseline = true

	out, err := Render(snap, "", nil)

	require.NoError(t, err)
	assert.Contains(t, out, `<span class="badge badge-auto">1 automatic</span>`)
	assert.Contains(t, out, `<span class="badge badge-review">1 needs review</span>`)
	assert.Contains(t, out, `<span class="badge badge-manual">1 manual intervention</span>`)
}

func TestRender_NeedsReviewAndManualListsPopulated(t *testing.T) {
	snap := schema.New("/host")
	snap.RPM.PackagesModified = []schema.Package{{Name: "bash"}}
	snap.Scheduled.AtJobs = []schema.AtJob{{Path: "/var/spool/at/a0001a"}}

	out, err := Render(snap, "", nil)

	require.NoError(t, err)
	assert.Contains(t, out, "package modified since baseline: bash")
	assert.Contains(t, out, "at-job requires manual conversion: /var/spool/at/a0001a")
}

func TestRender_EmptyListsRenderNonePlaceholder(t *testing.T) {
	snap := schema.New("/host")

	out, err := Render(snap, "", nil)

	require.NoError(t, err)
	assert.Contains(t, out, "<li><em>none</em></li>")
	assert.Contains(t, out, "<p><em>none</em></p>")
}

func TestRender_WarningsRenderedAsDetailsWithSeverityAndSource(t *testing.T) {
	snap := schema.New("/host")
	snap.Warnings = append(snap.Warnings, schema.Warning{Source: "rpm", Message: "rpm -qa failed", Severity: schema.SeverityError})

	out, err := Render(snap, "", nil)

	require.NoError(t, err)
	assert.Contains(t, out, "[error] rpm")
	assert.Contains(t, out, "rpm -qa failed")
}

func TestRender_StagedFilesSortedAlphabetically(t *testing.T) {
	snap := schema.New("/host")

	out, err := Render(snap, "", []string{"etc/zzz.conf", "etc/aaa.conf"})

	require.NoError(t, err)
	aaaIdx := indexOf(out, "etc/aaa.conf")
	zzzIdx := indexOf(out, "etc/zzz.conf")
	require.True(t, aaaIdx >= 0 && zzzIdx >= 0)
	assert.Less(t, aaaIdx, zzzIdx)
}

func TestRender_HostnameAndValuesAreHTMLEscaped(t *testing.T) {
	snap := schema.New("/host")
	snap.Meta.Hostname = "<script>alert(1)</script>"

	out, err := Render(snap, "", nil)

	require.NoError(t, err)
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
