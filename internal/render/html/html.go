// Package html renders the self-contained dashboard report.html. It uses
// the standard library's html/template for output escaping — nothing in
// the reference corpus provides a third-party HTML templating package, so
// this is one of the renderer's deliberate stdlib exceptions.
package html

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"

	"github.com/nvidia/rhel2bootc/internal/render/triage"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

type viewModel struct {
	Hostname  string
	Timestamp string
	Summary   struct {
		Automatic   int
		NeedsReview int
		Manual      int
	}
	Warnings    []schema.Warning
	NeedsReview []string
	Manual      []string
	StagedFiles []string
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>rhel2bootc inspection report: {{.Hostname}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
h1, h2 { border-bottom: 1px solid #ddd; padding-bottom: .3rem; }
.badge { display: inline-block; padding: .2rem .6rem; border-radius: .3rem; margin-right: .5rem; font-size: .9rem; }
.badge-auto { background: #e3f6e3; }
.badge-review { background: #fff3cd; }
.badge-manual { background: #f8d7da; }
details.warning { cursor: pointer; }
ul.files { columns: 2; }
</style>
</head>
<body>
<h1>rhel2bootc inspection report</h1>
<p>Host <code>{{.Hostname}}</code> inspected at {{.Timestamp}}</p>

<h2>Summary</h2>
<span class="badge badge-auto">{{.Summary.Automatic}} automatic</span>
<span class="badge badge-review">{{.Summary.NeedsReview}} needs review</span>
<span class="badge badge-manual">{{.Summary.Manual}} manual intervention</span>

<h2>Needs review</h2>
<ul>
{{range .NeedsReview}}<li>{{.}}</li>
{{else}}<li><em>none</em></li>{{end}}
</ul>

<h2>Manual intervention</h2>
<ul>
{{range .Manual}}<li>{{.}}</li>
{{else}}<li><em>none</em></li>{{end}}
</ul>

<h2>Warnings</h2>
{{range .Warnings}}
<details class="warning"><summary>[{{.Severity}}] {{.Source}}</summary><p>{{.Message}}</p></details>
{{else}}<p><em>none</em></p>{{end}}

<h2>Staged files</h2>
<ul class="files">
{{range .StagedFiles}}<li>{{.}}</li>
{{end}}
</ul>
</body>
</html>
`

var tmpl = template.Must(template.New("report").Parse(pageTemplate))

// Render produces report.html content given the snapshot, the already
// rendered recipe (for the shared triage pass), and the staged file list
// the containerfile renderer wrote.
func Render(snap *schema.Snapshot, recipe string, staged []string) (string, error) {
	report := triage.Build(snap, recipe)

	vm := viewModel{
		Hostname:  snap.Meta.Hostname,
		Timestamp: snap.Meta.Timestamp.Format("2006-01-02T15:04:05Z"),
		Warnings:  snap.Warnings,
	}
	vm.Summary.Automatic = report.AutomaticCount
	vm.Summary.NeedsReview = report.NeedsReviewCount
	vm.Summary.Manual = report.ManualCount

	for _, it := range report.Items {
		switch it.Bucket {
		case triage.BucketNeedsReview:
			vm.NeedsReview = append(vm.NeedsReview, it.Description)
		case triage.BucketManual:
			vm.Manual = append(vm.Manual, it.Description)
		}
	}

	vm.StagedFiles = append([]string{}, staged...)
	sort.Strings(vm.StagedFiles)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vm); err != nil {
		return "", fmt.Errorf("html: render report: %w", err)
	}
	return buf.String(), nil
}
