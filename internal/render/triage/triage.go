// Package triage classifies snapshot findings into three buckets the other
// renderers share: automatic (folded into the recipe without operator
// attention), needs-review (the recipe carries a FIXME marker), and
// manual-intervention (nothing in the recipe addresses it at all).
package triage

import (
	"strings"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Item is one triaged finding, worded for direct display in the audit
// report and HTML dashboard.
type Item struct {
	Bucket      Bucket
	Description string
}

// Bucket names one of the three triage classes.
type Bucket string

const (
	BucketAutomatic  Bucket = "automatic"
	BucketNeedsReview Bucket = "needs_review"
	BucketManual     Bucket = "manual_intervention"
)

// Report is the full triage result for one snapshot plus the recipe text
// that was rendered from it.
type Report struct {
	Items []Item

	AutomaticCount   int
	NeedsReviewCount int
	ManualCount      int
}

// Build classifies every triage-relevant snapshot entry and every FIXME
// comment line found in recipe.
func Build(snap *schema.Snapshot, recipe string) Report {
	var r Report
	add := func(bucket Bucket, desc string) {
		r.Items = append(r.Items, Item{Bucket: bucket, Description: desc})
		switch bucket {
		case BucketAutomatic:
			r.AutomaticCount++
		case BucketNeedsReview:
			r.NeedsReviewCount++
		case BucketManual:
			r.ManualCount++
		}
	}

	for _, p := range snap.RPM.PackagesAdded {
		add(BucketAutomatic, "package installed: "+p.Name)
	}
	for _, p := range snap.RPM.PackagesModified {
		add(BucketNeedsReview, "package modified since baseline: "+p.Name)
	}
	if snap.RPM.NoBaseline {
		add(BucketManual, "no baseline resolved: every installed package reported as added")
	}

	for _, w := range snap.Warnings {
		if w.Severity == schema.SeverityError {
			add(BucketManual, w.Source+": "+w.Message)
		}
	}

	for _, c := range snap.Scheduled.CronJobs {
		if !c.Converted {
			add(BucketNeedsReview, "cron entry not convertible: "+c.Schedule+" "+c.Command)
		} else {
			add(BucketAutomatic, "cron entry converted to systemd timer: "+c.Command)
		}
	}
	for _, a := range snap.Scheduled.AtJobs {
		add(BucketManual, "at-job requires manual conversion: "+a.Path)
	}

	for _, it := range snap.NonRPM.Items {
		switch it.Method {
		case schema.MethodSystemPip:
			add(BucketAutomatic, "pip packages reinstalled: "+it.Path)
		default:
			add(BucketNeedsReview, "non-RPM software needs manual handling: "+it.Path)
		}
	}

	for _, ref := range snap.UserGroup.SSHAuthorizedKeysRefs {
		add(BucketManual, "SSH authorized_keys not baked into image for user "+ref.User)
	}

	for _, m := range snap.SELinux.CustomModules {
		add(BucketManual, "custom SELinux policy module not carried forward: "+m)
	}

	for _, line := range strings.Split(recipe, "\n") {
		if strings.Contains(line, "FIXME") {
			add(BucketNeedsReview, strings.TrimSpace(strings.TrimPrefix(line, "#")))
		}
	}

	return r
}
