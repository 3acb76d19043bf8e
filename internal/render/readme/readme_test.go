package readme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

func TestRender_IncludesHostnameAndBuildDeploySteps(t *testing.T) {
	snap := schema.New("/host")
	snap.Meta.Hostname = "web01.example.com"

	out := Render(snap)

	assert.Contains(t, out, "# bootc image rebuild: web01.example.com")
	assert.Contains(t, out, "podman build -t local/rebuilt-host .")
	assert.Contains(t, out, "bootc switch --transport registry local/rebuilt-host")
}

func TestRender_BaseImageNotedWhenPresent(t *testing.T) {
	snap := schema.New("/host")
	snap.RPM.BaseImage = "quay.io/centos-bootc/centos-bootc:stream9"

	out := Render(snap)

	assert.Contains(t, out, "Base image: `quay.io/centos-bootc/centos-bootc:stream9`")
}

func TestRender_NoBaselineWarningShown(t *testing.T) {
	snap := schema.New("/host")
	snap.RPM.NoBaseline = true

	out := Render(snap)

	assert.Contains(t, out, "No baseline package list was resolved")
}

func TestRender_AtJobsAndSSHKeysNotedWhenPresent(t *testing.T) {
	snap := schema.New("/host")
	snap.Scheduled.AtJobs = []schema.AtJob{{Path: "/var/spool/at/a0001a"}}
	snap.UserGroup.SSHAuthorizedKeysRefs = []schema.SSHAuthorizedKeysRef{{User: "deploy"}}

	out := Render(snap)

	assert.Contains(t, out, "At-spool jobs were found")
	assert.Contains(t, out, "SSH authorized_keys files were referenced")
}

func TestRender_NoAtJobsOrSSHKeysOmitsBullets(t *testing.T) {
	snap := schema.New("/host")

	out := Render(snap)

	assert.NotContains(t, out, "At-spool jobs were found")
	assert.NotContains(t, out, "SSH authorized_keys files were referenced")
}
