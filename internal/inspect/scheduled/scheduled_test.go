package scheduled

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

func newWarnings() *schema.Warnings {
	return schema.NewWarnings(schema.New("/host"))
}

func TestConvertExpression_NamedShortcuts(t *testing.T) {
	cal, ok := convertExpression("@daily")
	assert.True(t, ok)
	assert.Equal(t, "*-*-* 00:00:00", cal)
}

func TestConvertExpression_RebootIsUnconvertible(t *testing.T) {
	cal, ok := convertExpression("@reboot")
	assert.False(t, ok)
	assert.Empty(t, cal)
}

func TestConvertExpression_FiveFieldExpressionWithWildcardDow(t *testing.T) {
	cal, ok := convertExpression("0 2 * * *")
	require.True(t, ok)
	assert.Equal(t, "*-*-* 02:00:00", cal)
}

func TestConvertExpression_DayOfWeekField(t *testing.T) {
	cal, ok := convertExpression("30 4 * * 0")
	require.True(t, ok)
	assert.Equal(t, "Sun *-*-* 04:30:00", cal)
}

func TestConvertExpression_StepField(t *testing.T) {
	cal, ok := convertExpression("*/15 * * * *")
	require.True(t, ok)
	assert.Contains(t, cal, "*/15")
}

func TestConvertExpression_NonMinuteStepFieldUsesZeroOffset(t *testing.T) {
	cal, ok := convertExpression("0 */4 * * *")
	require.True(t, ok)
	assert.Contains(t, cal, "0/4")
}

func TestConvertExpression_MalformedFieldCountFails(t *testing.T) {
	_, ok := convertExpression("* * *")
	assert.False(t, ok)
}

func TestConvertDayOfWeek_SevenMapsToSunday(t *testing.T) {
	name, ok := convertDayOfWeek("7")
	require.True(t, ok)
	assert.Equal(t, "Sun", name)
}

func TestConvertDayOfWeek_OutOfRangeFails(t *testing.T) {
	_, ok := convertDayOfWeek("8")
	assert.False(t, ok)
}

func TestParseSystemCronLine_StandardFiveFieldForm(t *testing.T) {
	job, ok := parseSystemCronLine("/etc/cron.d/backup", "0 2 * * * root /usr/local/bin/backup.sh")
	require.True(t, ok)
	assert.Equal(t, "0 2 * * *", job.Schedule)
	assert.Equal(t, "root", job.User)
	assert.Equal(t, "/usr/local/bin/backup.sh", job.Command)
	assert.True(t, job.Converted)
}

func TestParseSystemCronLine_NamedShortcutForm(t *testing.T) {
	job, ok := parseSystemCronLine("/etc/cron.d/cleanup", "@reboot root /usr/local/bin/cleanup.sh")
	require.True(t, ok)
	assert.Equal(t, "@reboot", job.Schedule)
	assert.Equal(t, "root", job.User)
	assert.False(t, job.Converted)
}

func TestParseSystemCronLine_TooFewFieldsFails(t *testing.T) {
	_, ok := parseSystemCronLine("/etc/crontab", "0 2 * * root")
	assert.False(t, ok)
}

func TestParseUserCronLine_StandardForm(t *testing.T) {
	job, ok := parseUserCronLine("/var/spool/cron/deploy", "deploy", "*/5 * * * * /usr/bin/sync.sh")
	require.True(t, ok)
	assert.Equal(t, "deploy", job.User)
	assert.Equal(t, "/usr/bin/sync.sh", job.Command)
}

func TestScanSystemCrontabs_ParsesCronD(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "etc", "cron.d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup"), []byte("0 2 * * * root /usr/local/bin/backup.sh\n"), 0o644))

	jobs := scanSystemCrontabs(inspect.HostRoot(root), newWarnings())

	require.Len(t, jobs, 1)
	assert.Equal(t, "root", jobs[0].User)
}

func TestScanAtSpool_ExtractsLastNonEmptyLineAsCommand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "var", "spool", "at")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a0001a"),
		[]byte("#!/bin/sh\n# atrun uid=0 gid=0\nexport PATH\n/usr/local/bin/one-shot.sh\n"), 0o644))

	jobs := scanAtSpool(inspect.HostRoot(root), newWarnings())

	require.Len(t, jobs, 1)
	assert.Equal(t, "/usr/local/bin/one-shot.sh", jobs[0].Command)
}

func TestScanSystemdTimers_PairsTimerWithService(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "etc", "systemd", "system")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup.timer"),
		[]byte("[Timer]\nOnCalendar=daily\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup.service"),
		[]byte("[Service]\nExecStart=/usr/local/bin/backup.sh\n"), 0o644))

	timers := scanSystemdTimers(inspect.HostRoot(root), newWarnings())

	require.Len(t, timers, 1)
	assert.Equal(t, "daily", timers[0].OnCalendar)
	assert.Equal(t, "/usr/local/bin/backup.sh", timers[0].ExecStart)
	assert.Equal(t, schema.TimerLocal, timers[0].Source)
}

func TestRun_GeneratesTimerUnitForConvertedCronJob(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "etc", "cron.d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup"), []byte("0 2 * * * root /usr/local/bin/backup.sh\n"), 0o644))

	i := New()
	warn := newWarnings()
	out, err := i.Run(context.Background(), inspect.HostRoot(root), exec.NewFakeExecutor(), warn, inspect.Flags{})

	require.NoError(t, err)
	section := out.(schema.ScheduledTaskSection)
	require.Len(t, section.CronJobs, 1)
	require.Len(t, section.GeneratedTimerUnits, 1)
	assert.Contains(t, section.GeneratedTimerUnits[0].TimerContent, "OnCalendar")
	assert.Contains(t, section.GeneratedTimerUnits[0].ServiceContent, "/usr/local/bin/backup.sh")
}
