// Package scheduled inspects cron, systemd timers, and at-jobs, converting
// cron expressions to systemd OnCalendar fragments where possible.
package scheduled

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var namedShortcuts = map[string]string{
	"@yearly":   "*-1-1 00:00:00",
	"@annually": "*-1-1 00:00:00",
	"@monthly":  "*-*-1 00:00:00",
	"@weekly":   "Sun *-*-* 00:00:00",
	"@daily":    "*-*-* 00:00:00",
	"@midnight": "*-*-* 00:00:00",
	"@hourly":   "*-*-* *:00:00",
}

// cronSystemDirs are scanned for system crontab files, which carry an
// extra user field before the command.
var cronSystemDirs = []string{filepath.Join("etc", "cron.d")}
var cronPeriodicDirs = map[string]string{
	filepath.Join("etc", "cron.hourly"):  "hourly",
	filepath.Join("etc", "cron.daily"):   "daily",
	filepath.Join("etc", "cron.weekly"):  "weekly",
	filepath.Join("etc", "cron.monthly"): "monthly",
}

// Inspector implements inspect.Inspector for scheduled tasks.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "scheduled_tasks" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.ScheduledTaskSection{
		CronJobs:            []schema.CronJob{},
		SystemdTimers:       []schema.SystemdTimer{},
		AtJobs:              []schema.AtJob{},
		GeneratedTimerUnits: []schema.GeneratedTimerUnit{},
	}

	section.CronJobs = append(section.CronJobs, scanSystemCrontabs(root, warn)...)
	section.CronJobs = append(section.CronJobs, scanPeriodicDirs(root, warn)...)
	section.CronJobs = append(section.CronJobs, scanMainCrontab(root, warn)...)
	section.CronJobs = append(section.CronJobs, scanUserCrontabs(root, warn)...)

	for idx := range section.CronJobs {
		job := &section.CronJobs[idx]
		if job.Converted {
			unitName := fmt.Sprintf("r2bctl-cron-%d", idx)
			timerContent, serviceContent, err := synthesizeUnit(unitName, job)
			if err != nil {
				warn.Warnf(i.Name(), fmt.Sprintf("failed to synthesize timer unit for cron job %q: %v", job.Command, err))
				continue
			}
			section.GeneratedTimerUnits = append(section.GeneratedTimerUnits, schema.GeneratedTimerUnit{
				Name:           unitName,
				TimerContent:   timerContent,
				ServiceContent: serviceContent,
			})
		}
	}

	section.SystemdTimers = scanSystemdTimers(root, warn)
	section.AtJobs = scanAtSpool(root, warn)

	return section, nil
}

func scanSystemCrontabs(root inspect.HostRoot, warn *schema.Warnings) []schema.CronJob {
	var jobs []schema.CronJob
	parser := file.NewParser()
	for _, rel := range cronSystemDirs {
		dir := root.Join(rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			p := filepath.Join(dir, e.Name())
			lines, err := parser.GetLines(p)
			if err != nil {
				warn.Warnf("scheduled_tasks", fmt.Sprintf("could not read %s: %v", p, err))
				continue
			}
			for _, line := range lines {
				if job, ok := parseSystemCronLine(p, line); ok {
					jobs = append(jobs, job)
				}
			}
		}
	}
	return jobs
}

func scanMainCrontab(root inspect.HostRoot, warn *schema.Warnings) []schema.CronJob {
	p := root.Join("etc", "crontab")
	lines, err := file.NewParser().GetLines(p)
	if err != nil {
		return nil
	}
	var jobs []schema.CronJob
	for _, line := range lines {
		if job, ok := parseSystemCronLine(p, line); ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func scanUserCrontabs(root inspect.HostRoot, warn *schema.Warnings) []schema.CronJob {
	dir := root.Join("var", "spool", "cron")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	parser := file.NewParser()
	var jobs []schema.CronJob
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		lines, err := parser.GetLines(p)
		if err != nil {
			warn.Warnf("scheduled_tasks", fmt.Sprintf("could not read user crontab %s: %v", p, err))
			continue
		}
		for _, line := range lines {
			if job, ok := parseUserCronLine(p, e.Name(), line); ok {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs
}

func scanPeriodicDirs(root inspect.HostRoot, warn *schema.Warnings) []schema.CronJob {
	var jobs []schema.CronJob
	names := make([]string, 0, len(cronPeriodicDirs))
	for rel := range cronPeriodicDirs {
		names = append(names, rel)
	}
	sort.Strings(names)

	for _, rel := range names {
		period := cronPeriodicDirs[rel]
		dir := root.Join(rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			shortcut := "@" + period
			cal, converted := convertExpression(shortcut)
			jobs = append(jobs, schema.CronJob{
				Source:     filepath.Join(rel, e.Name()),
				Schedule:   shortcut,
				Command:    filepath.Join(dir, e.Name()),
				OnCalendar: cal,
				Converted:  converted,
			})
		}
	}
	return jobs
}

// parseSystemCronLine parses a /etc/cron.d or /etc/crontab style line,
// which carries an extra user field between the 5 schedule fields and the
// command.
func parseSystemCronLine(source, line string) (schema.CronJob, bool) {
	if named, cmd, ok := splitNamedShortcut(line); ok {
		cal, converted := convertExpression(named)
		fields := strings.SplitN(cmd, " ", 2)
		user, command := "", cmd
		if len(fields) == 2 {
			user, command = fields[0], fields[1]
		}
		return schema.CronJob{Source: source, Schedule: named, Command: strings.TrimSpace(command), User: user, OnCalendar: cal, Converted: converted}, true
	}

	fields := strings.Fields(line)
	if len(fields) < 7 {
		return schema.CronJob{}, false
	}
	schedule := strings.Join(fields[:5], " ")
	user := fields[5]
	command := strings.Join(fields[6:], " ")
	cal, converted := convertExpression(schedule)
	return schema.CronJob{Source: source, Schedule: schedule, Command: command, User: user, OnCalendar: cal, Converted: converted}, true
}

func parseUserCronLine(source, user, line string) (schema.CronJob, bool) {
	if named, cmd, ok := splitNamedShortcut(line); ok {
		cal, converted := convertExpression(named)
		return schema.CronJob{Source: source, Schedule: named, Command: strings.TrimSpace(cmd), User: user, OnCalendar: cal, Converted: converted}, true
	}

	fields := strings.Fields(line)
	if len(fields) < 6 {
		return schema.CronJob{}, false
	}
	schedule := strings.Join(fields[:5], " ")
	command := strings.Join(fields[5:], " ")
	cal, converted := convertExpression(schedule)
	return schema.CronJob{Source: source, Schedule: schedule, Command: command, User: user, OnCalendar: cal, Converted: converted}, true
}

func splitNamedShortcut(line string) (shortcut, rest string, ok bool) {
	if !strings.HasPrefix(line, "@") {
		return "", "", false
	}
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// convertExpression converts a 5-field cron expression (or named shortcut)
// into a systemd OnCalendar fragment. Converted is false for @reboot and
// any malformed/unrecognized expression.
func convertExpression(expr string) (string, bool) {
	if expr == "@reboot" {
		return "", false
	}
	if cal, ok := namedShortcuts[expr]; ok {
		return cal, true
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "", false
	}

	minute, ok1 := convertMinuteField(fields[0])
	hour, ok2 := convertField(fields[1], 0, 23)
	dom, ok3 := convertField(fields[2], 1, 31)
	month, ok4 := convertField(fields[3], 1, 12)
	dow, ok5 := convertDayOfWeek(fields[4])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return "", false
	}
	if n, err := strconv.Atoi(hour); err == nil {
		hour = fmt.Sprintf("%02d", n)
	}
	if n, err := strconv.Atoi(minute); err == nil {
		minute = fmt.Sprintf("%02d", n)
	}

	datePart := month + "-" + dom
	if dow != "*" {
		return fmt.Sprintf("%s *-%s %s:%s:00", dow, datePart, hour, minute), true
	}
	return fmt.Sprintf("*-%s %s:%s:00", datePart, hour, minute), true
}

// convertMinuteField handles the cron minute field. Unlike the other
// numeric fields, a step expression here is passed through as "*/n" rather
// than "0/n": systemd accepts both, but "*/n" is what the field actually
// means ("every n minutes", not "starting from minute 0").
func convertMinuteField(field string) (string, bool) {
	if strings.HasPrefix(field, "*/") {
		step := strings.TrimPrefix(field, "*/")
		if _, err := strconv.Atoi(step); err != nil {
			return "", false
		}
		return "*/" + step, true
	}
	return convertField(field, 0, 59)
}

// convertField handles *, step (*/n), ranges (a-b), and lists (a,b,c).
// A step is rewritten as "<min>/n"; ranges and lists pass through verbatim
// into OnCalendar's own syntax, and "*" is accepted by OnCalendar directly.
func convertField(field string, min, max int) (string, bool) {
	if field == "*" {
		return "*", true
	}
	if strings.HasPrefix(field, "*/") {
		step := strings.TrimPrefix(field, "*/")
		if _, err := strconv.Atoi(step); err != nil {
			return "", false
		}
		return fmt.Sprintf("%d/%s", min, step), true
	}
	// Ranges and lists pass through; systemd's calendar grammar accepts the
	// same a-b and a,b,c shapes cron does.
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(strings.SplitN(part, "-", 2)[0])
		if _, err := strconv.Atoi(part); err != nil {
			return "", false
		}
	}
	return field, true
}

func convertDayOfWeek(field string) (string, bool) {
	if field == "*" {
		return "*", true
	}
	var names []string
	for _, part := range strings.Split(field, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", false
		}
		if n == 7 {
			n = 0
		}
		if n < 0 || n > 6 {
			return "", false
		}
		names = append(names, weekdayNames[n])
	}
	return strings.Join(names, ","), true
}

// synthesizeUnit serializes a timer+service unit pair for a converted cron
// job using go-systemd's unit-file writer, so the generated fragments carry
// syntactically valid section/key/value formatting.
func synthesizeUnit(name string, job *schema.CronJob) (timerContent, serviceContent string, err error) {
	timerOpts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", fmt.Sprintf("Converted cron job: %s", job.Command)),
		unit.NewUnitOption("Timer", "OnCalendar", job.OnCalendar),
		unit.NewUnitOption("Timer", "Persistent", "true"),
		unit.NewUnitOption("Install", "WantedBy", "timers.target"),
	}
	serviceOpts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", fmt.Sprintf("Converted cron job: %s", job.Command)),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", job.Command),
	}
	if job.User != "" {
		serviceOpts = append(serviceOpts, unit.NewUnitOption("Service", "User", job.User))
	}

	timerContent, err = serialize(timerOpts)
	if err != nil {
		return "", "", err
	}
	serviceContent, err = serialize(serviceOpts)
	if err != nil {
		return "", "", err
	}
	return timerContent, serviceContent, nil
}

func serialize(opts []*unit.UnitOption) (string, error) {
	r := unit.Serialize(opts)
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanSystemdTimers(root inspect.HostRoot, warn *schema.Warnings) []schema.SystemdTimer {
	dirs := map[string]schema.TimerSource{
		filepath.Join("etc", "systemd", "system"):     schema.TimerLocal,
		filepath.Join("usr", "lib", "systemd", "system"): schema.TimerVendor,
	}

	var timers []schema.SystemdTimer
	names := make([]string, 0, len(dirs))
	for rel := range dirs {
		names = append(names, rel)
	}
	sort.Strings(names)

	for _, rel := range names {
		source := dirs[rel]
		dir := root.Join(rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".timer") {
				continue
			}
			timerPath := filepath.Join(dir, e.Name())
			kv, err := file.NewParser(file.WithSkipComments(true)).GetMap(timerPath)
			if err != nil {
				warn.Warnf("scheduled_tasks", fmt.Sprintf("could not parse timer %s: %v", timerPath, err))
				continue
			}

			servicePath := filepath.Join(dir, strings.TrimSuffix(e.Name(), ".timer")+".service")
			execStart := ""
			if skv, err := file.NewParser(file.WithSkipComments(true)).GetMap(servicePath); err == nil {
				execStart = skv["ExecStart"]
			}

			timers = append(timers, schema.SystemdTimer{
				Name:       e.Name(),
				Source:     source,
				OnCalendar: kv["OnCalendar"],
				ExecStart:  execStart,
			})
		}
	}
	return timers
}

// scanAtSpool parses at-spool jobs, stripping the shell-environment
// preamble at-jobs are wrapped in to extract the actual command, which is
// always the final non-empty line of the spool file.
func scanAtSpool(root inspect.HostRoot, warn *schema.Warnings) []schema.AtJob {
	dir := root.Join("var", "spool", "at")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var jobs []schema.AtJob
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			warn.Warnf("scheduled_tasks", fmt.Sprintf("could not read at-job %s: %v", p, err))
			continue
		}

		command := lastNonEmptyLine(b)
		jobs = append(jobs, schema.AtJob{Path: p, Command: command})
	}
	return jobs
}

func lastNonEmptyLine(b []byte) string {
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			last = line
		}
	}
	return last
}
