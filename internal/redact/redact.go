// Package redact scans the fully-populated snapshot for credential-shaped
// text and replaces it with deterministic placeholder tokens before the
// snapshot is persisted.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

const privateKeySentinel = "REDACTED_PRIVATE_KEY"

// pattern is one ordered secret-detection rule. The last capture group, if
// any, is the captured value used both to compute the placeholder hash and to check
// against knownLiterals.
type pattern struct {
	typeName string
	re       *regexp.Regexp
}

// privateKeyPattern spans multiple lines, so it is matched against whole
// field content before line-by-line scanning rather than through the
// single-line patterns list below.
var privateKeyPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)

// patterns are single-line forms, matched line by line after the multi-line
// private-key block has already been replaced wholesale.
var patterns = []pattern{
	{typeName: "AWS_ACCESS_KEY", re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{typeName: "AWS_SECRET_KEY", re: regexp.MustCompile(`(?i)aws_secret_access_key\s*[=:]\s*([A-Za-z0-9/+=]{40})`)},
	{typeName: "GCP_SERVICE_ACCOUNT_KEY", re: regexp.MustCompile(`"private_key_id":\s*"([a-f0-9]{40})"`)},
	{typeName: "AZURE_CLIENT_SECRET", re: regexp.MustCompile(`(?i)client_secret\s*[=:]\s*([A-Za-z0-9._~-]{30,})`)},
	{typeName: "GITHUB_PAT", re: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,255}\b`)},
	{typeName: "BEARER_TOKEN", re: regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9._-]{10,})`)},
	{typeName: "JDBC_URI_PASSWORD", re: regexp.MustCompile(`(jdbc:[a-z]+://[^;]*?password=)([^;&\s]+)`)},
	{typeName: "DB_URI_PASSWORD", re: regexp.MustCompile(`((?:postgres|postgresql|mysql|mongodb|redis)://[^:/\s]+:)([^@/\s]+)@`)},
	{typeName: "API_KEY", re: regexp.MustCompile(`(?i)\bapi[_-]?key\s*[=:]\s*["']?([A-Za-z0-9_-]{16,})["']?`)},
	{typeName: "PASSWORD", re: regexp.MustCompile(`(?i)\bpassword\s*[=:]\s*["']?(\S+)["']?`)},
}

// knownLiterals are single-token matches of generic patterns (mainly
// "password=X"/"api_key=X"-shaped rules) that are almost always PAM/NSS/shell
// configuration values rather than secrets, so they are skipped even though
// they match the pattern's shape.
var knownLiterals = map[string]bool{
	"files":       true,
	"sss":         true,
	"sha512":      true,
	"md5":         true,
	"pam_unix.so": true,
	"nullok":      true,
	"yes":         true,
	"no":          true,
	"true":        true,
	"false":       true,
}

// excludedPathSuffixes names paths whose entire content is replaced
// wholesale with a single placeholder line rather than scanned pattern by
// pattern, since any content found there is secret by construction.
var excludedPathSuffixes = []string{
	"/etc/shadow",
	"/etc/gshadow",
	"ssh_host_rsa_key",
	"ssh_host_ecdsa_key",
	"ssh_host_ed25519_key",
	".key",
	".keytab",
}

const alreadyRedactedPrefix = "REDACTED_"

// Run scans every text-bearing field of the snapshot and replaces
// credential-shaped content in place, appending one schema.Redaction per
// replacement. It is idempotent: every placeholder already carries the
// alreadyRedactedPrefix, so a second pass makes no further changes.
func Run(snap *schema.Snapshot) {
	r := &redactor{snap: snap}

	for idx := range snap.Config.Files {
		f := &snap.Config.Files[idx]
		f.Content = r.scanOrExclude(fmt.Sprintf("config.files[%s].content", f.Path), f.Path, f.Content)
	}
	for idx := range snap.Network.FirewallZones {
		z := &snap.Network.FirewallZones[idx]
		z.Content = r.scan(fmt.Sprintf("network.firewall_zones[%s].content", z.Name), z.Content)
	}
	for idx := range snap.Container.QuadletUnits {
		u := &snap.Container.QuadletUnits[idx]
		u.Content = r.scan(fmt.Sprintf("container.quadlet_units[%s].content", u.Name), u.Content)
	}
	for idx := range snap.Container.RunningContainers {
		c := &snap.Container.RunningContainers[idx]
		for k, v := range c.Env {
			c.Env[k] = r.scan(fmt.Sprintf("container.running_containers[%s].env[%s]", c.Name, k), v)
		}
	}
	for idx := range snap.Scheduled.GeneratedTimerUnits {
		u := &snap.Scheduled.GeneratedTimerUnits[idx]
		u.ServiceContent = r.scan(fmt.Sprintf("scheduled_tasks.generated_timer_units[%s].service_content", u.Name), u.ServiceContent)
	}
	for idx := range snap.Scheduled.CronJobs {
		j := &snap.Scheduled.CronJobs[idx]
		j.Command = r.scan(fmt.Sprintf("scheduled_tasks.cron_jobs[%d].command", idx), j.Command)
	}
	snap.Kernel.GrubDefaults = r.scan("kernel_boot.grub_defaults", snap.Kernel.GrubDefaults)
	for idx := range snap.Kernel.ModulesLoadD {
		s := &snap.Kernel.ModulesLoadD[idx]
		s.Content = r.scan(fmt.Sprintf("kernel_boot.modules_load_d[%s].content", s.Path), s.Content)
	}
	for idx := range snap.Kernel.ModprobeD {
		s := &snap.Kernel.ModprobeD[idx]
		s.Content = r.scan(fmt.Sprintf("kernel_boot.modprobe_d[%s].content", s.Path), s.Content)
	}
	for idx := range snap.Kernel.DracutConf {
		s := &snap.Kernel.DracutConf[idx]
		s.Content = r.scan(fmt.Sprintf("kernel_boot.dracut_conf[%s].content", s.Path), s.Content)
	}
	for idx := range snap.UserGroup.SudoersRules {
		s := &snap.UserGroup.SudoersRules[idx]
		s.Rule = r.scan(fmt.Sprintf("user_group.sudoers_rules[%d].rule", idx), s.Rule)
	}
	for idx := range snap.RPM.RepoFiles {
		f := &snap.RPM.RepoFiles[idx]
		f.Content = r.scan(fmt.Sprintf("rpm.repo_files[%s].content", f.Path), f.Content)
	}

	snap.Redactions = r.redactions
	if snap.Redactions == nil {
		snap.Redactions = []schema.Redaction{}
	}
}

type redactor struct {
	snap       *schema.Snapshot
	redactions []schema.Redaction
}

// scanOrExclude applies the wholesale-exclusion path list before falling
// back to pattern scanning.
func (r *redactor) scanOrExclude(field, path, content string) string {
	for _, suffix := range excludedPathSuffixes {
		if strings.HasSuffix(path, suffix) {
			if content == "" || isAlreadyRedacted(content) {
				return content
			}
			r.redactions = append(r.redactions, schema.Redaction{Field: field, Type: "EXCLUDED_PATH", Placeholder: alreadyRedactedPrefix + "CONTENT"})
			return alreadyRedactedPrefix + "CONTENT\n"
		}
	}
	return r.scan(field, content)
}

func isAlreadyRedacted(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, alreadyRedactedPrefix)
}

// scan first replaces any multi-line private-key block wholesale, then
// applies every single-line pattern in order, skipping comment lines and
// known literals, replacing each match with a deterministic placeholder.
func (r *redactor) scan(field, content string) string {
	if content == "" {
		return content
	}

	content = r.scanPrivateKeys(field, content)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if isCommentLine(line) {
			continue
		}
		lines[i] = r.scanLine(field, line)
	}
	return strings.Join(lines, "\n")
}

// scanPrivateKeys replaces every BEGIN/END private-key block in content
// with a single sentinel, skipping blocks already carrying the sentinel.
func (r *redactor) scanPrivateKeys(field, content string) string {
	return privateKeyPattern.ReplaceAllStringFunc(content, func(match string) string {
		if strings.Contains(match, privateKeySentinel) {
			return match
		}
		r.redactions = append(r.redactions, schema.Redaction{Field: field, Type: "PRIVATE_KEY", Placeholder: privateKeySentinel})
		return privateKeySentinel
	})
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "!")
}

func (r *redactor) scanLine(field, line string) string {
	for _, p := range patterns {
		line = p.re.ReplaceAllStringFunc(line, func(match string) string {
			captured := match
			sub := p.re.FindStringSubmatch(match)
			if len(sub) > 1 {
				captured = sub[len(sub)-1]
			}
			if strings.HasPrefix(captured, alreadyRedactedPrefix) {
				return match
			}
			if knownLiterals[strings.ToLower(strings.Trim(captured, `"'`))] {
				return match
			}

			placeholder := fmt.Sprintf("%s%s_%s", alreadyRedactedPrefix, p.typeName, shortHash(captured))
			r.redactions = append(r.redactions, schema.Redaction{Field: field, Type: p.typeName, Placeholder: placeholder})
			return strings.Replace(match, captured, placeholder, 1)
		})
	}
	return line
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
