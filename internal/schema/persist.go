package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Save writes the snapshot as canonical, pretty-printed JSON to path.
func Save(snap *Snapshot, path string) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot from path, accepting either JSON or YAML based on
// the file extension (".yaml"/".yml" are parsed as YAML; everything else as
// JSON). A schema version newer than this build's is accepted best-effort
// with a warning logged; a snapshot from an older version is accepted
// silently since older fields are a subset of the current ones.
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	snap := &Snapshot{}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(b, snap); err != nil {
			return nil, fmt.Errorf("parse snapshot yaml %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(b, snap); err != nil {
			return nil, fmt.Errorf("parse snapshot json %s: %w", path, err)
		}
	}

	if snap.SchemaVersion > SchemaVersion {
		slog.Warn("snapshot schema version newer than this build; continuing best-effort",
			"snapshot_version", snap.SchemaVersion,
			"supported_version", SchemaVersion)
	}

	ensureNonNil(snap)

	return snap, nil
}

// ensureNonNil restores the empty-not-nil invariant after unmarshaling,
// since encoding/json and yaml.v3 leave omitted fields as nil.
func ensureNonNil(s *Snapshot) {
	if s.OsRelease.Fields == nil {
		s.OsRelease.Fields = map[string]string{}
	}
	if s.RPM.PackagesAdded == nil {
		s.RPM.PackagesAdded = []Package{}
	}
	if s.RPM.PackagesRemoved == nil {
		s.RPM.PackagesRemoved = []Package{}
	}
	if s.RPM.PackagesModified == nil {
		s.RPM.PackagesModified = []Package{}
	}
	if s.RPM.RpmVA == nil {
		s.RPM.RpmVA = []VerifyEntry{}
	}
	if s.RPM.RepoFiles == nil {
		s.RPM.RepoFiles = []RepoFile{}
	}
	if s.RPM.DnfHistoryRemoved == nil {
		s.RPM.DnfHistoryRemoved = []string{}
	}
	if s.Config.Files == nil {
		s.Config.Files = []ConfigFileEntry{}
	}
	if s.Service.StateChanges == nil {
		s.Service.StateChanges = []ServiceStateChange{}
	}
	if s.Service.EnabledUnits == nil {
		s.Service.EnabledUnits = []string{}
	}
	if s.Service.DisabledUnits == nil {
		s.Service.DisabledUnits = []string{}
	}
	if s.Network.Connections == nil {
		s.Network.Connections = []Connection{}
	}
	if s.Network.FirewallZones == nil {
		s.Network.FirewallZones = []FirewallZone{}
	}
	if s.Network.FirewallDirectRules == nil {
		s.Network.FirewallDirectRules = []FirewallDirectRule{}
	}
	if s.Network.StaticRoutes == nil {
		s.Network.StaticRoutes = []Route{}
	}
	if s.Network.IPRoutes == nil {
		s.Network.IPRoutes = []Route{}
	}
	if s.Network.IPRules == nil {
		s.Network.IPRules = []Route{}
	}
	if s.Network.HostsAdditions == nil {
		s.Network.HostsAdditions = []HostsAddition{}
	}
	if s.Network.Proxy == nil {
		s.Network.Proxy = map[string]string{}
	}
	if s.Storage.FstabEntries == nil {
		s.Storage.FstabEntries = []FstabEntry{}
	}
	if s.Storage.MountPoints == nil {
		s.Storage.MountPoints = []MountPoint{}
	}
	if s.Storage.VarDirectories == nil {
		s.Storage.VarDirectories = []VarDirectory{}
	}
	if s.Storage.CredentialRefs == nil {
		s.Storage.CredentialRefs = []CredentialRef{}
	}
	if s.Scheduled.CronJobs == nil {
		s.Scheduled.CronJobs = []CronJob{}
	}
	if s.Scheduled.SystemdTimers == nil {
		s.Scheduled.SystemdTimers = []SystemdTimer{}
	}
	if s.Scheduled.AtJobs == nil {
		s.Scheduled.AtJobs = []AtJob{}
	}
	if s.Scheduled.GeneratedTimerUnits == nil {
		s.Scheduled.GeneratedTimerUnits = []GeneratedTimerUnit{}
	}
	if s.Container.QuadletUnits == nil {
		s.Container.QuadletUnits = []QuadletUnit{}
	}
	if s.Container.ComposeFiles == nil {
		s.Container.ComposeFiles = []ComposeService{}
	}
	if s.Container.RunningContainers == nil {
		s.Container.RunningContainers = []RunningContainer{}
	}
	if s.NonRPM.Items == nil {
		s.NonRPM.Items = []NonRpmItem{}
	}
	if s.Kernel.SysctlOverrides == nil {
		s.Kernel.SysctlOverrides = []SysctlOverride{}
	}
	if s.Kernel.LoadedModules == nil {
		s.Kernel.LoadedModules = []string{}
	}
	if s.Kernel.NonDefaultModules == nil {
		s.Kernel.NonDefaultModules = []string{}
	}
	if s.Kernel.ModulesLoadD == nil {
		s.Kernel.ModulesLoadD = []ConfigSnippet{}
	}
	if s.Kernel.ModprobeD == nil {
		s.Kernel.ModprobeD = []ConfigSnippet{}
	}
	if s.Kernel.DracutConf == nil {
		s.Kernel.DracutConf = []ConfigSnippet{}
	}
	if s.SELinux.CustomModules == nil {
		s.SELinux.CustomModules = []string{}
	}
	if s.SELinux.BooleanOverrides == nil {
		s.SELinux.BooleanOverrides = []BooleanOverride{}
	}
	if s.SELinux.FcontextRules == nil {
		s.SELinux.FcontextRules = []FcontextRule{}
	}
	if s.SELinux.AuditRules == nil {
		s.SELinux.AuditRules = []string{}
	}
	if s.SELinux.PamConfigs == nil {
		s.SELinux.PamConfigs = []string{}
	}
	if s.UserGroup.Users == nil {
		s.UserGroup.Users = []UserAccount{}
	}
	if s.UserGroup.Groups == nil {
		s.UserGroup.Groups = []GroupAccount{}
	}
	if s.UserGroup.SudoersRules == nil {
		s.UserGroup.SudoersRules = []SudoersRule{}
	}
	if s.UserGroup.SSHAuthorizedKeysRefs == nil {
		s.UserGroup.SSHAuthorizedKeysRefs = []SSHAuthorizedKeysRef{}
	}
	if s.Warnings == nil {
		s.Warnings = []Warning{}
	}
	if s.Redactions == nil {
		s.Redactions = []Redaction{}
	}
}
