// Package schema defines the tagged, fully-typed snapshot that mediates
// between the inspectors and the renderers. Every section is optional so
// the pipeline tolerates partial inspection; every slice/map field defaults
// to empty (never nil) so renderers never need to branch on "present but
// empty" versus "absent".
//
// The top-level Snapshot is created empty by the pipeline, populated
// incrementally by inspectors in a fixed order, rewritten in full by the
// redaction pass, serialized once, optionally reloaded from disk, and
// passed read-only to renderers.
package schema

import "time"

// SchemaVersion is the current schema_version written by this build. A
// snapshot loaded with a higher version logs a warning and is used
// best-effort; a snapshot with a lower version is accepted without
// complaint (older fields are a subset of the current ones).
const SchemaVersion = 1

// Snapshot is the single document produced by one inspection run and
// consumed by every renderer.
type Snapshot struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version"`

	Meta Meta `json:"meta" yaml:"meta"`

	OsRelease OsRelease `json:"os_release" yaml:"os_release"`
	RPM       RpmSection       `json:"rpm" yaml:"rpm"`
	Config    ConfigSection    `json:"config" yaml:"config"`
	Service   ServiceSection   `json:"service" yaml:"service"`
	Network   NetworkSection   `json:"network" yaml:"network"`
	Storage   StorageSection   `json:"storage" yaml:"storage"`
	Scheduled ScheduledTaskSection `json:"scheduled_tasks" yaml:"scheduled_tasks"`
	Container ContainerSection `json:"container" yaml:"container"`
	NonRPM    NonRpmSoftwareSection `json:"non_rpm_software" yaml:"non_rpm_software"`
	Kernel    KernelBootSection `json:"kernel_boot" yaml:"kernel_boot"`
	SELinux   SelinuxSection   `json:"selinux" yaml:"selinux"`
	UserGroup UserGroupSection `json:"user_group" yaml:"user_group"`

	Warnings   []Warning   `json:"warnings" yaml:"warnings"`
	Redactions []Redaction `json:"redactions" yaml:"redactions"`
}

// New returns an empty Snapshot with every container field initialized so
// nothing is ever nil.
func New(hostRoot string) *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Meta: Meta{
			HostRoot:  hostRoot,
			Timestamp: time.Now().UTC(),
		},
		OsRelease:  OsRelease{Fields: map[string]string{}},
		RPM:        newRpmSection(),
		Config:     ConfigSection{Files: []ConfigFileEntry{}},
		Service:    newServiceSection(),
		Network:    newNetworkSection(),
		Storage:    newStorageSection(),
		Scheduled:  newScheduledTaskSection(),
		Container:  newContainerSection(),
		NonRPM:     NonRpmSoftwareSection{Items: []NonRpmItem{}},
		Kernel:     newKernelBootSection(),
		SELinux:    newSelinuxSection(),
		UserGroup:  newUserGroupSection(),
		Warnings:   []Warning{},
		Redactions: []Redaction{},
	}
}

// Meta holds run-identifying information about the inspected host.
type Meta struct {
	HostRoot  string    `json:"host_root" yaml:"host_root"`
	Hostname  string    `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	RunID     string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// OsRelease mirrors the key-value pairs parsed from /etc/os-release.
type OsRelease struct {
	Fields map[string]string `json:"fields" yaml:"fields"`
}

func (r OsRelease) Get(key string) string {
	return r.Fields[key]
}

// Severity classifies a Warning's urgency.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warning"
	SeverityError Severity = "error"
)

// Warning is a structured record of something an inspector (or a later
// stage) could not do cleanly, per the error-handling taxonomy in spec §7.
type Warning struct {
	Source   string   `json:"source" yaml:"source"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// Warnings is an append-only helper around Snapshot.Warnings, passed by
// pointer into inspectors so they can record problems without needing the
// whole Snapshot.
type Warnings struct {
	items *[]Warning
}

// NewWarnings wraps a Snapshot's Warnings slice for incremental appends.
func NewWarnings(snap *Snapshot) *Warnings {
	return &Warnings{items: &snap.Warnings}
}

// Add appends a structured warning.
func (w *Warnings) Add(source, message string, severity Severity) {
	*w.items = append(*w.items, Warning{Source: source, Message: message, Severity: severity})
}

// Warnf appends a warning-severity record (the common case).
func (w *Warnings) Warnf(source, message string) {
	w.Add(source, message, SeverityWarn)
}

// Errorf appends an error-severity record (does not abort the run; used for
// cross-major-version and similarly serious-but-non-fatal conditions).
func (w *Warnings) Errorf(source, message string) {
	w.Add(source, message, SeverityError)
}

// Redaction names the field whose content was altered during the redaction
// pass and what kind of secret was found there.
type Redaction struct {
	Field       string `json:"field" yaml:"field"`
	Type        string `json:"type" yaml:"type"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
}
