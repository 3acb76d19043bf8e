package schema

// ServiceAction is the translation of a unit's current enablement state
// into the recipe-time action needed to reproduce it over the base image's
// preset defaults.
type ServiceAction string

const (
	ServiceEnable    ServiceAction = "enable"
	ServiceDisable   ServiceAction = "disable"
	ServiceMask      ServiceAction = "mask"
	ServiceUnchanged ServiceAction = "unchanged"
)

// ServiceStateChange is one unit's observed-vs-default state and the action
// needed to reconcile them.
type ServiceStateChange struct {
	Unit          string        `json:"unit" yaml:"unit"`
	CurrentState  string        `json:"current_state" yaml:"current_state"`
	DefaultState  string        `json:"default_state" yaml:"default_state"`
	Action        ServiceAction `json:"action" yaml:"action"`
}

// ServiceSection is the per-unit enablement diff against the base image's
// systemd presets.
type ServiceSection struct {
	StateChanges []ServiceStateChange `json:"state_changes" yaml:"state_changes"`

	// EnabledUnits and DisabledUnits are derived: only units whose action
	// differs from the preset default appear here.
	EnabledUnits  []string `json:"enabled_units" yaml:"enabled_units"`
	DisabledUnits []string `json:"disabled_units" yaml:"disabled_units"`
}

func newServiceSection() ServiceSection {
	return ServiceSection{
		StateChanges:  []ServiceStateChange{},
		EnabledUnits:  []string{},
		DisabledUnits: []string{},
	}
}

// Derive recomputes EnabledUnits/DisabledUnits from StateChanges.
func (s *ServiceSection) Derive() {
	s.EnabledUnits = s.EnabledUnits[:0]
	s.DisabledUnits = s.DisabledUnits[:0]
	for _, sc := range s.StateChanges {
		switch sc.Action {
		case ServiceEnable:
			s.EnabledUnits = append(s.EnabledUnits, sc.Unit)
		case ServiceDisable, ServiceMask:
			s.DisabledUnits = append(s.DisabledUnits, sc.Unit)
		}
	}
	if s.EnabledUnits == nil {
		s.EnabledUnits = []string{}
	}
	if s.DisabledUnits == nil {
		s.DisabledUnits = []string{}
	}
}
