package schema

// ConnectionMethod classifies how a NetworkManager connection profile
// obtains its IPv4 address.
type ConnectionMethod string

const (
	MethodStatic ConnectionMethod = "static"
	MethodDHCP   ConnectionMethod = "dhcp"
	MethodOther  ConnectionMethod = "other"
)

// Connection is one NetworkManager keyfile connection profile.
type Connection struct {
	Path   string           `json:"path" yaml:"path"`
	Name   string           `json:"name" yaml:"name"`
	Method ConnectionMethod `json:"method" yaml:"method"`
	Type   string           `json:"type" yaml:"type"`
}

// ResolvProvenance classifies how /etc/resolv.conf came to be.
type ResolvProvenance string

const (
	ResolvSystemdResolved ResolvProvenance = "systemd-resolved"
	ResolvNetworkManager  ResolvProvenance = "networkmanager"
	ResolvStatic          ResolvProvenance = "static"
	ResolvUnknown         ResolvProvenance = "unknown"
)

// Route is one non-default static or policy route captured from `ip route`/`ip rule`.
type Route struct {
	Raw string `json:"raw" yaml:"raw"`
}

// FirewallZone is one firewalld zone definition file, captured verbatim.
type FirewallZone struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// FirewallDirectRule is one parsed direct-rule entry. Fields absent from the
// host's direct.xml are filled with the fixed defaults named in spec §9:
// priority="0", table="filter", ipv="ipv4", chain="INPUT".
type FirewallDirectRule struct {
	IPVersion string `json:"ipv" yaml:"ipv"`
	Table     string `json:"table" yaml:"table"`
	Chain     string `json:"chain" yaml:"chain"`
	Priority  string `json:"priority" yaml:"priority"`
	Args      string `json:"args" yaml:"args"`
}

// DefaultFirewallDirectRule returns a rule pre-populated with the spec's
// fixed attribute defaults; callers overwrite only the fields present on
// the host's input.
func DefaultFirewallDirectRule() FirewallDirectRule {
	return FirewallDirectRule{
		IPVersion: "ipv4",
		Table:     "filter",
		Chain:     "INPUT",
		Priority:  "0",
	}
}

// HostsAddition is one non-canonical line from /etc/hosts.
type HostsAddition struct {
	IP        string   `json:"ip" yaml:"ip"`
	Hostnames []string `json:"hostnames" yaml:"hostnames"`
}

// NetworkSection captures host connectivity configuration: NetworkManager
// profiles, firewalld zones/direct-rules, static routes/rules, resolv.conf
// provenance, /etc/hosts additions, and proxy settings.
type NetworkSection struct {
	Connections []Connection `json:"connections" yaml:"connections"`

	FirewallZones       []FirewallZone       `json:"firewall_zones" yaml:"firewall_zones"`
	FirewallDirectRules []FirewallDirectRule `json:"firewall_direct_rules" yaml:"firewall_direct_rules"`

	StaticRoutes []Route `json:"static_routes" yaml:"static_routes"`
	IPRoutes     []Route `json:"ip_routes" yaml:"ip_routes"`
	IPRules      []Route `json:"ip_rules" yaml:"ip_rules"`

	ResolvProvenance ResolvProvenance `json:"resolv_provenance" yaml:"resolv_provenance"`

	HostsAdditions []HostsAddition `json:"hosts_additions" yaml:"hosts_additions"`

	Proxy map[string]string `json:"proxy" yaml:"proxy"`
}

func newNetworkSection() NetworkSection {
	return NetworkSection{
		Connections:         []Connection{},
		FirewallZones:       []FirewallZone{},
		FirewallDirectRules: []FirewallDirectRule{},
		StaticRoutes:        []Route{},
		IPRoutes:            []Route{},
		IPRules:             []Route{},
		ResolvProvenance:    ResolvUnknown,
		HostsAdditions:      []HostsAddition{},
		Proxy:               map[string]string{},
	}
}
