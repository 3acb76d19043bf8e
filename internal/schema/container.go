package schema

// QuadletUnit is one .container quadlet unit file.
type QuadletUnit struct {
	Path    string `json:"path" yaml:"path"`
	Name    string `json:"name" yaml:"name"`
	Image   string `json:"image" yaml:"image"`
	Content string `json:"content" yaml:"content"`
}

// ComposeService is one {service, image} pair parsed out of a compose file.
type ComposeService struct {
	File    string `json:"file" yaml:"file"`
	Service string `json:"service" yaml:"service"`
	Image   string `json:"image" yaml:"image"`
}

// RunningContainer is one live container captured via the host's image
// runtime, when --query-podman is enabled.
type RunningContainer struct {
	Name    string            `json:"name" yaml:"name"`
	Image   string            `json:"image" yaml:"image"`
	Mounts  []string          `json:"mounts" yaml:"mounts"`
	Networks []string         `json:"networks" yaml:"networks"`
	Ports   []string          `json:"ports" yaml:"ports"`
	Env     map[string]string `json:"env" yaml:"env"`
}

// ContainerSection captures quadlet units, compose-declared services, and
// optionally the set of running containers.
type ContainerSection struct {
	QuadletUnits      []QuadletUnit      `json:"quadlet_units" yaml:"quadlet_units"`
	ComposeFiles      []ComposeService   `json:"compose_files" yaml:"compose_files"`
	RunningContainers []RunningContainer `json:"running_containers" yaml:"running_containers"`
}

func newContainerSection() ContainerSection {
	return ContainerSection{
		QuadletUnits:      []QuadletUnit{},
		ComposeFiles:      []ComposeService{},
		RunningContainers: []RunningContainer{},
	}
}
