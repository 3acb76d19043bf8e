// Package container inspects quadlet units, compose-declared services, and
// optionally the live container runtime state.
package container

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

var quadletDirs = []string{
	filepath.Join("etc", "containers", "systemd"),
	filepath.Join("usr", "share", "containers", "systemd"),
}

// perUserQuadletGlob matches per-user quadlet directories under home
// directories, scanned in addition to the system-wide locations.
const perUserQuadletGlob = ".config/containers/systemd"

var imageLineRe = regexp.MustCompile(`(?m)^\s*Image\s*=\s*(\S+)`)
var composeImageRe = regexp.MustCompile(`^\s*image:\s*["']?([^"'\s]+)["']?\s*$`)
var composeServiceNameRe = regexp.MustCompile(`^(\s*)([A-Za-z0-9_.-]+):\s*$`)

// Inspector implements inspect.Inspector for container workload discovery.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "container" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.ContainerSection{
		QuadletUnits:      scanQuadlets(root, warn),
		ComposeFiles:      scanCompose(root, warn),
		RunningContainers: []schema.RunningContainer{},
	}

	if flags.QueryPodman {
		section.RunningContainers = queryRunningContainers(ctx, ex, warn)
	}

	return section, nil
}

func scanQuadlets(root inspect.HostRoot, warn *schema.Warnings) []schema.QuadletUnit {
	var units []schema.QuadletUnit
	parser := file.NewParser()

	dirs := make([]string, 0, len(quadletDirs))
	for _, d := range quadletDirs {
		dirs = append(dirs, root.Join(d))
	}

	homeDir := root.Join("home")
	if entries, err := os.ReadDir(homeDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(homeDir, e.Name(), perUserQuadletGlob))
			}
		}
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".container") {
				continue
			}
			p := filepath.Join(dir, e.Name())
			content, err := parser.GetContent(p)
			if err != nil {
				warn.Warnf("container", fmt.Sprintf("could not read quadlet unit %s: %v", p, err))
				continue
			}
			image := ""
			if m := imageLineRe.FindStringSubmatch(content); m != nil {
				image = m[1]
			}
			units = append(units, schema.QuadletUnit{
				Path:    p,
				Name:    strings.TrimSuffix(e.Name(), ".container"),
				Image:   image,
				Content: content,
			})
		}
	}
	if units == nil {
		units = []schema.QuadletUnit{}
	}
	return units
}

// candidateComposeNames are the conventional compose file names searched
// for under directories that look like deployment roots.
var candidateComposeNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

func scanCompose(root inspect.HostRoot, warn *schema.Warnings) []schema.ComposeService {
	var services []schema.ComposeService
	searchRoots := []string{root.Join("opt"), root.Join("srv"), root.Join("root")}

	for _, sr := range searchRoots {
		entries, err := os.ReadDir(sr)
		if err != nil {
			continue
		}
		for _, e := range entries {
			dir := filepath.Join(sr, e.Name())
			if !e.IsDir() {
				dir = sr
			}
			for _, name := range candidateComposeNames {
				p := filepath.Join(dir, name)
				if !file.Exists(p) {
					continue
				}
				parsed, err := parseCompose(p)
				if err != nil {
					warn.Warnf("container", fmt.Sprintf("could not parse compose file %s: %v", p, err))
					continue
				}
				services = append(services, parsed...)
			}
		}
	}
	if services == nil {
		services = []schema.ComposeService{}
	}
	return services
}

// parseCompose is a small indentation-aware hand parser: it tracks the
// "services:" top-level block, then for each immediate child key treats it
// as a service name until it finds that service's "image:" line.
func parseCompose(path string) ([]schema.ComposeService, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var services []schema.ComposeService
	inServicesBlock := false
	servicesIndent := -1
	currentIndent := -1
	currentService := ""

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" || strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}
		indent := len(trimmed) - len(strings.TrimLeft(trimmed, " "))

		if !inServicesBlock {
			if strings.TrimSpace(trimmed) == "services:" {
				inServicesBlock = true
				servicesIndent = indent
			}
			continue
		}

		if indent <= servicesIndent {
			inServicesBlock = false
			currentService = ""
			continue
		}

		if m := composeServiceNameRe.FindStringSubmatch(trimmed); m != nil && indent == servicesIndent+2 {
			currentService = m[2]
			currentIndent = indent
			continue
		}

		if currentService != "" && indent > currentIndent {
			if m := composeImageRe.FindStringSubmatch(trimmed); m != nil {
				services = append(services, schema.ComposeService{File: path, Service: currentService, Image: m[1]})
			}
		}
	}
	return services, scanner.Err()
}

type podmanContainer struct {
	Names []string `json:"Names"`
	Image string   `json:"Image"`
}

type podmanInspect struct {
	Mounts []struct {
		Destination string `json:"Destination"`
	} `json:"Mounts"`
	NetworkSettings struct {
		Networks map[string]struct{} `json:"Networks"`
		Ports    map[string]any      `json:"Ports"`
	} `json:"NetworkSettings"`
	Config struct {
		Env []string `json:"Env"`
	} `json:"Config"`
}

func queryRunningContainers(ctx context.Context, ex exec.Executor, warn *schema.Warnings) []schema.RunningContainer {
	res, err := ex.Run(ctx, "", "podman", "ps", "--format", "json")
	if err != nil || res.ExitCode != 0 {
		warn.Warnf("container", "podman ps query failed; skipping running-container capture")
		return []schema.RunningContainer{}
	}

	var list []podmanContainer
	if err := json.Unmarshal(res.Stdout, &list); err != nil {
		warn.Warnf("container", fmt.Sprintf("could not parse podman ps output: %v", err))
		return []schema.RunningContainer{}
	}

	out := make([]schema.RunningContainer, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		rc := schema.RunningContainer{
			Name:     name,
			Image:    c.Image,
			Mounts:   []string{},
			Networks: []string{},
			Ports:    []string{},
			Env:      map[string]string{},
		}

		inspectRes, err := ex.Run(ctx, "", "podman", "inspect", name)
		if err == nil && inspectRes.ExitCode == 0 {
			var details []podmanInspect
			if err := json.Unmarshal(inspectRes.Stdout, &details); err == nil && len(details) == 1 {
				d := details[0]
				for _, m := range d.Mounts {
					rc.Mounts = append(rc.Mounts, m.Destination)
				}
				for net := range d.NetworkSettings.Networks {
					rc.Networks = append(rc.Networks, net)
				}
				sort.Strings(rc.Networks)
				for port := range d.NetworkSettings.Ports {
					rc.Ports = append(rc.Ports, port)
				}
				sort.Strings(rc.Ports)
				for _, kv := range d.Config.Env {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) == 2 {
						rc.Env[parts[0]] = parts[1]
					}
				}
			}
		}

		out = append(out, rc)
	}
	return out
}
