// Package network inspects NetworkManager profiles, firewalld
// configuration, routing policy, resolv.conf provenance, /etc/hosts
// additions, and proxy environment.
package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/exec"
	"github.com/nvidia/rhel2bootc/internal/inspect"
	"github.com/nvidia/rhel2bootc/internal/inspect/file"
	"github.com/nvidia/rhel2bootc/internal/schema"
)

// canonicalHosts are the loopback lines every /etc/hosts ships with; any
// other entry is a host-specific addition worth carrying into the recipe.
var canonicalHosts = map[string]bool{
	"127.0.0.1": true,
	"::1":       true,
}

// builtinRouteTables are excluded from the captured non-default policy
// rules, since every Linux host has them regardless of configuration.
var builtinRouteTables = []string{"local", "main", "default"}

// Inspector implements inspect.Inspector for host network configuration.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

func (i *Inspector) Name() string { return "network" }

func (i *Inspector) Run(ctx context.Context, root inspect.HostRoot, ex exec.Executor, warn *schema.Warnings, flags inspect.Flags) (any, error) {
	section := schema.NetworkSection{
		Connections:         connections(root, warn),
		FirewallZones:       firewallZones(root, warn),
		FirewallDirectRules: directRules(root, warn),
		ResolvProvenance:    resolvProvenance(root),
		HostsAdditions:      hostsAdditions(root, warn),
		Proxy:               proxyVars(root),
	}
	section.StaticRoutes = connectionStaticRoutes(root, warn)
	section.IPRoutes = ipRoutes(ctx, ex)
	section.IPRules = ipRules(ctx, ex)
	if section.StaticRoutes == nil {
		section.StaticRoutes = []schema.Route{}
	}
	if section.IPRoutes == nil {
		section.IPRoutes = []schema.Route{}
	}
	if section.IPRules == nil {
		section.IPRules = []schema.Route{}
	}
	return section, nil
}

// connectionStaticRoutes extracts any ipv4.routeN entries configured
// directly in NetworkManager keyfiles, as distinct from the live `ip route`
// table captured separately.
func connectionStaticRoutes(root inspect.HostRoot, warn *schema.Warnings) []schema.Route {
	dir := root.Join("etc", "NetworkManager", "system-connections")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	parser := file.NewParser(file.WithSkipEmptyValues(true))
	var out []schema.Route
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		kv, err := parser.GetMap(p)
		if err != nil {
			continue
		}
		for k, v := range kv {
			if strings.HasPrefix(k, "ipv4.route") || strings.HasPrefix(k, "ipv6.route") {
				out = append(out, schema.Route{Raw: v})
			}
		}
	}
	return out
}

func connections(root inspect.HostRoot, warn *schema.Warnings) []schema.Connection {
	dir := root.Join("etc", "NetworkManager", "system-connections")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []schema.Connection{}
	}

	parser := file.NewParser(file.WithKVDelimiter("="), file.WithSkipEmptyValues(true))
	var out []schema.Connection
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		kv, err := parser.GetMap(p)
		if err != nil {
			warn.Warnf("network", fmt.Sprintf("could not parse connection profile %s: %v", p, err))
			continue
		}
		method := schema.MethodOther
		switch kv["method"] {
		case "manual":
			method = schema.MethodStatic
		case "auto", "":
			method = schema.MethodDHCP
		}
		out = append(out, schema.Connection{
			Path:   p,
			Name:   kv["id"],
			Method: method,
			Type:   kv["type"],
		})
	}
	if out == nil {
		out = []schema.Connection{}
	}
	return out
}

// firewalldZone mirrors the subset of firewalld's zone XML schema the
// recipe cares about for staging purposes; the raw content is captured
// verbatim alongside the parsed name.
type firewalldZone struct {
	XMLName xml.Name `xml:"zone"`
}

func firewallZones(root inspect.HostRoot, warn *schema.Warnings) []schema.FirewallZone {
	dirs := []string{
		root.Join("etc", "firewalld", "zones"),
		root.Join("usr", "lib", "firewalld", "zones"),
	}
	parser := file.NewParser()
	var out []schema.FirewallZone
	seen := map[string]bool{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".xml") {
				continue
			}
			if seen[e.Name()] {
				continue
			}
			seen[e.Name()] = true
			p := filepath.Join(dir, e.Name())
			content, err := parser.GetContent(p)
			if err != nil {
				warn.Warnf("network", fmt.Sprintf("could not read firewall zone %s: %v", p, err))
				continue
			}
			var z firewalldZone
			if err := xml.Unmarshal([]byte(content), &z); err != nil {
				warn.Warnf("network", fmt.Sprintf("zone file %s is not well-formed XML: %v", p, err))
			}
			out = append(out, schema.FirewallZone{
				Name:    strings.TrimSuffix(e.Name(), ".xml"),
				Path:    p,
				Content: content,
			})
		}
	}
	if out == nil {
		out = []schema.FirewallZone{}
	}
	return out
}

// directXMLRule is one rule element of firewalld's direct.xml, of the form:
// <rule ipv="ipv4" table="filter" chain="INPUT" priority="0">-j ACCEPT</rule>
type directXMLRule struct {
	IPVersion string `xml:"ipv,attr"`
	Table     string `xml:"table,attr"`
	Chain     string `xml:"chain,attr"`
	Priority  string `xml:"priority,attr"`
	Args      string `xml:",chardata"`
}

type directXML struct {
	Rules []directXMLRule `xml:"rule"`
}

func directRules(root inspect.HostRoot, warn *schema.Warnings) []schema.FirewallDirectRule {
	p := root.Join("etc", "firewalld", "direct.xml")
	b, err := os.ReadFile(p)
	if err != nil {
		return []schema.FirewallDirectRule{}
	}

	var parsed directXML
	if err := xml.Unmarshal(b, &parsed); err != nil {
		warn.Warnf("network", fmt.Sprintf("direct.xml is not well-formed: %v", err))
		return []schema.FirewallDirectRule{}
	}

	out := make([]schema.FirewallDirectRule, 0, len(parsed.Rules))
	for _, r := range parsed.Rules {
		rule := schema.DefaultFirewallDirectRule()
		if r.IPVersion != "" {
			rule.IPVersion = r.IPVersion
		}
		if r.Table != "" {
			rule.Table = r.Table
		}
		if r.Chain != "" {
			rule.Chain = r.Chain
		}
		if r.Priority != "" {
			rule.Priority = r.Priority
		}
		rule.Args = strings.TrimSpace(r.Args)
		out = append(out, rule)
	}
	return out
}

func resolvProvenance(root inspect.HostRoot) schema.ResolvProvenance {
	p := root.Join("etc", "resolv.conf")
	info, err := os.Lstat(p)
	if err != nil {
		return schema.ResolvUnknown
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(p)
		if err == nil {
			switch {
			case strings.Contains(target, "systemd/resolve"):
				return schema.ResolvSystemdResolved
			case strings.Contains(target, "NetworkManager"):
				return schema.ResolvNetworkManager
			}
		}
	}

	b, err := os.ReadFile(p)
	if err == nil {
		header := string(b)
		switch {
		case strings.Contains(header, "Generated by NetworkManager"):
			return schema.ResolvNetworkManager
		case strings.Contains(header, "systemd-resolved"):
			return schema.ResolvSystemdResolved
		case len(strings.TrimSpace(header)) > 0:
			return schema.ResolvStatic
		}
	}
	return schema.ResolvUnknown
}

func hostsAdditions(root inspect.HostRoot, warn *schema.Warnings) []schema.HostsAddition {
	p := root.Join("etc", "hosts")
	parser := file.NewParser()
	lines, err := parser.GetLines(p)
	if err != nil {
		return []schema.HostsAddition{}
	}

	var out []schema.HostsAddition
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if canonicalHosts[fields[0]] {
			continue
		}
		out = append(out, schema.HostsAddition{IP: fields[0], Hostnames: fields[1:]})
	}
	if out == nil {
		out = []schema.HostsAddition{}
	}
	return out
}

func proxyVars(root inspect.HostRoot) map[string]string {
	proxy := map[string]string{}

	parser := file.NewParser(file.WithSkipEmptyValues(true), file.WithVTrimChars(`"'`))
	if kv, err := parser.GetMap(root.Join("etc", "sysconfig", "proxy")); err == nil {
		for k, v := range kv {
			proxy[k] = v
		}
	}
	if kv, err := parser.GetMap(root.Join("etc", "dnf", "dnf.conf")); err == nil {
		if p, ok := kv["proxy"]; ok {
			proxy["dnf_proxy"] = p
		}
	}
	return proxy
}

func ipRoutes(ctx context.Context, ex exec.Executor) []schema.Route {
	res, err := ex.Run(ctx, "", "ip", "route", "show")
	if err != nil || res.ExitCode != 0 {
		return nil
	}
	var out []schema.Route
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "default") {
			continue
		}
		out = append(out, schema.Route{Raw: line})
	}
	return out
}

func ipRules(ctx context.Context, ex exec.Executor) []schema.Route {
	res, err := ex.Run(ctx, "", "ip", "rule", "show")
	if err != nil || res.ExitCode != 0 {
		return nil
	}
	var out []schema.Route
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isBuiltinTable(line) {
			continue
		}
		out = append(out, schema.Route{Raw: line})
	}
	return out
}

func isBuiltinTable(line string) bool {
	for _, t := range builtinRouteTables {
		if strings.HasSuffix(line, "lookup "+t) {
			return true
		}
	}
	return false
}
