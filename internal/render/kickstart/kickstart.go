// Package kickstart renders a deploy-time provisioning suggestion for
// configuration the Containerfile cannot bake in — principally DHCP
// network connections, whose addresses are assigned at install time, not
// build time.
package kickstart

import (
	"fmt"
	"strings"

	"github.com/nvidia/rhel2bootc/internal/schema"
)

// Render produces kickstart-suggestion.ks content.
func Render(snap *schema.Snapshot) string {
	var b strings.Builder

	b.WriteString("# Kickstart suggestion generated from host inspection.\n")
	b.WriteString("# Review every line before use; this is a starting point, not a finished profile.\n\n")

	dhcp := 0
	for _, c := range snap.Network.Connections {
		if c.Method != schema.MethodDHCP {
			continue
		}
		dhcp++
		fmt.Fprintf(&b, "network --device=%s --bootproto=dhcp --activate\n", c.Name)
	}
	if dhcp == 0 {
		b.WriteString("# no DHCP-managed connections found; static connections were baked into the image directly.\n")
	}
	b.WriteString("\n")

	if len(snap.Storage.FstabEntries) > 0 {
		b.WriteString("# source host mount layout, for reference when partitioning:\n")
		for _, e := range snap.Storage.FstabEntries {
			fmt.Fprintf(&b, "#   %s -> %s (%s)\n", e.Device, e.Mount, e.FSType)
		}
		b.WriteString("\n")
	}

	if len(snap.UserGroup.SSHAuthorizedKeysRefs) > 0 {
		b.WriteString("# re-provision SSH access out of band; keys are never baked into the image:\n")
		for _, ref := range snap.UserGroup.SSHAuthorizedKeysRefs {
			fmt.Fprintf(&b, "#   sshkey --username=%s \"<paste public key for %s>\"\n", ref.User, ref.Path)
		}
		b.WriteString("\n")
	}

	b.WriteString("bootc install to-disk\n")

	return b.String()
}
