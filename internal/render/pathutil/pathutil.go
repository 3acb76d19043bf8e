// Package pathutil converts the absolute, host-root-joined paths stored in
// snapshot fields back into target-image-relative paths for rendering.
package pathutil

import "strings"

// Target strips hostRoot from full and returns an absolute in-image path.
// It is a no-op (beyond ensuring a leading slash) when full does not carry
// the prefix, which happens for snapshots loaded from a different host.
func Target(hostRoot, full string) string {
	rel := strings.TrimPrefix(full, hostRoot)
	if rel == "" {
		return "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}
