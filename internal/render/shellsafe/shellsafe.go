// Package shellsafe guards values embedded into generated shell commands.
// The recipe is a developer-facing artifact, not a security boundary, but
// a value shaped like a shell metacharacter injection is almost always a
// sign the inspector captured something unexpected, so it is never emitted
// as an executable line.
package shellsafe

import "strings"

var forbidden = []string{"\n", "\r", ";", "`", "|", "$("}

// Check reports whether v is safe to embed directly in a shell command.
func Check(v string) bool {
	for _, f := range forbidden {
		if strings.Contains(v, f) {
			return false
		}
	}
	return true
}

// Sanitize returns v unchanged if safe, or a needs-review comment line when
// it contains a forbidden construct.
func Sanitize(v string) (safe string, ok bool) {
	if Check(v) {
		return v, true
	}
	return NeedsReview(v), false
}

// NeedsReview formats a needs-review marker for a value that could not be
// embedded safely, per spec §7's "Unsafe shell value" handling.
func NeedsReview(reason string) string {
	return "# FIXME needs-review: unsafe value rejected: " + describe(reason)
}

// describe keeps a potentially-unsafe value on one comment line: newlines
// and carriage returns are escaped and backticks become single quotes;
// other characters, including ";", "|" and "$(", are kept as they are.
func describe(v string) string {
	r := strings.NewReplacer("\n", "\\n", "\r", "\\r", "`", "'")
	return r.Replace(v)
}
