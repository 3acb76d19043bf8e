package shellsafe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"plain package name", "httpd", true},
		{"version pin", "httpd-2.4.57-1.el9", true},
		{"newline", "httpd\nrm -rf /", false},
		{"carriage return", "httpd\r", false},
		{"semicolon", "httpd; rm -rf /", false},
		{"backtick", "httpd`whoami`", false},
		{"pipe", "httpd | tee /etc/passwd", false},
		{"command substitution", "httpd$(whoami)", false},
		{"empty string", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.in))
		})
	}
}

func TestSanitize_Safe(t *testing.T) {
	safe, ok := Sanitize("httpd")
	require.True(t, ok)
	assert.Equal(t, "httpd", safe)
}

func TestSanitize_Unsafe(t *testing.T) {
	safe, ok := Sanitize("httpd`id`")
	require.False(t, ok)
	assert.True(t, strings.HasPrefix(safe, "# FIXME needs-review:"))
	assert.NotContains(t, safe, "`")
}

func TestNeedsReview_EscapesMetacharacters(t *testing.T) {
	out := NeedsReview("a\nb\rc`d")
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "`")
	assert.Contains(t, out, "a\\nb\\rc'd")
}
