// Package file provides a small, reusable parser for the line- and
// key/value-oriented files the inspectors read from the host filesystem:
// /etc/os-release, /proc/cmdline, /etc/fstab, cron tables, and the
// /proc/sys tree all share the same "split on a delimiter, optionally split
// again on '='" shape, just with different delimiters and comment rules.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Option configures a Parser.
type Option func(*Parser)

// Parser parses configuration files with customizable delimiters and
// comment/value handling.
type Parser struct {
	delimiter       string
	maxSize         int
	skipComments    bool
	kvDelimiter     string
	vDefault        string
	vTrimChars      string
	skipEmptyValues bool
}

// WithDelimiter sets the delimiter used to split entries in the file.
// Default is newline ("\n").
func WithDelimiter(delim string) Option {
	return func(p *Parser) { p.delimiter = delim }
}

// WithMaxSize sets the maximum size (in bytes) of the file to be parsed.
// Default is 1MB.
func WithMaxSize(size int) Option {
	return func(p *Parser) { p.maxSize = size }
}

// WithSkipComments sets whether to skip lines starting with '#'.
// Default is true.
func WithSkipComments(skip bool) Option {
	return func(p *Parser) { p.skipComments = skip }
}

// WithKVDelimiter sets the key-value delimiter used in GetMap.
// Default is "=".
func WithKVDelimiter(kvDelim string) Option {
	return func(p *Parser) { p.kvDelimiter = kvDelim }
}

// WithVDefault sets the default value to use when a key has no associated value.
func WithVDefault(vDefault string) Option {
	return func(p *Parser) { p.vDefault = vDefault }
}

// WithVTrimChars sets characters to trim from values in GetMap (e.g. quotes).
func WithVTrimChars(trimChars string) Option {
	return func(p *Parser) { p.vTrimChars = trimChars }
}

// WithSkipEmptyValues sets whether to skip empty values when parsing the file.
func WithSkipEmptyValues(skip bool) Option {
	return func(p *Parser) { p.skipEmptyValues = skip }
}

// NewParser creates a new file parser with the provided options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		delimiter:       "\n",
		maxSize:         1 << 20, // 1MB default
		skipComments:    true,
		kvDelimiter:     "=",
		vDefault:        "",
		vTrimChars:      "",
		skipEmptyValues: false,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetMap reads the file at path and parses its content into a map, each
// line split on the configured kvDelimiter.
func (p *Parser) GetMap(path string) (map[string]string, error) {
	parts, err := p.GetLines(path)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, part := range parts {
		kv := strings.SplitN(part, p.kvDelimiter, 2)

		if len(kv) != 2 {
			key := strings.TrimSpace(kv[0])
			if p.skipEmptyValues && p.vDefault == "" {
				continue
			}
			result[key] = p.vDefault
			continue
		}

		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])

		if p.vTrimChars != "" {
			value = strings.Trim(value, p.vTrimChars)
		}

		if p.skipEmptyValues && value == "" {
			continue
		}

		result[key] = value
	}

	return result, nil
}

// GetLines reads the file at path and splits its content on the configured
// delimiter, trimming whitespace and dropping empty/comment lines.
func (p *Parser) GetLines(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}

	if !utf8.Valid(b) {
		return nil, fmt.Errorf("content of file %q is not valid UTF-8", path)
	}

	if len(b) > p.maxSize {
		return nil, fmt.Errorf("file %q exceeds maximum size of %d bytes", path, p.maxSize)
	}

	parts := strings.Split(string(b), p.delimiter)

	result := make([]string, 0, len(parts))
	for _, part := range parts {
		cleanPart := strings.TrimSpace(part)
		if cleanPart == "" {
			continue
		}
		if p.skipComments && strings.HasPrefix(cleanPart, "#") {
			continue
		}
		result = append(result, cleanPart)
	}

	return result, nil
}

// GetContent reads the raw content of path, enforcing the configured
// maximum size but performing no line splitting. Inspectors that need to
// capture a file verbatim (for staging into the output tree) use this
// instead of GetLines.
func (p *Parser) GetContent(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}
	if len(b) > p.maxSize {
		slog.Debug("file exceeds maximum size, truncating", "path", path, "size", len(b), "max", p.maxSize)
		b = b[:p.maxSize]
	}
	return string(b), nil
}

// Exists reports whether path exists and is not a directory. Read
// permission is not checked.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
