// Package export renders stored documents as JSON, YAML or Markdown.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/document"
)

// Format identifies an export format.
type Format string

const (
	// FormatJSON is the stored form, indented.
	FormatJSON Format = "json"

	// FormatYAML keeps document order in block YAML.
	FormatYAML Format = "yaml"

	// FormatMarkdown is a readable rendering for sharing and printing.
	FormatMarkdown Format = "markdown"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "JSON - the stored document, indented",
	},
	FormatYAML: {
		Name:        FormatYAML,
		MIMEType:    "application/yaml",
		Extension:   ".yaml",
		Description: "YAML - metadata and components in document order",
	},
	FormatMarkdown: {
		Name:        FormatMarkdown,
		MIMEType:    "text/markdown; charset=utf-8",
		Extension:   ".md",
		Description: "Markdown - one section per component",
	},
}

// aliases maps accepted spellings to formats.
var aliases = map[string]Format{
	"":     FormatJSON,
	"yml":  FormatYAML,
	"md":   FormatMarkdown,
	"json": FormatJSON,
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	out := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ParseFormat resolves a format name. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	if _, ok := FormatRegistry[Format(name)]; ok {
		return Format(name), nil
	}
	return "", &document.ValidationError{
		Field:  "format",
		Reason: fmt.Sprintf("unknown format %q, want one of %s", name, strings.Join(Formats(), ", ")),
	}
}

// Write renders doc to w.
func Write(w io.Writer, doc *document.Document, format Format) error {
	var (
		out []byte
		err error
	)
	switch format {
	case FormatJSON:
		out, err = toJSON(doc)
	case FormatYAML:
		out, err = toYAML(doc)
	case FormatMarkdown:
		out, err = toMarkdown(doc)
	default:
		return &document.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func toJSON(doc *document.Document) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func toYAML(doc *document.Document) ([]byte, error) {
	root, err := parseTree(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// parseTree reads the document's JSON as a YAML node tree. JSON is valid
// YAML, and the node tree keeps key order where a map would not.
func parseTree(doc *document.Document) (*yaml.Node, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		clearStyle(root.Content[0])
		return root.Content[0], nil
	}
	return nil, fmt.Errorf("parse document: unexpected node kind %d", root.Kind)
}

// clearStyle drops the flow and quoting styles inherited from JSON so the
// encoder emits block YAML.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
