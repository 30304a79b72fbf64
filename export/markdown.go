package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/document"
)

// maxHeading is the deepest Markdown heading level.
const maxHeading = 6

func toMarkdown(doc *document.Document) ([]byte, error) {
	root, err := parseTree(doc)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	meta := doc.Metadata
	title := meta.Topic
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	for _, field := range []struct{ label, value string }{
		{"Domain", meta.Domain},
		{"Grade", meta.Grade},
		{"Subject", meta.Subject},
		{"Goals", meta.Goals},
		{"Experience level", meta.ExperienceLevel},
		{"Available days", meta.AvailableDays},
	} {
		if field.value != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", field.label, inline(field.value))
		}
	}
	fmt.Fprintf(&b, "- **Version:** %d\n", meta.Version)
	if !meta.LastModified.IsZero() {
		fmt.Fprintf(&b, "- **Last modified:** %s\n", meta.LastModified.UTC().Format(time.RFC3339))
	}
	b.WriteByte('\n')

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if key == document.MetadataKey {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", Humanize(key))
		writeSection(&b, value, 3)
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// writeSection renders a component value. Top-level fields of an object
// become paragraphs or sub-headings; anything deeper is a nested list.
func writeSection(b *bytes.Buffer, n *yaml.Node, level int) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			label, value := Humanize(n.Content[i].Value), n.Content[i+1]
			if value.Kind == yaml.ScalarNode {
				fmt.Fprintf(b, "**%s:** %s\n\n", label, scalar(value))
				continue
			}
			fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", min(level, maxHeading)), label)
			if value.Kind == yaml.MappingNode && level < maxHeading {
				writeSection(b, value, level+1)
				continue
			}
			writeList(b, value, 0)
			b.WriteByte('\n')
		}
	case yaml.SequenceNode:
		writeList(b, n, 0)
		b.WriteByte('\n')
	default:
		fmt.Fprintf(b, "%s\n\n", scalar(n))
	}
}

// writeList renders n as a bulleted list at the given depth.
func writeList(b *bytes.Buffer, n *yaml.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			label, value := Humanize(n.Content[i].Value), n.Content[i+1]
			if value.Kind == yaml.ScalarNode {
				fmt.Fprintf(b, "%s- **%s:** %s\n", indent, label, scalar(value))
				continue
			}
			fmt.Fprintf(b, "%s- **%s:**\n", indent, label)
			writeList(b, value, depth+1)
		}
	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			fmt.Fprintf(b, "%s- _none_\n", indent)
		}
		for i, item := range n.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				fmt.Fprintf(b, "%s- %s\n", indent, scalar(item))
			case yaml.MappingNode:
				fmt.Fprintf(b, "%s- %d.\n", indent, i+1)
				writeList(b, item, depth+1)
			default:
				fmt.Fprintf(b, "%s-\n", indent)
				writeList(b, item, depth+1)
			}
		}
	default:
		fmt.Fprintf(b, "%s- %s\n", indent, scalar(n))
	}
}

func scalar(n *yaml.Node) string {
	if n.Tag == "!!null" {
		return "_none_"
	}
	return inline(n.Value)
}

// inline folds line breaks so a value stays on one Markdown line.
func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Humanize turns a camelCase or snake_case key into title words:
// "markupProblemSetsAboveGradeLevel" becomes "Markup Problem Sets Above
// Grade Level".
func Humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
