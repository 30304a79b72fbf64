// Package prompts builds generation requests for document components. Each
// catalog component names a template family; the family's system and user
// texts are interpolated from a Context and carry the component's JSON
// Schema as the required response shape.
package prompts

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/c360studio/semplan/document"
)

// Well-known context keys.
const (
	KeyTopic           = "topic"
	KeyGrade           = "grade"
	KeySubject         = "subject"
	KeyProfile         = "profile"
	KeyGoals           = "goals"
	KeyExperienceLevel = "experience_level"
	KeyAvailableDays   = "available_days"
	KeyUserFeedback    = "user_feedback"
	KeyDirective       = "directive"
	KeyCurrentContent  = "current_content"
)

// Context holds the values a template may reference by {{key}}. Values are
// plain strings or decoded JSON values; foundation component values are
// stored under their component names.
type Context map[string]any

// FromMetadata builds the base context of an existing document. Empty
// fields are left out so templates mark them as missing.
func FromMetadata(meta document.Metadata) Context {
	ctx := Context{}
	for key, value := range map[string]string{
		KeyTopic:           meta.Topic,
		KeyGrade:           meta.Grade,
		KeySubject:         meta.Subject,
		KeyGoals:           meta.Goals,
		KeyExperienceLevel: meta.ExperienceLevel,
		KeyAvailableDays:   meta.AvailableDays,
		"profile_id":       meta.ProfileID,
	} {
		if value != "" {
			ctx[key] = value
		}
	}
	return ctx
}

// Clone returns a shallow copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy of c with key set to value.
func (c Context) With(key string, value any) Context {
	out := c.Clone()
	out[key] = value
	return out
}

// String returns the value of key as a string when it is one.
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// HasCurrentContent reports whether the context targets an existing value,
// which switches the builder into update mode.
func (c Context) HasCurrentContent() bool {
	v, ok := c[KeyCurrentContent]
	return ok && v != nil
}

// JSON renders the context for embedding in a prompt. Update-only keys are
// left out; they have their own placeholders.
func (c Context) JSON() string {
	view := make(map[string]any, len(c))
	for k, v := range c {
		if k == KeyCurrentContent || k == KeyDirective {
			continue
		}
		view[k] = v
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "{}"
	}
	return string(data)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Interpolate replaces every {{key}} in text with the rendered value of
// vars[key]. A key that is missing, or holds nil, becomes [key]. It never
// fails.
func Interpolate(text string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := vars[key]
		if !ok || v == nil {
			return "[" + key + "]"
		}
		return render(v)
	})
}

// Placeholders lists the distinct keys referenced by text, in order of
// first appearance.
func Placeholders(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.RawMessage:
		return strings.TrimSpace(string(t))
	case []byte:
		return string(t)
	case Context:
		return t.JSON()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
