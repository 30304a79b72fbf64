// Package document holds the generated document: an ordered set of named
// component values plus metadata. Component values are kept as raw JSON so
// a component nobody touched keeps its exact bytes across updates.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// MetadataKey is the reserved top-level key holding Metadata.
const MetadataKey = "metadata"

// Metadata describes a document. Lesson documents fill Grade and Subject;
// training documents fill Goals, ExperienceLevel and AvailableDays.
type Metadata struct {
	DocumentID      string    `json:"documentId,omitempty"`
	OwnerID         string    `json:"ownerId,omitempty"`
	Domain          string    `json:"domain,omitempty"`
	Topic           string    `json:"topic"`
	Grade           string    `json:"grade,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	ProfileID       string    `json:"profileId,omitempty"`
	Goals           string    `json:"goals,omitempty"`
	ExperienceLevel string    `json:"experienceLevel,omitempty"`
	AvailableDays   string    `json:"availableDays,omitempty"`
	LastModified    time.Time `json:"lastModified"`
	Version         int       `json:"version"`
}

// ValidationError reports a document or intent whose shape is wrong.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// IsValidation returns true if err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Document is an ordered mapping of component name to JSON value. It is not
// safe for concurrent mutation; orchestration writes to it from a single
// goroutine after each phase settles.
type Document struct {
	Metadata Metadata

	order  []string
	values map[string]json.RawMessage
}

// New creates an empty document.
func New(meta Metadata) *Document {
	return &Document{
		Metadata: meta,
		values:   make(map[string]json.RawMessage),
	}
}

// Set stores raw as the value of name, appending name to the order when it
// is new. raw must be valid JSON.
func (d *Document) Set(name string, raw json.RawMessage) error {
	if name == "" || name == MetadataKey {
		return &ValidationError{Field: name, Reason: "invalid component name"}
	}
	if !json.Valid(raw) {
		return &ValidationError{Field: name, Reason: "value is not valid JSON"}
	}
	if d.values == nil {
		d.values = make(map[string]json.RawMessage)
	}
	if _, ok := d.values[name]; !ok {
		d.order = append(d.order, name)
	}
	d.values[name] = slices.Clone(raw)
	return nil
}

// SetValue marshals value and stores it under name.
func (d *Document) SetValue(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return d.Set(name, raw)
}

// Get returns the raw value of name.
func (d *Document) Get(name string) (json.RawMessage, bool) {
	raw, ok := d.values[name]
	return raw, ok
}

// Value decodes the value of name.
func (d *Document) Value(name string) (any, error) {
	raw, ok := d.values[name]
	if !ok {
		return nil, fmt.Errorf("component %s not in document", name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

// Has reports whether name is present.
func (d *Document) Has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// Delete removes name.
func (d *Document) Delete(name string) {
	if _, ok := d.values[name]; !ok {
		return
	}
	delete(d.values, name)
	d.order = slices.DeleteFunc(d.order, func(n string) bool { return n == name })
}

// Components returns component names in document order.
func (d *Document) Components() []string {
	return slices.Clone(d.order)
}

// Len returns the number of components.
func (d *Document) Len() int {
	return len(d.order)
}

// Missing returns the names in required that the document lacks.
func (d *Document) Missing(required []string) []string {
	var out []string
	for _, name := range required {
		if !d.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Reorder sorts components by their position in order. Components not in
// order keep their relative position after the listed ones.
func (d *Document) Reorder(order []string) {
	pos := func(n string) int {
		if i := slices.Index(order, n); i >= 0 {
			return i
		}
		return len(order)
	}
	slices.SortStableFunc(d.order, func(a, b string) int {
		return pos(a) - pos(b)
	})
}

// Touch bumps the version and sets LastModified.
func (d *Document) Touch(now time.Time) {
	d.Metadata.Version++
	d.Metadata.LastModified = now.UTC()
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{
		Metadata: d.Metadata,
		order:    slices.Clone(d.order),
		values:   make(map[string]json.RawMessage, len(d.values)),
	}
	for k, v := range d.values {
		out.values[k] = slices.Clone(v)
	}
	return out
}

// Equal reports whether both documents hold the same components with
// byte-identical values. Metadata is ignored.
func (d *Document) Equal(other *Document) bool {
	if !slices.Equal(d.order, other.order) {
		return false
	}
	for k, v := range d.values {
		if !bytes.Equal(v, other.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes a flat object: "metadata" first, then components in
// document order. json.Marshal compacts the result; call MarshalJSON
// directly where component bytes must be kept verbatim.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	buf.WriteString(`"` + MetadataKey + `":`)
	buf.Write(meta)

	for _, name := range d.order {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(d.values[name])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat form, keeping component order and the exact
// bytes of every component value.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &ValidationError{Reason: "document must be a JSON object"}
	}

	next := Document{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return &ValidationError{Field: key, Reason: err.Error()}
		}

		if key == MetadataKey {
			if err := json.Unmarshal(raw, &next.Metadata); err != nil {
				return &ValidationError{Field: MetadataKey, Reason: err.Error()}
			}
			continue
		}
		if _, dup := next.values[key]; !dup {
			next.order = append(next.order, key)
		}
		next.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	*d = next
	return nil
}

// Snapshot is an immutable copy of a document at one version.
type Snapshot struct {
	DocumentID string    `json:"documentId"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	Document   *Document `json:"document"`
}

// NewSnapshot captures doc at its current version.
func NewSnapshot(doc *Document, at time.Time) Snapshot {
	return Snapshot{
		DocumentID: doc.Metadata.DocumentID,
		Version:    doc.Metadata.Version,
		CreatedAt:  at.UTC(),
		Document:   doc.Clone(),
	}
}
