// Package intent classifies a free-text chat message into the document
// components it affects.
package intent

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/c360studio/semplan/document"
)

// ValidationError reports an analyzer reply with the wrong shape.
type ValidationError = document.ValidationError

// IsValidation returns true if err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	return document.IsValidation(err)
}

// Revision tiers.
const (
	TierFoundation = 1 // the foundation changes and everything built on it follows
	TierTargeted   = 2 // a few components change
	TierCosmetic   = 3 // wording or formatting only
)

// Intent is the classification of one chat message. It is consumed once by
// the update orchestrator and discarded.
type Intent struct {
	AffectedComponents       []string `json:"components"`
	Tier                     int      `json:"tier"`
	RequiresFoundationUpdate bool     `json:"requires_foundation_update"`
	Rationale                string   `json:"rationale"`

	// Directive is the classifier's action description, passed to the
	// update prompts alongside the raw message.
	Directive string `json:"intent,omitempty"`
}

// Validate checks the structural shape only.
func (i *Intent) Validate() error {
	if len(i.AffectedComponents) == 0 {
		return &ValidationError{Field: "components", Reason: "at least one component is required"}
	}
	if i.Tier < TierFoundation || i.Tier > TierCosmetic {
		return &ValidationError{Field: "tier", Reason: fmt.Sprintf("must be 1, 2 or 3, got %d", i.Tier)}
	}
	return nil
}

// Parse converts a decoded analyzer reply into an Intent. Component names
// not in known are dropped; if none remain the reply is invalid. Tier may
// be a number or a numeric string. snake_case and camelCase keys are both
// accepted.
func Parse(value any, known []string) (*Intent, []string, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, nil, &ValidationError{Reason: "analysis must be a JSON object"}
	}

	rawComponents, ok := lookup(obj, "components", "affectedComponents", "affected_components")
	if !ok {
		return nil, nil, &ValidationError{Field: "components", Reason: "missing"}
	}
	list, ok := rawComponents.([]any)
	if !ok {
		return nil, nil, &ValidationError{Field: "components", Reason: "must be an array of component names"}
	}

	var components, dropped []string
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, nil, &ValidationError{Field: "components", Reason: "must be an array of component names"}
		}
		name = strings.TrimSpace(name)
		switch {
		case slices.Contains(components, name):
		case slices.Contains(known, name):
			components = append(components, name)
		default:
			dropped = append(dropped, name)
		}
	}

	tier, err := parseTier(obj)
	if err != nil {
		return nil, nil, err
	}

	foundation, err := parseBool(obj)
	if err != nil {
		return nil, nil, err
	}

	in := &Intent{
		AffectedComponents:       components,
		Tier:                     tier,
		RequiresFoundationUpdate: foundation,
		Rationale:                stringField(obj, "rationale"),
		Directive:                stringField(obj, "intent", "directive"),
	}
	if err := in.Validate(); err != nil {
		return nil, dropped, err
	}
	return in, dropped, nil
}

func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys ...string) string {
	v, _ := lookup(obj, keys...)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func parseTier(obj map[string]any) (int, error) {
	v, ok := lookup(obj, "tier", "revisionTier")
	if !ok {
		return 0, &ValidationError{Field: "tier", Reason: "missing"}
	}
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, &ValidationError{Field: "tier", Reason: fmt.Sprintf("must be a whole number, got %v", t)}
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, &ValidationError{Field: "tier", Reason: fmt.Sprintf("not a number: %q", t)}
		}
		return n, nil
	default:
		return 0, &ValidationError{Field: "tier", Reason: "must be a number"}
	}
}

func parseBool(obj map[string]any) (bool, error) {
	v, ok := lookup(obj, "requires_foundation_update", "requiresFoundationUpdate")
	if !ok || v == nil {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, &ValidationError{Field: "requires_foundation_update", Reason: fmt.Sprintf("not a boolean: %q", t)}
		}
		return b, nil
	default:
		return false, &ValidationError{Field: "requires_foundation_update", Reason: "must be a boolean"}
	}
}
