package orchestrator

import (
	"github.com/c360studio/semplan/prompts"
)

// BaseContext is what the caller supplies for a new document. Lesson
// documents use Grade, Subject and Profile; training documents use Goals,
// ExperienceLevel and AvailableDays.
type BaseContext struct {
	DocumentID string
	OwnerID    string

	Grade   string
	Subject string
	Profile map[string]any

	// ProfileID names a stored learner profile. It wins over a
	// "profileId" entry in Profile.
	ProfileID string

	Goals           string
	ExperienceLevel string
	AvailableDays   string

	UserFeedback string

	// Components restricts generation to a subset of the catalog. Foundation
	// components are always generated. Empty means every component.
	Components []string
}

// promptContext returns the Init-state context for topic, filling empty
// fields from defaults.
func (b BaseContext) promptContext(topic string, defaults map[string]string) prompts.Context {
	ctx := prompts.Context{prompts.KeyTopic: topic}
	set := func(key, value string) {
		if value == "" {
			value = defaults[key]
		}
		if value != "" {
			ctx[key] = value
		}
	}
	set(prompts.KeyGrade, b.Grade)
	set(prompts.KeySubject, b.Subject)
	set(prompts.KeyGoals, b.Goals)
	set(prompts.KeyExperienceLevel, b.ExperienceLevel)
	set(prompts.KeyAvailableDays, b.AvailableDays)
	set(prompts.KeyUserFeedback, b.UserFeedback)
	if b.Profile != nil {
		ctx[prompts.KeyProfile] = b.Profile
	}
	return ctx
}

// profileID returns ProfileID, the profile's "profileId" field, or
// "default".
func (b BaseContext) profileID() string {
	if b.ProfileID != "" {
		return b.ProfileID
	}
	if id, ok := b.Profile["profileId"].(string); ok && id != "" {
		return id
	}
	return "default"
}

// EnrichedContext is the base context plus the settled foundation values.
// It is built once per run after the foundation phase and only read during
// the dependent phase. Chat updates seed it from every component the
// document already holds.
type EnrichedContext struct {
	base       prompts.Context
	foundation map[string]any
}

func newEnrichedContext(base prompts.Context, foundation map[string]any) EnrichedContext {
	return EnrichedContext{base: base.Clone(), foundation: foundation}
}

// Foundation returns the merged value of a component.
func (e EnrichedContext) Foundation(name string) (any, bool) {
	v, ok := e.foundation[name]
	return v, ok
}

// Prompt returns a fresh prompt context holding base and component values.
func (e EnrichedContext) Prompt() prompts.Context {
	ctx := e.base.Clone()
	for name, v := range e.foundation {
		ctx[name] = v
	}
	return ctx
}
