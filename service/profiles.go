package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/storage"
)

// defaultProfileID is the profile ID of documents generated without one.
const defaultProfileID = "default"

// profileNamePattern keeps names usable as URL segments and store keys.
var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ProfileUpdate changes a stored profile. Empty strings and a nil Active
// keep the stored values.
type ProfileUpdate struct {
	Demographics          string `json:"demographics,omitempty"`
	GeneralBackground     string `json:"generalBackground,omitempty"`
	MathAbility           string `json:"mathAbility,omitempty"`
	Engagement            string `json:"engagement,omitempty"`
	SpecialConsiderations string `json:"specialConsiderations,omitempty"`
	Active                *bool  `json:"active,omitempty"`
}

// CreateProfile stores a new active profile for ownerID. Every descriptive
// field is required.
func (s *Service) CreateProfile(ctx context.Context, ownerID string, p storage.Profile) (storage.Profile, error) {
	if err := validateProfileName(p.Name); err != nil {
		return storage.Profile{}, err
	}
	for _, f := range []struct{ field, value string }{
		{"demographics", p.Demographics},
		{"generalBackground", p.GeneralBackground},
		{"mathAbility", p.MathAbility},
		{"engagement", p.Engagement},
		{"specialConsiderations", p.SpecialConsiderations},
	} {
		if strings.TrimSpace(f.value) == "" {
			return storage.Profile{}, &document.ValidationError{Field: f.field, Reason: "is required"}
		}
	}

	_, err := s.store.GetProfile(ctx, ownerID, p.Name)
	switch {
	case err == nil:
		return storage.Profile{}, fmt.Errorf("create profile %s: %w", p.Name, storage.ErrProfileExists)
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Profile{}, fmt.Errorf("create profile %s: %w", p.Name, err)
	}

	now := s.now().UTC()
	p.OwnerID = ownerID
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.store.PutProfile(ctx, p); err != nil {
		return storage.Profile{}, fmt.Errorf("create profile %s: %w", p.Name, err)
	}
	s.logger.Info("Profile created", "owner_id", ownerID, "profile", p.Name)
	return p, nil
}

// ListProfiles returns the owner's profiles ordered by name. An owner
// without profiles is given the built-in ones first.
func (s *Service) ListProfiles(ctx context.Context, ownerID string) ([]storage.Profile, error) {
	list, err := s.store.ListProfiles(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(list) > 0 {
		return list, nil
	}

	seeded := DefaultProfiles(ownerID, s.now().UTC())
	for _, p := range seeded {
		if err := s.store.PutProfile(ctx, p); err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
	}
	s.logger.Info("Seeded default profiles", "owner_id", ownerID, "count", len(seeded))
	return s.store.ListProfiles(ctx, ownerID)
}

// GetProfile returns one profile.
func (s *Service) GetProfile(ctx context.Context, ownerID, name string) (storage.Profile, error) {
	p, err := s.store.GetProfile(ctx, ownerID, name)
	if err != nil {
		return storage.Profile{}, fmt.Errorf("get profile %s: %w", name, err)
	}
	return p, nil
}

// UpdateProfile applies u to a stored profile.
func (s *Service) UpdateProfile(ctx context.Context, ownerID, name string, u ProfileUpdate) (storage.Profile, error) {
	p, err := s.GetProfile(ctx, ownerID, name)
	if err != nil {
		return storage.Profile{}, err
	}
	keep := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	keep(&p.Demographics, u.Demographics)
	keep(&p.GeneralBackground, u.GeneralBackground)
	keep(&p.MathAbility, u.MathAbility)
	keep(&p.Engagement, u.Engagement)
	keep(&p.SpecialConsiderations, u.SpecialConsiderations)
	if u.Active != nil {
		p.Active = *u.Active
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.PutProfile(ctx, p); err != nil {
		return storage.Profile{}, fmt.Errorf("update profile %s: %w", name, err)
	}
	return p, nil
}

// DeleteProfile removes a profile. Documents generated for it keep their
// profile ID.
func (s *Service) DeleteProfile(ctx context.Context, ownerID, name string) error {
	if err := s.store.DeleteProfile(ctx, ownerID, name); err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	return nil
}

// resolveProfile fills base.Profile from the stored profile base.ProfileID
// names. Inline profile entries override stored fields.
func (s *Service) resolveProfile(ctx context.Context, ownerID string, base *orchestrator.BaseContext) error {
	if base.ProfileID == "" {
		return nil
	}
	p, err := s.GetProfile(ctx, ownerID, base.ProfileID)
	if err != nil {
		return err
	}
	merged := ProfileContext(p)
	for k, v := range base.Profile {
		merged[k] = v
	}
	merged["profileId"] = p.Name
	base.Profile = merged
	return nil
}

// updateOptions loads the profile a stored document was generated for. A
// profile that no longer exists is skipped.
func (s *Service) updateOptions(ctx context.Context, ownerID string, doc *document.Document) []orchestrator.UpdateOption {
	id := doc.Metadata.ProfileID
	if id == "" || id == defaultProfileID {
		return nil
	}
	p, err := s.store.GetProfile(ctx, ownerID, id)
	if err != nil {
		level := s.logger.Warn
		if errors.Is(err, storage.ErrNotFound) {
			level = s.logger.Debug
		}
		level("Profile unavailable for update",
			"document_id", doc.Metadata.DocumentID,
			"profile", id,
			"error", err)
		return nil
	}
	return []orchestrator.UpdateOption{orchestrator.WithProfile(ProfileContext(p))}
}

// ProfileContext renders p as the profile value prompts embed.
func ProfileContext(p storage.Profile) map[string]any {
	return map[string]any{
		"profileId":             p.Name,
		"profileName":           p.Name,
		"demographics":          p.Demographics,
		"generalBackground":     p.GeneralBackground,
		"mathAbility":           p.MathAbility,
		"engagement":            p.Engagement,
		"specialConsiderations": p.SpecialConsiderations,
	}
}

func validateProfileName(name string) error {
	if !profileNamePattern.MatchString(name) {
		return &document.ValidationError{Field: "profileName", Reason: "must be 1-64 letters, digits, '-' or '_'"}
	}
	return nil
}

// DefaultProfiles returns the built-in learner profiles for ownerID.
func DefaultProfiles(ownerID string, now time.Time) []storage.Profile {
	profiles := []storage.Profile{
		{
			Name:                  "creative_visual_learner",
			Demographics:          "Hispanic, from a lower-middle-class family",
			GeneralBackground:     "Shows a keen interest in arts and crafts, using colors and shapes creatively but struggles with abstract numerical concepts",
			MathAbility:           "Finds basic arithmetic challenging but has a good grasp of patterns and sequences through visual representations",
			Engagement:            "Engages more with math when it is integrated with art or storytelling",
			SpecialConsiderations: "No current IEP or 504 plan, but visual learning strategies are recommended",
		},
		{
			Name:                  "bilingual_narrative_learner",
			Demographics:          "African American, from a bilingual household",
			GeneralBackground:     "Enjoys storytelling and has a strong memory for details. Often shares culturally rich family stories",
			MathAbility:           "Excels in verbal explanations of problem-solving but struggles with written computation",
			Engagement:            "Shows enthusiasm when math problems involve storytelling or real-life scenarios",
			SpecialConsiderations: "Benefits from verbal and visual cues; may require support for translating mathematical concepts to paper",
		},
		{
			Name:                  "technological_logical_learner",
			Demographics:          "Asian American, lives in a multigenerational household",
			GeneralBackground:     "Enthusiastic about technology and creates simple coding projects",
			MathAbility:           "Demonstrates strong logical reasoning and pattern recognition, capable in algorithmic thinking",
			Engagement:            "Highly engaged when able to use technology as a tool for learning math",
			SpecialConsiderations: "Encouragement to collaborate with peers can enhance social learning and application of math skills",
		},
	}
	for i := range profiles {
		profiles[i].OwnerID = ownerID
		profiles[i].Active = true
		profiles[i].CreatedAt = now
		profiles[i].UpdatedAt = now
	}
	return profiles
}
