// Package catalog holds the static registry of document components: each
// component's JSON Schema, prompt template family and dependency tier.
// A Catalog is built once at startup and is read-only afterwards, so it is
// safe for unsynchronized concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"slices"
)

// Tier is a component's dependency tier.
type Tier string

const (
	// TierFoundation components depend on nothing and feed every other prompt.
	TierFoundation Tier = "foundation"
	// TierDependent components consume foundation values as context.
	TierDependent Tier = "dependent"
)

// ComponentSpec describes one component. Shared read-only.
type ComponentSpec struct {
	Name        string
	Description string
	Tier        Tier
	TemplateID  string
	Schema      *Schema

	// MaxTokens and Temperature override the generation defaults when non-zero.
	MaxTokens   int
	Temperature *float64
}

// IsFoundation reports whether the component is in the foundation tier.
func (s *ComponentSpec) IsFoundation() bool {
	return s.Tier == TierFoundation
}

// UnknownComponentError is returned for a component name the catalog does
// not register.
type UnknownComponentError struct {
	Name string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown component %q", e.Name)
}

// IsUnknownComponent returns true if err is (or wraps) an UnknownComponentError.
func IsUnknownComponent(err error) bool {
	var ue *UnknownComponentError
	return errors.As(err, &ue)
}

// Catalog is the ordered set of components for one document domain.
type Catalog struct {
	domain string
	order  []string
	specs  map[string]*ComponentSpec
}

// New builds a catalog from specs in document order.
func New(domain string, specs []*ComponentSpec) (*Catalog, error) {
	if domain == "" {
		return nil, errors.New("catalog domain is required")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("catalog %s has no components", domain)
	}

	c := &Catalog{
		domain: domain,
		order:  make([]string, 0, len(specs)),
		specs:  make(map[string]*ComponentSpec, len(specs)),
	}
	for _, spec := range specs {
		switch {
		case spec.Name == "":
			return nil, fmt.Errorf("catalog %s: component without a name", domain)
		case spec.Name == "metadata":
			return nil, fmt.Errorf("catalog %s: component name %q is reserved", domain, spec.Name)
		case spec.Schema == nil:
			return nil, fmt.Errorf("catalog %s: component %s has no schema", domain, spec.Name)
		case spec.Tier != TierFoundation && spec.Tier != TierDependent:
			return nil, fmt.Errorf("catalog %s: component %s has invalid tier %q", domain, spec.Name, spec.Tier)
		}
		if _, dup := c.specs[spec.Name]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate component %s", domain, spec.Name)
		}
		c.specs[spec.Name] = spec
		c.order = append(c.order, spec.Name)
	}
	return c, nil
}

// Domain returns the document domain, e.g. "lesson".
func (c *Catalog) Domain() string {
	return c.domain
}

// SpecFor returns the spec for name or an *UnknownComponentError.
func (c *Catalog) SpecFor(name string) (*ComponentSpec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return nil, &UnknownComponentError{Name: name}
	}
	return spec, nil
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.specs[name]
	return ok
}

// Components returns every component name in document order.
func (c *Catalog) Components() []string {
	return slices.Clone(c.order)
}

// FoundationComponents returns the foundation tier in document order.
func (c *Catalog) FoundationComponents() []string {
	var out []string
	for _, name := range c.order {
		if c.specs[name].IsFoundation() {
			out = append(out, name)
		}
	}
	return out
}

// DependentComponents returns requested minus the foundation set, keeping
// the requested order and dropping duplicates. Names the catalog does not
// know are passed through; SpecFor reports them.
func (c *Catalog) DependentComponents(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		if spec, ok := c.specs[name]; ok && spec.IsFoundation() {
			continue
		}
		if slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// IsFoundation reports whether name is a registered foundation component.
func (c *Catalog) IsFoundation(name string) bool {
	spec, ok := c.specs[name]
	return ok && spec.IsFoundation()
}

// Sort orders names by document position. Unknown names sort last in their
// original relative order.
func (c *Catalog) Sort(names []string) []string {
	out := slices.Clone(names)
	pos := func(n string) int {
		if i := slices.Index(c.order, n); i >= 0 {
			return i
		}
		return len(c.order)
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return pos(a) - pos(b)
	})
	return out
}
