// Package model provides capability-based model selection for generation
// calls. Callers ask for a capability ("writing", "fast") instead of a model
// name, and the registry resolves it to an ordered fallback chain of
// configured endpoints.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityWriting is for long structured component content.
	CapabilityWriting Capability = "writing"

	// CapabilityFast is for short classification calls such as intent analysis.
	CapabilityFast Capability = "fast"

	// CapabilityPrecise is for low-temperature extraction such as standards lookup.
	CapabilityPrecise Capability = "precise"
)

// TaskCapabilities maps generation tasks to their default capability.
var TaskCapabilities = map[string]Capability{
	"generate":   CapabilityWriting,
	"update":     CapabilityWriting,
	"regenerate": CapabilityWriting,
	"standards":  CapabilityPrecise,
	"intent":     CapabilityFast,
}

// CapabilityForTask returns the default capability for a task.
// Unknown tasks get CapabilityWriting.
func CapabilityForTask(task string) Capability {
	if c, ok := TaskCapabilities[task]; ok {
		return c
	}
	return CapabilityWriting
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityWriting, CapabilityFast, CapabilityPrecise:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
