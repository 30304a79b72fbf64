// Package generation turns one prompt into one parsed component value. It
// owns the retry loop around the generative backend and the process-wide
// worker pool that bounds outbound calls.
package generation

// Request is a single generation request. It is built fresh per call and
// never mutated after dispatch.
type Request struct {
	// Component names the catalog component being generated, or a pseudo
	// component such as "intent" for analysis calls.
	Component string

	// ModelID names a registry endpoint to try first. Optional.
	ModelID string

	// Capability selects the model fallback chain when ModelID is empty or
	// unavailable.
	Capability string

	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Outcome is the settled result of generating one component: either a
// parsed Value or a non-nil Err.
type Outcome struct {
	Component string
	Value     any
	Err       error
}

// Succeeded reports whether the outcome carries a value.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}
