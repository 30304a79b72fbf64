package prompts

import (
	"strings"

	"github.com/c360studio/semplan/generation"
)

// IntentComponent is the pseudo component name used for analysis calls.
const IntentComponent = "intent"

const intentSystem = `You are a friendly expert assistant who helps users improve their {{domain}} plans.
You understand how the plan components work together.
` + jsonOnlyRules + `

Component dependencies:
Foundation components (changes affect everything):
{{foundation}}

Dependent components:
{{dependent}}

Response format:
{
  "components": ["affected component names"],
  "intent": "brief action description passed to the component editor, specific to the user's needs",
  "tier": 1,
  "rationale": "brief, friendly explanation shown to the user in chat",
  "requires_foundation_update": false
}

Tiers: 1 means the foundation changes and everything built on it follows, 2 means a targeted change to a few components, 3 means a cosmetic tweak.
Only name components from the lists above.

Example:
User: I need to add some additional problems to the problem set
{
  "components": ["markupProblemSets"],
  "intent": "add more practice problems and mix up the problem types",
  "tier": 2,
  "rationale": "I'll expand the problem set with more varied problems.",
  "requires_foundation_update": false
}`

const intentUser = `Analyze this user feedback considering the full context:

User Message: {{message}}

Context:
{{context}}

Current plan components:
{{components}}`

// IntentInput is what the analyzer knows when classifying a chat message.
type IntentInput struct {
	Message string

	// Components lists the component names present in the document.
	Components []string

	// Context carries document metadata such as topic and grade.
	Context Context
}

// BuildIntent builds the classification request for a chat message. The
// system prompt embeds the catalog's foundation/dependent taxonomy.
func (b *Builder) BuildIntent(in IntentInput) generation.Request {
	tmpl := b.template(TemplateIntent)

	foundation := b.catalog.FoundationComponents()
	dependent := b.catalog.DependentComponents(b.catalog.Components())

	vars := map[string]any{
		"domain":     b.catalog.Domain(),
		"foundation": bulletList(foundation),
		"dependent":  bulletList(dependent),
		"message":    in.Message,
		"context":    in.Context.JSON(),
		"components": strings.Join(in.Components, ", "),
	}

	return b.request(IntentComponent, tmpl, vars, b.analysisOverrides, 0, nil)
}

func bulletList(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("* ")
		sb.WriteString(item)
	}
	return sb.String()
}
