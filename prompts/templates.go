package prompts

// Template family identifiers. Catalog components reference these by ID.
const (
	TemplateStandards   = "standards"
	TemplatePedagogical = "pedagogical"
	TemplateProblemSet  = "problem_set"
	TemplateCoach       = "coach"
	TemplateGeneric     = "generic"
	TemplateUpdate      = "update"
	TemplateRegenerate  = "regenerate"
	TemplateIntent      = "intent"
)

// Template is one prompt family. System and User are interpolated with the
// component's context plus the built-ins {{component}}, {{description}},
// {{schema}} and {{context}}.
type Template struct {
	ID     string
	System string
	User   string

	// Task selects the default model capability, e.g. "generate" or "standards".
	Task string

	MaxTokens   int
	Temperature float64
}

const jsonOnlyRules = `You respond only in RFC8259 compliant JSON.

DO NOT include phrases like:
- "Here is the JSON..."
- "Certainly!"
- "Below is..."

Only respond with the JSON object, nothing else.`

const wrappedResponse = `Respond with a JSON object whose only key is "{{component}}" and whose value follows this JSON Schema without deviation:
{{schema}}`

const standardsSystem = `You are an educational standards specialist focusing on grade {{grade}} {{subject}}.
You produce inclusive and equitable standards and never let bias influence them.
` + jsonOnlyRules + `

Guidelines:
- Focal standards: the core learning objectives for the topic and grade
- Supporting standards: related concepts the lesson reinforces

Example response for grade 2 fractions:
{"standardsAddressed": {"focalStandard": ["2.NF.1: Partition circles and rectangles into equal shares"], "supportingStandards": ["2.G.3: Partition shapes into equal parts"]}}

Required schema for the value:
{{schema}}`

const standardsUser = `Generate the educational standards for:
Topic: {{topic}}
Grade: {{grade}}
Subject: {{subject}}

` + wrappedResponse

const pedagogicalSystem = `You are an educator with deep experience in differentiated instruction.
` + jsonOnlyRules + `

Follow these principles:
1. All content aligns with grade-level standards while providing multiple entry points
2. Include specific supports for diverse learners (ELL, gifted, struggling, spectrum)
3. Keep objectives, activities and assessments coherent with each other
4. Include formative assessment opportunities throughout

Content must be developmentally appropriate for grade {{grade}} and follow typical {{subject}} standards and practices.`

const lessonUser = `Create {{component}} ({{description}}) for:
Topic: {{topic}}
Grade Level: {{grade}}
Subject: {{subject}}
Profile: {{profile}}
Context: {{context}}

` + wrappedResponse

const problemSetSystem = `You are an expert mathematics education content creator specializing in grade {{grade}} {{subject}}.
` + jsonOnlyRules + `

Create clear, engaging problems using LaTeX math notation.

LaTeX formatting rules:
- Use single $ for inline math: "Find $x$ when $2x + 3 = 11$"
- Use double $$ for displayed equations
- Use proper LaTeX commands: \sqrt{}, \frac{}{}, \pi
- JSON-escape every backslash

Example problem:
{"type": "practice", "difficulty": 3, "problem": {"stem": "Solve $\\frac{x}{2} = 4$"}, "solution": {"answer": "$x = 8$", "workingOut": ["Multiply both sides by 2"]}, "hints": [{"text": "Undo the division first"}]}`

const coachSystem = `You are a certified strength and conditioning coach and sports nutritionist.
` + jsonOnlyRules + `

Design safe, progressive programming for a {{experience_level}} athlete training {{available_days}} days per week.
Respect every limitation in the athlete profile and keep recommendations evidence based.`

const coachUser = `Create {{component}} ({{description}}) for:
Goals: {{goals}}
Experience Level: {{experience_level}}
Available Days: {{available_days}}
Profile: {{profile}}
Context: {{context}}

` + wrappedResponse

const genericSystem = `You are an expert content generator.
` + jsonOnlyRules

const genericUser = `Create {{component}} ({{description}}) for topic "{{topic}}".
Context: {{context}}

` + wrappedResponse

const updateSystem = `You are an expert component editor.
` + jsonOnlyRules + `

Profile and context:
{{context}}

Current {{component}} content that needs to be updated:
{{current_content}}

Schema of the component:
{{schema}}

Return the modified value based on the feedback, profile and schema.`

const updateUser = `User Feedback: {{user_feedback}}
Requested change: {{directive}}

Update the {{component}} section while preserving its structure.
` + wrappedResponse

const regenerateSystem = `You are an expert component generator.
` + jsonOnlyRules + `

Task: regenerate the {{component}} section based on user feedback while keeping schema compliance.

Current component:
{{current_content}}

Context:
{{context}}

Requirements:
1. Maintain the exact schema structure
2. Incorporate the user feedback
3. Keep the content consistent with the rest of the document`

const regenerateUser = `User Feedback: {{user_feedback}}
Requested change: {{directive}}

` + wrappedResponse

// builtinTemplates returns a fresh copy of the built-in families.
func builtinTemplates() map[string]Template {
	list := []Template{
		{ID: TemplateStandards, System: standardsSystem, User: standardsUser, Task: "standards", MaxTokens: 1000, Temperature: 0.1},
		{ID: TemplatePedagogical, System: pedagogicalSystem, User: lessonUser, Task: "generate", MaxTokens: 4000, Temperature: 0.7},
		{ID: TemplateProblemSet, System: problemSetSystem, User: lessonUser, Task: "generate", MaxTokens: 4000, Temperature: 0.7},
		{ID: TemplateCoach, System: coachSystem, User: coachUser, Task: "generate", MaxTokens: 3000, Temperature: 0.7},
		{ID: TemplateGeneric, System: genericSystem, User: genericUser, Task: "generate", MaxTokens: 4000, Temperature: 0.7},
		{ID: TemplateUpdate, System: updateSystem, User: updateUser, Task: "update", MaxTokens: 4000, Temperature: 0.7},
		{ID: TemplateRegenerate, System: regenerateSystem, User: regenerateUser, Task: "regenerate", MaxTokens: 4000, Temperature: 0.6},
		{ID: TemplateIntent, System: intentSystem, User: intentUser, Task: "intent", MaxTokens: 4000, Temperature: 0.2},
	}
	out := make(map[string]Template, len(list))
	for _, t := range list {
		out[t.ID] = t
	}
	return out
}
