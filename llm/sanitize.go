package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// fenceOpenPattern matches a leading markdown fence, optionally tagged json.
var fenceOpenPattern = regexp.MustCompile("^```(?i:json)?[ \\t]*\\r?\\n?")

// Clean strips a surrounding markdown code fence from raw model output and
// parses the remainder as JSON. Any parse error is a *MalformedResponseError
// carrying raw; non-JSON text is never coerced.
func Clean(raw string) (any, error) {
	body := StripFence(raw)
	if body == "" {
		return nil, NewMalformedResponseError(raw, errors.New("empty response"))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, NewMalformedResponseError(raw, err)
	}
	// Reject trailing content such as prose after the JSON value.
	if rest := strings.TrimSpace(body[dec.InputOffset():]); rest != "" {
		return nil, NewMalformedResponseError(raw, errors.New("unexpected content after JSON value"))
	}

	return normalizeNumbers(value), nil
}

// StripFence removes one leading ``` or ```json marker and one trailing ```
// marker, then trims whitespace.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if loc := fenceOpenPattern.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalizeNumbers converts json.Number leaves to float64 so values compare
// equal to those produced by a plain json.Unmarshal.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}
