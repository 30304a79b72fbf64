package model

import "testing"

func TestCapabilityForTask(t *testing.T) {
	tests := []struct {
		task     string
		expected Capability
	}{
		{"generate", CapabilityWriting},
		{"update", CapabilityWriting},
		{"regenerate", CapabilityWriting},
		{"standards", CapabilityPrecise},
		{"intent", CapabilityFast},
		// Fallback
		{"unknown-task", CapabilityWriting},
		{"", CapabilityWriting},
	}

	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			got := CapabilityForTask(tt.task)
			if got != tt.expected {
				t.Errorf("CapabilityForTask(%q) = %q, want %q", tt.task, got, tt.expected)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		input    string
		expected Capability
	}{
		{"writing", CapabilityWriting},
		{"fast", CapabilityFast},
		{"precise", CapabilityPrecise},
		{"planning", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseCapability(tt.input); got != tt.expected {
				t.Errorf("ParseCapability(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if got := Capability(tt.input).IsValid(); got != (tt.expected != "") {
				t.Errorf("Capability(%q).IsValid() = %v", tt.input, got)
			}
		})
	}
}
