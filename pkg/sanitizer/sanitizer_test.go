package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"only spaces", "   ", ""},
		{"leading and trailing spaces", "  Dwarka Sector 21  ", "Dwarka Sector 21"},
		{"internal whitespace collapsed", "Connaught   Place\tDelhi", "Connaught Place Delhi"},
		{"newlines collapsed", "MG\nRoad", "MG Road"},
		{"already normalized", "Anna Salai", "Anna Salai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.expected {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrimAndNormalizeIdempotent(t *testing.T) {
	inputs := []string{"  EV Plaza  ", "Outer\t Ring   Road", "plain"}
	for _, input := range inputs {
		once := TrimAndNormalize(input)
		twice := TrimAndNormalize(once)
		if once != twice {
			t.Errorf("TrimAndNormalize not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizeTimeLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"preserves case", "09:00-10:00 AM", "09:00-10:00 AM"},
		{"collapses whitespace", "  10:00  -  11:00  ", "10:00 - 11:00"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTimeLabel(tt.input); got != tt.expected {
				t.Errorf("NormalizeTimeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips control characters", "sector\x0021", "sector21"},
		{"collapses and trims", "  south   extension ", "south extension"},
		{"regex metacharacters untouched", "block (a.*)", "block (a.*)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSearchQuery(tt.input); got != tt.expected {
				t.Errorf("NormalizeSearchQuery(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
