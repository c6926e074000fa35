package pdfprocessor

import "testing"

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty string returns 0", "", 0},
		{"4 characters returns 1 token", "test", 1},
		{"13 characters returns 3 tokens (floor division)", "Hello, world!", 3},
		{"3 characters returns 0 tokens", "abc", 0},
		{"counts runes not bytes", "ééééééé", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EstimateTokenCount(tt.text)
			if result != tt.expected {
				t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.text, result, tt.expected)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxRunes int
		expected string
	}{
		{"empty string unchanged", "", 10, ""},
		{"short text unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long text truncated", "Hello, world!", 5, "Hello"},
		{"zero max returns empty", "hello", 0, ""},
		{"negative max returns empty", "hello", -5, ""},
		{"multi-byte kept whole", "héllo wörld", 7, "héllo w"},
		{"multi-byte exact rune count", "日本語", 3, "日本語"},
		{"multi-byte cut", "日本語テキスト", 2, "日本"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateRunes(tt.text, tt.maxRunes)
			if result != tt.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.text, tt.maxRunes, result, tt.expected)
			}
		})
	}
}

func BenchmarkTruncateRunes(b *testing.B) {
	text := "This is a sample text for benchmarking the truncation function."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TruncateRunes(text, 20)
	}
}
