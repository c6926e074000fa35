package pdfprocessor

import "unicode/utf8"

// EstimateTokenCount provides a rough estimate of tokens in a text.
// It uses an average of 4 characters per token as an approximation.
//
//	tokens := EstimateTokenCount("Hello, world!") // 3
func EstimateTokenCount(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TruncateRunes cuts text to at most maxRunes runes without splitting a
// multi-byte character.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if len(text) <= maxRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i]
		}
		n++
	}
	return text
}
