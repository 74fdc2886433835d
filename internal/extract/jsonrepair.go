package extract

import (
	"strings"

	"github.com/rotisserie/eris"
)

// RepairTruncatedArray recovers a JSON array from model output that may be
// truncated mid-element. It locates the array, walks it tracking string and
// nesting state, and if the closing bracket never arrives, cuts the text
// after the last complete top-level element and closes the array there. A
// response whose array carries no complete element repairs to "[]".
func RepairTruncatedArray(text string) (string, error) {
	start := strings.Index(text, "[")
	if start < 0 {
		return "", eris.New("extract: no JSON array in response")
	}

	depth := 0
	inString := false
	escaped := false
	lastComplete := -1

	for i := start + 1; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}':
			depth--
			if depth == 0 {
				lastComplete = i
			}
		case ']':
			if depth == 0 {
				// Array closed cleanly; nothing to repair.
				return text[start : i+1], nil
			}
			depth--
			if depth == 0 {
				lastComplete = i
			}
		}
	}

	if lastComplete < 0 {
		return "[]", nil
	}
	return text[start:lastComplete+1] + "]", nil
}
