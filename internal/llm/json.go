package llm

import "strings"

// ExtractJSON pulls a JSON document out of a model response. It tolerates
// fenced code blocks, leading prose, // line comments and explicit + signs
// on numbers, all of which Gemini emits from time to time.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	// Trim any prose before the first brace or bracket.
	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}

	s = stripLineComments(s)
	s = stripPlusSigns(s)
	return strings.TrimSpace(s)
}

// stripLineComments removes // comments outside of string literals.
func stripLineComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// stripPlusSigns drops an explicit + in front of numeric literals, which is
// invalid JSON but shows up in model output.
func stripPlusSigns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == '+' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
