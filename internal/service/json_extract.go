package service

import (
	"regexp"
	"strings"
)

// extractFirstJSONObject devuelve el primer objeto {...} balanceado, respetando strings y escapes.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}

	return ""
}

// unterminatedJSONTail returns everything from the first '{' when the object
// never closes (truncated model output); jsonrepair can often finish it.
func unterminatedJSONTail(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 || extractFirstJSONObject(input) != "" {
		return ""
	}
	return input[start:]
}

var fencedBlockRe = regexp.MustCompile("(?is)```[a-z]*\\s*(.*?)```")

// extractFencedBlocks devuelve el contenido de cada bloque ``` ... ``` en orden.
func extractFencedBlocks(input string) []string {
	matches := fencedBlockRe.FindAllStringSubmatch(input, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if body := strings.TrimSpace(m[1]); body != "" {
			out = append(out, body)
		}
	}
	return out
}

// cleanLLMJSONResponse quita BOM y espacios; los fences se tratan aparte.
func cleanLLMJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.TrimSpace(s)
}
