package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject pulls the first JSON object out of free-form model output
// and unmarshals it into v. Chat models routinely wrap their payload in
// prose or markdown fences, so the raw content is scanned for the first
// balanced {...} block instead of being parsed as-is.
func ExtractObject(raw string, v any) error {
	obj, err := firstObject(raw)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("oracle: parse extracted object: %w", err)
	}

	return nil
}

func firstObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("oracle: no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("oracle: unterminated JSON object in response")
}
