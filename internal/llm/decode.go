package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON reports that no decodable JSON object was found in model output.
type ErrNoJSON struct {
	Snippet string
}

func (e *ErrNoJSON) Error() string {
	return fmt.Sprintf("no JSON object found in model output: %q", e.Snippet)
}

// DecodeObject decodes model output that is supposed to contain one JSON
// object. Models fence, preface, and truncate their JSON unpredictably, so
// decoding is layered: direct parse, then the first fenced code block, then
// a string-aware scan for every balanced {...} region. When wantKeys are
// given, candidates are probed with gjson and the first object carrying all
// of them wins, so a commentary object emitted ahead of the payload does
// not shadow it. Without keys, or when no candidate has them all, the first
// valid object is used.
func DecodeObject(raw string, dst interface{}, wantKeys ...string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ErrNoJSON{Snippet: ""}
	}

	candidates := []string{trimmed}
	if fenced, ok := extractFencedBlock(trimmed); ok {
		candidates = append(candidates, fenced)
	}
	candidates = append(candidates, scanBalancedObjects(trimmed)...)

	var fallback []string
	for _, candidate := range candidates {
		if !gjson.Valid(candidate) {
			continue
		}
		parsed := gjson.Parse(candidate)
		if !parsed.IsObject() {
			continue
		}
		if len(wantKeys) > 0 && !hasKeys(parsed, wantKeys) {
			fallback = append(fallback, candidate)
			continue
		}
		if err := json.Unmarshal([]byte(candidate), dst); err == nil {
			return nil
		}
	}
	for _, candidate := range fallback {
		if err := json.Unmarshal([]byte(candidate), dst); err == nil {
			return nil
		}
	}

	snippet := trimmed
	if len(snippet) > 80 {
		snippet = snippet[:80]
	}
	return &ErrNoJSON{Snippet: snippet}
}

func hasKeys(parsed gjson.Result, keys []string) bool {
	for _, key := range keys {
		if !parsed.Get(key).Exists() {
			return false
		}
	}
	return true
}

// extractFencedBlock returns the contents of the first ``` fenced block.
func extractFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]

	// Skip the info string (e.g. "json") up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// scanBalancedObjects returns every top-level balanced {...} region in order.
func scanBalancedObjects(s string) []string {
	var objects []string
	offset := 0
	for {
		obj, next, ok := scanBalancedObject(s[offset:])
		if !ok {
			return objects
		}
		objects = append(objects, obj)
		offset += next
	}
}

// scanBalancedObject finds the first balanced {...} region, counting braces
// only outside of quoted strings and honoring backslash escapes. It returns
// the region and the offset just past its closing brace.
func scanBalancedObject(s string) (string, int, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", 0, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

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
				return s[start : i+1], i + 1, true
			}
		}
	}
	return "", 0, false
}
