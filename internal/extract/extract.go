// Package extract recovers structured JSON objects from free-text LLM output.
//
// Models asked to return JSON routinely wrap it in markdown fences, prose,
// trailing commas, or double-encode it as a JSON string. Extract runs an
// ordered list of pure recovery strategies and short-circuits on the first
// that yields a well-formed object. It is total: it never returns an error
// and never panics, falling back to a sentinel object when every strategy
// fails.
package extract

import (
	"errors"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// maxCapturedContent caps the raw/sanitized content echoed in the sentinel
// object so a pathological response cannot balloon the stored artifact.
const maxCapturedContent = 2000

// Strategy is one pure recovery attempt over the raw response text.
type Strategy struct {
	Name string
	Fn   func(string) (map[string]any, error)
}

// Strategies returns the ordered recovery cascade. Exposed so each stage can
// be exercised independently in tests.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "sanitize", Fn: sanitizeThenParse},
		{Name: "code_block", Fn: codeBlockParse},
		{Name: "largest_brace", Fn: largestBraceParse},
		{Name: "raw", Fn: rawParse},
	}
}

// Extract returns a best-effort structured object for any input string.
// When all strategies fail it returns a sentinel object with parseError set;
// downstream consumers can rely on the result always being non-nil.
func Extract(raw string) map[string]any {
	var lastErr error
	for _, s := range Strategies() {
		obj, err := s.Fn(raw)
		if err == nil {
			return obj
		}
		lastErr = err
	}
	return sentinel(raw, lastErr)
}

// ExtractDoubleEncoded handles responses that are themselves a JSON-encoded
// string (double serialization). It unwraps one level of string encoding and
// re-runs the cascade on the inner text; anything else falls through to
// Extract on the original input.
func ExtractDoubleEncoded(raw string) map[string]any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			return Extract(inner)
		}
	}
	return Extract(raw)
}

// trailingCommaRe matches a comma directly before a closing brace or bracket.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// fenceRe matches an opening markdown fence with an optional language tag.
var fenceRe = regexp.MustCompile("```[a-zA-Z]*\n?")

// Sanitize normalizes raw model output into its most plausible JSON form:
// fences stripped, truncated to the outermost brace pair, control characters
// removed (newlines and tabs preserved), trailing commas repaired.
func Sanitize(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}

	s = stripControlChars(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

// stripControlChars removes control characters while preserving newlines,
// carriage returns and tabs.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// sanitizeThenParse is stage 1: sanitize the full response and parse.
func sanitizeThenParse(raw string) (map[string]any, error) {
	return parse(Sanitize(raw))
}

// codeBlockRe captures the interior of a fenced block, optionally tagged json.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// codeBlockParse is stage 2: extract a fenced code block and parse its
// sanitized interior.
func codeBlockParse(raw string) (map[string]any, error) {
	m := codeBlockRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.New("no fenced code block")
	}
	return parse(Sanitize(m[1]))
}

// largestBraceParse is stage 3: collect all balanced {...} substrings and
// parse the longest one, on the heuristic that the longest match is the most
// complete payload.
func largestBraceParse(raw string) (map[string]any, error) {
	best := ""
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		if end := matchBrace(raw, i); end > i {
			if cand := raw[i : end+1]; len(cand) > len(best) {
				best = cand
			}
		}
	}
	if best == "" {
		return nil, errors.New("no balanced brace match")
	}
	return parse(Sanitize(best))
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside string literals, or -1 when unbalanced.
func matchBrace(s string, start int) int {
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
				return i
			}
		}
	}
	return -1
}

// rawParse is stage 4: parse the entirely unmodified input.
func rawParse(raw string) (map[string]any, error) {
	return parse(raw)
}

// parse unmarshals s into a generic object, rejecting non-object payloads.
func parse(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("null payload")
	}
	return obj, nil
}

// sentinel is stage 5: the terminal fallback object. It carries the failure
// detail plus a minimal default shape so consumers never crash on missing
// keys.
func sentinel(raw string, cause error) map[string]any {
	msg := "unparseable response"
	if cause != nil {
		msg = cause.Error()
	}
	return map[string]any{
		"parseError":       true,
		"errorMessage":     msg,
		"originalContent":  truncate(raw, maxCapturedContent),
		"sanitizedContent": truncate(Sanitize(raw), maxCapturedContent),
		"summary":          "",
		"questions":        []any{},
	}
}

// truncate caps s to n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsParseFailure reports whether obj is the stage-5 sentinel.
func IsParseFailure(obj map[string]any) bool {
	v, ok := obj["parseError"].(bool)
	return ok && v
}

// Decode re-marshals an extracted object into a typed structure. Used by
// callers that want a concrete artifact out of the generic extraction result.
func Decode(obj map[string]any, v any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
