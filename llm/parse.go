package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoData matches every ParseError: the answer carried nothing usable.
var ErrNoData = errors.New("llm: no usable data in answer")

// ParseError is returned when an answer cannot be turned into the expected
// shape. Raw is truncated.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm: %s (answer %q)", e.Reason, e.Raw)
}

func (e *ParseError) Is(target error) bool { return target == ErrNoData }

func parseErr(raw, reason string) *ParseError {
	raw = strings.TrimSpace(raw)
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return &ParseError{Raw: raw, Reason: reason}
}

var (
	markdownNoise = regexp.MustCompile("[*_`#>]+")
	citations     = regexp.MustCompile(`\[\d+\]`)
	emptyAnswers  = map[string]bool{
		"": true, "null": true, "none": true, "unknown": true, "n/a": true, "na": true, "not found": true,
	}
)

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CleanText strips markdown emphasis, citation markers and surrounding quotes
// from a plain-text answer.
func CleanText(raw string) string {
	s := stripFences(raw)
	s = citations.ReplaceAllString(s, "")
	s = markdownNoise.ReplaceAllString(s, "")
	s = strings.Trim(strings.TrimSpace(s), `"'.:`)
	return strings.Join(strings.Fields(s), " ")
}

// IsEmptyAnswer reports whether the model explicitly declined to answer.
func IsEmptyAnswer(s string) bool {
	return emptyAnswers[strings.ToLower(CleanText(s))]
}

// ParseCategory maps an answer onto one of allowed. An exact match (ignoring
// case and markdown) wins; otherwise the answer must mention exactly one of
// the categories.
func ParseCategory(raw string, allowed []string) (string, error) {
	cleaned := CleanText(raw)
	if emptyAnswers[strings.ToLower(cleaned)] {
		return "", parseErr(raw, "empty answer")
	}

	firstLine := stripFences(raw)
	if i := strings.IndexAny(firstLine, "\r\n"); i >= 0 {
		firstLine = firstLine[:i]
	}
	firstLine = CleanText(firstLine)
	for _, c := range allowed {
		if strings.EqualFold(firstLine, c) || strings.EqualFold(cleaned, c) {
			return c, nil
		}
	}

	lower := strings.ToLower(cleaned)
	var found []string
	for _, c := range allowed {
		pattern := `\b` + regexp.QuoteMeta(strings.ToLower(c)) + `\b`
		if regexp.MustCompile(pattern).MatchString(lower) {
			found = append(found, c)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	if len(found) > 1 {
		return "", parseErr(raw, fmt.Sprintf("ambiguous answer, mentions %v", found))
	}

	return "", parseErr(raw, "answer is not one of the allowed categories")
}

// ParseObject extracts the first JSON object in the answer and decodes it
// into T.
func ParseObject[T any](raw string) (T, error) {
	var out T

	obj, ok := firstObject(stripFences(raw))
	if !ok {
		return out, parseErr(raw, "no JSON object in answer")
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return out, parseErr(raw, "malformed JSON object: "+err.Error())
	}

	return out, nil
}

// firstObject returns the first balanced {...} in s, honouring string
// literals so braces inside values do not end the object early.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			ch := s[i]
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
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(s)
				}
			}
		}

		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", false
}
