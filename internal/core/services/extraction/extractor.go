package extraction

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultPattern matches five or six digits that are not part of a longer
// run of digits.
const DefaultPattern = `(?<!\d)\d{5,6}(?!\d)`

// Extractor pulls the first postcode-shaped substring out of free text
type Extractor struct {
	pattern string
	re      *regexp2.Regexp
}

// New compiles pattern. An empty pattern is a configuration error. Matching
// runs without a timeout so that results never depend on machine load.
func New(pattern string) (*Extractor, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, apperrors.MissingRegexPattern()
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, apperrors.InvalidConfig(fmt.Sprintf("invalid regex pattern %q: %v", pattern, err))
	}
	return &Extractor{pattern: pattern, re: re}, nil
}

// MustNew is New for patterns known to be valid
func MustNew(pattern string) *Extractor {
	e, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// Pattern returns the source pattern
func (e *Extractor) Pattern() string {
	return e.pattern
}

// Extract applies ExtractValue to each value, preserving order
func (e *Extractor) Extract(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		if s, ok := e.ExtractValue(v); ok {
			out[i] = s
		}
	}
	return out
}

// ExtractValue returns the first match in v. Null cells and cells that
// already parse as a number yield no match: extraction only targets text
// with embedded codes. When the pattern has a capture group, the first
// group is returned instead of the whole match.
func (e *Extractor) ExtractValue(v interface{}) (string, bool) {
	if domain.IsNull(v) {
		return "", false
	}
	if _, numeric := domain.ToNumber(v); numeric {
		return "", false
	}

	text := toASCII(domain.ToText(v))
	m, err := e.re.FindStringMatch(text)
	if err != nil || m == nil {
		return "", false
	}

	if groups := m.Groups(); len(groups) > 1 && len(groups[1].Captures) > 0 {
		return groups[1].String(), true
	}
	return m.String(), true
}

var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// toASCII drops every non-ASCII rune. Invalid UTF-8 is dropped too, so the
// call never fails.
func toASCII(s string) string {
	out, _, err := transform.String(asciiOnly, strings.ToValidUTF8(s, ""))
	if err != nil {
		return ""
	}
	return out
}
