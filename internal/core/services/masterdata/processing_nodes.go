package masterdata

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

var multipleWhitespace = regexp.MustCompile(`\s+`)

// ProcessingNodes contains the address cleaning steps. Each step does one
// transformation and is a no-op when disabled in the config.
type ProcessingNodes struct {
	config *CleanerConfig
	suffix *regexp.Regexp
}

// NewProcessingNodes compiles the configured suffix pattern
func NewProcessingNodes(config *CleanerConfig) (*ProcessingNodes, error) {
	p := &ProcessingNodes{
		config: config,
	}
	if config.StripSuffix && config.StripSuffixPattern != "" {
		re, err := regexp.Compile(config.StripSuffixPattern)
		if err != nil {
			return nil, apperrors.InvalidConfig(fmt.Sprintf("invalid address suffix pattern: %v", err))
		}
		p.suffix = re
	}
	return p, nil
}

// NormalizeUnicode applies NFC so that composed and decomposed forms compare equal
func (p *ProcessingNodes) NormalizeUnicode(text string) string {
	if !p.config.NormalizeUnicode {
		return text
	}
	result, _, err := transform.String(norm.NFC, text)
	if err != nil {
		return text
	}
	return result
}

// StripSuffix removes the trailing boilerplate matched by the suffix pattern
func (p *ProcessingNodes) StripSuffix(text string) string {
	if p.suffix == nil {
		return text
	}
	return p.suffix.ReplaceAllString(text, "")
}

// RemoveCommas deletes every comma
func (p *ProcessingNodes) RemoveCommas(text string) string {
	if !p.config.RemoveCommas {
		return text
	}
	return strings.ReplaceAll(text, ",", "")
}

// RemoveMultipleWhitespace collapses multiple spaces into single space
func (p *ProcessingNodes) RemoveMultipleWhitespace(text string) string {
	if !p.config.RemoveMultipleWhitespace {
		return text
	}
	return strings.TrimSpace(multipleWhitespace.ReplaceAllString(text, " "))
}

// MakeUppercase converts text to uppercase
func (p *ProcessingNodes) MakeUppercase(text string) string {
	if !p.config.MakeUppercase {
		return text
	}
	// a Caser is stateful, so one per call
	return cases.Upper(language.Und).String(text)
}
