package masterdata

import (
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
)

// Formatter converts one raw source export into the geocoded schema.
// Implementations are registered by name so that new sources can be added
// without touching the builder.
type Formatter interface {
	// Format returns a new table in the geocoded schema
	Format(raw *domain.Table) (*domain.Table, error)

	// GetName returns the registry name (e.g., "onemap")
	GetName() string

	// GetDescription returns what this source is
	GetDescription() string

	// RequiredColumns lists the raw columns Format reads
	RequiredColumns() []string
}

// ProcessingStep represents a single text transformation function
type ProcessingStep func(string) string

// CleanerConfig selects the address cleaning steps
type CleanerConfig struct {
	StripSuffixPattern string `json:"strip_suffix_pattern"`

	NormalizeUnicode         bool `json:"normalize_unicode"`
	StripSuffix              bool `json:"strip_suffix"`
	RemoveCommas             bool `json:"remove_commas"`
	RemoveMultipleWhitespace bool `json:"remove_multiple_whitespace"`
	MakeUppercase            bool `json:"make_uppercase"`
}

// DefaultCleanerConfig enables every step and strips the PostcodeBase
// "is located in Singapore" tail
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		StripSuffixPattern:       ` is located in Singapore.*$`,
		NormalizeUnicode:         true,
		StripSuffix:              true,
		RemoveCommas:             true,
		RemoveMultipleWhitespace: true,
		MakeUppercase:            true,
	}
}
