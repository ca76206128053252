package masterdata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// FormatterFactory creates a formatter that cleans addresses with cleaner
type FormatterFactory func(cleaner *Pipeline) Formatter

// Registry manages the available source formatters
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]FormatterFactory
	aliases    map[string]string
}

var globalRegistry = &Registry{
	formatters: make(map[string]FormatterFactory),
	aliases:    make(map[string]string),
}

// Register adds a formatter to the registry with optional aliases
func Register(name string, factory FormatterFactory, aliases ...string) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.formatters[name] = factory
	for _, alias := range aliases {
		globalRegistry.aliases[alias] = name
	}
}

// Get retrieves a formatter factory by name or alias, case-insensitively
func Get(identifier string) (FormatterFactory, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if name, exists := globalRegistry.aliases[identifier]; exists {
		identifier = name
	}

	factory, exists := globalRegistry.formatters[identifier]
	if !exists {
		return nil, apperrors.InvalidConfig(
			fmt.Sprintf("source formatter '%s' not found. Available: %v", identifier, listAvailable()))
	}
	return factory, nil
}

// Create creates a formatter instance
func Create(identifier string, cleaner *Pipeline) (Formatter, error) {
	factory, err := Get(identifier)
	if err != nil {
		return nil, err
	}
	return factory(cleaner), nil
}

// ListAvailable returns the registered formatter names, sorted
func ListAvailable() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return listAvailable()
}

func listAvailable() []string {
	names := make([]string, 0, len(globalRegistry.formatters))
	for name := range globalRegistry.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(SourceOneMap, func(*Pipeline) Formatter { return &oneMapFormatter{} }, "one_map", "one-map")
	Register(SourceOpenData, func(c *Pipeline) Formatter { return &openDataFormatter{cleaner: c} }, "opendatasoft", "open_data", "geonames")
	Register(SourcePostcodeBase, func(c *Pipeline) Formatter { return &postcodeBaseFormatter{cleaner: c} }, "postcode_base", "getdata")
}
