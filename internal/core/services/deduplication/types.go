package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
)

// Strategy defines the deduplication strategy
type Strategy string

const (
	StrategyExact      Strategy = "exact"      // Values compared as they are
	StrategyNormalized Strategy = "normalized" // Text trimmed and case folded
)

// Result contains the deduplicated table and what was removed
type Result struct {
	OriginalCount     int           `json:"original_count"`
	DeduplicatedCount int           `json:"deduplicated_count"`
	RemovedCount      int           `json:"removed_count"`
	Strategy          Strategy      `json:"strategy"`
	Table             *domain.Table `json:"-"`
	Stats             Stats         `json:"stats"`
}

// Stats provides detailed statistics
type Stats struct {
	UniqueRecords    int            `json:"unique_records"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	DuplicateKeys    map[string]int `json:"duplicate_keys,omitempty"` // key -> rows dropped
}

// Config for deduplication service
type Config struct {
	Strategy  Strategy `json:"strategy"`
	KeyFields []string `json:"key_fields"` // Fields to use for hashing, all columns when empty
}

// DefaultConfig deduplicates exactly on the POSTAL column
func DefaultConfig() Config {
	return Config{
		Strategy:  StrategyExact,
		KeyFields: []string{domain.ColPostal},
	}
}

// generateHash creates a SHA256 hash from the key fields of a row
func generateHash(row domain.Record, fields []string, strategy Strategy) (string, error) {
	hashData := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		hashData[field] = normalizeValue(row[field], strategy)
	}

	// Marshal to JSON for consistent hashing, map keys are sorted
	jsonData, err := json.Marshal(hashData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal hash data: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

func normalizeValue(val interface{}, strategy Strategy) interface{} {
	if domain.IsNull(val) {
		return nil
	}
	strVal, ok := val.(string)
	if !ok || strategy != StrategyNormalized {
		return val
	}
	return strings.ToLower(strings.TrimSpace(strVal))
}
