package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, ReferenceSourceFile, cfg.ReferenceSource)
	assert.Equal(t, 24*time.Hour, cfg.ReferenceCacheTTL())
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSizeBytes())
	assert.Equal(t, time.Hour, cfg.UploadRetention())
	assert.Empty(t, cfg.CandidateColumns)

	vc := cfg.ValidationConfig()
	assert.Equal(t, validation.DefaultConfig(), vc)

	ic := cfg.IdentifyConfig()
	assert.Equal(t, 100, ic.SampleSize)
	assert.Equal(t, 0.1, ic.SuccessThreshold)
	assert.Equal(t, int64(42), ic.Seed)
	assert.Equal(t, extraction.DefaultPattern, ic.RegexPattern)
	assert.True(t, ic.FieldNameTieBreak)

	gc := cfg.GeocodingConfig()
	assert.Equal(t, vc, gc.Validation)
	assert.Equal(t, ic, gc.Identification)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"POSTCODE_RANGE_MIN": "10000",
		"POSTCODE_RANGE_MAX": "900000",
		"DROP_INCORRECT":     "true",
		"SUCCESS_THRESHOLD":  "0.5",
		"CANDIDATE_COLUMNS":  "Postcode, Address ,",
		"SERVER_PORT":        "9090",
		"LOG_LEVEL":          "warn",
		"LOG_FORMAT":         "json",
	})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LoggerOptions().Level)
	assert.Equal(t, "json", cfg.LoggerOptions().Format)

	vc := cfg.ValidationConfig()
	assert.Equal(t, validation.Range{Min: 10000, Max: 900000}, vc.Range)
	assert.True(t, vc.DropIncorrect)
	assert.Equal(t, 0.5, cfg.IdentifyConfig().SuccessThreshold)
	assert.Equal(t, []string{"Postcode", "Address"}, cfg.CandidateColumns)
	assert.Equal(t, "0.0.0.0:9090", cfg.GetServerAddr())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"database source without user", map[string]string{"REFERENCE_SOURCE": "database"}},
		{"database source without password", map[string]string{"REFERENCE_SOURCE": "database", "DB_USER": "geo"}},
		{"unknown source", map[string]string{"REFERENCE_SOURCE": "s3"}},
		{"inverted range", map[string]string{"POSTCODE_RANGE_MIN": "900000", "POSTCODE_RANGE_MAX": "10"}},
		{"threshold above one", map[string]string{"SUCCESS_THRESHOLD": "1.5"}},
		{"zero threshold", map[string]string{"SUCCESS_THRESHOLD": "0"}},
		{"empty pattern", map[string]string{"REGEX_PATTERN": " "}},
		{"zero sample", map[string]string{"SAMPLE_SIZE": "0"}},
		{"zero file size", map[string]string{"MAX_FILE_SIZE_MB": "0"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env)
			assert.Error(t, err)
		})
	}
}

func TestLoad_DatabaseSource(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"REFERENCE_SOURCE": "Database",
		"DB_USER":          "geo",
		"DB_PASSWORD":      "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, ReferenceSourceDatabase, cfg.ReferenceSource)
	assert.Equal(t, "host=localhost port=5432 user=geo password=secret dbname=postcodes sslmode=disable", cfg.GetDatabaseURL())
	assert.Equal(t, "localhost:6379", cfg.GetRedisURL())
}
