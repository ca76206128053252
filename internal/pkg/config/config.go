package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/identification"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
)

// Reference sources
const (
	ReferenceSourceFile     = "file"
	ReferenceSourceDatabase = "database"
)

type Config struct {
	// Environment
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`

	// Server Configuration
	ServerHost string `mapstructure:"SERVER_HOST"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Database Configuration
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Redis Configuration
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// Reference Dataset
	ReferenceSource        string `mapstructure:"REFERENCE_SOURCE"`
	ReferenceFile          string `mapstructure:"REFERENCE_FILE"`
	ReferenceCacheTTLHours int    `mapstructure:"REFERENCE_CACHE_TTL_HOURS"`
	MasterListFile         string `mapstructure:"MASTER_LIST_FILE"`

	// Postcode Validation
	PostcodeRangeMin           int  `mapstructure:"POSTCODE_RANGE_MIN"`
	PostcodeRangeMax           int  `mapstructure:"POSTCODE_RANGE_MAX"`
	DropIncorrect              bool `mapstructure:"DROP_INCORRECT"`
	KeepFormattedPostcodeField bool `mapstructure:"KEEP_FORMATTED_POSTCODE_FIELD"`
	KeepValidationFields       bool `mapstructure:"KEEP_VALIDATION_FIELDS"`

	// Column Identification
	SampleSize        int      `mapstructure:"SAMPLE_SIZE"`
	SuccessThreshold  float64  `mapstructure:"SUCCESS_THRESHOLD"`
	SampleSeed        int64    `mapstructure:"SAMPLE_SEED"`
	RegexPattern      string   `mapstructure:"REGEX_PATTERN"`
	CandidateColumns  []string `mapstructure:"CANDIDATE_COLUMNS"`
	FieldNameTieBreak bool     `mapstructure:"FIELD_NAME_TIE_BREAK"`

	// Worker Configuration
	WorkerConcurrency   int `mapstructure:"WORKER_CONCURRENCY"`
	WorkerMaxRetries    int `mapstructure:"WORKER_MAX_RETRIES"`
	WorkerQueuePriority map[string]int

	// File Processing
	MaxFileSize          int64  `mapstructure:"MAX_FILE_SIZE_MB"`
	TempDir              string `mapstructure:"TEMP_DIR"`
	UploadRetentionHours int    `mapstructure:"UPLOAD_RETENTION_HOURS"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(".env"); err != nil {
		// Try parent directory
		if err := godotenv.Load("../.env"); err != nil {
			slog.Debug("No .env file found, using environment variables only")
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")

	// Database defaults
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "postcodes")
	v.SetDefault("DB_SSLMODE", "disable")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	// Reference defaults
	v.SetDefault("REFERENCE_SOURCE", ReferenceSourceFile)
	v.SetDefault("REFERENCE_FILE", "data/singapore_postcodes_geocoded.csv")
	v.SetDefault("REFERENCE_CACHE_TTL_HOURS", 24)

	// Validation defaults
	v.SetDefault("POSTCODE_RANGE_MIN", validation.DefaultRangeMin)
	v.SetDefault("POSTCODE_RANGE_MAX", validation.DefaultRangeMax)
	v.SetDefault("DROP_INCORRECT", false)
	v.SetDefault("KEEP_FORMATTED_POSTCODE_FIELD", true)
	v.SetDefault("KEEP_VALIDATION_FIELDS", true)

	// Identification defaults
	v.SetDefault("SAMPLE_SIZE", 100)
	v.SetDefault("SUCCESS_THRESHOLD", 0.1)
	v.SetDefault("SAMPLE_SEED", 42)
	v.SetDefault("REGEX_PATTERN", extraction.DefaultPattern)
	v.SetDefault("CANDIDATE_COLUMNS", "")
	v.SetDefault("FIELD_NAME_TIE_BREAK", true)

	// Worker defaults
	v.SetDefault("WORKER_CONCURRENCY", 2)
	v.SetDefault("WORKER_MAX_RETRIES", 3)

	// File processing defaults
	v.SetDefault("MAX_FILE_SIZE_MB", 100)
	v.SetDefault("TEMP_DIR", "/tmp/uploads")
	v.SetDefault("UPLOAD_RETENTION_HOURS", 1)
}

func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{}

	config.Environment = v.GetString("ENV")
	config.LogLevel = v.GetString("LOG_LEVEL")
	config.LogFormat = v.GetString("LOG_FORMAT")
	config.ServerHost = v.GetString("SERVER_HOST")
	config.ServerPort = v.GetString("SERVER_PORT")

	// Database
	config.DBHost = v.GetString("DB_HOST")
	config.DBPort = v.GetString("DB_PORT")
	config.DBUser = v.GetString("DB_USER")
	config.DBPassword = v.GetString("DB_PASSWORD")
	config.DBName = v.GetString("DB_NAME")
	config.DBSSLMode = v.GetString("DB_SSLMODE")

	// Redis
	config.RedisHost = v.GetString("REDIS_HOST")
	config.RedisPort = v.GetString("REDIS_PORT")
	config.RedisDB = v.GetInt("REDIS_DB")
	config.RedisPassword = v.GetString("REDIS_PASSWORD")

	// Reference
	config.ReferenceSource = strings.ToLower(v.GetString("REFERENCE_SOURCE"))
	config.ReferenceFile = v.GetString("REFERENCE_FILE")
	config.ReferenceCacheTTLHours = v.GetInt("REFERENCE_CACHE_TTL_HOURS")
	config.MasterListFile = v.GetString("MASTER_LIST_FILE")

	// Validation
	config.PostcodeRangeMin = v.GetInt("POSTCODE_RANGE_MIN")
	config.PostcodeRangeMax = v.GetInt("POSTCODE_RANGE_MAX")
	config.DropIncorrect = v.GetBool("DROP_INCORRECT")
	config.KeepFormattedPostcodeField = v.GetBool("KEEP_FORMATTED_POSTCODE_FIELD")
	config.KeepValidationFields = v.GetBool("KEEP_VALIDATION_FIELDS")

	// Identification
	config.SampleSize = v.GetInt("SAMPLE_SIZE")
	config.SuccessThreshold = v.GetFloat64("SUCCESS_THRESHOLD")
	config.SampleSeed = v.GetInt64("SAMPLE_SEED")
	config.RegexPattern = v.GetString("REGEX_PATTERN")
	config.CandidateColumns = splitList(v.GetString("CANDIDATE_COLUMNS"))
	config.FieldNameTieBreak = v.GetBool("FIELD_NAME_TIE_BREAK")

	// Worker
	config.WorkerConcurrency = v.GetInt("WORKER_CONCURRENCY")
	config.WorkerMaxRetries = v.GetInt("WORKER_MAX_RETRIES")
	config.WorkerQueuePriority = map[string]int{
		"critical": 6,
		"default":  1,
	}

	// File processing
	config.MaxFileSize = v.GetInt64("MAX_FILE_SIZE_MB")
	config.TempDir = v.GetString("TEMP_DIR")
	config.UploadRetentionHours = v.GetInt("UPLOAD_RETENTION_HOURS")

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", logger.FormatJSON, logger.FormatText:
	default:
		return fmt.Errorf("LOG_FORMAT must be %s or %s, got %q", logger.FormatJSON, logger.FormatText, c.LogFormat)
	}

	switch c.ReferenceSource {
	case ReferenceSourceFile:
		if c.ReferenceFile == "" {
			return fmt.Errorf("REFERENCE_FILE is required when REFERENCE_SOURCE=file")
		}
	case ReferenceSourceDatabase:
		if c.DBUser == "" {
			return fmt.Errorf("DB_USER is required when REFERENCE_SOURCE=database")
		}
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required when REFERENCE_SOURCE=database")
		}
	default:
		return fmt.Errorf("REFERENCE_SOURCE must be %q or %q, got %q",
			ReferenceSourceFile, ReferenceSourceDatabase, c.ReferenceSource)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}
	if c.ReferenceCacheTTLHours < 0 {
		return fmt.Errorf("REFERENCE_CACHE_TTL_HOURS must not be negative")
	}

	if err := c.ValidationConfig().Validate(); err != nil {
		return err
	}
	return c.IdentifyConfig().Validate()
}

// ValidationConfig builds the validator settings
func (c *Config) ValidationConfig() validation.Config {
	cfg := validation.DefaultConfig()
	cfg.Range = validation.Range{Min: c.PostcodeRangeMin, Max: c.PostcodeRangeMax}
	cfg.DropIncorrect = c.DropIncorrect
	cfg.KeepFormattedPostcodeField = c.KeepFormattedPostcodeField
	cfg.KeepValidationFields = c.KeepValidationFields
	return cfg
}

// IdentifyConfig builds the column identifier settings
func (c *Config) IdentifyConfig() identification.Config {
	return identification.Config{
		SampleSize:        c.SampleSize,
		SuccessThreshold:  c.SuccessThreshold,
		RegexPattern:      c.RegexPattern,
		CandidateColumns:  c.CandidateColumns,
		Seed:              c.SampleSeed,
		FieldNameTieBreak: c.FieldNameTieBreak,
	}
}

// GeocodingConfig bundles the validation and identification settings
func (c *Config) GeocodingConfig() geocoding.Config {
	return geocoding.Config{
		Validation:     c.ValidationConfig(),
		Identification: c.IdentifyConfig(),
	}
}

// ReferenceCacheTTL is zero when the redis snapshot layer is disabled
func (c *Config) ReferenceCacheTTL() time.Duration {
	return time.Duration(c.ReferenceCacheTTLHours) * time.Hour
}

// UploadRetention is how long stray uploads survive the cleanup sweep
func (c *Config) UploadRetention() time.Duration {
	return time.Duration(c.UploadRetentionHours) * time.Hour
}

// MaxFileSizeBytes converts MAX_FILE_SIZE_MB to bytes
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSize * 1024 * 1024
}

// GetDatabaseURL constructs the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// GetRedisURL constructs the Redis connection string
func (c *Config) GetRedisURL() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetServerAddr is the listen address of the HTTP server
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoggerOptions maps the logging settings onto logger.Options
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Env: c.Environment, Level: c.LogLevel, Format: c.LogFormat}
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Configuration loaded",
		slog.String("environment", c.Environment),
		slog.String("server", c.GetServerAddr()),
		slog.String("reference_source", c.ReferenceSource),
		slog.String("reference_file", c.ReferenceFile),
		slog.String("master_list_file", c.MasterListFile),
		slog.String("database", fmt.Sprintf("%s:%s/%s", c.DBHost, c.DBPort, c.DBName)),
		slog.String("redis", c.GetRedisURL()),
		slog.Int("redis_db", c.RedisDB),
		slog.Bool("db_password_set", c.DBPassword != ""),
		slog.Int("postcode_range_min", c.PostcodeRangeMin),
		slog.Int("postcode_range_max", c.PostcodeRangeMax),
		slog.Int("sample_size", c.SampleSize),
		slog.Float64("success_threshold", c.SuccessThreshold),
		slog.Int("worker_concurrency", c.WorkerConcurrency),
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
