package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/cache"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/database"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/database/repositories"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/queue"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/config"
)

// backends are the optional connections opened for a command
type backends struct {
	db    *database.PostgresDB
	redis *cache.RedisCache
}

func (b *backends) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func (a *app) openDatabase() (*database.PostgresDB, error) {
	opts := database.DefaultOptions(a.cfg.GetDatabaseURL())
	opts.Debug = a.cfg.IsDevelopment() && a.logger.Enabled(context.Background(), slog.LevelDebug)
	return database.NewPostgresDB(opts, a.logger.With(slog.String("component", "database")))
}

func (a *app) redisOptions() *cache.Options {
	opts := cache.DefaultOptions()
	opts.Addr = a.cfg.GetRedisURL()
	opts.Password = a.cfg.RedisPassword
	opts.DB = a.cfg.RedisDB
	return opts
}

func (a *app) queueOptions() *queue.Options {
	opts := queue.DefaultOptions()
	opts.RedisAddr = a.cfg.GetRedisURL()
	opts.RedisPassword = a.cfg.RedisPassword
	opts.RedisDB = a.cfg.RedisDB
	opts.Concurrency = a.cfg.WorkerConcurrency
	opts.MaxRetry = a.cfg.WorkerMaxRetries
	opts.Queues = a.cfg.WorkerQueuePriority
	return opts
}

// uploadParsers enforces the upload size limit
func (a *app) uploadParsers(sheet string) *parsers.ParserFactory {
	pc := parsers.DefaultParserConfig()
	pc.MaxFileSize = a.cfg.MaxFileSizeBytes()
	pc.Sheet = sheet
	return parsers.NewParserFactory(pc)
}

// newProvider wires the reference loader chosen by REFERENCE_SOURCE and,
// when useCache is set and the TTL is positive, the redis snapshot layer.
// An unreachable redis only disables the snapshot layer.
func (a *app) newProvider(useCache bool) (*reference.Provider, *backends, error) {
	b := &backends{}

	var loader reference.Loader
	switch a.cfg.ReferenceSource {
	case config.ReferenceSourceDatabase:
		db, err := a.openDatabase()
		if err != nil {
			return nil, nil, err
		}
		b.db = db
		loader = repositories.NewPostcodeRepository(db.DB, a.logger)
	default:
		pc := parsers.DefaultParserConfig()
		pc.MaxFileSize = 0
		loader = parsers.NewFileLoader(parsers.NewParserFactory(pc), a.cfg.ReferenceFile)
	}

	var snapshots reference.Cache
	if useCache && a.cfg.ReferenceCacheTTL() > 0 {
		rc, err := cache.NewRedisCache(a.redisOptions(), a.logger.With(slog.String("component", "cache")))
		if err != nil {
			a.logger.Warn("reference snapshot cache disabled", slog.Any("error", err))
		} else {
			b.redis = rc
			snapshots = rc
		}
	}

	pcfg := reference.DefaultProviderConfig()
	pcfg.CacheTTL = a.cfg.ReferenceCacheTTL()

	provider := reference.NewProvider(loader, snapshots, pcfg, a.logger.With(slog.String("component", "reference")))
	a.logger.Debug("reference provider ready",
		slog.String("loader", loader.Describe()),
		slog.Bool("snapshot_cache", snapshots != nil))

	return provider, b, nil
}

// geocodingConfig adds the MASTER_LIST_FILE postcode list, when set, to
// the configured validation and identification settings
func (a *app) geocodingConfig(ctx context.Context) (geocoding.Config, error) {
	cfg := a.cfg.GeocodingConfig()
	if a.cfg.MasterListFile == "" {
		return cfg, nil
	}

	table, err := readTable(ctx, a.cfg.MasterListFile)
	if err != nil {
		return cfg, err
	}
	set, err := reference.PostcodeSetFromTable(table)
	if err != nil {
		return cfg, err
	}
	a.logger.Info("master postcode list loaded",
		slog.String("file", a.cfg.MasterListFile),
		slog.Int("postcodes", set.Len()))

	cfg.MasterList = set
	return cfg, nil
}

func describeSource(cfg *config.Config) string {
	if cfg.ReferenceSource == config.ReferenceSourceDatabase {
		return fmt.Sprintf("database %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	return "file " + cfg.ReferenceFile
}
