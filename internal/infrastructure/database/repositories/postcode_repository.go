package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

const saveBatchSize = 1000

// PostcodeRepository stores the geocoded master reference
type PostcodeRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPostcodeRepository creates a new repository instance
func NewPostcodeRepository(db *gorm.DB, logger *slog.Logger) *PostcodeRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostcodeRepository{
		db:     db,
		logger: logger,
	}
}

// LoadReference reads every stored postcode as a reference table ordered
// by postcode. It satisfies reference.Loader.
func (r *PostcodeRepository) LoadReference(ctx context.Context) (*domain.Table, error) {
	var rows []domain.GeocodedPostcode

	err := r.db.WithContext(ctx).
		Order("postal ASC").
		Find(&rows).
		Error

	if err != nil {
		r.logger.Error("failed to load reference",
			slog.Any("error", err))
		return nil, apperrors.DatabaseError(fmt.Errorf("database query failed: %w", err))
	}

	return domain.GeocodedTable(rows), nil
}

// Load is LoadReference under the reference.Loader name
func (r *PostcodeRepository) Load(ctx context.Context) (*domain.Table, error) {
	return r.LoadReference(ctx)
}

// Describe names the loader in logs
func (r *PostcodeRepository) Describe() string {
	return "postgres:" + domain.GeocodedPostcode{}.TableName()
}

// SaveAll upserts the rows of a reference table. Rows without a postcode
// are skipped, repeats of a postcode within t keep the first row, and an
// already stored postcode is overwritten.
func (r *PostcodeRepository) SaveAll(ctx context.Context, t *domain.Table) (int, error) {
	rows := make([]domain.GeocodedPostcode, 0, t.Len())
	seen := make(map[string]bool, t.Len())
	for _, rec := range t.Rows {
		row := domain.GeocodedPostcodeFromRecord(rec)
		if row.Postal == "" || seen[row.Postal] {
			continue
		}
		seen[row.Postal] = true
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "postal"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, saveBatchSize).
		Error

	if err != nil {
		r.logger.Error("failed to save reference",
			slog.Int("row_count", len(rows)),
			slog.Any("error", err))
		return 0, apperrors.DatabaseError(fmt.Errorf("failed to upsert postcodes: %w", err))
	}

	r.logger.Info("saved reference postcodes",
		slog.Int("row_count", len(rows)))

	return len(rows), nil
}

// Count returns the number of stored postcodes
func (r *PostcodeRepository) Count(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&domain.GeocodedPostcode{}).
		Count(&count).
		Error

	if err != nil {
		return 0, apperrors.DatabaseError(fmt.Errorf("database query failed: %w", err))
	}

	return count, nil
}

// FindByPostal looks up one postcode
func (r *PostcodeRepository) FindByPostal(ctx context.Context, postal string) (*domain.GeocodedPostcode, error) {
	var row domain.GeocodedPostcode

	err := r.db.WithContext(ctx).
		Where("postal = ?", postal).
		First(&row).
		Error

	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.RecordNotFound("postcode")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Errorf("database query failed: %w", err))
	}

	return &row, nil
}

// DeleteAll empties the reference table
func (r *PostcodeRepository) DeleteAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.GeocodedPostcode{}).
		Error

	if err != nil {
		r.logger.Error("failed to clear reference",
			slog.Any("error", err))
		return apperrors.DatabaseError(fmt.Errorf("failed to delete postcodes: %w", err))
	}

	r.logger.Info("cleared reference postcodes")
	return nil
}
