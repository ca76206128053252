package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/database"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
)

var _ reference.Loader = (*PostcodeRepository)(nil)

// setupTestDB creates a PostgreSQL testcontainer with the reference schema
func setupTestDB(t *testing.T) *database.PostgresDB {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := database.NewPostgresDB(database.DefaultOptions(connStr), logger.Discard())
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.AutoMigrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func referenceTable() *domain.Table {
	return domain.NewTable(domain.GeocodedColumns(), []domain.Record{
		{
			domain.ColPostal: "238801", domain.ColAddress: "2 ORCHARD TURN SINGAPORE 238801",
			domain.ColLatitude: 1.3040, domain.ColLongitude: 103.8318, domain.ColSource: "OneMap",
		},
		{
			domain.ColPostal: "018956", domain.ColAddress: "10 BAYFRONT AVENUE SINGAPORE 018956",
			domain.ColLatitude: 1.2834, domain.ColLongitude: 103.8607, domain.ColSource: "OneMap",
		},
		{domain.ColPostal: nil, domain.ColAddress: "NOWHERE"},
	})
}

func TestPostcodeRepository_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostcodeRepository(db.DB, logger.Discard())
	ctx := context.Background()

	n, err := repo.SaveAll(ctx, referenceTable())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	table, err := repo.LoadReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GeocodedColumns(), table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "018956", table.Rows[0][domain.ColPostal])
	assert.Equal(t, 1.2834, table.Rows[0][domain.ColLatitude])
	assert.Nil(t, table.Rows[0][domain.ColBlkNo])

	// the table loads straight into a reference dataset
	d, err := reference.NewDataset(table, domain.ColPostal, repo.Describe())
	require.NoError(t, err)
	assert.True(t, d.Postcodes().Contains("238801"))
}

func TestPostcodeRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostcodeRepository(db.DB, logger.Discard())
	ctx := context.Background()

	_, err := repo.SaveAll(ctx, referenceTable())
	require.NoError(t, err)

	updated := domain.NewTable(domain.GeocodedColumns(), []domain.Record{
		{domain.ColPostal: "018956", domain.ColAddress: "MARINA BAY SANDS", domain.ColSource: "Postcodebase"},
	})
	_, err = repo.SaveAll(ctx, updated)
	require.NoError(t, err)

	row, err := repo.FindByPostal(ctx, "018956")
	require.NoError(t, err)
	assert.Equal(t, "MARINA BAY SANDS", row.Address)
	assert.Equal(t, "Postcodebase", row.Source)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPostcodeRepository_NotFoundAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostcodeRepository(db.DB, logger.Discard())
	ctx := context.Background()

	_, err := repo.FindByPostal(ctx, "999999")
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, appErr.Code)

	_, err = repo.SaveAll(ctx, referenceTable())
	require.NoError(t, err)
	require.NoError(t, repo.DeleteAll(ctx))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, "up", db.Health(ctx)["status"])
}

func TestPostcodeRepository_SaveEmpty(t *testing.T) {
	repo := NewPostcodeRepository(nil, logger.Discard())
	n, err := repo.SaveAll(context.Background(), domain.NewTable(domain.GeocodedColumns(), nil))
	require.NoError(t, err)
	assert.Zero(t, n)
}
