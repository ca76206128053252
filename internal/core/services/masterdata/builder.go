package masterdata

import (
	"log/slog"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/deduplication"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// EnrichSuffix marks PostcodeBase columns joined onto opendatasoft rows
const EnrichSuffix = "_2"

// Sources holds the raw exports used to build the reference. OpenData and
// PostcodeBase are optional; PostcodeBase is only used with OpenData.
type Sources struct {
	OneMap       *domain.Table
	OpenData     *domain.Table
	PostcodeBase *domain.Table
}

// BuildResult is the geocoded reference plus what deduplication removed
type BuildResult struct {
	Geocoded *domain.Table
	Dedup    *deduplication.Result
}

// Builder turns raw source exports into the deduplicated geocoded reference
type Builder struct {
	cleaner *Pipeline
	dedup   *deduplication.Service
	logger  *slog.Logger
}

// NewBuilder creates a builder. A nil config means DefaultCleanerConfig.
func NewBuilder(config *CleanerConfig, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cleaner, err := NewPipeline(config)
	if err != nil {
		return nil, err
	}

	dedup, err := deduplication.NewService(deduplication.DefaultConfig(), logger)
	if err != nil {
		return nil, err
	}

	return &Builder{cleaner: cleaner, dedup: dedup, logger: logger}, nil
}

// Format converts a raw export with the formatter registered as source
func (b *Builder) Format(source string, raw *domain.Table) (*domain.Table, error) {
	formatter, err := Create(source, b.cleaner)
	if err != nil {
		return nil, err
	}
	for _, col := range formatter.RequiredColumns() {
		if !raw.HasColumn(col) {
			return nil, apperrors.ColumnNotFound(col).WithDetails("source", formatter.GetName())
		}
	}

	out, err := formatter.Format(raw)
	if err != nil {
		return nil, err
	}

	b.logger.Info("source formatted",
		slog.String("source", formatter.GetName()),
		slog.Int("input_rows", raw.Len()),
		slog.Int("output_rows", out.Len()))
	return out, nil
}

// Enrich replaces the opendatasoft address with the PostcodeBase one,
// joining many-to-one on POSTAL. PostcodeBase SOURCE and URL arrive as
// SOURCE_2 and URL_2.
func Enrich(openData, postcodeBase *domain.Table) (*domain.Table, error) {
	left := openData.DropColumns(domain.ColAddress)
	joined, err := domain.LeftJoin(left, postcodeBase, domain.ColPostal, domain.ColPostal, EnrichSuffix)
	if err != nil {
		return nil, err
	}
	// both sides share the key, keep one copy
	return joined.DropColumns(domain.ColPostal + EnrichSuffix), nil
}

// Extend appends the rows of extra whose POSTAL is not already in base
func Extend(base, extra *domain.Table) *domain.Table {
	known := make(map[string]bool, base.Len())
	for _, v := range base.Column(domain.ColPostal) {
		if key, ok := domain.KeyString(v); ok {
			known[key] = true
		}
	}

	additional := extra.Filter(func(r domain.Record) bool {
		key, ok := domain.KeyString(r[domain.ColPostal])
		return !ok || !known[key]
	})
	return domain.Concat(base, additional)
}

// ConvertTypes projects t onto the geocoded schema: text columns become
// strings, coordinates become numbers, and missing columns are null.
func ConvertTypes(t *domain.Table) *domain.Table {
	columns := domain.GeocodedColumns()
	rows := make([]domain.Record, t.Len())

	for i, row := range t.Rows {
		out := make(domain.Record, len(columns))
		for _, col := range columns {
			v := row[col]
			switch {
			case domain.IsNull(v):
				out[col] = nil
			case col == domain.ColLatitude || col == domain.ColLongitude:
				out[col] = toFloat(v)
			default:
				out[col] = domain.ToText(v)
			}
		}
		rows[i] = out
	}
	return domain.NewTable(columns, rows)
}

// BuildReference types the extended table, drops rows without a postcode
// and keeps the first row per POSTAL.
func (b *Builder) BuildReference(t *domain.Table) (*BuildResult, error) {
	typed := ConvertTypes(t).Filter(func(r domain.Record) bool {
		return r[domain.ColPostal] != nil
	})

	result, err := b.dedup.Deduplicate(typed)
	if err != nil {
		return nil, err
	}

	b.logger.Info("geocoded reference built",
		slog.Int("input_rows", t.Len()),
		slog.Int("rows", result.Table.Len()),
		slog.Int("duplicates_removed", result.RemovedCount))

	return &BuildResult{Geocoded: result.Table, Dedup: result}, nil
}

// Build runs the whole pipeline: format every source, enrich opendatasoft
// with PostcodeBase, extend OneMap with the result and deduplicate.
func (b *Builder) Build(src Sources) (*BuildResult, error) {
	if src.OneMap == nil {
		return nil, apperrors.InvalidConfig("the OneMap export is required")
	}

	combined, err := b.Format(SourceOneMap, src.OneMap)
	if err != nil {
		return nil, err
	}

	if src.OpenData != nil {
		openData, err := b.Format(SourceOpenData, src.OpenData)
		if err != nil {
			return nil, err
		}

		if src.PostcodeBase != nil {
			postcodeBase, err := b.Format(SourcePostcodeBase, src.PostcodeBase)
			if err != nil {
				return nil, err
			}
			// the join is many-to-one, keep the first address per postcode
			pb, err := b.dedup.Deduplicate(postcodeBase.Filter(func(r domain.Record) bool {
				return r[domain.ColPostal] != nil
			}))
			if err != nil {
				return nil, err
			}
			openData, err = Enrich(openData, pb.Table)
			if err != nil {
				return nil, err
			}
		}

		combined = Extend(combined, openData)
	}

	return b.BuildReference(combined)
}
