package geocoding

import (
	"sort"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// GeocodedSuffix is appended to reference columns whose names clash with
// uploaded columns
const GeocodedSuffix = "_GEOCODED_DATASET"

// ReasonCount is one bar of the unmatched-reason histogram
type ReasonCount struct {
	Reason  string  `json:"reason"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// MatchStats summarises a merge
type MatchStats struct {
	TotalRecords     int           `json:"total_records"`
	MatchedRecords   int           `json:"matched_records"`
	MatchRate        float64       `json:"match_rate"`
	UnmatchedReasons []ReasonCount `json:"unmatched_reasons"`
}

// Merge left-joins converted rows to the reference on the formatted
// postcode. Every input row appears exactly once in the output.
func Merge(converted *domain.Table, ref *reference.Dataset, fields validation.FieldNames) (*domain.Table, *MatchStats, error) {
	if ref == nil {
		return nil, nil, apperrors.InvalidMasterReference("master reference is not loaded")
	}

	merged, err := domain.LeftJoin(converted, ref.Table(), fields.FormattedPostcode, ref.KeyColumn(), GeocodedSuffix)
	if err != nil {
		return nil, nil, err
	}

	latitude := domain.ColLatitude
	if converted.HasColumn(latitude) {
		latitude += GeocodedSuffix
	}

	return merged, computeStats(merged, latitude, fields.IncorrectReason), nil
}

// computeStats counts rows with a coordinate and builds the reason
// histogram over the remaining rows. Unmatched rows without a reason are
// left out of the histogram.
func computeStats(merged *domain.Table, latitudeColumn, reasonColumn string) *MatchStats {
	stats := &MatchStats{TotalRecords: merged.Len(), UnmatchedReasons: []ReasonCount{}}

	counts := make(map[string]int)
	withReason := 0
	for _, row := range merged.Rows {
		if !domain.IsNull(row[latitudeColumn]) {
			stats.MatchedRecords++
			continue
		}
		if reason, ok := domain.KeyString(row[reasonColumn]); ok {
			counts[reason]++
			withReason++
		}
	}

	if stats.TotalRecords > 0 {
		stats.MatchRate = float64(stats.MatchedRecords) / float64(stats.TotalRecords)
	}

	for reason, n := range counts {
		stats.UnmatchedReasons = append(stats.UnmatchedReasons, ReasonCount{
			Reason:  reason,
			Count:   n,
			Percent: float64(n) / float64(withReason) * 100,
		})
	}
	sort.Slice(stats.UnmatchedReasons, func(i, j int) bool {
		a, b := stats.UnmatchedReasons[i], stats.UnmatchedReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})

	return stats
}
