package fieldname

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Metric scores how well alias matches a cleaned field name, 0 to 100
type Metric func(alias, name string) float64

const (
	MetricLevenshtein = "levenshtein_normalized_inv"
	MetricSubstring   = "substring_match"
	MetricRatio       = "ratio"
	MetricPartial     = "partial_ratio"
)

var metrics = map[string]Metric{
	MetricLevenshtein: LevenshteinNormalizedInv,
	MetricSubstring:   SubstringMatch,
	MetricRatio:       Ratio,
	MetricPartial:     PartialRatio,
}

// DefaultAliases are typical spellings of a postcode column
func DefaultAliases() []string {
	return []string{"postalcode", "postcode", "zipcode", "postal", "post", "zip"}
}

// DefaultMetrics are the metrics used when none are configured
func DefaultMetrics() []string {
	return []string{MetricLevenshtein, MetricSubstring}
}

// Score is the match of one field against one alias under one metric
type Score struct {
	FieldName   string  `json:"field_name"`
	CleanName   string  `json:"clean_name"`
	Alias       string  `json:"pattern"`
	Metric      string  `json:"metric"`
	Score       float64 `json:"score"`
	AliasLength int     `json:"pattern_length"`
}

var nonLetters = regexp.MustCompile(`[^a-z]`)

// CleanFieldName lowercases name and strips everything but letters
func CleanFieldName(name string) string {
	return nonLetters.ReplaceAllString(strings.ToLower(name), "")
}

// SubstringMatch is 100 when alias occurs in name, else 0
func SubstringMatch(alias, name string) float64 {
	if strings.Contains(strings.ToLower(name), strings.ToLower(alias)) {
		return 100
	}
	return 0
}

// LevenshteinNormalizedInv is (1 - distance / longer length) * 100
func LevenshteinNormalizedInv(alias, name string) float64 {
	longest := max(len([]rune(alias)), len([]rune(name)))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(alias, name)
	return (1 - float64(d)/float64(longest)) * 100
}

// Ratio is the insert/delete similarity, 2*LCS / total length * 100
func Ratio(alias, name string) float64 {
	a, b := []rune(alias), []rune(name)
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return float64(2*lcsLength(a, b)) / float64(total) * 100
}

// PartialRatio is the best Ratio of the shorter string against every
// window of the longer one, including windows cut off at either end
func PartialRatio(alias, name string) float64 {
	short, long := []rune(alias), []rune(name)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	m, n := len(short), len(long)
	best := 0.0
	for start := 1 - m; start < n; start++ {
		window := long[max(0, start):min(n, start+m)]
		score := float64(2*lcsLength(short, window)) / float64(m+len(window)) * 100
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// ScoreFields scores every field against every alias with every metric.
// The result is ordered by score descending, then longer alias first, then
// alias alphabetically. Nil aliases or metrics select the defaults.
func ScoreFields(fields, aliases, metricNames []string) ([]Score, error) {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	if metricNames == nil {
		metricNames = DefaultMetrics()
	}

	fns := make([]Metric, len(metricNames))
	for i, name := range metricNames {
		fn, ok := metrics[name]
		if !ok {
			return nil, apperrors.InvalidConfig(fmt.Sprintf("unknown field name metric %q", name))
		}
		fns[i] = fn
	}

	scores := make([]Score, 0, len(fields)*len(aliases)*len(metricNames))
	for _, field := range fields {
		clean := CleanFieldName(field)
		for _, alias := range aliases {
			for i, fn := range fns {
				scores = append(scores, Score{
					FieldName:   field,
					CleanName:   clean,
					Alias:       alias,
					Metric:      metricNames[i],
					Score:       fn(alias, clean),
					AliasLength: len(alias),
				})
			}
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].AliasLength != scores[j].AliasLength {
			return scores[i].AliasLength > scores[j].AliasLength
		}
		return scores[i].Alias < scores[j].Alias
	})
	return scores, nil
}

// BestScores returns the highest score reached by each field under the
// default aliases and metrics.
func BestScores(fields []string) map[string]float64 {
	best := make(map[string]float64, len(fields))
	scores, _ := ScoreFields(fields, nil, nil)
	for _, s := range scores {
		if cur, ok := best[s.FieldName]; !ok || s.Score > cur {
			best[s.FieldName] = s.Score
		}
	}
	return best
}
