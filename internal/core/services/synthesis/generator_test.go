package synthesis

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sourcePostcodes = []string{
	"018906", "018956", "049315", "238801", "409051", "560123", "819663",
	"12345", "999999", "not a code", "018906",
}

func newGenerator(t *testing.T, count int, share float64, seed int64) *Generator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Count = count
	cfg.ValidShare = share
	cfg.Seed = seed
	g, err := New(&cfg, logger.Discard())
	require.NoError(t, err)
	return g
}

func hasMutation(s Sample, m Mutation) bool {
	return slices.Contains(s.Mutations, m)
}

func TestGenerate_SameSeedSameSamples(t *testing.T) {
	a, err := newGenerator(t, 200, 0.5, 7).Generate(sourcePostcodes)
	require.NoError(t, err)
	b, err := newGenerator(t, 200, 0.5, 7).Generate(sourcePostcodes)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := newGenerator(t, 200, 0.5, 8).Generate(sourcePostcodes)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerate_ValidShare(t *testing.T) {
	tests := []struct {
		name  string
		count int
		share float64
		want  int
	}{
		{"half", 400, 0.5, 200},
		{"quarter", 400, 0.25, 100},
		{"rounded", 10, 0.33, 3},
		{"none", 50, 0, 0},
		{"all", 50, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := newGenerator(t, tt.count, tt.share, 42).Generate(sourcePostcodes)
			require.NoError(t, err)

			summary := Summarize(samples)
			assert.Equal(t, tt.count, summary.Total)
			assert.Equal(t, tt.want, summary.ValidSubstrings)
			assert.LessOrEqual(t, summary.ValidPostcodes, summary.ValidSubstrings)
		})
	}
}

func TestGenerate_LabelsFollowMutations(t *testing.T) {
	samples, err := newGenerator(t, 1000, 0.5, 42).Generate(sourcePostcodes)
	require.NoError(t, err)

	longRun := regexp.MustCompile(`\d{5,}`)
	for i, s := range samples {
		assert.Equal(t, i, s.ID)
		assert.Contains(t, []string{"018906", "018956", "049315", "238801", "409051", "560123", "819663"}, s.Expected)
		assert.Contains(t, s.Address, s.Postcode)

		if s.ValidPostcode {
			assert.True(t, s.ValidSubstring, "row %d %q", i, s.Postcode)
		}

		unrecoverable := hasMutation(s, MutationShorten) || hasMutation(s, MutationLengthen) || hasMutation(s, MutationCut)
		if unrecoverable {
			assert.False(t, s.ValidSubstring, "row %d %q", i, s.Postcode)
			assert.False(t, s.ValidPostcode, "row %d %q", i, s.Postcode)
		} else {
			assert.True(t, s.ValidSubstring, "row %d %q", i, s.Postcode)
		}

		if hasMutation(s, MutationPreceding) || hasMutation(s, MutationTrailing) || hasMutation(s, MutationNonZeroDecimal) {
			assert.False(t, s.ValidPostcode, "row %d %q", i, s.Postcode)
		}
		if !unrecoverable && !hasMutation(s, MutationPreceding) && !hasMutation(s, MutationTrailing) &&
			!hasMutation(s, MutationNonZeroDecimal) {
			assert.True(t, s.ValidPostcode, "row %d %q", i, s.Postcode)
			value, err := strconv.ParseFloat(s.Postcode, 64)
			require.NoError(t, err)
			expected, _ := strconv.Atoi(s.Expected)
			assert.Equal(t, float64(expected), value)
		}

		if hasMutation(s, MutationCut) {
			assert.False(t, longRun.MatchString(s.Postcode), "cut left a long run in %q", s.Postcode)
		}
		if hasMutation(s, MutationLengthen) && !hasMutation(s, MutationZeroPad) {
			digits := strings.TrimLeft(s.Postcode, "S(#P.ostal G")
			assert.NotEqual(t, byte('0'), digits[0], "lengthened %q", s.Postcode)
		}
	}
}

func TestGenerate_CoversEveryMutation(t *testing.T) {
	samples, err := newGenerator(t, 1000, 0.5, 42).Generate(sourcePostcodes)
	require.NoError(t, err)

	seen := make(map[Mutation]bool)
	for _, s := range samples {
		for _, m := range s.Mutations {
			seen[m] = true
		}
	}
	for _, m := range []Mutation{
		MutationShortForm, MutationShorten, MutationLengthen, MutationZeroDecimal, MutationZeroPad,
		MutationTrailing, MutationPreceding, MutationNonZeroDecimal, MutationCut,
	} {
		assert.True(t, seen[m], "mutation %s never applied", m)
	}
}

func TestGenerate_NoSourcePostcodes(t *testing.T) {
	g := newGenerator(t, 10, 0.5, 42)

	for _, postcodes := range [][]string{nil, {"12345", "999999", "abc"}} {
		_, err := g.Generate(postcodes)
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidConfig, appErr.Code)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero count", func(c *Config) { c.Count = 0 }, false},
		{"negative share", func(c *Config) { c.ValidShare = -0.1 }, false},
		{"share above one", func(c *Config) { c.ValidShare = 1.5 }, false},
		{"inverted range", func(c *Config) { c.Range = validation.Range{Min: 500000, Max: 100000} }, false},
		{"range above six digits", func(c *Config) { c.Range.Max = 1000000 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := New(&cfg, logger.Discard())
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperrors.GetAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeInvalidConfig, appErr.Code)
		})
	}
}

func TestTable(t *testing.T) {
	samples, err := newGenerator(t, 20, 0.5, 42).Generate(sourcePostcodes)
	require.NoError(t, err)

	table := Table(samples)
	assert.Equal(t, Columns(), table.Columns)
	require.Equal(t, 20, table.Len())

	for i, row := range table.Rows {
		s := samples[i]
		assert.Equal(t, s.ID, row[ColSynthID])
		assert.Equal(t, s.Postcode, row[ColPostcode])
		assert.Equal(t, s.Address, row[ColAddress])
		assert.Equal(t, s.Expected, row[ColExpected])
		assert.Equal(t, s.ValidPostcode, row[ColValidPostcode])
		assert.Equal(t, s.ValidSubstring, row[ColValidSubstr])

		joined, _ := row[ColMutations].(string)
		if len(s.Mutations) == 0 {
			assert.Empty(t, joined)
			continue
		}
		assert.Len(t, strings.Split(joined, mutationSeparator), len(s.Mutations))
	}
}

func TestRandomPostcodes(t *testing.T) {
	r := validation.Range{Min: validation.DefaultRangeMin, Max: validation.DefaultRangeMax}

	codes := RandomPostcodes(500, r, 3)
	require.Len(t, codes, 500)
	for _, c := range codes {
		require.Len(t, c, 6)
		v, err := strconv.Atoi(c)
		require.NoError(t, err)
		assert.True(t, r.Contains(float64(v)), c)
	}
	assert.Equal(t, codes, RandomPostcodes(500, r, 3))

	samples, err := newGenerator(t, 50, 0.5, 42).Generate(codes)
	require.NoError(t, err)
	assert.Len(t, samples, 50)
}
