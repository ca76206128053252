package synthesis

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

var (
	streets = []string{
		"Bayfront Avenue", "Orchard Turn", "Raffles Place", "Ang Mo Kio Avenue 3",
		"Jurong West Street 91", "Tampines Central 1", "Sengkang East Way", "Changi Airport Boulevard",
	}
	localities = []string{"Singapore", "SINGAPORE", "Republic of Singapore", "SG", "S'pore"}

	// none of these contain digits, and none makes the cell numeric
	precedingChars = []string{"S", "SG", "S(", "#", "P.", "Postal "}
	trailingChars  = []string{"S", ")", "SG", "#", "-"}
	cutSeparators  = []string{" ", "-", "/", "A"}
	textSeparators = []string{" ", ", "}
)

// draft is a postcode under construction
type draft struct {
	digits    string
	decimals  string
	prefix    string
	suffix    string
	cutAt     int
	cutSep    string
	mutations []Mutation
}

func (d *draft) apply(m Mutation) {
	d.mutations = append(d.mutations, m)
}

func (d draft) render() string {
	digits := d.digits
	if d.cutSep != "" {
		digits = digits[:d.cutAt] + d.cutSep + digits[d.cutAt:]
	}
	if d.decimals != "" {
		digits += "." + d.decimals
	}
	return d.prefix + digits + d.suffix
}

// labels derives the ground truth from how the draft was built. A cell
// yields the code when it is still a plain integer with the source value;
// text yields it when the integer digits form a run of five or six.
func (d draft) labels(expected int) (validPostcode, validSubstring bool) {
	value, err := strconv.Atoi(d.digits)
	same := err == nil && value == expected && d.cutSep == ""
	zeroDecimals := strings.Trim(d.decimals, "0") == ""

	validPostcode = same && d.prefix == "" && d.suffix == "" && zeroDecimals
	validSubstring = same && (len(d.digits) == 5 || len(d.digits) == 6)
	return validPostcode, validSubstring
}

// Generator builds labeled synthetic postcode data from real postcodes
type Generator struct {
	config Config
	logger *slog.Logger
}

// New creates a generator. A nil config means DefaultConfig.
func New(cfg *Config, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Generator{config: c, logger: logger}, nil
}

// Config returns the generator configuration
func (g *Generator) Config() Config {
	return g.config
}

// Generate draws Count source codes with replacement and mutates each one.
// The first round(Count*ValidShare) draws only get mutations that keep the
// code recoverable from the address text; the rest are shortened,
// lengthened or cut. Rows are shuffled before IDs are assigned. The same
// seed and postcodes always give the same samples.
func (g *Generator) Generate(postcodes []string) ([]Sample, error) {
	sources := g.sources(postcodes)
	if len(sources) == 0 {
		return nil, apperrors.InvalidConfig(fmt.Sprintf("no six digit source postcodes within [%d, %d]",
			g.config.Range.Min, g.config.Range.Max))
	}

	rng := rand.New(rand.NewSource(g.config.Seed))
	nValid := int(math.Round(float64(g.config.Count) * g.config.ValidShare))

	samples := make([]Sample, g.config.Count)
	for i := range samples {
		code := sources[rng.Intn(len(sources))]
		var d draft
		if i < nValid {
			d = keepRecoverable(rng, code)
		} else {
			d = makeUnrecoverable(rng, code)
		}

		field := d.render()
		expected, _ := strconv.Atoi(code)
		validPostcode, validSubstring := d.labels(expected)
		samples[i] = Sample{
			Postcode:       field,
			Address:        address(rng, field),
			Expected:       code,
			ValidPostcode:  validPostcode,
			ValidSubstring: validSubstring,
			Mutations:      d.mutations,
		}
	}

	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	for i := range samples {
		samples[i].ID = i
	}

	summary := Summarize(samples)
	g.logger.Info("synthetic postcode data generated",
		slog.Int("rows", summary.Total),
		slog.Int("source_postcodes", len(sources)),
		slog.Int("valid_postcodes", summary.ValidPostcodes),
		slog.Int("valid_substrings", summary.ValidSubstrings),
		slog.Int64("seed", g.config.Seed))

	return samples, nil
}

// sources keeps the distinct six digit codes inside the range, sorted
func (g *Generator) sources(postcodes []string) []string {
	seen := make(map[string]bool, len(postcodes))
	out := make([]string, 0, len(postcodes))
	for _, p := range postcodes {
		p = strings.TrimSpace(p)
		if len(p) != 6 || seen[p] {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || !g.config.Range.Contains(float64(v)) {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if skipped := len(postcodes) - len(out); skipped > 0 {
		g.logger.Debug("source postcodes skipped", slog.Int("count", skipped))
	}
	sort.Strings(out)
	return out
}

// keepRecoverable applies only mutations after which the code can still be
// extracted from text. Padding is limited to a run of six digits.
func keepRecoverable(rng *rand.Rand, code string) draft {
	d := draft{digits: code}
	if code[0] == '0' && rng.Intn(2) == 0 {
		d.digits = code[1:]
		d.apply(MutationShortForm)
		if rng.Intn(2) == 0 {
			d.digits = "0" + d.digits
			d.apply(MutationZeroPad)
		}
	}
	addDecimals(rng, &d)
	addCharacters(rng, &d)
	return d
}

// makeUnrecoverable shortens, lengthens or cuts the code, then applies the
// other mutations at random
func makeUnrecoverable(rng *rand.Rand, code string) draft {
	d := draft{digits: code}
	cut := false
	switch rng.Intn(3) {
	case 0:
		d.digits = code[:1+rng.Intn(4)]
		d.apply(MutationShorten)
	case 1:
		// a leading non-zero digit keeps the value above 999999
		d.digits = strconv.Itoa(1+rng.Intn(9)) + code + randomDigits(rng, rng.Intn(3))
		d.apply(MutationLengthen)
	default:
		cut = true
		if code[0] == '0' && rng.Intn(2) == 0 {
			d.digits = code[1:]
			d.apply(MutationShortForm)
		}
	}

	if rng.Intn(2) == 0 {
		n := 1 + rng.Intn(4)
		if cut {
			// both pieces of a cut stay at four digits or fewer
			n = min(n, 8-len(d.digits))
		}
		if n > 0 {
			d.digits = strings.Repeat("0", n) + d.digits
			d.apply(MutationZeroPad)
		}
	}

	addDecimals(rng, &d)
	addCharacters(rng, &d)

	if cut {
		lo, hi := max(1, len(d.digits)-4), min(4, len(d.digits)-1)
		d.cutAt = lo + rng.Intn(hi-lo+1)
		d.cutSep = cutSeparators[rng.Intn(len(cutSeparators))]
		d.apply(MutationCut)
	}
	return d
}

// addDecimals appends at most three decimal places, so the fraction never
// forms a run long enough to be extracted
func addDecimals(rng *rand.Rand, d *draft) {
	switch rng.Intn(3) {
	case 0:
		d.decimals = strings.Repeat("0", 1+rng.Intn(3))
		d.apply(MutationZeroDecimal)
	case 1:
		d.decimals = randomDigits(rng, rng.Intn(3)) + strconv.Itoa(1+rng.Intn(9))
		d.apply(MutationNonZeroDecimal)
	}
}

func addCharacters(rng *rand.Rand, d *draft) {
	if rng.Intn(2) == 0 {
		d.suffix = trailingChars[rng.Intn(len(trailingChars))]
		d.apply(MutationTrailing)
	}
	if rng.Intn(2) == 0 {
		d.prefix = precedingChars[rng.Intn(len(precedingChars))]
		d.apply(MutationPreceding)
	}
}

func randomDigits(rng *rand.Rand, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + rng.Intn(10)))
	}
	return b.String()
}

// address embeds field in street text. House and block numbers have at
// most three digits, so field holds the only five or six digit run.
func address(rng *rand.Rand, field string) string {
	street := streets[rng.Intn(len(streets))]
	switch rng.Intn(4) {
	case 0:
		street = fmt.Sprintf("Blk %d %s", 1+rng.Intn(999), street)
	case 1:
		street = fmt.Sprintf("%d %s", 1+rng.Intn(99), street)
	case 2:
		street = fmt.Sprintf("#%02d-%02d, %s", 1+rng.Intn(40), 1+rng.Intn(99), street)
	}
	locality := localities[rng.Intn(len(localities))]
	before := textSeparators[rng.Intn(len(textSeparators))]
	after := textSeparators[rng.Intn(len(textSeparators))]

	switch rng.Intn(3) {
	case 0:
		return street + before + field
	case 1:
		return field + after + locality
	default:
		return street + before + field + after + locality
	}
}

// RandomPostcodes draws n six digit codes uniformly from r. They are
// well formed but need not exist.
func RandomPostcodes(n int, r validation.Range, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%06d", r.Min+rng.Intn(r.Max-r.Min+1))
	}
	return out
}
