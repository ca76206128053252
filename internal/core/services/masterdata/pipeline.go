package masterdata

// Pipeline runs the address cleaning steps in order
type Pipeline struct {
	steps []namedStep
}

type namedStep struct {
	name string
	fn   ProcessingStep
}

// NewPipeline builds the cleaning pipeline. A nil config means
// DefaultCleanerConfig.
func NewPipeline(config *CleanerConfig) (*Pipeline, error) {
	if config == nil {
		c := DefaultCleanerConfig()
		config = &c
	}

	nodes, err := NewProcessingNodes(config)
	if err != nil {
		return nil, err
	}

	// suffix stripping runs before upper-casing because the pattern is
	// written in mixed case
	return &Pipeline{steps: []namedStep{
		{"normalize_unicode", nodes.NormalizeUnicode},
		{"strip_suffix", nodes.StripSuffix},
		{"remove_commas", nodes.RemoveCommas},
		{"remove_multiple_whitespace", nodes.RemoveMultipleWhitespace},
		{"make_uppercase", nodes.MakeUppercase},
	}}, nil
}

// CleanText processes a single text string
func (p *Pipeline) CleanText(text string) string {
	for _, step := range p.steps {
		text = step.fn(text)
	}
	return text
}

// CleanBatch processes a batch of texts
func (p *Pipeline) CleanBatch(texts []string) []string {
	results := make([]string, len(texts))
	for i, text := range texts {
		results[i] = p.CleanText(text)
	}
	return results
}

// GetPipelineSteps returns the processing steps
func (p *Pipeline) GetPipelineSteps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}
