package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration errors. All of them are fatal and surface before any record is scored.
var (
	ErrMissingWeight        = errors.New("scoring weight is missing")
	ErrInvalidWeight        = errors.New("scoring weight must be between 0 and 1")
	ErrWeightsSum           = errors.New("scoring weights must sum to 1.0")
	ErrNoKeywords           = errors.New("keyword lists are empty while the keywords weight is positive")
	ErrInvalidSigma         = errors.New("text_length_sigma must be positive")
	ErrInvalidOptimalLength = errors.New("optimal_text_length must be non-negative")
	ErrInvalidMaxKeywords   = errors.New("max_keywords must be at least 1")
	ErrMissingThreshold     = errors.New("relevance_threshold is required")
	ErrInvalidThreshold     = errors.New("relevance_threshold must be between 0 and 100")
	ErrMissingField         = errors.New("required scoring field is missing")
)

// WeightsSumTolerance absorbs float rounding when checking that weights sum to 1.0
const WeightsSumTolerance = 1e-6

// Weights are the coefficients of the relevance score components
type Weights struct {
	TextLength    float64
	HasImage      float64
	HasOrders     float64
	ExtremeRating float64
	Keywords      float64
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.TextLength + w.HasImage + w.HasOrders + w.ExtremeRating + w.Keywords
}

// Config is the validated scoring bundle. Build it with NewConfig, ParseConfig or LoadConfig.
type Config struct {
	OptimalTextLength  int
	TextLengthSigma    float64
	MaxKeywords        int
	Weights            Weights
	PositiveKeywords   []string
	NegativeKeywords   []string
	RelevanceThreshold float64
}

// fileConfig mirrors the YAML layout. Pointers let us tell a missing key from a zero value.
type fileConfig struct {
	Scoring struct {
		OptimalTextLength  *int     `yaml:"optimal_text_length"`
		TextLengthSigma    *float64 `yaml:"text_length_sigma"`
		MaxKeywords        *int     `yaml:"max_keywords"`
		RelevanceThreshold *float64 `yaml:"relevance_threshold"`
		Weights            struct {
			TextLength    *float64 `yaml:"text_length"`
			HasImage      *float64 `yaml:"has_image"`
			HasOrders     *float64 `yaml:"has_orders"`
			ExtremeRating *float64 `yaml:"extreme_rating"`
			Keywords      *float64 `yaml:"keywords"`
		} `yaml:"weights"`
	} `yaml:"scoring"`
	Keywords struct {
		Positive []string `yaml:"positive"`
		Negative []string `yaml:"negative"`
	} `yaml:"keywords"`
}

// LoadConfig reads and validates a scoring YAML file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scoring config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a scoring YAML document
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse scoring config: %w", err)
	}

	s := fc.Scoring
	if s.OptimalTextLength == nil {
		return Config{}, fmt.Errorf("%w: scoring.optimal_text_length", ErrMissingField)
	}
	if s.TextLengthSigma == nil {
		return Config{}, fmt.Errorf("%w: scoring.text_length_sigma", ErrMissingField)
	}
	if s.MaxKeywords == nil {
		return Config{}, fmt.Errorf("%w: scoring.max_keywords", ErrMissingField)
	}
	if s.RelevanceThreshold == nil {
		return Config{}, ErrMissingThreshold
	}

	weights := map[string]*float64{
		"text_length":    s.Weights.TextLength,
		"has_image":      s.Weights.HasImage,
		"has_orders":     s.Weights.HasOrders,
		"extreme_rating": s.Weights.ExtremeRating,
		"keywords":       s.Weights.Keywords,
	}
	for _, name := range []string{"text_length", "has_image", "has_orders", "extreme_rating", "keywords"} {
		if weights[name] == nil {
			return Config{}, fmt.Errorf("%w: scoring.weights.%s", ErrMissingWeight, name)
		}
	}

	return NewConfig(Config{
		OptimalTextLength: *s.OptimalTextLength,
		TextLengthSigma:   *s.TextLengthSigma,
		MaxKeywords:       *s.MaxKeywords,
		Weights: Weights{
			TextLength:    *s.Weights.TextLength,
			HasImage:      *s.Weights.HasImage,
			HasOrders:     *s.Weights.HasOrders,
			ExtremeRating: *s.Weights.ExtremeRating,
			Keywords:      *s.Weights.Keywords,
		},
		PositiveKeywords:   fc.Keywords.Positive,
		NegativeKeywords:   fc.Keywords.Negative,
		RelevanceThreshold: *s.RelevanceThreshold,
	})
}

// NewConfig validates cfg and returns a normalized copy: keywords are trimmed,
// lower-cased, de-duplicated and copied so the caller's slices can change freely.
func NewConfig(cfg Config) (Config, error) {
	cfg.PositiveKeywords = normalizeKeywords(cfg.PositiveKeywords)
	cfg.NegativeKeywords = normalizeKeywords(cfg.NegativeKeywords)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the structural invariants of the bundle
func (c Config) Validate() error {
	if c.OptimalTextLength < 0 {
		return ErrInvalidOptimalLength
	}
	if c.TextLengthSigma <= 0 || math.IsNaN(c.TextLengthSigma) || math.IsInf(c.TextLengthSigma, 0) {
		return ErrInvalidSigma
	}
	if c.MaxKeywords < 1 {
		return ErrInvalidMaxKeywords
	}
	if math.IsNaN(c.RelevanceThreshold) || c.RelevanceThreshold < 0 || c.RelevanceThreshold > 100 {
		return ErrInvalidThreshold
	}

	named := []struct {
		name  string
		value float64
	}{
		{"text_length", c.Weights.TextLength},
		{"has_image", c.Weights.HasImage},
		{"has_orders", c.Weights.HasOrders},
		{"extreme_rating", c.Weights.ExtremeRating},
		{"keywords", c.Weights.Keywords},
	}
	for _, w := range named {
		if math.IsNaN(w.value) || w.value < 0 || w.value > 1 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, w.name, w.value)
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > WeightsSumTolerance {
		return fmt.Errorf("%w: got %.6f", ErrWeightsSum, sum)
	}

	if c.Weights.Keywords > 0 && len(c.PositiveKeywords)+len(c.NegativeKeywords) == 0 {
		return ErrNoKeywords
	}
	return nil
}

// Keywords returns positive and negative keywords as one list
func (c Config) Keywords() []string {
	all := make([]string, 0, len(c.PositiveKeywords)+len(c.NegativeKeywords))
	all = append(all, c.PositiveKeywords...)
	all = append(all, c.NegativeKeywords...)
	return all
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
