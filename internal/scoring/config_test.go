package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
keywords:
  positive: [excellent, great, Quality, "  great "]
  negative: [poor, bad, defect]
`

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}

	if cfg.OptimalTextLength != 300 {
		t.Errorf("OptimalTextLength = %d, want 300", cfg.OptimalTextLength)
	}
	if cfg.MaxKeywords != 10 {
		t.Errorf("MaxKeywords = %d, want 10", cfg.MaxKeywords)
	}
	if cfg.RelevanceThreshold != 50 {
		t.Errorf("RelevanceThreshold = %v, want 50", cfg.RelevanceThreshold)
	}

	// Keywords are lower-cased, trimmed and de-duplicated
	want := []string{"excellent", "great", "quality"}
	if len(cfg.PositiveKeywords) != len(want) {
		t.Fatalf("PositiveKeywords = %v, want %v", cfg.PositiveKeywords, want)
	}
	for i := range want {
		if cfg.PositiveKeywords[i] != want[i] {
			t.Errorf("PositiveKeywords[%d] = %q, want %q", i, cfg.PositiveKeywords[i], want[i])
		}
	}
	if len(cfg.Keywords()) != 6 {
		t.Errorf("Keywords() returned %d entries, want 6", len(cfg.Keywords()))
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "missing weight",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    keywords: 0.40
keywords:
  positive: [great]
`,
			want: ErrMissingWeight,
		},
		{
			name: "weights do not sum to one",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.25
    has_orders: 0.25
    extreme_rating: 0.25
    keywords: 0.25
keywords:
  positive: [great]
`,
			want: ErrWeightsSum,
		},
		{
			name: "empty keywords with positive keyword weight",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
`,
			want: ErrNoKeywords,
		},
		{
			name: "missing threshold",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
keywords:
  positive: [great]
`,
			want: ErrMissingThreshold,
		},
		{
			name: "missing max keywords",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
keywords:
  positive: [great]
`,
			want: ErrMissingField,
		},
		{
			name: "zero sigma",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 0
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.25
    has_image: 0.20
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
keywords:
  positive: [great]
`,
			want: ErrInvalidSigma,
		},
		{
			name: "negative weight",
			yaml: `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: -0.25
    has_image: 0.70
    has_orders: 0.15
    extreme_rating: 0.15
    keywords: 0.25
keywords:
  positive: [great]
`,
			want: ErrInvalidWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseConfig error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseConfig_NonNumericWeight(t *testing.T) {
	doc := `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: heavy
`
	if _, err := ParseConfig([]byte(doc)); err == nil {
		t.Error("Expected error for non-numeric weight")
	}
}

func TestParseConfig_ZeroKeywordWeightAllowsEmptyLists(t *testing.T) {
	doc := `
scoring:
  optimal_text_length: 300
  text_length_sigma: 200
  max_keywords: 10
  relevance_threshold: 50
  weights:
    text_length: 0.40
    has_image: 0.20
    has_orders: 0.20
    extreme_rating: 0.20
    keywords: 0
`
	if _, err := ParseConfig([]byte(doc)); err != nil {
		t.Errorf("ParseConfig returned error: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err != nil {
		t.Errorf("LoadConfig returned error: %v", err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join("..", "..", "configs", "scoring.yaml")); err != nil {
		t.Errorf("configs/scoring.yaml is invalid: %v", err)
	}
}

func TestNewConfig_DoesNotAliasCallerSlices(t *testing.T) {
	positive := []string{"great"}
	cfg, err := NewConfig(Config{
		OptimalTextLength:  300,
		TextLengthSigma:    200,
		MaxKeywords:        10,
		Weights:            Weights{TextLength: 0.25, HasImage: 0.2, HasOrders: 0.15, ExtremeRating: 0.15, Keywords: 0.25},
		PositiveKeywords:   positive,
		RelevanceThreshold: 50,
	})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}

	positive[0] = "changed"
	if cfg.PositiveKeywords[0] != "great" {
		t.Errorf("Config shares keyword slice with caller: %v", cfg.PositiveKeywords)
	}
}
