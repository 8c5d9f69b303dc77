// Package scoring computes per-review features and the weighted relevance score.
package scoring

import (
	"math"
	"strings"

	"github.com/reviewlens/reviewlens/internal/models"
)

// Scorer holds an immutable copy of a validated Config. It is safe for concurrent use.
type Scorer struct {
	config   Config
	keywords []string
}

// NewScorer creates a scorer. cfg must come from NewConfig, ParseConfig or LoadConfig;
// it is validated again here so a hand-built Config can't slip through.
func NewScorer(cfg Config) (*Scorer, error) {
	validated, err := NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		config:   validated,
		keywords: validated.Keywords(),
	}, nil
}

// Config returns the scorer's configuration
func (s *Scorer) Config() Config {
	cfg := s.config
	cfg.PositiveKeywords = append([]string(nil), s.config.PositiveKeywords...)
	cfg.NegativeKeywords = append([]string(nil), s.config.NegativeKeywords...)
	return cfg
}

// CleanText collapses whitespace runs to a single space and trims both ends.
// A nil input yields the empty string.
func CleanText(s *string) string {
	if s == nil {
		return ""
	}
	return strings.Join(strings.Fields(*s), " ")
}

// IsExtremeRating reports whether rating sits on either end of the 1-5 scale
func IsExtremeRating(rating int) bool {
	return rating == models.MinRating || rating == models.MaxRating
}

// Classify maps a relevance score to a status given a threshold
func Classify(score, threshold float64) models.RelevantStatus {
	if score >= threshold {
		return models.StatusRelevant
	}
	return models.StatusIrrelevant
}

// TextLengthScore is a Gaussian bell peaking at the optimal length.
// Negative lengths are treated as zero.
func (s *Scorer) TextLengthScore(length int) float64 {
	if length < 0 {
		length = 0
	}
	d := float64(length - s.config.OptimalTextLength)
	sigma := s.config.TextLengthSigma
	return clamp(math.Exp(-(d*d)/(2*sigma*sigma)), 0, 1)
}

// KeywordScore counts the distinct keywords found in the cleaned, lower-cased text
// and divides by max_keywords, saturating at 1.
func (s *Scorer) KeywordScore(text *string, keywords []string) float64 {
	cleaned := strings.ToLower(CleanText(text))
	if cleaned == "" {
		return 0
	}

	hits := 0
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		if strings.Contains(cleaned, kw) {
			hits++
		}
	}
	return clamp(float64(hits)/float64(s.config.MaxKeywords), 0, 1)
}

// Classify maps a relevance score to a status using the configured threshold
func (s *Scorer) Classify(score float64) models.RelevantStatus {
	return Classify(score, s.config.RelevanceThreshold)
}

// RelevanceScore computes the weighted score in [0, 100] for one record
func (s *Scorer) RelevanceScore(record models.ReviewRecord) float64 {
	return s.Score(record).RelevanceScore
}

// Score derives every relevance attribute for one record. It never fails:
// absent fields fall back to zero values.
func (s *Scorer) Score(record models.ReviewRecord) models.ScoredReview {
	w := s.config.Weights

	textLength := 0
	if record.TextLength != nil {
		textLength = *record.TextLength
	}
	rating := 0
	if record.Rating != nil {
		rating = *record.Rating
	}

	text := CleanText(record.Title) + " " + CleanText(record.Description)

	scored := models.ScoredReview{
		ReviewRecord:    record.Clone(),
		TextLengthScore: s.TextLengthScore(textLength),
		IsExtremeRating: IsExtremeRating(rating),
		KeywordScore:    s.KeywordScore(&text, s.keywords),
	}

	total := w.TextLength*scored.TextLengthScore +
		w.HasImage*indicator(record.HasImage) +
		w.HasOrders*indicator(record.HasOrders) +
		w.Keywords*scored.KeywordScore
	if scored.IsExtremeRating {
		total += w.ExtremeRating
	}

	scored.RelevanceScore = clamp(100*total, 0, 100)
	scored.RelevantStatus = s.Classify(scored.RelevanceScore)
	return scored
}

// ScoreBatch scores every record, preserving input order
func (s *Scorer) ScoreBatch(records []models.ReviewRecord) []models.ScoredReview {
	out := make([]models.ScoredReview, len(records))
	for i, r := range records {
		out[i] = s.Score(r)
	}
	return out
}

func indicator(b *bool) float64 {
	if b != nil && *b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
