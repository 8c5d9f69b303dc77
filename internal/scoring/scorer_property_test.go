package scoring

import (
	"math"
	"testing"

	"github.com/reviewlens/reviewlens/internal/models"
	"pgregory.net/rapid"
)

func testConfig() Config {
	return Config{
		OptimalTextLength: 300,
		TextLengthSigma:   200,
		MaxKeywords:       10,
		Weights: Weights{
			TextLength:    0.25,
			HasImage:      0.20,
			HasOrders:     0.15,
			ExtremeRating: 0.15,
			Keywords:      0.25,
		},
		PositiveKeywords:   []string{"excellent", "great", "quality"},
		NegativeKeywords:   []string{"poor", "bad", "defect"},
		RelevanceThreshold: 50,
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(testConfig())
	if err != nil {
		t.Fatalf("NewScorer returned error: %v", err)
	}
	return s
}

// generateRecord draws a record whose fields are within their documented ranges
func generateRecord(t *rapid.T) models.ReviewRecord {
	words := []string{"excellent", "great", "quality", "poor", "bad", "defect", "ok", "fine", "product", "  ", "\t"}
	desc := ""
	n := rapid.IntRange(0, 30).Draw(t, "descWords")
	for i := 0; i < n; i++ {
		desc += rapid.SampledFrom(words).Draw(t, "word") + " "
	}
	title := rapid.SampledFrom([]string{"", "Great!", "Bad product", "Excellent quality"}).Draw(t, "title")

	return models.ReviewRecord{
		ReviewID:    models.Ptr(rapid.Int64Range(1, 1_000_000).Draw(t, "reviewID")),
		Title:       models.Ptr(title),
		Description: models.Ptr(desc),
		Rating:      models.Ptr(rapid.IntRange(1, 5).Draw(t, "rating")),
		TextLength:  models.Ptr(rapid.IntRange(0, 5000).Draw(t, "textLength")),
		HasImage:    models.Ptr(rapid.Bool().Draw(t, "hasImage")),
		HasOrders:   models.Ptr(rapid.Bool().Draw(t, "hasOrders")),
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   *string
		want string
	}{
		{models.Ptr("  Hello   World  "), "Hello World"},
		{models.Ptr(""), ""},
		{models.Ptr("\tline\none\r\n"), "line one"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestProperty_ExtremeRating tests the extreme rating flag
// *For any* rating r, IsExtremeRating(r) SHALL be true iff r is 1 or 5.
func TestProperty_ExtremeRating(t *testing.T) {
	for _, r := range []int{1, 5} {
		if !IsExtremeRating(r) {
			t.Errorf("IsExtremeRating(%d) = false, want true", r)
		}
	}
	for _, r := range []int{2, 3, 4} {
		if IsExtremeRating(r) {
			t.Errorf("IsExtremeRating(%d) = true, want false", r)
		}
	}

	rapid.Check(t, func(rt *rapid.T) {
		r := rapid.IntRange(-100, 100).Draw(rt, "rating")
		if IsExtremeRating(r) != (r == 1 || r == 5) {
			t.Fatalf("PROPERTY VIOLATION: IsExtremeRating(%d) = %v", r, IsExtremeRating(r))
		}
	})
}

// TestProperty_TextLengthScore_PeakAtOptimum tests the bell curve peak
// *For any* configuration, the text length score at the optimal length SHALL be exactly 1.
func TestProperty_TextLengthScore_PeakAtOptimum(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := testConfig()
		cfg.OptimalTextLength = rapid.IntRange(0, 2000).Draw(rt, "optimal")
		cfg.TextLengthSigma = rapid.Float64Range(1, 1000).Draw(rt, "sigma")

		s, err := NewScorer(cfg)
		if err != nil {
			t.Fatalf("NewScorer returned error: %v", err)
		}

		if got := s.TextLengthScore(cfg.OptimalTextLength); got != 1.0 {
			t.Fatalf("PROPERTY VIOLATION: TextLengthScore(optimal) = %v, want 1.0", got)
		}
	})
}

// TestProperty_TextLengthScore_Decreasing tests decay away from the optimum
// *For any* two lengths, the one farther from the optimum SHALL score strictly lower.
func TestProperty_TextLengthScore_Decreasing(t *testing.T) {
	s := newTestScorer(t)

	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.IntRange(0, 2000).Draw(rt, "a")
		b := rapid.IntRange(0, 2000).Draw(rt, "b")

		da := math.Abs(float64(a - 300))
		db := math.Abs(float64(b - 300))
		sa, sb := s.TextLengthScore(a), s.TextLengthScore(b)

		if sa < 0 || sa > 1 {
			t.Fatalf("PROPERTY VIOLATION: TextLengthScore(%d) = %v out of [0,1]", a, sa)
		}
		switch {
		case da < db && !(sa > sb):
			t.Fatalf("PROPERTY VIOLATION: |%d-300| < |%d-300| but %v <= %v", a, b, sa, sb)
		case da == db && sa != sb:
			t.Fatalf("PROPERTY VIOLATION: equal distances scored differently: %v vs %v", sa, sb)
		}
	})
}

func TestTextLengthScore_NegativeLength(t *testing.T) {
	s := newTestScorer(t)
	if s.TextLengthScore(-50) != s.TextLengthScore(0) {
		t.Error("Negative length should score like length 0")
	}
}

func TestKeywordScore(t *testing.T) {
	s := newTestScorer(t)
	kw := []string{"excellent", "great", "quality", "poor", "bad"}

	if got := s.KeywordScore(models.Ptr("This is an excellent product with great quality"), kw); got <= 0 {
		t.Errorf("KeywordScore with matches = %v, want > 0", got)
	}
	if got := s.KeywordScore(models.Ptr("This is a product"), kw); got != 0 {
		t.Errorf("KeywordScore without matches = %v, want 0", got)
	}
	if got := s.KeywordScore(models.Ptr(""), kw); got != 0 {
		t.Errorf("KeywordScore(\"\") = %v, want 0", got)
	}
	if got := s.KeywordScore(nil, kw); got != 0 {
		t.Errorf("KeywordScore(nil) = %v, want 0", got)
	}

	// Case-insensitive and three hits out of max 10
	if got := s.KeywordScore(models.Ptr("EXCELLENT Great QUALITY"), kw); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("KeywordScore = %v, want 0.3", got)
	}
}

func TestKeywordScore_Saturates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxKeywords = 2
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatalf("NewScorer returned error: %v", err)
	}

	got := s.KeywordScore(models.Ptr("excellent great quality poor bad defect"), cfg.Keywords())
	if got != 1 {
		t.Errorf("KeywordScore = %v, want saturated 1", got)
	}
}

// TestProperty_KeywordScore_Range tests keyword score bounds
// *For any* text, the keyword score SHALL be within [0, 1].
func TestProperty_KeywordScore_Range(t *testing.T) {
	s := newTestScorer(t)

	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		got := s.KeywordScore(&text, s.Config().Keywords())
		if got < 0 || got > 1 {
			t.Fatalf("PROPERTY VIOLATION: KeywordScore(%q) = %v out of [0,1]", text, got)
		}
	})
}

// TestProperty_RelevanceScore_Range tests the relevance score bounds
// *For any* valid record and weights summing to 1.0, the relevance score SHALL be within [0, 100].
func TestProperty_RelevanceScore_Range(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		// Draw random weights and normalize them to sum to 1
		raw := make([]float64, 5)
		total := 0.0
		for i := range raw {
			raw[i] = rapid.Float64Range(0, 1).Draw(rt, "weight")
			total += raw[i]
		}
		if total == 0 {
			raw[0], total = 1, 1
		}

		cfg := testConfig()
		cfg.Weights = Weights{
			TextLength:    raw[0] / total,
			HasImage:      raw[1] / total,
			HasOrders:     raw[2] / total,
			ExtremeRating: raw[3] / total,
			Keywords:      raw[4] / total,
		}

		s, err := NewScorer(cfg)
		if err != nil {
			t.Fatalf("NewScorer returned error: %v", err)
		}

		record := generateRecord(rt)
		score := s.RelevanceScore(record)
		if score < 0 || score > 100 {
			t.Fatalf("PROPERTY VIOLATION: RelevanceScore = %v out of [0,100]", score)
		}
	})
}

// TestProperty_Classify_Threshold tests classification against the threshold
// *For any* score and threshold, the status SHALL be RELEVANT iff score >= threshold.
func TestProperty_Classify_Threshold(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		score := rapid.Float64Range(0, 100).Draw(rt, "score")
		threshold := rapid.Float64Range(0, 100).Draw(rt, "threshold")

		got := Classify(score, threshold)
		want := models.StatusIrrelevant
		if score >= threshold {
			want = models.StatusRelevant
		}
		if got != want {
			t.Fatalf("PROPERTY VIOLATION: Classify(%v, %v) = %s, want %s", score, threshold, got, want)
		}
	})
}

func TestScore_KnownRecord(t *testing.T) {
	s := newTestScorer(t)

	record := models.ReviewRecord{
		ReviewID:    models.Ptr(int64(1)),
		Title:       models.Ptr("Great!"),
		Description: models.Ptr("This is an excellent product with great quality."),
		Rating:      models.Ptr(5),
		TextLength:  models.Ptr(300),
		HasImage:    models.Ptr(true),
		HasOrders:   models.Ptr(true),
	}

	scored := s.Score(record)

	if !scored.IsExtremeRating {
		t.Error("Rating 5 should be extreme")
	}
	if scored.TextLengthScore != 1 {
		t.Errorf("TextLengthScore = %v, want 1", scored.TextLengthScore)
	}
	// excellent, great, quality -> 3/10
	if math.Abs(scored.KeywordScore-0.3) > 1e-9 {
		t.Errorf("KeywordScore = %v, want 0.3", scored.KeywordScore)
	}
	// 100 * (0.25 + 0.20 + 0.15 + 0.15 + 0.25*0.3) = 82.5
	if math.Abs(scored.RelevanceScore-82.5) > 1e-9 {
		t.Errorf("RelevanceScore = %v, want 82.5", scored.RelevanceScore)
	}
	if scored.RelevantStatus != models.StatusRelevant {
		t.Errorf("RelevantStatus = %s, want RELEVANT", scored.RelevantStatus)
	}
}

func TestScore_MalformedFieldsDegrade(t *testing.T) {
	s := newTestScorer(t)

	scored := s.Score(models.ReviewRecord{TextLength: models.Ptr(-10)})

	if scored.KeywordScore != 0 {
		t.Errorf("KeywordScore = %v, want 0", scored.KeywordScore)
	}
	if scored.IsExtremeRating {
		t.Error("Missing rating should not be extreme")
	}
	if scored.RelevanceScore < 0 || scored.RelevanceScore > 100 {
		t.Errorf("RelevanceScore = %v out of range", scored.RelevanceScore)
	}
	if scored.RelevantStatus != models.StatusIrrelevant {
		t.Errorf("RelevantStatus = %s, want IRRELEVANT", scored.RelevantStatus)
	}
}

func TestScoreBatch_PreservesOrder(t *testing.T) {
	s := newTestScorer(t)

	batch := []models.ReviewRecord{
		{ReviewID: models.Ptr(int64(3)), Rating: models.Ptr(1)},
		{ReviewID: models.Ptr(int64(1)), Rating: models.Ptr(3)},
		{ReviewID: models.Ptr(int64(2)), Rating: models.Ptr(5)},
	}

	scored := s.ScoreBatch(batch)
	if len(scored) != len(batch) {
		t.Fatalf("ScoreBatch returned %d reviews, want %d", len(scored), len(batch))
	}
	for i := range batch {
		if *scored[i].ReviewID != *batch[i].ReviewID {
			t.Errorf("scored[%d].ReviewID = %d, want %d", i, *scored[i].ReviewID, *batch[i].ReviewID)
		}
	}

	// Scoring must not alias the input record
	*scored[0].Rating = 4
	if *batch[0].Rating != 1 {
		t.Error("ScoredReview shares pointers with the input record")
	}
}

func TestNewScorer_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Weights.Keywords = 0.5
	if _, err := NewScorer(cfg); err == nil {
		t.Error("Expected error for weights not summing to 1")
	}
}
