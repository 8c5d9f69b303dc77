package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/rs/zerolog"
)

func TestSetup_WritesToExtraWriters(t *testing.T) {
	var buf bytes.Buffer
	Setup(&config.LoggingConfig{Level: "debug", Format: "json"}, "test", &buf)

	logger := NewLogger("pipeline")
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Extra writer did not receive JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "reviewlens" || entry["component"] != "pipeline" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	Setup(&config.LoggingConfig{Level: "loud", Format: "json"}, "test")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("GlobalLevel = %v, want info", zerolog.GlobalLevel())
	}
}

func TestLogPipelineRun(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	LogPipelineRun(logger, &models.RunStats{
		RunID:        "run-1",
		Status:       models.RunStatusFailed,
		Error:        "boom",
		StartedAt:    start,
		FinishedAt:   start.Add(2 * time.Second),
		TotalRecords: 3,
	})

	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"run_id":"run-1"`, `"error":"boom"`, `"total_records":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output %q missing %s", out, want)
		}
	}
}

func TestLogRejections_ListsEveryReason(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	LogRejections(zerolog.New(&buf), "run-1", map[models.RejectionReason]int{models.ReasonInvalidRating: 2})

	out := buf.String()
	for _, reason := range models.RejectionReasons {
		if !strings.Contains(out, string(reason)) {
			t.Errorf("Log output %q missing %s", out, reason)
		}
	}
	if !strings.Contains(out, `"invalid_rating":2`) {
		t.Errorf("Log output %q missing invalid_rating count", out)
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := SanitizeForLog("abcdef", 3); got != "abc...[truncated]" {
		t.Errorf("SanitizeForLog = %q", got)
	}
	if got := SanitizeForLog("abc", 3); got != "abc" {
		t.Errorf("SanitizeForLog = %q", got)
	}
}
