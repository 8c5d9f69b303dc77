package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration.
// Extra writers (for example the pipeline_logs collection) receive every event
// in addition to stdout.
func Setup(cfg *config.LoggingConfig, env string, extra ...io.Writer) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure time format
	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Configure output based on format and environment
	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}
	if len(extra) > 0 {
		output = zerolog.MultiLevelWriter(append([]io.Writer{output}, extra...)...)
	}

	// Set global logger
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "reviewlens").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Calculate latency
		latency := time.Since(start)

		// Get request ID
		requestID := c.GetString("request_id")

		// Build log event
		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		// Log request details
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogPipelineRun logs the outcome of one pipeline run
func LogPipelineRun(logger zerolog.Logger, stats *models.RunStats) {
	event := logger.Info()
	if stats.Status == models.RunStatusFailed {
		event = logger.Error().Str("error", stats.Error)
	}

	event.
		Str("run_id", stats.RunID).
		Str("pipeline_version", stats.PipelineVersion).
		Str("status", string(stats.Status)).
		Str("product_filter", stats.ProductFilter).
		Int("total_records", stats.TotalRecords).
		Int("clean_records", stats.CleanRecords).
		Int("rejected_records", stats.RejectedRecords).
		Int("relevant_records", stats.RelevantRecords).
		Int("warehouse_inserts", stats.WarehouseInserts).
		Int("rejection_inserts", stats.RejectionInserts).
		Dur("duration", stats.Duration()).
		Msg("Pipeline run")
}

// LogRejections logs per-reason rejection counts for a run
func LogRejections(logger zerolog.Logger, runID string, counts map[models.RejectionReason]int) {
	dict := zerolog.Dict()
	for _, reason := range models.RejectionReasons {
		dict.Int(string(reason), counts[reason])
	}
	logger.Info().
		Str("run_id", runID).
		Dict("rejections", dict).
		Msg("Validation rejections")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(eventType, userID, clientIP, details string) {
	log.Warn().
		Str("event_type", eventType).
		Str("user_id", userID).
		Str("client_ip", clientIP).
		Str("details", details).
		Msg("Security event")
}

// LogError logs an error with context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}

// SanitizeForLog truncates free text such as review descriptions before logging
func SanitizeForLog(data string, maxLen int) string {
	if len(data) > maxLen {
		return data[:maxLen] + "...[truncated]"
	}
	return data
}
