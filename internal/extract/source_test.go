package extract

import (
	"errors"
	"testing"

	"github.com/reviewlens/reviewlens/internal/anonymize"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/rs/zerolog"
)

func sourceConfig(source string) *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			Source:            source,
			CSVDir:            "testdata",
			AnonymizationSalt: "pepper",
		},
	}
}

func TestOpen_CSV(t *testing.T) {
	src, closeFn, err := Open(sourceConfig(config.SourceCSV), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer closeFn()

	if _, ok := src.(*CSVSource); !ok {
		t.Errorf("Open returned %T, want *CSVSource", src)
	}
}

func TestOpen_Errors(t *testing.T) {
	noSalt := sourceConfig(config.SourceCSV)
	noSalt.Pipeline.AnonymizationSalt = ""
	if _, _, err := Open(noSalt, zerolog.Nop()); !errors.Is(err, anonymize.ErrEmptySalt) {
		t.Errorf("Expected ErrEmptySalt, got %v", err)
	}

	if _, _, err := Open(sourceConfig(config.SourcePostgres), zerolog.Nop()); err == nil {
		t.Error("Expected error for postgres source without DATABASE_URL")
	}

	if _, _, err := Open(sourceConfig("s3"), zerolog.Nop()); err == nil {
		t.Error("Expected error for unknown source")
	}
}
