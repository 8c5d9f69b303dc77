package docstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// LogWriter is a zerolog.LevelWriter that copies log events into the
// pipeline_logs collection. Events below minLevel are dropped.
type LogWriter struct {
	coll     *mongo.Collection
	minLevel zerolog.Level
	timeout  time.Duration
}

var _ zerolog.LevelWriter = (*LogWriter)(nil)

// LogWriter returns a writer for this store's pipeline_logs collection
func (s *Store) LogWriter(minLevel zerolog.Level) *LogWriter {
	return &LogWriter{
		coll:     s.db.Collection(LogsCollection),
		minLevel: minLevel,
		timeout:  2 * time.Second,
	}
}

// Write stores one JSON log event
func (w *LogWriter) Write(p []byte) (int, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(p, false, &doc); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.coll.InsertOne(ctx, doc); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteLevel filters by level before writing
func (w *LogWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.minLevel {
		return len(p), nil
	}
	return w.Write(p)
}
