// Package docstore keeps the rejection log, run metadata and pipeline logs in MongoDB.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reviewlens/reviewlens/internal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names
const (
	RejectedCollection = "rejected_reviews"
	MetadataCollection = "pipeline_metadata"
	LogsCollection     = "pipeline_logs"
)

var ErrRunNotFound = errors.New("pipeline run not found")

// Store wraps one MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client and verifies the server is reachable
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health pings the server
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the read paths rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(RejectedCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
		{Keys: bson.D{{Key: "rejection_reason", Value: 1}, {Key: "rejected_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create rejection indexes: %w", err)
	}

	_, err = s.db.Collection(MetadataCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pipeline_run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create metadata index: %w", err)
	}
	return nil
}

// InsertRejections appends rejected records to the rejection log
func (s *Store) InsertRejections(ctx context.Context, rejected []models.RejectedRecord) (int, error) {
	if len(rejected) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(RejectedCollection).InsertMany(ctx, rejected)
	if err != nil {
		return 0, fmt.Errorf("insert rejections: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// ListRejections returns the newest rejections, optionally for one reason
func (s *Store) ListRejections(ctx context.Context, reason models.RejectionReason, limit int) ([]models.RejectedRecord, error) {
	filter := bson.D{}
	if reason != "" {
		filter = bson.D{{Key: "rejection_reason", Value: reason}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "rejected_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.db.Collection(RejectedCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find rejections: %w", err)
	}

	out := make([]models.RejectedRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode rejections: %w", err)
	}
	return out, nil
}

// runDocument is the stored form of RunStats. decimal values have no BSON
// codec, so the summary travels through extended JSON.
type runDocument struct {
	models.RunStats `bson:",inline"`
	ExecutionDate   time.Time `bson:"execution_date"`
	Summary         bson.D    `bson:"summary,omitempty"`
}

// RecordRun stores the metadata of one run
func (s *Store) RecordRun(ctx context.Context, stats *models.RunStats) error {
	doc := runDocument{RunStats: *stats, ExecutionDate: stats.StartedAt}
	if stats.Summary != nil {
		summary, err := encodeSummary(stats.Summary)
		if err != nil {
			return err
		}
		doc.Summary = summary
	}

	if _, err := s.db.Collection(MetadataCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert run metadata: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run
func (s *Store) LatestRun(ctx context.Context) (*models.RunStats, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	return s.findRun(ctx, bson.D{}, opts)
}

// GetRun returns a run by id
func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunStats, error) {
	return s.findRun(ctx, bson.D{{Key: "pipeline_run_id", Value: runID}}, options.FindOne())
}

func (s *Store) findRun(ctx context.Context, filter bson.D, opts *options.FindOneOptionsBuilder) (*models.RunStats, error) {
	var doc runDocument
	err := s.db.Collection(MetadataCollection).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}

	stats := doc.RunStats
	if len(doc.Summary) > 0 {
		summary, err := decodeSummary(doc.Summary)
		if err != nil {
			return nil, err
		}
		stats.Summary = summary
	}
	return &stats, nil
}

func encodeSummary(summary *models.Summary) (bson.D, error) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("convert summary: %w", err)
	}
	return doc, nil
}

func decodeSummary(doc bson.D) (*models.Summary, error) {
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert summary: %w", err)
	}
	var summary models.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &summary, nil
}
