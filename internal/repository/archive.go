package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"kata_analysis/internal/adapters"
	"kata_analysis/internal/domain/katago"
)

const (
	analysesCollection = "analyses"
	archiveOpTimeout   = 5 * time.Second
)

// AnalysisRecord is one archived analysis.
type AnalysisRecord struct {
	QueryID    string         `bson:"query_id"`
	Rules      katago.Rules   `bson:"rules"`
	BoardXSize int            `bson:"board_x_size"`
	BoardYSize int            `bson:"board_y_size"`
	MoveCount  int            `bson:"move_count"`
	Winrate    float64        `bson:"winrate"`
	ScoreLead  float64        `bson:"score_lead"`
	Result     *katago.Result `bson:"result"`
	CreatedAt  time.Time      `bson:"created_at"`
}

// AnalysisArchive keeps completed analyses in Mongo for later review.
type AnalysisArchive struct {
	collection *mongo.Collection
	log        *zap.SugaredLogger
}

func NewAnalysisArchive(mongoAdapter *adapters.AdapterMongo, log *zap.SugaredLogger) *AnalysisArchive {
	return &AnalysisArchive{
		collection: mongoAdapter.Database.Collection(analysesCollection),
		log:        log,
	}
}

func (a *AnalysisArchive) Save(ctx context.Context, q *katago.Query, result *katago.Result) error {
	record := AnalysisRecord{
		QueryID:    q.ID,
		Rules:      q.Rules,
		BoardXSize: q.BoardXSize,
		BoardYSize: q.BoardYSize,
		MoveCount:  len(q.Moves),
		Result:     result,
		CreatedAt:  time.Now().UTC(),
	}
	if result.RootInfo != nil {
		record.Winrate = result.RootInfo.Winrate
		record.ScoreLead = result.RootInfo.ScoreLead
	}

	ctxInsert, cancel := context.WithTimeout(ctx, archiveOpTimeout)
	defer cancel()

	if _, err := a.collection.InsertOne(ctxInsert, record); err != nil {
		return fmt.Errorf("archive analysis %q: %w", q.ID, err)
	}
	return nil
}

func (a *AnalysisArchive) ListRecent(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	ctxFind, cancel := context.WithTimeout(ctx, archiveOpTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctxFind, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list archived analyses: %w", err)
	}
	defer cursor.Close(ctxFind)

	var records []AnalysisRecord
	if err := cursor.All(ctxFind, &records); err != nil {
		return nil, fmt.Errorf("decode archived analyses: %w", err)
	}
	return records, nil
}
