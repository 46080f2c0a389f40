package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// Compile-time interface checks.
var _ BarSink = (*MongoSink)(nil)
var _ TickSink = (*MongoSink)(nil)

// MongoSink writes records to a MongoDB document store. Documents are
// keyed by their market-local timestamp string, so replayed units upsert in
// place instead of duplicating. Writes go out in batches (500 by default,
// matching the original export) and transient failures are retried; keyed
// upserts make the retry safe.
type MongoSink struct {
	client         *mongo.Client
	db             string
	barCollection  string
	tickCollection string
	batchSize      int
}

// NewMongoSink connects to uri and verifies the server is reachable. An
// unreachable document store at startup is a sink-availability failure, not
// a run failure, when other sinks remain configured.
func NewMongoSink(ctx context.Context, uri, db, barCollection, tickCollection string, batchSize int) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("document store unreachable: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 500
	}
	return &MongoSink{
		client:         client,
		db:             db,
		barCollection:  barCollection,
		tickCollection: tickCollection,
		batchSize:      batchSize,
	}, nil
}

// Name returns "mongo".
func (s *MongoSink) Name() string { return "mongo" }

// Close disconnects from the server.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// WriteBars upserts bars into the bar collection keyed by minute timestamp.
func (s *MongoSink) WriteBars(ctx context.Context, bars []domain.Bar, _ domain.DateRange) error {
	models := make([]mongo.WriteModel, 0, len(bars))
	for _, b := range bars {
		key := b.Timestamp.Format("2006-01-02 15:04:05")
		doc := bson.M{
			"_id":      key,
			"datetime": b.Timestamp,
			"open":     b.Open,
			"high":     b.High,
			"low":      b.Low,
			"close":    b.Close,
			"volume":   b.Volume,
		}
		models = append(models, upsertModel(key, doc))
	}
	return s.flush(ctx, s.barCollection, models)
}

// WriteTicks upserts ticks into the tick collection keyed by nanosecond
// timestamp.
func (s *MongoSink) WriteTicks(ctx context.Context, ticks []domain.Tick, _ domain.DateRange) error {
	loc := util.MarketLocation()
	models := make([]mongo.WriteModel, 0, len(ticks))
	for _, t := range ticks {
		key := t.Time(loc).Format("2006-01-02 15:04:05.000000000")
		doc := bson.M{
			"_id":        key,
			"datetime":   t.Time(loc),
			"close":      t.Price,
			"volume":     t.Size,
			"bid_price":  t.BidPrice,
			"bid_volume": t.BidSize,
			"ask_price":  t.AskPrice,
			"ask_volume": t.AskSize,
			"tick_type":  string(t.Side),
		}
		models = append(models, upsertModel(key, doc))
	}
	return s.flush(ctx, s.tickCollection, models)
}

func upsertModel(key string, doc bson.M) mongo.WriteModel {
	return mongo.NewReplaceOneModel().
		SetFilter(bson.M{"_id": key}).
		SetReplacement(doc).
		SetUpsert(true)
}

// flush bulk-writes models in batches, retrying each batch on transient
// failures.
func (s *MongoSink) flush(ctx context.Context, collection string, models []mongo.WriteModel) error {
	coll := s.client.Database(s.db).Collection(collection)
	opts := options.BulkWrite().SetOrdered(false)

	for start := 0; start < len(models); start += s.batchSize {
		end := min(start+s.batchSize, len(models))
		batch := models[start:end]

		err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
			_, err := coll.BulkWrite(ctx, batch, opts)
			return err
		})
		if err != nil {
			return fmt.Errorf("bulk write to %s (%d docs): %w", collection, len(batch), err)
		}
	}
	return nil
}
