package predictions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticker_backend/models"
)

// MongoPredictionsCollection holds one document per symbol
const MongoPredictionsCollection = "predictions"

// mongoSymbolDoc maps submitter key -> prediction for one symbol.
// The whole document is removed on Take, so a symbol never keeps an empty mapping.
type mongoSymbolDoc struct {
	Symbol      string                `bson:"_id"`
	Predictions map[string]mongoEntry `bson:"predictions"`
}

type mongoEntry struct {
	Submitter      string    `bson:"submitter"`
	BasePrice      string    `bson:"base_price"`
	PredictedPrice string    `bson:"predicted_price"`
	CreatedAt      time.Time `bson:"created_at"`
	CreatedLabel   string    `bson:"created_label"`
	Revision       int64     `bson:"revision"`
}

// MongoStore keeps predictions in MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Str("database", database).Msg("MongoDB connected successfully")
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(MongoPredictionsCollection),
	}, nil
}

// submitterKey makes a submitter id safe to use as a field name
func submitterKey(submitter string) string {
	return strings.NewReplacer("%", "%25", ".", "%2E", "$", "%24").Replace(submitter)
}

func (s *MongoStore) Upsert(ctx context.Context, p *models.Prediction) (*models.Prediction, error) {
	field := "predictions." + submitterKey(p.Submitter)
	update := bson.M{
		"$set": bson.M{
			field + ".submitter":       p.Submitter,
			field + ".base_price":      p.BasePrice.String(),
			field + ".predicted_price": p.PredictedPrice.String(),
			field + ".created_at":      p.CreatedAt,
			field + ".created_label":   p.CreatedLabel,
		},
		"$inc": bson.M{field + ".revision": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var before mongoSymbolDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": p.Symbol}, update, opts).Decode(&before)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to save prediction %s/%s: %w", p.Symbol, p.Submitter, err)
	}

	p.Revision = 1
	old, ok := before.Predictions[submitterKey(p.Submitter)]
	if !ok {
		return nil, nil
	}
	p.Revision = old.Revision + 1

	replaced, err := old.toModel(p.Symbol)
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (s *MongoStore) Get(ctx context.Context, symbol, submitter string) (*models.Prediction, error) {
	var doc mongoSymbolDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": symbol}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction %s/%s: %w", symbol, submitter, err)
	}

	entry, ok := doc.Predictions[submitterKey(submitter)]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.toModel(symbol)
}

func (s *MongoStore) Symbols(ctx context.Context) ([]string, error) {
	docs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Predictions) > 0 {
			symbols = append(symbols, doc.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *MongoStore) List(ctx context.Context) ([]models.Prediction, error) {
	docs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Prediction
	for _, doc := range docs {
		preds, err := doc.toModels()
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Take removes the symbol document with a single FindOneAndDelete
func (s *MongoStore) Take(ctx context.Context, symbol string) ([]models.Prediction, error) {
	var doc mongoSymbolDoc
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": symbol}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take predictions for %s: %w", symbol, err)
	}
	return doc.toModels()
}

func (s *MongoStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	docs, err := s.all(ctx)
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, doc := range docs {
		for key, entry := range doc.Predictions {
			if !entry.CreatedAt.Before(cutoff) {
				continue
			}
			field := "predictions." + key
			res, err := s.collection.UpdateOne(ctx,
				bson.M{"_id": doc.Symbol, field + ".revision": entry.Revision},
				bson.M{"$unset": bson.M{field: ""}})
			if err != nil {
				return purged, fmt.Errorf("failed to purge prediction %s/%s: %w", doc.Symbol, entry.Submitter, err)
			}
			purged += res.ModifiedCount
		}
	}

	if _, err := s.collection.DeleteMany(ctx, bson.M{"predictions": bson.M{}}); err != nil {
		return purged, fmt.Errorf("failed to remove empty symbols: %w", err)
	}
	return purged, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) all(ctx context.Context) ([]mongoSymbolDoc, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoSymbolDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode predictions: %w", err)
	}
	return docs, nil
}

func (d mongoSymbolDoc) toModels() ([]models.Prediction, error) {
	preds := make([]models.Prediction, 0, len(d.Predictions))
	for _, entry := range d.Predictions {
		p, err := entry.toModel(d.Symbol)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	sortByCreation(preds)
	return preds, nil
}

func (e mongoEntry) toModel(symbol string) (*models.Prediction, error) {
	base, err := decimal.NewFromString(e.BasePrice)
	if err != nil {
		return nil, fmt.Errorf("bad base price for %s/%s: %w", symbol, e.Submitter, err)
	}
	predicted, err := decimal.NewFromString(e.PredictedPrice)
	if err != nil {
		return nil, fmt.Errorf("bad predicted price for %s/%s: %w", symbol, e.Submitter, err)
	}

	return &models.Prediction{
		Symbol:         symbol,
		Submitter:      e.Submitter,
		BasePrice:      base,
		PredictedPrice: predicted,
		CreatedAt:      e.CreatedAt,
		CreatedLabel:   e.CreatedLabel,
		Revision:       e.Revision,
	}, nil
}

func sortByCreation(preds []models.Prediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		if !preds[i].CreatedAt.Equal(preds[j].CreatedAt) {
			return preds[i].CreatedAt.Before(preds[j].CreatedAt)
		}
		return preds[i].Submitter < preds[j].Submitter
	})
}
