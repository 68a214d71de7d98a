package predictions

import (
	"context"
	"errors"
	"time"

	"ticker_backend/models"
)

// ErrNotFound is returned when no prediction exists for a (symbol, submitter) pair
var ErrNotFound = errors.New("prediction not found")

// Store is the durable mapping symbol -> submitter -> prediction.
//
// Take is the only way predictions leave the store during resolution: it reads and
// removes a symbol's predictions as one atomic step, so no prediction is resolved twice.
// A prediction overwritten while a Take is in flight is not removed by that Take.
type Store interface {
	// Upsert stores p, replacing any prediction by the same submitter for the same
	// symbol. The replaced prediction is returned, or nil.
	Upsert(ctx context.Context, p *models.Prediction) (*models.Prediction, error)
	Get(ctx context.Context, symbol, submitter string) (*models.Prediction, error)
	// Symbols lists symbols with at least one outstanding prediction, sorted
	Symbols(ctx context.Context) ([]string, error)
	// List returns every outstanding prediction ordered by symbol then creation time
	List(ctx context.Context) ([]models.Prediction, error)
	// Take atomically snapshots and removes the predictions for symbol,
	// ordered by creation time then submitter
	Take(ctx context.Context, symbol string) ([]models.Prediction, error)
	// PurgeBefore removes predictions created before cutoff and returns how many went
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Ping checks the backing database is reachable
	Ping(ctx context.Context) error
	Close() error
}
