package predictions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ticker_backend/models"
	"ticker_backend/services/market"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newPrediction(symbol, submitter string, base, predicted float64, created time.Time) *models.Prediction {
	return &models.Prediction{
		Symbol:         symbol,
		Submitter:      submitter,
		BasePrice:      decimal.NewFromFloat(base),
		PredictedPrice: decimal.NewFromFloat(predicted),
		CreatedAt:      created,
		CreatedLabel:   market.FormatWhen(created),
	}
}

var t0 = time.Date(2024, 5, 15, 12, 0, 0, 0, market.Location)

func TestGormUpsertReturnsReplaced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	replaced, err := store.Upsert(ctx, newPrediction("AAPL", "alice", 100, 105, t0))
	require.NoError(t, err)
	assert.Nil(t, replaced)

	second := newPrediction("AAPL", "alice", 100, 95, t0.Add(time.Minute))
	replaced, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, 105.0, replaced.Predicted())
	assert.Equal(t, int64(2), second.Revision)

	got, err := store.Get(ctx, "AAPL", "alice")
	require.NoError(t, err)
	assert.Equal(t, 95.0, got.Predicted())
	assert.Equal(t, 100.0, got.Base())

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "AAPL", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormSymbolsAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []*models.Prediction{
		newPrediction("MSFT", "bob", 400, 410, t0.Add(2*time.Minute)),
		newPrediction("AAPL", "carol", 100, 101, t0.Add(time.Minute)),
		newPrediction("AAPL", "alice", 100, 99, t0),
	} {
		_, err := store.Upsert(ctx, p)
		require.NoError(t, err)
	}

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Submitter)
	assert.Equal(t, "carol", all[1].Submitter)
	assert.Equal(t, "MSFT", all[2].Symbol)
}

func TestGormTakeEmptiesSymbol(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, newPrediction("AAPL", "u2", 100, 98, t0.Add(time.Minute)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newPrediction("AAPL", "u1", 100, 105, t0))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newPrediction("MSFT", "u1", 400, 401, t0))
	require.NoError(t, err)

	taken, err := store.Take(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, taken, 2)
	assert.Equal(t, "u1", taken[0].Submitter)
	assert.Equal(t, "u2", taken[1].Submitter)

	again, err := store.Take(ctx, "AAPL")
	require.NoError(t, err)
	assert.Empty(t, again)

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, symbols)
}

func TestGormConcurrentUpsertAndTakeLosesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	const submitters = 40

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken = make(map[string]int)
	)
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			preds, err := store.Take(ctx, "AAPL")
			assert.NoError(t, err)
			mu.Lock()
			for _, p := range preds {
				taken[p.Submitter]++
			}
			mu.Unlock()

			select {
			case <-done:
				return
			default:
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < submitters; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			_, err := store.Upsert(ctx, newPrediction("AAPL", fmt.Sprintf("user%02d", i), 100, 100+float64(i), t0))
			assert.NoError(t, err)
		}(i)
	}
	writers.Wait()
	close(done)
	wg.Wait()

	rest, err := store.Take(ctx, "AAPL")
	require.NoError(t, err)
	for _, p := range rest {
		taken[p.Submitter]++
	}

	assert.Len(t, taken, submitters)
	for submitter, n := range taken {
		assert.Equal(t, 1, n, "%s resolved %d times", submitter, n)
	}
}

func TestGormPurgeBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, newPrediction("OLD", "alice", 10, 11, t0.Add(-72*time.Hour)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, newPrediction("NEW", "alice", 10, 11, t0))
	require.NoError(t, err)

	n, err := store.PurgeBefore(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	symbols, err := store.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, symbols)
}

func TestGormPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
