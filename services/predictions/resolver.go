package predictions

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"ticker_backend/models"
	"ticker_backend/services/format"
	"ticker_backend/services/market"
	"ticker_backend/services/metrics"
	"ticker_backend/services/notify"
	"ticker_backend/services/quotes"
)

// Outcome summarizes the resolution of one symbol
type Outcome struct {
	Symbol  string
	Actual  float64
	Count   int
	Closest *models.Prediction
	Err     error // non-nil when the symbol was deferred to the next boundary
}

// Resolver settles outstanding predictions on market open and close ticks
type Resolver struct {
	fetcher  quotes.Fetcher
	store    Store
	sink     notify.Sink
	channels []string
	pause    time.Duration
}

// NewResolver creates a resolver. pause is the rate budget between symbols.
func NewResolver(fetcher quotes.Fetcher, store Store, sink notify.Sink, channels []string, pause time.Duration) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		store:    store,
		sink:     sink,
		channels: channels,
		pause:    pause,
	}
}

// ResolveAll resolves every symbol with outstanding predictions, one symbol at a time.
// It does nothing unless the tick is a boundary and the market is open.
func (r *Resolver) ResolveAll(ctx context.Context, tick models.TickState) []Outcome {
	if !tick.ShouldResolve() {
		return nil
	}

	symbols, err := r.store.Symbols(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list predicted symbols")
		return nil
	}

	outcomes := make([]Outcome, 0, len(symbols))
	for i, symbol := range symbols {
		if i > 0 {
			if err := sleep(ctx, r.pause); err != nil {
				log.Warn().Err(err).Int("remaining", len(symbols)-i).Msg("Prediction resolution interrupted")
				break
			}
		}
		outcomes = append(outcomes, r.resolveSymbol(ctx, symbol, tick.SessionLabel()))
	}
	return outcomes
}

func (r *Resolver) resolveSymbol(ctx context.Context, symbol, session string) (out Outcome) {
	out.Symbol = symbol
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("symbol", symbol).Msg("Prediction resolution panicked")
			out.Err = fmt.Errorf("panic: %v", rec)
		}
	}()

	quote, err := r.fetcher.Fetch(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch information for symbol -- skipping")
		notify.Broadcast(ctx, r.sink, r.channels, fmt.Sprintf("Error with predictions for symbol %s.", symbol))
		metrics.PredictionsResolved.WithLabelValues("deferred").Inc()
		out.Err = err
		return out
	}

	// IEX returns a real-time price, which only approximates the true opening or closing print
	actual := quote.LatestPrice
	out.Actual = actual

	preds, err := r.store.Take(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to take predictions")
		out.Err = err
		return out
	}
	if len(preds) == 0 {
		return out
	}

	closest := Closest(preds, actual)
	out.Count = len(preds)
	out.Closest = closest

	for _, p := range preds {
		notify.Broadcast(ctx, r.sink, r.channels, FormatResult(p, actual, session))
	}
	notify.Broadcast(ctx, r.sink, r.channels, FormatSummary(*closest, len(preds), actual, session))

	metrics.PredictionsResolved.WithLabelValues("resolved").Add(float64(len(preds)))
	log.Info().Str("symbol", symbol).Int("predictions", len(preds)).
		Str("closest", closest.Submitter).Float64("actual", actual).Msg("Resolved predictions")
	return out
}

// Closest returns the prediction nearest to actual. Ties go to the earliest in preds.
func Closest(preds []models.Prediction, actual float64) *models.Prediction {
	var best *models.Prediction
	var bestDelta float64
	for i := range preds {
		delta := math.Abs(actual - preds[i].Predicted())
		if best == nil || delta < bestDelta {
			best = &preds[i]
			bestDelta = delta
		}
	}
	return best
}

// FormatResult renders one submitter's result line
func FormatResult(p models.Prediction, actual float64, session string) string {
	return fmt.Sprintf("Prediction by %s for %s: %.2f (%s). Actual value at %s: %.2f (%s). Prediction set at %s.",
		p.Submitter,
		format.Bold(p.Symbol),
		p.Predicted(),
		format.Percent(market.GetDelta(p.Predicted(), p.Base())),
		session,
		actual,
		format.Percent(market.GetDelta(actual, p.Base())),
		p.CreatedLabel,
	)
}

// FormatSummary renders the closest-guess line for a symbol
func FormatSummary(closest models.Prediction, count int, actual float64, session string) string {
	return fmt.Sprintf("%s had the closest guess for %s out of %d predictions with a prediction of %.2f (%s) compared to the actual %s of %.2f (%s).",
		closest.Submitter,
		format.Bold(closest.Symbol),
		count,
		closest.Predicted(),
		format.Percent(market.GetDelta(closest.Predicted(), closest.Base())),
		session,
		actual,
		format.Percent(market.GetDelta(actual, closest.Base())),
	)
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
