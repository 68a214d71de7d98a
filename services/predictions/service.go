package predictions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticker_backend/models"
	"ticker_backend/services/market"
	"ticker_backend/services/metrics"
	"ticker_backend/services/quotes"
)

// ErrInvalidTarget is returned for non-positive target prices or bases
var ErrInvalidTarget = errors.New("invalid prediction target")

// Target is what a submitter predicts: an absolute price or a signed percentage move
type Target struct {
	Price   *decimal.Decimal
	Percent *decimal.Decimal
}

// PriceTarget predicts an absolute price
func PriceTarget(price float64) Target {
	d := decimal.NewFromFloat(price)
	return Target{Price: &d}
}

// PercentTarget predicts a signed move from the base price, e.g. -2.5 for 2.5% down
func PercentTarget(percent float64) Target {
	d := decimal.NewFromFloat(percent)
	return Target{Percent: &d}
}

// Apply computes the predicted price against base
func (t Target) Apply(base decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case t.Percent != nil:
		price := base.Add(t.Percent.Div(decimal.NewFromInt(100)).Mul(base))
		if !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s%% leaves no positive price", ErrInvalidTarget, t.Percent)
		}
		return price, nil
	case t.Price != nil:
		if !t.Price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: price must be positive", ErrInvalidTarget)
		}
		return *t.Price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: no price or percentage", ErrInvalidTarget)
}

// Confirmation is returned to the submitter. Replaced is informational only.
type Confirmation struct {
	Prediction models.Prediction  `json:"prediction"`
	Replaced   *models.Prediction `json:"replaced,omitempty"`
	// Session is the boundary the prediction will be resolved at: "close" while the
	// market is open, "open" otherwise
	Session string `json:"session"`
}

// Service handles prediction submission and quote checks for the command surface
type Service struct {
	fetcher quotes.Fetcher
	store   Store
	now     func() time.Time
}

// NewService creates a submission service
func NewService(fetcher quotes.Fetcher, store Store) *Service {
	return &Service{fetcher: fetcher, store: store, now: market.Now}
}

// Check looks up the current price and daily change for symbol
func (s *Service) Check(ctx context.Context, symbol string) (*models.Quote, error) {
	return s.fetcher.Fetch(ctx, normalize(symbol))
}

// Submit records a prediction. The base price is captured now and never recomputed:
// previous close while the market is open, latest price otherwise.
func (s *Service) Submit(ctx context.Context, submitter, symbol string, target Target) (*Confirmation, error) {
	symbol = normalize(symbol)
	submitter = strings.TrimSpace(submitter)
	if submitter == "" || symbol == "" {
		return nil, fmt.Errorf("%w: submitter and symbol are required", ErrInvalidTarget)
	}

	quote, err := s.fetcher.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := s.now()
	open := market.IsMarketOpen(now)

	basePrice := quote.LatestPrice
	if open {
		basePrice = quote.PreviousClose
	}
	base := decimal.NewFromFloat(basePrice)
	if !base.IsPositive() {
		return nil, fmt.Errorf("%w: base price for %s is %s", ErrInvalidTarget, symbol, base)
	}

	predicted, err := target.Apply(base)
	if err != nil {
		return nil, err
	}

	pred := models.Prediction{
		Symbol:         symbol,
		Submitter:      submitter,
		BasePrice:      base,
		PredictedPrice: predicted,
		CreatedAt:      now,
		CreatedLabel:   market.FormatWhen(now),
	}
	replaced, err := s.store.Upsert(ctx, &pred)
	if err != nil {
		return nil, err
	}
	metrics.PredictionsSubmitted.Inc()

	session := "open"
	if open {
		session = "close"
	}
	return &Confirmation{Prediction: pred, Replaced: replaced, Session: session}, nil
}

// Pending returns every outstanding prediction
func (s *Service) Pending(ctx context.Context) ([]models.Prediction, error) {
	return s.store.List(ctx)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
