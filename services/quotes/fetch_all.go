package quotes

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ticker_backend/models"
)

// Result is the settled outcome of one fetch in a FetchAll batch
type Result struct {
	Symbol string
	Quote  *models.Quote
	Err    error
}

// FetchAll fetches every symbol concurrently and waits for all of them to settle.
// One failure never cancels the others. Results are returned in input order.
func FetchAll(ctx context.Context, f Fetcher, symbols []string) []Result {
	results := make([]Result, len(symbols))

	var g errgroup.Group
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{Symbol: symbol, Err: unavailable(symbol, fmt.Errorf("panic: %v", r))}
				}
			}()

			q, err := f.Fetch(ctx, symbol)
			results[i] = Result{Symbol: symbol, Quote: q, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
