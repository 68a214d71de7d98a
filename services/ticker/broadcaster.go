package ticker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"ticker_backend/models"
	"ticker_backend/services/format"
	"ticker_backend/services/metrics"
	"ticker_backend/services/notify"
	"ticker_backend/services/quotes"
)

// Broadcaster publishes the periodic digest of daily moves for the configured stocks
type Broadcaster struct {
	fetcher  quotes.Fetcher
	sink     notify.Sink
	stocks   []models.Stock
	channels []string
}

// NewBroadcaster creates a broadcaster. stocks keeps its configured order.
func NewBroadcaster(fetcher quotes.Fetcher, sink notify.Sink, stocks []models.Stock, channels []string) *Broadcaster {
	return &Broadcaster{
		fetcher:  fetcher,
		sink:     sink,
		stocks:   stocks,
		channels: channels,
	}
}

// Enabled reports whether there is anything to broadcast and anywhere to send it
func (b *Broadcaster) Enabled() bool {
	return len(b.stocks) > 0 && len(b.channels) > 0
}

// Broadcast fetches every stock concurrently, drops failed symbols and sends one
// digest line to every channel. It returns the digest that was sent.
func (b *Broadcaster) Broadcast(ctx context.Context) string {
	symbols := make([]string, len(b.stocks))
	for i, stock := range b.stocks {
		symbols[i] = stock.Symbol
	}

	changes := make(map[string]float64, len(symbols))
	for _, res := range quotes.FetchAll(ctx, b.fetcher, symbols) {
		if res.Err != nil {
			log.Error().Err(res.Err).Str("symbol", res.Symbol).Msg("Failed to get stock")
			continue
		}
		changes[res.Symbol] = res.Quote.PercentChange
	}

	message := FormatDigest(b.stocks, changes)
	metrics.DigestSymbols.Set(float64(len(changes)))
	if len(changes) == 0 {
		// Every lookup failed. The empty digest is still sent.
		log.Warn().Int("stocks", len(b.stocks)).Msg("Ticker digest is empty, all quote lookups failed")
	}

	notify.Broadcast(ctx, b.sink, b.channels, message)
	return message
}

// FormatDigest renders one entry per stock present in changes, in stock order, joined by " | "
func FormatDigest(stocks []models.Stock, changes map[string]float64) string {
	parts := make([]string, 0, len(stocks))
	for _, stock := range stocks {
		if change, ok := changes[stock.Symbol]; ok {
			parts = append(parts, FormatSymbol(stock, change))
		}
	}
	return strings.Join(parts, " | ")
}

// FormatSymbol renders "Name (SYMBOL): +X.XX%"
func FormatSymbol(stock models.Stock, change float64) string {
	return fmt.Sprintf("%s (%s): %s", stock.Name, format.Bold(stock.Symbol), format.Percent(change))
}
