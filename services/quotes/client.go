package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"ticker_backend/models"
	"ticker_backend/services/metrics"
)

// Fetcher looks up a single symbol
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)
}

// ClientConfig configures the IEX-compatible quote client
type ClientConfig struct {
	BaseURL           string
	Token             string
	RequestsPerMinute int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client fetches quotes from an IEX Cloud compatible endpoint.
// Calls are paced by a token bucket and guarded by a circuit breaker.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// iexQuoteResponse uses pointers so that absent fields can be told apart from zeros
type iexQuoteResponse struct {
	Symbol        *string  `json:"symbol"`
	LatestPrice   *float64 `json:"latestPrice"`
	PreviousClose *float64 `json:"previousClose"`
	ChangePercent *float64 `json:"changePercent"`
}

// errStatus is a non-200 response. 4xx other than 429 does not count against the breaker.
type errStatus struct {
	code int
	body string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("quote source error (status %d): %s", e.code, e.body)
}

// NewClient creates a new quote client
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 5
	}

	st := gobreaker.Settings{
		Name:     "quote-source",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrMissingField) {
				return true
			}
			var se *errStatus
			if errors.As(err, &se) {
				return se.code < 500 && se.code != http.StatusTooManyRequests
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Quote source circuit breaker changed state")
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		breaker:    gobreaker.NewCircuitBreaker(st),
	}
}

// Fetch returns the latest quote for symbol. Every failure is a *QuoteUnavailableError.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, unavailable(symbol, errors.New("empty symbol"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.QuoteRequests.WithLabelValues("unavailable").Inc()
		return nil, unavailable(symbol, fmt.Errorf("rate budget wait: %w", err))
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.request(ctx, symbol)
	})
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.QuoteRequests.WithLabelValues("breaker_open").Inc()
		case errors.Is(err, ErrThrottleSuspected):
			metrics.QuoteRequests.WithLabelValues("throttled").Inc()
			log.Warn().Str("symbol", symbol).Msg("Quote source responded 429, throttling suspected")
		default:
			metrics.QuoteRequests.WithLabelValues("unavailable").Inc()
		}
		return nil, unavailable(symbol, err)
	}

	metrics.QuoteRequests.WithLabelValues("ok").Inc()
	return res.(*models.Quote), nil
}

func (c *Client) request(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %w", ErrThrottleSuspected, &errStatus{code: resp.StatusCode, body: preview(body)})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errStatus{code: resp.StatusCode, body: preview(body)}
	}

	return decodeQuote(body)
}

func decodeQuote(body []byte) (*models.Quote, error) {
	var data iexQuoteResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch {
	case data.Symbol == nil:
		return nil, fmt.Errorf("%w: symbol", ErrMissingField)
	case data.LatestPrice == nil:
		return nil, fmt.Errorf("%w: latestPrice", ErrMissingField)
	case data.PreviousClose == nil:
		return nil, fmt.Errorf("%w: previousClose", ErrMissingField)
	case data.ChangePercent == nil:
		return nil, fmt.Errorf("%w: changePercent", ErrMissingField)
	}

	return &models.Quote{
		Symbol:        strings.ToUpper(*data.Symbol),
		LatestPrice:   *data.LatestPrice,
		PreviousClose: *data.PreviousClose,
		PercentChange: *data.ChangePercent * 100,
	}, nil
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
