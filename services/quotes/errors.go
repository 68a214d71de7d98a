package quotes

import (
	"errors"
	"fmt"
)

// ErrThrottleSuspected marks responses that look like upstream rate limiting
var ErrThrottleSuspected = errors.New("quote source throttling suspected")

// ErrMissingField is wrapped when the response body lacks a required field
var ErrMissingField = errors.New("missing field in quote response")

// QuoteUnavailableError is the single failure condition for a quote lookup:
// network errors, non-200 responses and incomplete bodies all end up here.
type QuoteUnavailableError struct {
	Symbol string
	Cause  error
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("quote unavailable for %s: %v", e.Symbol, e.Cause)
}

func (e *QuoteUnavailableError) Unwrap() error { return e.Cause }

func unavailable(symbol string, cause error) error {
	return &QuoteUnavailableError{Symbol: symbol, Cause: cause}
}

// IsUnavailable reports whether err is a QuoteUnavailableError
func IsUnavailable(err error) bool {
	var qe *QuoteUnavailableError
	return errors.As(err, &qe)
}
