package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"ticker_backend/services/format"
	"ticker_backend/services/metrics"
)

var errHubClosed = errors.New("websocket hub is shut down")

// Sink delivers one pre-formatted line to a named output channel
type Sink interface {
	Send(ctx context.Context, channel, message string) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, channel, message string) error

func (f SinkFunc) Send(ctx context.Context, channel, message string) error {
	return f(ctx, channel, message)
}

// LogSink writes messages to the structured log
type LogSink struct{}

func (LogSink) Send(_ context.Context, channel, message string) error {
	log.Info().Str("channel", channel).Msg(format.Strip(message))
	metrics.MessagesSent.WithLabelValues("log", "ok").Inc()
	return nil
}

// Multi sends to every sink and joins their errors
type Multi []Sink

func (m Multi) Send(ctx context.Context, channel, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, channel, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends message to every channel. Failures are logged and do not stop delivery.
func Broadcast(ctx context.Context, sink Sink, channels []string, message string) {
	for _, channel := range channels {
		if err := sink.Send(ctx, channel, message); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Failed to deliver message")
		}
	}
}
