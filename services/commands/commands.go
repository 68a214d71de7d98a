// Package commands implements the !check and !predict chat commands.
//
// Both accept an optional "<nick> " prefix added by relay bots bridging other
// networks. The prefix is trusted only when the sender is an allow-listed relay.
package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"ticker_backend/config"
	"ticker_backend/services/format"
	"ticker_backend/services/market"
	"ticker_backend/services/predictions"
)

const symbolPattern = `(\^?[A-Za-z]+(?:[:\.][A-Za-z]+)?)`

var (
	checkRegex   = regexp.MustCompile(`^(?:<(.+?)>\s+)?!check ` + symbolPattern + `$`)
	predictRegex = regexp.MustCompile(`^(?:<(.+?)>\s+)?!predict ` + symbolPattern +
		` (?:([-+])?(\d+(?:\.\d+)?)%|\$?(\d+(?:\.\d+)?))$`)
)

// Kinds of command
const (
	KindCheck   = "check"
	KindPredict = "predict"
)

// ParseError is returned for input that is not a well-formed command
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("not a command: %q", e.Input)
}

// Sender identifies who sent a message
type Sender struct {
	Nick  string `json:"nick"`
	User  string `json:"user"`
	VHost string `json:"vhost"`
}

// Command is a parsed chat command
type Command struct {
	Kind    string
	Relayed string // nick embedded by a relay bot, "" when sent directly
	Symbol  string
	Target  predictions.Target
}

// Parse parses a !check or !predict message
func Parse(msg string) (*Command, error) {
	msg = strings.TrimSpace(msg)

	if m := checkRegex.FindStringSubmatch(msg); m != nil {
		return &Command{Kind: KindCheck, Relayed: m[1], Symbol: strings.ToUpper(m[2])}, nil
	}

	m := predictRegex.FindStringSubmatch(msg)
	if m == nil {
		return nil, &ParseError{Input: msg}
	}

	cmd := &Command{Kind: KindPredict, Relayed: m[1], Symbol: strings.ToUpper(m[2])}
	if m[4] != "" {
		pct, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return nil, &ParseError{Input: msg}
		}
		if m[3] == "-" {
			pct = -pct
		}
		cmd.Target = predictions.PercentTarget(pct)
	} else {
		price, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			return nil, &ParseError{Input: msg}
		}
		cmd.Target = predictions.PriceTarget(price)
	}
	return cmd, nil
}

// Handler runs commands against the prediction service
type Handler struct {
	service *predictions.Service
	relays  []config.RelayBot
}

// NewHandler creates a command handler
func NewHandler(service *predictions.Service, relays []config.RelayBot) *Handler {
	return &Handler{service: service, relays: relays}
}

// IsRelayBot compares a sender against the allow-listed relay bots
func (h *Handler) IsRelayBot(s Sender) bool {
	for _, bot := range h.relays {
		if (bot.Nick == "" || bot.Nick == s.Nick) &&
			(bot.User == "" || bot.User == s.User) &&
			(bot.VHost == "" || bot.VHost == s.VHost) {
			return true
		}
	}
	return false
}

// Handle executes msg and returns the reply. An empty reply with a nil error means
// the message was ignored (for example a relay prefix from an untrusted sender).
func (h *Handler) Handle(ctx context.Context, sender Sender, msg string) (string, error) {
	cmd, err := Parse(msg)
	if err != nil {
		return "", err
	}

	nick := sender.Nick
	if cmd.Relayed != "" {
		if !h.IsRelayBot(sender) {
			log.Debug().Str("nick", sender.Nick).Msg("Ignoring relayed command from unknown relay")
			return "", nil
		}
		nick = format.Strip(cmd.Relayed)
	}

	switch cmd.Kind {
	case KindCheck:
		return h.check(ctx, nick, cmd.Symbol), nil
	case KindPredict:
		return h.predict(ctx, nick, cmd), nil
	}
	return "", &ParseError{Input: msg}
}

func (h *Handler) check(ctx context.Context, nick, symbol string) string {
	quote, err := h.service.Check(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Error trying to look up symbol")
		return fmt.Sprintf("%s: I couldn't look that symbol up", nick)
	}

	return fmt.Sprintf("Symbol: %s | Current: %.2f | Daily Change: %s",
		format.Bold(symbol), quote.LatestPrice, format.Percent(quote.PercentChange))
}

func (h *Handler) predict(ctx context.Context, nick string, cmd *Command) string {
	conf, err := h.service.Submit(ctx, nick, cmd.Symbol, cmd.Target)
	if err != nil {
		if !errors.Is(err, predictions.ErrInvalidTarget) {
			log.Warn().Err(err).Str("symbol", cmd.Symbol).Msg("Error trying to save prediction")
		}
		return fmt.Sprintf("%s: I couldn't look that symbol up", nick)
	}

	return FormatConfirmation(nick, conf)
}

// FormatConfirmation renders the reply to a stored prediction
func FormatConfirmation(nick string, conf *predictions.Confirmation) string {
	p := conf.Prediction
	reply := fmt.Sprintf("Prediction by %s for %s at market %s: %.2f (%s)",
		nick,
		format.Bold(p.Symbol),
		conf.Session,
		p.Predicted(),
		format.Percent(market.GetDelta(p.Predicted(), p.Base())),
	)

	if old := conf.Replaced; old != nil {
		reply += fmt.Sprintf(" (replaces old prediction of %.2f (%s) set at %s)",
			old.Predicted(),
			format.Percent(market.GetDelta(old.Predicted(), old.Base())),
			old.CreatedLabel,
		)
	}
	return reply
}
