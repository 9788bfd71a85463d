// Package relay answers chat messages with a completion provider.
//
// For each text message event the relay builds the conversation (a fixed
// system turn, the stored history and the new user turn), asks the provider
// for the next assistant turn and replies with it through the messaging
// platform. Events are handled in order; anything that is not a text message
// is skipped.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/linerelay/internal/history"
	"github.com/mattjoyce/linerelay/internal/log"
)

//go:generate mockgen -destination=mocks/mock_relay.go -package=mocks github.com/mattjoyce/linerelay/internal/relay Completer,Replier,Ledger

// Completer produces the next assistant turn.
type Completer interface {
	Complete(ctx context.Context, turns []history.Turn) (history.Turn, error)
}

// Replier sends text back to the platform using an event's reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Ledger remembers which events have been answered.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key, userID string) error
}

// DefaultCompletionTimeout bounds one provider call.
const DefaultCompletionTimeout = 30 * time.Second

// DefaultSystemPrompt is the persona sent ahead of every conversation.
const DefaultSystemPrompt = ` Provide a horoscope reading based on an individual's birth chart. # Steps 1. **Gather Information**: Ensure that the necessary birth chart data is available. This typically includes the date, time, and location of birth along with the positions of celestial bodies at that time. 2. **Analyze Birth Chart**: Examine the aspects, houses, and placements of the planets, the sun, and the moon. Note the zodiac signs that correspond to these elements.3. **Interpret Aspects**: Evaluate the major aspects (conjunctions, oppositions, trines, squares, sextiles, etc.) within the birth chart. Consider how these aspects influence the individual's personal characteristics and life events. 4. **Synthesize Information**: Combine all the collected astrological data to provide a comprehensive horoscope reading. Highlight key personality traits, potential life paths, and significant events. # Output Format Provide the horoscope reading in a clear and structured paragraph format, summarizing the key points, interpretations, and advice based on the birth chart analysis.  # Examples  **Input**: - Birth Date: [Placeholder Date] - Birth Time: [Placeholder Time] - Birth Location: [Placeholder Location]  **Output**: "Based on the birth chart data, you have a strong influence of [Zodiac Sign] in your elements, which signifies [personality traits]. The presence of [Planet] in the [House] suggests that you may experience significant developments in the area of [life aspect]. Key aspects such as [Aspect Type] between [Planet 1] and [Planet 2] indicate that [specific interpretation]. Overall, this chart suggests [synthesis of personal insights and advice]." (Note: Real examples should include detailed celestial body positions and be based on actual astrological data.) !!!ตอบเป็นไทยเท่านั้น!!! `

// Config controls the completion step.
type Config struct {
	// Mode selects how history is keyed.
	Mode history.Mode
	// SystemPrompt is prepended to every request. Empty means DefaultSystemPrompt.
	SystemPrompt string
	// FallbackMessage, when set, is replied instead of failing the webhook
	// when the provider call fails.
	FallbackMessage string
	// CompletionTimeout bounds each provider call. It also bounds the wait
	// for another in-flight message of the same conversation.
	CompletionTimeout time.Duration
}

// Relay is the webhook relay state machine.
type Relay struct {
	cfg       Config
	completer Completer
	replier   Replier
	store     history.Store
	ledger    Ledger
	logger    *slog.Logger

	// inflight holds the keys of events being handled right now. Together
	// with the ledger it keeps a redelivery that overlaps the original from
	// being answered twice.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithLedger enables redelivery dedupe.
func WithLedger(l Ledger) Option {
	return func(r *Relay) { r.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New creates a Relay.
func New(cfg Config, completer Completer, replier Replier, store history.Store, opts ...Option) *Relay {
	if cfg.Mode == "" {
		cfg.Mode = history.ModePerUser
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}
	if store == nil {
		store = history.NewMemory()
	}

	r := &Relay{
		cfg:       cfg,
		completer: completer,
		replier:   replier,
		store:     store,
		logger:    log.WithComponent("relay"),
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleEvents processes one webhook delivery. Events are handled in order.
// A failed event does not stop the ones after it; the failures are joined in
// the returned error.
func (r *Relay) HandleEvents(ctx context.Context, events []Event) error {
	var errs []error
	for i, ev := range events {
		if !ev.IsText() {
			r.logger.Debug("skipping unsupported event", "index", i, "type", ev.Type, "message_type", ev.MessageType)
			continue
		}
		if err := r.handle(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Relay) handle(ctx context.Context, ev Event) error {
	logger := r.logger.With(log.User(ev.UserID), "event_id", ev.ID)
	key := ev.Key()

	if r.ledger != nil {
		if !r.claim(key) {
			logger.Info("skipping event that is already being answered", "redelivery", ev.Redelivery)
			return nil
		}
		defer r.release(key)

		seen, err := r.ledger.Seen(ctx, key)
		switch {
		case err != nil:
			logger.Warn("ledger lookup failed, handling event anyway", "error", err)
		case seen:
			logger.Info("skipping event that was already answered", "redelivery", ev.Redelivery)
			return nil
		}
	}

	reply, err := r.Converse(ctx, ev.UserID, ev.Text)
	if err != nil {
		if r.cfg.FallbackMessage == "" || !errors.Is(err, ErrCompletionProvider) {
			logger.Error("completion failed", "error", err)
			return err
		}
		logger.Warn("completion failed, replying with fallback", "error", err)
		reply = r.cfg.FallbackMessage
	}

	if err := r.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		logger.Error("reply not delivered", "error", fmt.Errorf("%w: %w", ErrReplyDelivery, err))
	} else {
		logger.Info("reply sent", "chars", len([]rune(reply)))
	}

	if r.ledger != nil {
		if err := r.ledger.Record(ctx, key, ev.UserID); err != nil {
			logger.Warn("ledger record failed", "error", err)
		}
	}
	return nil
}

// claim marks key as in flight. It reports false if it already was.
func (r *Relay) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[key]; ok {
		return false
	}
	r.inflight[key] = struct{}{}
	return true
}

func (r *Relay) release(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// Converse runs the completion step for one message and returns the reply
// text. In the stored history modes the user and assistant turns are appended
// only when the provider call succeeds.
func (r *Relay) Converse(ctx context.Context, userID, text string) (string, error) {
	key, keep := r.cfg.Mode.Key(userID)
	if !keep {
		turn, err := r.complete(ctx, []history.Turn{history.User(text)})
		if err != nil {
			return "", err
		}
		return turn.Content, nil
	}

	// Only the wait for the conversation is bounded here; the provider call
	// below runs under ctx with its own timeout.
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.CompletionTimeout)
	defer cancel()

	var (
		reply    string
		acquired bool
	)
	err := r.store.Update(waitCtx, key, func(turns []history.Turn) ([]history.Turn, error) {
		acquired = true
		turns = append(turns, history.User(text))
		turn, err := r.complete(ctx, turns)
		if err != nil {
			return nil, err
		}
		reply = turn.Content
		return append(turns, turn), nil
	})
	if err != nil {
		if !acquired {
			return "", fmt.Errorf("wait for conversation: %w", err)
		}
		return "", err
	}
	return reply, nil
}

// complete prepends the system turn and calls the provider under the
// configured timeout.
func (r *Relay) complete(ctx context.Context, conversation []history.Turn) (history.Turn, error) {
	turns := make([]history.Turn, 0, len(conversation)+1)
	turns = append(turns, history.System(r.cfg.SystemPrompt))
	turns = append(turns, conversation...)

	cctx, cancel := context.WithTimeout(ctx, r.cfg.CompletionTimeout)
	defer cancel()

	start := time.Now()
	turn, err := r.completer.Complete(cctx, turns)
	if err != nil {
		return history.Turn{}, fmt.Errorf("%w: %w", ErrCompletionProvider, err)
	}
	r.logger.Debug("completion done", "turns", len(turns), "duration_ms", time.Since(start).Milliseconds())

	turn.Role = history.RoleAssistant
	return turn, nil
}

// History returns the stored turns for a sender under the configured mode.
func (r *Relay) History(userID string) []history.Turn {
	key, keep := r.cfg.Mode.Key(userID)
	if !keep {
		return nil
	}
	return r.store.Get(key)
}
