// Package notify delivers operational alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spotarb/internal/model"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every sender. A failing sender does not stop
// delivery to the others.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. With no senders alerts are only logged.
func NewNotifier(logger *slog.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// AlertUnhedged reports a trade whose buy filled and whose sell did not.
func (n *Notifier) AlertUnhedged(ctx context.Context, t model.Trade) error {
	reason := "unknown"
	if t.Errors.Sell != nil {
		reason = t.Errors.Sell.Error()
	}
	msg := fmt.Sprintf("Trade %s bought %s %s on %s (order %s) but the sell on %s failed: %s",
		t.ID, t.Amount, t.Symbol, t.BuyVenue, t.BuyOrderID, t.SellVenue, reason)
	return n.dispatch(ctx, "Unhedged inventory", msg)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	n.logger.WarnContext(ctx, "alert", slog.String("title", title), slog.String("message", message))

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
