// Package notify delivers exchange notifications to logs, RabbitMQ, and the stored inbox.
package notify

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger disables output.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (notifier *LogNotifier) Send(_ context.Context, notification exchange.Notification) error {
	fields := []zap.Field{
		zap.String("user_id", notification.UserID.String()),
		zap.String("kind", string(notification.Kind)),
		zap.String("title", notification.Title),
	}
	for key, value := range notification.Payload {
		fields = append(fields, zap.String(key, value))
	}
	notifier.logger.Info("notification", fields...)
	return nil
}

// Fanout delivers each notification to every notifier and joins their errors.
type Fanout []exchange.Notifier

// NewFanout drops nil notifiers.
func NewFanout(notifiers ...exchange.Notifier) Fanout {
	fanout := make(Fanout, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			fanout = append(fanout, notifier)
		}
	}
	return fanout
}

func (fanout Fanout) Send(ctx context.Context, notification exchange.Notification) error {
	var errs []error
	for _, notifier := range fanout {
		if err := notifier.Send(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
