// Package event delivers cart engine signals to the outside world: Kafka,
// Prometheus and the log.
package event

import (
	"context"
	"log/slog"

	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/pkg/logger"
)

// Fanout forwards every signal to each notifier in order.
type Fanout []engine.Notifier

// Notify implements engine.Notifier.
func (f Fanout) Notify(ctx context.Context, s engine.Signal) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, s)
		}
	}
}

// LogNotifier writes one log line per signal.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

// Notify implements engine.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, s engine.Signal) {
	level := slog.LevelInfo
	if s.Kind == engine.SignalSyncFailed {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("signal", string(s.Kind)),
		slog.String("operation", s.Operation),
		slog.Any("product_ids", s.ProductIDs),
	}
	if s.Reason != "" {
		attrs = append(attrs, slog.String("reason", s.Reason))
	}
	if s.Order != nil {
		attrs = append(attrs, slog.String("order_id", s.Order.OrderID))
	}
	logger.WithContext(ctx, n.logger).LogAttrs(ctx, level, "cart signal", attrs...)
}
