package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/engine"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Topics for cart signals.
var (
	TopicSyncFailed    = pkgkafka.Topic("cart", "sync_failed")
	TopicMergeConflict = pkgkafka.Topic("cart", "merge_conflict")
	TopicCheckedOut    = pkgkafka.Topic("cart", "checked_out")
)

const (
	aggregateTypeSession = "cart_session"
	source               = "storefront"
	publishTimeout       = 10 * time.Second
)

// SyncFailedData is the payload of storefront.cart.sync_failed.
type SyncFailedData struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Operation  string    `json:"operation"`
	ProductIDs []string  `json:"product_ids,omitempty"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// MergeConflictData is the payload of storefront.cart.merge_conflict.
type MergeConflictData struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id,omitempty"`
	ProductID      string    `json:"product_id"`
	LocalQuantity  int       `json:"local_quantity"`
	RemoteQuantity int       `json:"remote_quantity"`
	MergedQuantity int       `json:"merged_quantity"`
	At             time.Time `json:"at"`
}

// CheckedOutData is the payload of storefront.cart.checked_out.
type CheckedOutData struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id,omitempty"`
	OrderID    string          `json:"order_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ProductIDs []string        `json:"product_ids"`
	At         time.Time       `json:"at"`
}

// Publisher writes events to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

var droppedSignals = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "storefront_cart_signals_dropped_total",
	Help: "Signals not published to Kafka because the publish queue was full",
})

func init() {
	prometheus.MustRegister(droppedSignals)
}

type queued struct {
	ctx   context.Context
	topic string
	event *pkgkafka.Event
}

// KafkaNotifier publishes signals to Kafka from a background worker so a
// slow broker never holds up a cart operation. When the queue is full the
// signal is dropped and counted.
type KafkaNotifier struct {
	publisher Publisher
	logger    *slog.Logger
	queue     chan queued
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewKafkaNotifier starts the publish worker. Call Close to drain it.
func NewKafkaNotifier(p Publisher, l *slog.Logger, queueSize int) *KafkaNotifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	n := &KafkaNotifier{publisher: p, logger: l, queue: make(chan queued, queueSize)}
	n.wg.Add(1)
	go n.run()
	return n
}

// Notify implements engine.Notifier.
func (n *KafkaNotifier) Notify(ctx context.Context, s engine.Signal) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, q := range n.events(ctx, s) {
		select {
		case n.queue <- q:
		default:
			droppedSignals.Inc()
			n.logger.WarnContext(ctx, "signal queue full, dropping event",
				slog.String("topic", q.topic),
				slog.String("event_id", q.event.EventID),
			)
		}
	}
}

// Close stops accepting signals and waits until queued ones are published.
func (n *KafkaNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *KafkaNotifier) run() {
	defer n.wg.Done()
	for q := range n.queue {
		ctx, cancel := context.WithTimeout(q.ctx, publishTimeout)
		if err := n.publisher.Publish(ctx, q.topic, q.event); err != nil {
			n.logger.ErrorContext(ctx, "failed to publish cart signal",
				slog.String("topic", q.topic),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// events builds the envelopes for one signal. A merge conflict yields one
// event per product.
func (n *KafkaNotifier) events(ctx context.Context, s engine.Signal) []queued {
	userID := logger.UserIDFromContext(ctx)
	// The request may end before the worker gets to the event; keep its
	// values but not its deadline.
	detached := context.WithoutCancel(ctx)

	var out []queued
	add := func(topic, eventType string, data any) {
		evt, err := pkgkafka.NewEvent(eventType, s.SessionID, aggregateTypeSession, source, data)
		if err != nil {
			n.logger.ErrorContext(ctx, "failed to build cart event", slog.String("error", err.Error()))
			return
		}
		evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).WithMetadata("operation", s.Operation)
		out = append(out, queued{ctx: detached, topic: topic, event: evt})
	}

	switch s.Kind {
	case engine.SignalSyncFailed:
		add(TopicSyncFailed, "cart.sync_failed", SyncFailedData{
			SessionID:  s.SessionID,
			UserID:     userID,
			Operation:  s.Operation,
			ProductIDs: s.ProductIDs,
			Reason:     s.Reason,
			At:         s.At,
		})
	case engine.SignalMergeConflict:
		for _, pid := range s.ProductIDs {
			add(TopicMergeConflict, "cart.merge_conflict", MergeConflictData{
				SessionID:      s.SessionID,
				UserID:         userID,
				ProductID:      pid,
				LocalQuantity:  s.LocalQuantity,
				RemoteQuantity: s.RemoteQuantity,
				MergedQuantity: s.MergedQuantity,
				At:             s.At,
			})
		}
	case engine.SignalCheckedOut:
		data := CheckedOutData{SessionID: s.SessionID, UserID: userID, ProductIDs: s.ProductIDs, At: s.At}
		if s.Order != nil {
			data.OrderID = s.Order.OrderID
			data.TotalPrice = s.Order.TotalPrice
		}
		add(TopicCheckedOut, "cart.checked_out", data)
	}
	return out
}
