package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
	"github.com/arklim/pos-auth-gateway/internal/infra/logger"
)

// Delivery target labels.
const (
	TargetStore = "store"
	TargetKafka = "kafka"
)

const deliveryTimeout = 5 * time.Second

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("audit: dispatcher closed")

// Observer receives delivery outcomes for metrics.
type Observer interface {
	ObserveAuditDropped()
	ObserveAuditDeliveryFailure(target string)
}

type noopObserver struct{}

func (noopObserver) ObserveAuditDropped()               {}
func (noopObserver) ObserveAuditDeliveryFailure(string) {}

// Dispatcher is a bounded, asynchronous port.AuditSink. Record never blocks:
// when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	store     port.AuditEventStore
	publisher port.EventPublisher
	observer  Observer
	logger    *zap.Logger

	events chan dispatchItem
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type dispatchItem struct {
	event     domain.LoginAuditEvent
	requestID string
}

// NewDispatcher starts the delivery worker. Either target may be nil.
func NewDispatcher(store port.AuditEventStore, publisher port.EventPublisher, bufferSize int, observer Observer, log *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		store:     store,
		publisher: publisher,
		observer:  observer,
		logger:    log,
		events:    make(chan dispatchItem, bufferSize),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Record enqueues the event for delivery.
func (d *Dispatcher) Record(ctx context.Context, event domain.LoginAuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.observer.ObserveAuditDropped()
		return
	}

	item := dispatchItem{event: event, requestID: logger.RequestIDFromContext(ctx)}
	select {
	case d.events <- item:
	default:
		d.observer.ObserveAuditDropped()
		d.logger.Warn("audit buffer full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("identifier", logger.MaskIdentifier(event.Identifier)),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for item := range d.events {
		d.deliver(item)
	}
}

func (d *Dispatcher) deliver(item dispatchItem) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if item.requestID != "" {
		ctx = logger.WithRequestID(ctx, item.requestID)
	}
	log := logger.WithContext(ctx, d.logger)

	if d.store != nil {
		if err := d.store.Append(ctx, item.event); err != nil {
			d.observer.ObserveAuditDeliveryFailure(TargetStore)
			log.Warn("audit store append failed",
				zap.String("audit_id", item.event.ID),
				zap.Error(err),
			)
		}
	}

	if d.publisher != nil {
		if err := d.publisher.PublishLoginAudit(ctx, item.event); err != nil {
			d.observer.ObserveAuditDeliveryFailure(TargetKafka)
			log.Warn("audit publish failed",
				zap.String("audit_id", item.event.ID),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.AuditSink = (*Dispatcher)(nil)
