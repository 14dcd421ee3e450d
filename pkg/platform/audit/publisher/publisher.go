// Package publisher delivers audit events to a store and optional sinks.
// Sync by default; WithAsyncBuffer moves persistence off the hot path.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/audit"
)

type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger

	inbox     chan audit.Event
	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery with the given buffer size.
// When the buffer is full events are dropped rather than blocking the
// caller; audit must never stall a submission.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithSink adds an external delivery sink (e.g. Kafka).
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		go p.drain()
	} else {
		close(p.done)
	}
	return p
}

// Emit records an event. Missing timestamps are stamped here so callers
// don't have to.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
		return nil
	}

	return p.deliver(ctx, event)
}

// List reads events back from the store for a certificate.
func (p *Publisher) List(ctx context.Context, certID id.CertificateID) ([]audit.Event, error) {
	return p.store.ListByCertificate(ctx, certID)
}

// Close stops the async worker, draining any buffered events first.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
		}
	})
	<-p.done
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.deliver(context.Background(), event); err != nil {
			p.logger.Warn("audit delivery failed", "action", event.Action, "error", err)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			p.logger.Warn("audit sink delivery failed", "action", event.Action, "error", err)
		}
	}
	return nil
}
