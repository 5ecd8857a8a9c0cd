package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Publisher captures structured audit events. It is append-only and writes
// through the Store interface so tests can swap sinks easily. In async mode
// events are buffered and persisted by a background worker; Close drains the
// buffer.
type Publisher struct {
	store  Store
	sink   Sink
	log    zerolog.Logger
	inbox  chan Event
	doneCh chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to buffered asynchronous
// persistence with the given capacity. Emit then never blocks on the store;
// when the buffer is full the event is dropped and logged.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

// WithSink mirrors every event to an out-of-process sink.
func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sink = sink }
}

// WithLogger sets the failure logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// NewPublisher builds a Publisher over store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.doneCh = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. In sync mode store failures are returned; in async
// mode Emit only fails when the publisher is closed.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.log.Warn().Str("action", string(event.Action)).Msg("audit buffer full, event dropped")
		}
		return nil
	}
	return p.persist(ctx, event)
}

// List returns events recorded for one record id.
func (p *Publisher) List(ctx context.Context, recordID string) ([]Event, error) {
	return p.store.ListByRecord(ctx, recordID)
}

// Close stops the async worker after draining buffered events. A nil-op in
// sync mode.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	close(p.inbox)
	<-p.doneCh
}

func (p *Publisher) drain() {
	defer close(p.doneCh)
	for event := range p.inbox {
		if err := p.persist(context.Background(), event); err != nil {
			p.log.Error().Err(err).Str("action", string(event.Action)).Msg("audit append failed")
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) error {
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.log.Warn().Err(err).Str("action", string(event.Action)).Msg("audit sink publish failed")
		}
	}
	return p.store.Append(ctx, event)
}
