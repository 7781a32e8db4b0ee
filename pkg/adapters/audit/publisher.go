package audit

import (
	"context"
	"sync"

	"github.com/aretw0/authtree/pkg/domain"
)

// Publisher implements ports.AuditPublisher on top of a Sink.
//
// Every topic is audited unless filters say otherwise. A realm with its own topic
// list overrides the default list; an empty default list audits all topics.
type Publisher struct {
	sink Sink

	mu       sync.RWMutex
	defaults map[string]bool
	realms   map[string]map[string]bool
	disabled map[string]bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTopics restricts auditing to topics in every realm without its own list.
func WithTopics(topics ...string) PublisherOption {
	return func(p *Publisher) {
		p.defaults = toSet(topics)
	}
}

// WithRealmTopics restricts auditing in realm to topics.
func WithRealmTopics(realm string, topics ...string) PublisherOption {
	return func(p *Publisher) {
		p.realms[realm] = toSet(topics)
	}
}

// WithDisabledEvents suppresses the named events everywhere.
func WithDisabledEvents(names ...string) PublisherOption {
	return func(p *Publisher) {
		for _, n := range names {
			p.disabled[n] = true
		}
	}
}

// NewPublisher creates a publisher writing to sink.
func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	if sink == nil {
		sink = NoOpSink{}
	}
	p := &Publisher{
		sink:     sink,
		realms:   make(map[string]map[string]bool),
		disabled: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetRealmTopics replaces the topic filter of realm at runtime. No topics removes the override.
func (p *Publisher) SetRealmTopics(realm string, topics ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(topics) == 0 {
		delete(p.realms, realm)
		return
	}
	p.realms[realm] = toSet(topics)
}

// IsAuditing reports whether eventName on topic is audited for realm.
func (p *Publisher) IsAuditing(realm, topic, eventName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.disabled[eventName] {
		return false
	}
	if topics, ok := p.realms[realm]; ok {
		return topics[topic]
	}
	if len(p.defaults) == 0 {
		return true
	}
	return p.defaults[topic]
}

// Publish hands event to the sink.
func (p *Publisher) Publish(ctx context.Context, topic string, event domain.AuditEvent) error {
	return p.sink.Emit(ctx, Record{Topic: topic, AuditEvent: event})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
