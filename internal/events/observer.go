// Package events provides the subscription registry mediating between the
// trading API's push stream and internal consumers. Handlers for a topic
// fire synchronously in registration order; there is no ordering guarantee
// across topics.
package events

import "sync"

// Handler receives a topic payload.
type Handler func(payload any)

// Option configures a registration.
type Option func(*registration)

// Once removes the handler after its first delivery.
func Once() Option {
	return func(r *registration) { r.once = true }
}

// Group tags the handler so UnregisterGroup can drop every handler
// registered for one purchase cycle in a single call.
func Group(name string) Option {
	return func(r *registration) { r.group = name }
}

// UnregisterTopics drops all handlers on the listed topics when this
// handler fires. Used by one-shot history subscriptions that supersede
// the streams they replace.
func UnregisterTopics(topics ...string) Option {
	return func(r *registration) { r.unregisterTopics = topics }
}

type registration struct {
	id               uint64
	topic            string
	group            string
	handler          Handler
	once             bool
	unregisterTopics []string
}

// Observer is the topic registry. The zero value is not usable; use New.
type Observer struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string][]*registration
}

// New creates an empty Observer.
func New() *Observer {
	return &Observer{topics: make(map[string][]*registration)}
}

// Register adds a handler for topic and returns its unregister function.
// The returned function is idempotent.
func (o *Observer) Register(topic string, handler Handler, opts ...Option) (unregister func()) {
	r := &registration{topic: topic, handler: handler}
	for _, opt := range opts {
		opt(r)
	}

	o.mu.Lock()
	o.nextID++
	r.id = o.nextID
	o.topics[topic] = append(o.topics[topic], r)
	o.mu.Unlock()

	id := r.id
	return func() { o.remove(topic, id) }
}

// IsRegistered reports whether topic has at least one handler.
func (o *Observer) IsRegistered(topic string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.topics[topic]) > 0
}

// Emit delivers payload to every current handler for topic, in
// registration order. Once-handlers are removed before their delivery so a
// re-entrant Emit cannot fire them twice.
func (o *Observer) Emit(topic string, payload any) {
	o.mu.Lock()
	regs := o.topics[topic]
	if len(regs) == 0 {
		o.mu.Unlock()
		return
	}
	// Snapshot so handlers may register/unregister without corrupting the
	// iteration. Once-handlers are dropped from the live list here.
	snapshot := make([]*registration, len(regs))
	copy(snapshot, regs)

	kept := regs[:0]
	for _, r := range regs {
		if !r.once {
			kept = append(kept, r)
		}
	}
	o.topics[topic] = kept
	o.mu.Unlock()

	for _, r := range snapshot {
		if len(r.unregisterTopics) > 0 {
			for _, t := range r.unregisterTopics {
				o.UnregisterAll(t)
			}
		}
		r.handler(payload)
	}
}

// UnregisterAll removes every handler for topic.
func (o *Observer) UnregisterAll(topic string) {
	o.mu.Lock()
	delete(o.topics, topic)
	o.mu.Unlock()
}

// UnregisterGroup removes every handler tagged with group, across all
// topics. Purchase cycles use this to atomically drop their handlers on
// settlement or stop.
func (o *Observer) UnregisterGroup(group string) {
	if group == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for topic, regs := range o.topics {
		kept := regs[:0]
		for _, r := range regs {
			if r.group != group {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(o.topics, topic)
		} else {
			o.topics[topic] = kept
		}
	}
}

func (o *Observer) remove(topic string, id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	regs := o.topics[topic]
	kept := regs[:0]
	for _, r := range regs {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(o.topics, topic)
	} else {
		o.topics[topic] = kept
	}
}
