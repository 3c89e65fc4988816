package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Registry exposes the connection registry operations the matchmaker
// needs: liveness checks and event delivery. The Hub implements it;
// tests substitute their own.
type Registry interface {
	IsLive(id string) bool
	Send(id, typ string, data interface{}) bool
}

// Matchmaker owns the pairing queue and the partner map for the 1:1
// random chat. All state lives behind one mutex; every operation is an
// atomic step. Callers must never invoke it while holding the Hub's
// lock, as notifications call back into the registry.
type Matchmaker struct {
	mu       sync.Mutex
	queue    []string
	waiting  map[string]struct{}
	partners map[string]string

	reg Registry
	log *log.Logger
}

// NewMatchmaker returns a new instance of Matchmaker.
func NewMatchmaker(reg Registry, l *log.Logger) *Matchmaker {
	return &Matchmaker{
		waiting:  make(map[string]struct{}),
		partners: make(map[string]string),
		reg:      reg,
		log:      l,
	}
}

// Enqueue places a handle in the pairing queue and attempts a match.
// It is idempotent and a no-op while the handle is partnered.
func (m *Matchmaker) Enqueue(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueLocked(id)
	m.tryMatchLocked()
}

// Next tears down the caller's current partnership, re-enqueues the
// caller and attempts a match, all as one step. The abandoned partner
// is notified but not re-enqueued.
func (m *Matchmaker) Next(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(id)
	m.enqueueLocked(id)
	m.tryMatchLocked()
}

// Teardown removes the handle from the partner map and the queue and
// notifies a surviving partner. Safe to call any number of times.
func (m *Matchmaker) Teardown(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(id)
}

// Relay forwards an opaque negotiation payload to the sender's current
// partner. The payload is never inspected. If the sender has no
// partner the payload is dropped silently; teardown already told the
// sender that the partner left.
func (m *Matchmaker) Relay(from string, payload json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[from]
	if !ok {
		return
	}
	m.reg.Send(p, TypeSignal, payload)
}

// Partner returns the current partner of the given handle, if any.
func (m *Matchmaker) Partner(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	return p, ok
}

// Waiting reports whether the handle is queued.
func (m *Matchmaker) Waiting(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.waiting[id]
	return ok
}

func (m *Matchmaker) enqueueLocked(id string) {
	// A partnered handle never queues; callers tear down first.
	if _, ok := m.partners[id]; ok {
		return
	}
	if _, ok := m.waiting[id]; ok {
		return
	}
	m.queue = append(m.queue, id)
	m.waiting[id] = struct{}{}
}

// tryMatchLocked pairs the two oldest live entries in the queue until
// fewer than two remain. The first popped becomes the initiator.
func (m *Matchmaker) tryMatchLocked() {
	for {
		a, ok := m.popLiveLocked()
		if !ok {
			return
		}
		b, ok := m.popLiveLocked()
		if !ok {
			// Put the survivor back at the head so it keeps its
			// position for the next attempt.
			m.queue = append([]string{a}, m.queue...)
			m.waiting[a] = struct{}{}
			return
		}

		m.partners[a] = b
		m.partners[b] = a
		m.reg.Send(a, TypeMatched, MatchedData{PartnerID: b, IsInitiator: true})
		m.reg.Send(b, TypeMatched, MatchedData{PartnerID: a, IsInitiator: false})
		m.log.Printf("paired %s with %s", a, b)
	}
}

// popLiveLocked pops the oldest queued handle that is still connected,
// discarding stale entries on the way.
func (m *Matchmaker) popLiveLocked() (string, bool) {
	for len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		delete(m.waiting, id)
		if m.reg.IsLive(id) {
			return id, true
		}
	}
	return "", false
}

func (m *Matchmaker) teardownLocked(id string) {
	if p, ok := m.partners[id]; ok {
		delete(m.partners, id)

		// The reverse entry must point back at us. Anything else is a
		// broken invariant worth shouting about.
		if q, ok := m.partners[p]; ok && q != id {
			m.log.Printf("BUG: asymmetric partnership: %s->%s but %s->%s", id, p, p, q)
		} else {
			delete(m.partners, p)
		}

		if m.reg.IsLive(p) {
			m.reg.Send(p, TypePartnerLeft, nil)
		}
	}

	// Normally mutually exclusive with being partnered; disconnects
	// can hit either state.
	m.removeFromQueueLocked(id)
}

func (m *Matchmaker) removeFromQueueLocked(id string) {
	if _, ok := m.waiting[id]; !ok {
		return
	}
	delete(m.waiting, id)
	for i, q := range m.queue {
		if q == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}
