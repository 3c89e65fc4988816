package hub

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry records every delivered event per handle and lets tests
// flip liveness without a real transport.
type fakeRegistry struct {
	mu     sync.Mutex
	dead   map[string]bool
	events map[string][]fakeEvent
}

type fakeEvent struct {
	typ  string
	data interface{}
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		dead:   make(map[string]bool),
		events: make(map[string][]fakeEvent),
	}
}

func (f *fakeRegistry) IsLive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[id]
}

func (f *fakeRegistry) Send(id, typ string, data interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[id] {
		return false
	}
	f.events[id] = append(f.events[id], fakeEvent{typ: typ, data: data})
	return true
}

func (f *fakeRegistry) kill(id string) {
	f.mu.Lock()
	f.dead[id] = true
	f.mu.Unlock()
}

func (f *fakeRegistry) eventsOf(id string) []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEvent, len(f.events[id]))
	copy(out, f.events[id])
	return out
}

func (f *fakeRegistry) ofType(id, typ string) []fakeEvent {
	out := []fakeEvent{}
	for _, e := range f.eventsOf(id) {
		if e.typ == typ {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

func TestMatchPairsOldestFirst(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")
	m.Enqueue("C")

	// A and B form the pair; C stays queued alone.
	pa, ok := m.Partner("A")
	require.True(t, ok)
	assert.Equal(t, "B", pa)
	pb, ok := m.Partner("B")
	require.True(t, ok)
	assert.Equal(t, "A", pb)

	_, ok = m.Partner("C")
	assert.False(t, ok)
	assert.True(t, m.Waiting("C"))

	// Exactly one matched notification each, with complementary roles.
	ma := reg.ofType("A", TypeMatched)
	mb := reg.ofType("B", TypeMatched)
	require.Len(t, ma, 1)
	require.Len(t, mb, 1)
	assert.Equal(t, MatchedData{PartnerID: "B", IsInitiator: true}, ma[0].data)
	assert.Equal(t, MatchedData{PartnerID: "A", IsInitiator: false}, mb[0].data)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("A")
	m.Enqueue("A")

	// A single queue entry: no self-pairing ever happens.
	_, ok := m.Partner("A")
	assert.False(t, ok)
	assert.True(t, m.Waiting("A"))

	m.Enqueue("B")
	require.Len(t, reg.ofType("A", TypeMatched), 1)
}

func TestEnqueueWhilePartneredIsNoop(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")

	m.Enqueue("A")
	assert.False(t, m.Waiting("A"))

	// The partnership is untouched.
	p, ok := m.Partner("A")
	require.True(t, ok)
	assert.Equal(t, "B", p)
}

func TestNextPartnerTearsDownAndRequeues(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")

	m.Next("A")

	// Pairing is gone, B was told, A waits again, B doesn't.
	_, ok := m.Partner("A")
	assert.False(t, ok)
	_, ok = m.Partner("B")
	assert.False(t, ok)
	require.Len(t, reg.ofType("B", TypePartnerLeft), 1)
	assert.True(t, m.Waiting("A"))
	assert.False(t, m.Waiting("B"))
}

func TestTeardownIsIdempotent(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")

	m.Teardown("A")
	before := len(reg.eventsOf("B"))
	m.Teardown("A")

	assert.Equal(t, before, len(reg.eventsOf("B")))
	_, ok := m.Partner("B")
	assert.False(t, ok)
}

func TestDisconnectWhileQueuedIsSilent(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Teardown("A")

	assert.False(t, m.Waiting("A"))
	assert.Empty(t, reg.eventsOf("A"))
	assert.Empty(t, reg.eventsOf("B"))
}

func TestStaleQueueEntriesAreDiscarded(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	reg.kill("A")

	// B alone can't pair with the dead A; C completes the pair.
	m.Enqueue("B")
	_, ok := m.Partner("B")
	assert.False(t, ok)

	m.Enqueue("C")
	p, ok := m.Partner("B")
	require.True(t, ok)
	assert.Equal(t, "C", p)
	assert.Empty(t, reg.ofType("A", TypeMatched))
}

func TestRelayPreservesOrder(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")

	payloads := []string{`{"offer":{"sdp":"p1"}}`, `{"candidate":"p2"}`, `{"candidate":"p3"}`}
	for _, p := range payloads {
		m.Relay("A", json.RawMessage(p))
	}

	got := reg.ofType("B", TypeSignal)
	require.Len(t, got, 3)
	for i, p := range payloads {
		assert.Equal(t, json.RawMessage(p), got[i].data)
	}
}

func TestRelayWithoutPartnerDrops(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Relay("A", json.RawMessage(`{"offer":{}}`))
	assert.Empty(t, reg.eventsOf("A"))

	// After teardown, leftover signals from A must not reach B.
	m.Enqueue("A")
	m.Enqueue("B")
	m.Teardown("B")
	m.Relay("A", json.RawMessage(`{"candidate":{}}`))
	assert.Empty(t, reg.ofType("B", TypeSignal))
}

func TestRepairingAfterNext(t *testing.T) {
	reg := newFakeRegistry()
	m := NewMatchmaker(reg, testLogger())

	m.Enqueue("A")
	m.Enqueue("B")
	m.Next("A")

	// B asks for a new partner and meets A again; either side may
	// initiate but the pairing must be symmetric and single.
	m.Enqueue("B")
	pa, ok := m.Partner("A")
	require.True(t, ok)
	pb, ok := m.Partner("B")
	require.True(t, ok)
	assert.Equal(t, "B", pa)
	assert.Equal(t, "A", pb)
	assert.False(t, m.Waiting("A"))
	assert.False(t, m.Waiting("B"))
}
