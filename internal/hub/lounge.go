package hub

import "sync"

// Lounge is the N-way group voice/video hangout. Unlike the 1:1
// pairing, membership is a flat set and negotiation payloads are
// addressed: each member keeps a peer connection per other member and
// signals them individually.
type Lounge struct {
	reg Registry

	mu      sync.Mutex
	members map[string]struct{}
}

// NewLounge returns a new instance of Lounge.
func NewLounge(reg Registry) *Lounge {
	return &Lounge{
		reg:     reg,
		members: make(map[string]struct{}),
	}
}

// Join adds a connection to the lounge. The joiner receives the list
// of existing members (it initiates an offer to each); everyone else
// learns about the newcomer and waits for its offer.
func (l *Lounge) Join(id string) {
	l.mu.Lock()
	if _, ok := l.members[id]; ok {
		l.mu.Unlock()
		return
	}
	others := make([]string, 0, len(l.members))
	for m := range l.members {
		others = append(others, m)
	}
	l.members[id] = struct{}{}
	l.mu.Unlock()

	l.reg.Send(id, TypeExistingUsers, ExistingUsersData{UserIDs: others})
	for _, m := range others {
		l.reg.Send(m, TypeUserJoined, UserJoinedData{NewUserID: id})
	}
}

// Leave removes a connection from the lounge and tells the remaining
// members to drop their peer connection to it.
func (l *Lounge) Leave(id string) {
	l.mu.Lock()
	if _, ok := l.members[id]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.members, id)
	rest := make([]string, 0, len(l.members))
	for m := range l.members {
		rest = append(rest, m)
	}
	l.mu.Unlock()

	for _, m := range rest {
		l.reg.Send(m, TypeUserLeft, UserLeftData{UserID: id})
	}
}

// Signal relays an addressed offer / answer / candidate between two
// lounge members, stamping the sender. Payload contents pass through
// untouched. Signals from or to non-members are dropped.
func (l *Lounge) Signal(from, typ string, sig loungeSignal) {
	to := sig.To

	l.mu.Lock()
	_, okFrom := l.members[from]
	_, okTo := l.members[to]
	l.mu.Unlock()
	if !okFrom || !okTo {
		return
	}

	sig.To = ""
	sig.From = from
	l.reg.Send(to, typ, sig)
}

// Members returns the current lounge membership.
func (l *Lounge) Members() []string {
	l.mu.Lock()
	out := make([]string, 0, len(l.members))
	for m := range l.members {
		out = append(out, m)
	}
	l.mu.Unlock()
	return out
}
