package game

import (
	"fmt"
	"sort"
	"strings"
)

type Player struct {
	Slot         int
	Name         string
	Cash         int64
	Portfolio    map[Stock]int64
	Disconnected bool
}

func newPlayer(slot int, name string, cash int64) *Player {
	p := &Player{
		Slot:      slot,
		Name:      name,
		Cash:      cash,
		Portfolio: make(map[Stock]int64, len(Stocks)),
	}
	for _, s := range Stocks {
		p.Portfolio[s] = 0
	}
	return p
}

type session struct {
	slot int
	name string
	seq  uint64
}

// roster tracks seats. A slot is active once any identity has claimed it and
// connected while that identity holds a live session. An identity keeps its
// slot for the life of the game.
type roster struct {
	players    []*Player
	slots      map[string]int
	identities map[int]string
	sessions   map[string]*session
	joinSeq    uint64
	host       int
}

type joinOutcome struct {
	Slot             int
	Name             string
	Rejoined         bool
	AlreadyConnected bool
	BecameHost       bool
}

type disconnectOutcome struct {
	Slot        int
	Name        string
	HostChanged bool
	NewHost     int
	Remaining   int
}

func newRoster(size int) *roster {
	return &roster{
		players:    make([]*Player, size),
		slots:      make(map[string]int),
		identities: make(map[int]string),
		sessions:   make(map[string]*session),
		host:       -1,
	}
}

func (r *roster) size() int {
	return len(r.players)
}

// join attaches identity to a slot. requested < 0 means any free slot.
func (r *roster) join(identity, name string, requested int, cash int64, waiting bool) (joinOutcome, error) {
	if s, ok := r.sessions[identity]; ok {
		return joinOutcome{Slot: s.slot, Name: s.name, AlreadyConnected: true}, nil
	}

	if slot, ok := r.slots[identity]; ok {
		p := r.players[slot]
		p.Disconnected = false
		r.attach(identity, slot, p.Name)
		out := joinOutcome{Slot: slot, Name: p.Name, Rejoined: true}
		if r.host < 0 && waiting {
			r.host = slot
			out.BecameHost = true
		}
		return out, nil
	}

	slot := r.freeSlot(requested)
	if slot < 0 {
		return joinOutcome{}, ErrGameFull
	}
	assigned := r.uniqueName(name, slot)
	r.players[slot] = newPlayer(slot, assigned, cash)
	r.slots[identity] = slot
	r.identities[slot] = identity
	r.attach(identity, slot, assigned)

	out := joinOutcome{Slot: slot, Name: assigned}
	if r.host < 0 {
		r.host = slot
		out.BecameHost = true
	}
	return out, nil
}

func (r *roster) attach(identity string, slot int, name string) {
	r.joinSeq++
	r.sessions[identity] = &session{slot: slot, name: name, seq: r.joinSeq}
}

func (r *roster) freeSlot(requested int) int {
	if requested >= 0 && requested < len(r.players) && r.players[requested] == nil {
		return requested
	}
	for i, p := range r.players {
		if p == nil {
			return i
		}
	}
	return -1
}

func (r *roster) uniqueName(name string, slot int) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = fmt.Sprintf("Player %d", slot+1)
	}
	taken := make(map[string]bool, len(r.sessions))
	for _, s := range r.sessions {
		taken[s.name] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func (r *roster) disconnect(identity string) (disconnectOutcome, error) {
	s, ok := r.sessions[identity]
	if !ok {
		return disconnectOutcome{}, ErrNotInGame
	}
	delete(r.sessions, identity)
	r.players[s.slot].Disconnected = true

	out := disconnectOutcome{Slot: s.slot, Name: s.name, NewHost: r.host, Remaining: len(r.sessions)}
	if r.host == s.slot {
		r.host = r.earliestSessionSlot()
		out.HostChanged = true
		out.NewHost = r.host
	}
	return out, nil
}

func (r *roster) earliestSessionSlot() int {
	var first *session
	for _, s := range r.sessions {
		if first == nil || s.seq < first.seq {
			first = s
		}
	}
	if first == nil {
		return -1
	}
	return first.slot
}

func (r *roster) player(slot int) (*Player, bool) {
	if slot < 0 || slot >= len(r.players) || r.players[slot] == nil {
		return nil, false
	}
	return r.players[slot], true
}

func (r *roster) slotOf(identity string) (int, bool) {
	slot, ok := r.slots[identity]
	return slot, ok
}

func (r *roster) connected(slot int) bool {
	p, ok := r.player(slot)
	return ok && !p.Disconnected
}

func (r *roster) activeSlots() []int {
	out := make([]int, 0, len(r.players))
	for i, p := range r.players {
		if p != nil {
			out = append(out, i)
		}
	}
	return out
}

func (r *roster) activePlayers() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (r *roster) connectedSlots() []int {
	out := make([]int, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.slot)
	}
	sort.Ints(out)
	return out
}

func (r *roster) name(slot int) string {
	if p, ok := r.player(slot); ok {
		return p.Name
	}
	return fmt.Sprintf("Player %d", slot+1)
}
