package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"trivia-room-service/internal/domain"
)

// mapStore is a minimal RoomStore; the real ones live in infra and import this package.
type mapStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newMapStore() *mapStore {
	return &mapStore{rooms: make(map[string]*Room)}
}

func (s *mapStore) Insert(_ context.Context, r *Room) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.id]; ok {
		return false, nil
	}
	s.rooms[r.id] = r
	return true, nil
}

func (s *mapStore) Get(id string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *mapStore) Delete(id string, r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[id] == r {
		delete(s.rooms, id)
	}
}

func (s *mapStore) All() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

func (s *mapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// fixedBank serves one question per subject.
type fixedBank map[string]domain.Question

func (b fixedBank) Subject(raw string) (string, bool) {
	_, ok := b[raw]
	return raw, ok
}

func (b fixedBank) Pick(subject string) domain.Question {
	return b[subject]
}

var htmlQuestion = domain.Question{
	ID:           "html-1",
	Category:     "HTML",
	Prompt:       "Which element creates a hyperlink?",
	Options:      []string{"<link>", "<nav>", "<a>", "<href>"},
	CorrectIndex: 2,
}

const wrongAnswer = 0

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Send(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ domain.EventType) (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return domain.Event{}, false
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// harness drives a room on the test goroutine: messages are handled synchronously and timer
// firings are pulled off the inbox after advancing the fake clock.
type harness struct {
	t     *testing.T
	clock *clockwork.FakeClock
	store *mapStore
	g     *Registry
	sinks map[string]*recorder
}

func newHarness(t *testing.T, rules Rules) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClock(),
		store: newMapStore(),
		sinks: make(map[string]*recorder),
	}
	next := 0
	h.g = NewRegistry(h.store, fixedBank{"html": htmlQuestion}, rules,
		WithClock(h.clock),
		WithCodeGenerator(func(width int) (string, error) {
			next++
			return fmt.Sprintf("%0*d", width, next), nil
		}),
	)
	return h
}

func (h *harness) sink(id string) *recorder {
	if s, ok := h.sinks[id]; ok {
		return s
	}
	s := &recorder{}
	h.sinks[id] = s
	return s
}

func player(id string) domain.Player {
	return domain.Player{ID: id, DisplayName: "Player " + id}
}

// open creates a room seating creator without starting its goroutine.
func (h *harness) open(mode domain.Mode, capacity int, creator string) *Room {
	h.t.Helper()
	spec, policy, err := h.g.resolve(RoomSpec{Capacity: capacity, Subject: "html", Mode: mode})
	require.NoError(h.t, err)
	r, err := h.g.allocate(context.Background(), spec, policy, player(creator), h.sink(creator))
	require.NoError(h.t, err)
	h.g.seat(creator, r.id)
	return r
}

func (h *harness) join(r *Room, id string) error {
	reply := make(chan joinReply, 1)
	r.handle(joinCmd{player: player(id), sink: h.sink(id), reply: reply})
	return (<-reply).err
}

func (h *harness) readyAll(r *Room, ids ...string) {
	for _, id := range ids {
		r.handle(readyCmd{playerID: id})
	}
}

func (h *harness) answer(r *Room, id string, idx int) {
	r.handle(submitCmd{playerID: id, answerIndex: idx})
}

func (h *harness) leave(r *Room, id string) {
	done := make(chan struct{})
	r.handle(leaveCmd{playerID: id, done: done})
	<-done
}

// fire advances the clock and handles the timer message it produces.
func (h *harness) fire(r *Room, d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	select {
	case msg := <-r.inbox:
		r.handle(msg)
	case <-time.After(time.Second):
		h.t.Fatalf("no timer fired after advancing %s", d)
	}
}

// quiet asserts that advancing the clock produces no room message.
func (h *harness) quiet(r *Room, d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	select {
	case msg := <-r.inbox:
		h.t.Fatalf("unexpected message %T", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func lastPayload[T any](t *testing.T, s *recorder, typ domain.EventType) T {
	t.Helper()
	ev, ok := s.last(typ)
	require.True(t, ok, "no %s event", typ)
	payload, ok := ev.Payload.(T)
	require.True(t, ok, "unexpected %s payload %T", typ, ev.Payload)
	return payload
}
