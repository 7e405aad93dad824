package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// RoomStore abstracts where live rooms are indexed (in-memory, Redis-backed, etc).
type RoomStore interface {
	// Insert adds a room under its id and reports false if the id is taken.
	Insert(ctx context.Context, room *Room) (bool, error)
	Get(id string) (*Room, bool)
	// Delete removes the room only if id still maps to it.
	Delete(id string, room *Room)
	All() []*Room
	Len() int
}

// Refresher is implemented by stores whose entries expire unless touched.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RoomSpec describes a room to create or match into.
type RoomSpec struct {
	Capacity int
	Subject  string
	Mode     domain.Mode
}

// Registry owns the live rooms and routes player events to them.
type Registry struct {
	store RoomStore
	bank  QuestionBank
	rules Rules
	clock clockwork.Clock
	codes CodeGenerator

	mu    sync.Mutex
	seats map[string]string // player id -> room id
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for round timing.
func WithClock(c clockwork.Clock) Option {
	return func(g *Registry) { g.clock = c }
}

// WithCodeGenerator replaces the room code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(g *Registry) { g.codes = gen }
}

func NewRegistry(store RoomStore, bank QuestionBank, rules Rules, opts ...Option) *Registry {
	g := &Registry{
		store: store,
		bank:  bank,
		rules: rules,
		clock: clockwork.NewRealClock(),
		codes: RandomDigits,
		seats: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateRoom opens a Waiting room seating the creator and returns its code. A creator seated
// elsewhere leaves that room once the new one exists.
func (g *Registry) CreateRoom(ctx context.Context, spec RoomSpec, creator domain.Player, sink Sink) (string, error) {
	spec, policy, err := g.resolve(spec)
	if err != nil {
		return "", err
	}
	previous, _ := g.seatOf(creator.ID)

	room, err := g.allocate(ctx, spec, policy, creator, sink)
	if err != nil {
		return "", err
	}
	g.seat(creator.ID, room.id)

	snap := room.snapshot()
	sink.Send(domain.Event{Type: domain.EventJoined, Payload: domain.Joined{RoomID: room.id, PlayerID: creator.ID}})
	sink.Send(domain.Event{Type: domain.EventUpdateRoom, Payload: snap})
	go room.run()
	room.log.Info().Int("capacity", spec.Capacity).Str("subject", spec.Subject).Str("mode", string(spec.Mode)).Msg("room created")

	if previous != "" {
		g.RemovePlayer(ctx, previous, creator.ID)
	}
	return room.id, nil
}

// JoinRoom seats a player in an existing Waiting room.
func (g *Registry) JoinRoom(ctx context.Context, roomID string, p domain.Player, sink Sink) (domain.RoomSnapshot, error) {
	room, ok := g.store.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	previous, _ := g.seatOf(p.ID)
	snap, err := room.requestJoin(ctx, p, sink)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	if previous != "" && previous != roomID {
		g.RemovePlayer(ctx, previous, p.ID)
	}
	return snap, nil
}

// QuickMatch joins the oldest-coded Waiting room with the same capacity, subject and mode that
// still has a free seat, or creates one.
func (g *Registry) QuickMatch(ctx context.Context, spec RoomSpec, p domain.Player, sink Sink) (string, error) {
	spec, _, err := g.resolve(spec)
	if err != nil {
		return "", err
	}

	candidates := g.store.All()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })
	for _, room := range candidates {
		if room.capacity != spec.Capacity || room.subject != spec.Subject || room.mode != spec.Mode {
			continue
		}
		_, err := g.JoinRoom(ctx, room.id, p, sink)
		if err == nil {
			return room.id, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
	return g.CreateRoom(ctx, spec, p, sink)
}

// Ready marks the player ready. Unknown rooms are ignored.
func (g *Registry) Ready(roomID, playerID string) {
	room, ok := g.store.Get(roomID)
	if !ok {
		log.Debug().Str("room", roomID).Str("player", playerID).Msg("ready for unknown room dropped")
		return
	}
	room.post(readyCmd{playerID: playerID})
}

// SubmitAnswer records an answer for the current round. Out-of-phase and duplicate submissions
// are dropped without error.
func (g *Registry) SubmitAnswer(roomID, playerID string, answerIndex int) {
	room, ok := g.store.Get(roomID)
	if !ok {
		log.Debug().Str("room", roomID).Str("player", playerID).Msg("answer for unknown room dropped")
		return
	}
	room.post(submitCmd{playerID: playerID, answerIndex: answerIndex})
}

// RemovePlayer takes a player out of a room and waits until the room has applied it.
func (g *Registry) RemovePlayer(ctx context.Context, roomID, playerID string) {
	room, ok := g.store.Get(roomID)
	if !ok {
		g.unseat(playerID, roomID)
		return
	}
	room.requestLeave(ctx, playerID)
}

// Disconnect removes a player from whichever room seats them.
func (g *Registry) Disconnect(ctx context.Context, playerID string) {
	roomID, ok := g.seatOf(playerID)
	if !ok {
		return
	}
	g.RemovePlayer(ctx, roomID, playerID)
}

// Lookup finds a live room by exact code.
func (g *Registry) Lookup(roomID string) (*Room, bool) {
	return g.store.Get(roomID)
}

// Snapshot returns the state of one room.
func (g *Registry) Snapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, ok := g.store.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(ctx)
}

// List snapshots every live room, ordered by code.
func (g *Registry) List(ctx context.Context) []domain.RoomSnapshot {
	rooms := g.store.All()
	out := make([]domain.RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		snap, err := room.Snapshot(ctx)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of live rooms.
func (g *Registry) Len() int {
	return g.store.Len()
}

// RoomOf reports which room seats the player.
func (g *Registry) RoomOf(playerID string) (string, bool) {
	return g.seatOf(playerID)
}

// Heartbeat refreshes store liveness markers when the store supports it.
func (g *Registry) Heartbeat(ctx context.Context) error {
	log.Debug().Int("rooms", g.store.Len()).Msg("room heartbeat")
	if r, ok := g.store.(Refresher); ok {
		return r.Refresh(ctx)
	}
	return nil
}

// Close stops every room and cancels its timers.
func (g *Registry) Close(ctx context.Context) {
	for _, room := range g.store.All() {
		if !room.post(stopCmd{}) {
			continue
		}
		select {
		case <-room.done:
		case <-ctx.Done():
			return
		}
	}
}

func (g *Registry) resolve(spec RoomSpec) (RoomSpec, ScoringPolicy, error) {
	if spec.Mode == "" {
		spec.Mode = domain.ModeScore
	}
	policy, err := g.rules.Policy(spec.Mode)
	if err != nil {
		return spec, nil, err
	}
	if err := g.rules.validateCapacity(spec.Mode, spec.Capacity); err != nil {
		return spec, nil, err
	}
	subject, ok := g.bank.Subject(spec.Subject)
	if !ok {
		return spec, nil, fmt.Errorf("%w: %q", domain.ErrUnknownSubject, spec.Subject)
	}
	spec.Subject = subject
	return spec, policy, nil
}

// allocate reserves a fresh code for a new room with the creator already seated.
func (g *Registry) allocate(ctx context.Context, spec RoomSpec, policy ScoringPolicy, creator domain.Player, sink Sink) (*Room, error) {
	width := clampCodeWidth(g.rules.RoomCodeWidth)
	if int64(g.store.Len()) >= codeSpace(width)/2 {
		return nil, domain.ErrCodeSpaceExhausted
	}

	room := newRoom(spec, policy, g)
	room.addSeat(creator, sink)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.codes(width)
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		room.setID(code)
		inserted, err := g.store.Insert(ctx, room)
		if err != nil {
			return nil, fmt.Errorf("insert room: %w", err)
		}
		if inserted {
			return room, nil
		}
	}
	return nil, domain.ErrCodeSpaceExhausted
}

func (g *Registry) seatOf(playerID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roomID, ok := g.seats[playerID]
	return roomID, ok
}

func (g *Registry) owns(r *Room) bool {
	got, ok := g.store.Get(r.id)
	return ok && got == r
}

func (g *Registry) seat(playerID, roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seats[playerID] = roomID
}

func (g *Registry) unseat(playerID, roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seats[playerID] == roomID {
		delete(g.seats, playerID)
	}
}

func (g *Registry) release(r *Room) {
	g.store.Delete(r.id, r)
}

// IsValidation reports whether err is a caller-facing validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		domain.ErrRoomNotFound,
		domain.ErrRoomFull,
		domain.ErrAlreadyStarted,
		domain.ErrInvalidCapacity,
		domain.ErrUnknownSubject,
		domain.ErrUnknownMode,
		domain.ErrCodeSpaceExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
