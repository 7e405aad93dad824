package app

import (
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// Sink delivers events to one connected player. Send must not block.
type Sink interface {
	Send(domain.Event)
}

// QuestionBank is the read-only question catalog rooms draw from.
type QuestionBank interface {
	// Subject resolves a requested subject to its catalog key.
	Subject(raw string) (string, bool)
	// Pick returns a uniformly random question of a known subject.
	Pick(subject string) domain.Question
}

// roomOwner is the registry side a room reports back to.
type roomOwner interface {
	owns(r *Room) bool
	seat(playerID, roomID string)
	unseat(playerID, roomID string)
	release(r *Room)
}

const roomInboxSize = 256

type seat struct {
	player domain.Player
	sink   Sink
}

type joinCmd struct {
	player domain.Player
	sink   Sink
	reply  chan joinReply
}

type joinReply struct {
	snapshot domain.RoomSnapshot
	err      error
}

type readyCmd struct {
	playerID string
}

type submitCmd struct {
	playerID    string
	answerIndex int
}

type leaveCmd struct {
	playerID string
	done     chan struct{}
}

type snapshotCmd struct {
	reply chan domain.RoomSnapshot
}

type stopCmd struct{}

// Room is a single match. All mutable state is owned by the goroutine running run; other
// goroutines talk to it only through the inbox.
type Room struct {
	id       string
	capacity int
	subject  string
	mode     domain.Mode

	rules  Rules
	policy ScoringPolicy
	bank   QuestionBank
	clock  clockwork.Clock
	owner  roomOwner
	log    zerolog.Logger

	inbox chan any
	done  chan struct{}

	// Owned by the actor.
	seats          []seat
	ready          map[string]bool
	scores         map[string]int
	phase          domain.Phase
	question       *domain.Question
	answers        *answerLedger
	roundStartedAt time.Time
	round          int
	pending        *pendingTimer
	gen            uint64
	stopped        bool
}

func newRoom(spec RoomSpec, policy ScoringPolicy, g *Registry) *Room {
	return &Room{
		capacity: spec.Capacity,
		subject:  spec.Subject,
		mode:     spec.Mode,
		rules:    g.rules,
		policy:   policy,
		bank:     g.bank,
		clock:    g.clock,
		owner:    g,
		log:      log.Logger,
		inbox:    make(chan any, roomInboxSize),
		done:     make(chan struct{}),
		ready:    make(map[string]bool),
		scores:   make(map[string]int),
		phase:    domain.PhaseWaiting,
		answers:  newAnswerLedger(),
	}
}

// ID returns the room code.
func (r *Room) ID() string { return r.id }

// Done is closed once the room has been torn down.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) setID(id string) {
	r.id = id
	r.log = log.With().Str("room", id).Logger()
}

func (r *Room) run() {
	for !r.stopped {
		r.handle(<-r.inbox)
	}
}

func (r *Room) handle(msg any) {
	switch m := msg.(type) {
	case joinCmd:
		m.reply <- r.join(m.player, m.sink)
	case readyCmd:
		r.markReady(m.playerID)
	case submitCmd:
		r.submit(m.playerID, m.answerIndex)
	case leaveCmd:
		r.removePlayer(m.playerID)
		close(m.done)
	case snapshotCmd:
		m.reply <- r.snapshot()
	case timerFired:
		r.onTimer(m)
	case stopCmd:
		for _, s := range r.seats {
			r.owner.unseat(s.player.ID, r.id)
		}
		r.shutdown()
	}
}

// post enqueues a message unless the room is gone.
func (r *Room) post(msg any) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- msg:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) requestJoin(ctx context.Context, p domain.Player, sink Sink) (domain.RoomSnapshot, error) {
	reply := make(chan joinReply, 1)
	if !r.post(joinCmd{player: p, sink: sink, reply: reply}) {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	select {
	case res := <-reply:
		return res.snapshot, res.err
	case <-r.done:
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	case <-ctx.Done():
		return domain.RoomSnapshot{}, ctx.Err()
	}
}

func (r *Room) requestLeave(ctx context.Context, playerID string) {
	done := make(chan struct{})
	if !r.post(leaveCmd{playerID: playerID, done: done}) {
		return
	}
	select {
	case <-done:
	case <-r.done:
	case <-ctx.Done():
	}
}

// Snapshot returns the current room state as seen by clients.
func (r *Room) Snapshot(ctx context.Context) (domain.RoomSnapshot, error) {
	reply := make(chan domain.RoomSnapshot, 1)
	if !r.post(snapshotCmd{reply: reply}) {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.done:
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	case <-ctx.Done():
		return domain.RoomSnapshot{}, ctx.Err()
	}
}

func (r *Room) join(p domain.Player, sink Sink) joinReply {
	if r.indexOf(p.ID) >= 0 {
		return joinReply{snapshot: r.snapshot()}
	}
	if len(r.seats) >= r.capacity {
		return joinReply{err: domain.ErrRoomFull}
	}
	if r.phase != domain.PhaseWaiting {
		return joinReply{err: domain.ErrAlreadyStarted}
	}

	r.addSeat(p, sink)
	r.owner.seat(p.ID, r.id)
	snap := r.snapshot()
	sink.Send(domain.Event{Type: domain.EventJoined, Payload: domain.Joined{RoomID: r.id, PlayerID: p.ID}})
	r.broadcast(domain.EventUpdateRoom, snap)
	r.log.Debug().Str("player", p.ID).Int("players", len(r.seats)).Msg("player joined")
	return joinReply{snapshot: snap}
}

// addSeat appends a player and extends ready and score state in one step.
func (r *Room) addSeat(p domain.Player, sink Sink) {
	r.seats = append(r.seats, seat{player: p, sink: sink})
	r.ready[p.ID] = false
	r.scores[p.ID] = r.policy.Initial()
}

func (r *Room) markReady(playerID string) {
	if r.phase != domain.PhaseWaiting || r.indexOf(playerID) < 0 {
		r.log.Debug().Str("player", playerID).Str("phase", string(r.phase)).Msg("ready dropped")
		return
	}
	r.ready[playerID] = true
	r.broadcast(domain.EventUpdateRoom, r.snapshot())
	r.maybeStart()
}

func (r *Room) indexOf(playerID string) int {
	return slices.IndexFunc(r.seats, func(s seat) bool { return s.player.ID == playerID })
}

func (r *Room) players() []domain.Player {
	out := make([]domain.Player, len(r.seats))
	for i, s := range r.seats {
		out[i] = s.player
	}
	return out
}

func (r *Room) broadcast(typ domain.EventType, payload any) {
	ev := domain.Event{Type: typ, Payload: payload}
	for _, s := range r.seats {
		s.sink.Send(ev)
	}
}

func (r *Room) snapshot() domain.RoomSnapshot {
	return domain.RoomSnapshot{
		ID:       r.id,
		Capacity: r.capacity,
		Subject:  r.subject,
		Mode:     r.mode,
		Phase:    r.phase,
		Round:    r.round,
		Players:  r.views(),
	}
}

func (r *Room) views() []domain.PlayerView {
	views := make([]domain.PlayerView, 0, len(r.seats))
	for _, s := range r.seats {
		value := r.scores[s.player.ID]
		view := domain.PlayerView{Player: s.player, Ready: r.ready[s.player.ID]}
		if r.mode == domain.ModeCombat {
			view.Health = &value
		} else {
			view.Score = &value
		}
		views = append(views, view)
	}
	return views
}

func (r *Room) scoreCopy() map[string]int {
	out := make(map[string]int, len(r.scores))
	for id, v := range r.scores {
		out[id] = v
	}
	return out
}

// leaders returns the ids holding the highest value, in join order.
func (r *Room) leaders() []string {
	best := 0
	var ids []string
	for i, s := range r.seats {
		v := r.scores[s.player.ID]
		switch {
		case i == 0 || v > best:
			best, ids = v, []string{s.player.ID}
		case v == best:
			ids = append(ids, s.player.ID)
		}
	}
	return ids
}
