package app

import (
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-room-service/internal/domain"
)

type timerKind int

const (
	timerDeadline timerKind = iota + 1
	timerReveal
)

func (k timerKind) String() string {
	if k == timerDeadline {
		return "deadline"
	}
	return "reveal"
}

// pendingTimer is the room's single outstanding timer. gen identifies the arming; a firing whose
// generation no longer matches is stale.
type pendingTimer struct {
	gen   uint64
	kind  timerKind
	timer clockwork.Timer
}

type timerFired struct {
	gen  uint64
	kind timerKind
}

// arm replaces any outstanding timer with a new one.
func (r *Room) arm(kind timerKind, d time.Duration) {
	r.cancelPending()
	r.gen++
	gen := r.gen
	t := r.clock.AfterFunc(d, func() {
		if !r.owner.owns(r) {
			return
		}
		r.post(timerFired{gen: gen, kind: kind})
	})
	r.pending = &pendingTimer{gen: gen, kind: kind, timer: t}
}

func (r *Room) cancelPending() {
	if r.pending == nil {
		return
	}
	r.pending.timer.Stop()
	r.pending = nil
}

func (r *Room) onTimer(m timerFired) {
	if r.pending == nil || r.pending.gen != m.gen {
		r.log.Debug().Stringer("timer", m.kind).Msg("stale timer ignored")
		return
	}
	switch m.kind {
	case timerDeadline:
		r.settle()
	case timerReveal:
		r.advance()
	}
}

// maybeStart opens the first round once every seated player is ready and there is an opponent.
func (r *Room) maybeStart() {
	if r.phase != domain.PhaseWaiting || len(r.seats) < 2 {
		return
	}
	for _, s := range r.seats {
		if !r.ready[s.player.ID] {
			return
		}
	}
	r.log.Info().Int("players", len(r.seats)).Str("mode", string(r.mode)).Msg("match started")
	r.broadcast(domain.EventGameStart, domain.GameStart{RoomID: r.id})
	r.startRound()
}

// startRound enters Active with a fresh question and ledger.
func (r *Room) startRound() {
	q := r.bank.Pick(r.subject)
	r.question = &q
	r.answers = newAnswerLedger()
	r.round++
	r.phase = domain.PhaseActive
	r.roundStartedAt = r.clock.Now()
	r.arm(timerDeadline, r.rules.Deadline)
	r.broadcast(domain.EventNewQuestion, q.Public(r.round, r.rules.Deadline.Milliseconds()))
}

func (r *Room) submit(playerID string, answerIndex int) {
	if r.phase != domain.PhaseActive || r.indexOf(playerID) < 0 {
		r.log.Debug().Str("player", playerID).Str("phase", string(r.phase)).Msg("submission dropped")
		return
	}
	elapsed := r.clock.Since(r.roundStartedAt)
	if !r.answers.record(Submission{PlayerID: playerID, AnswerIndex: answerIndex, Elapsed: elapsed}) {
		r.log.Debug().Str("player", playerID).Msg("duplicate submission dropped")
		return
	}
	if r.answers.complete(r.players()) {
		r.settle()
	}
}

// settle moves Active to Revealing: misses are synthesized, the policy runs, and the result is
// broadcast exactly once.
func (r *Room) settle() {
	if r.phase != domain.PhaseActive {
		return
	}
	r.cancelPending()

	answers := r.answers.close(r.players(), r.rules.Deadline)
	outcome := r.policy.Settle(r.question.CorrectIndex, answers)
	for id, delta := range outcome.Deltas {
		if current, ok := r.scores[id]; ok {
			r.scores[id] = r.policy.Apply(current, delta)
		}
	}

	result := domain.RoundResult{
		Round:         r.round,
		QuestionID:    r.question.ID,
		CorrectAnswer: r.question.CorrectIndex,
		PlayerAnswers: r.answers.answers(),
		Combat:        outcome.Combat,
	}
	if r.mode == domain.ModeCombat {
		result.Players = r.views()
	} else {
		result.Scores = r.scoreCopy()
		result.Awarded = outcome.Deltas
	}

	r.phase = domain.PhaseRevealing
	r.arm(timerReveal, r.rules.Reveal)
	r.broadcast(domain.EventRoundResult, result)
}

// advance runs when the reveal pause is over.
func (r *Room) advance() {
	if r.phase != domain.PhaseRevealing {
		return
	}
	r.pending = nil
	if r.policy.IsGameOver(r.scores) {
		r.finish()
		return
	}
	r.startRound()
}

// finish is the single transition into Finished.
func (r *Room) finish() {
	if r.phase == domain.PhaseFinished {
		return
	}
	r.cancelPending()
	r.phase = domain.PhaseFinished
	r.question = nil

	over := domain.GameOver{Winners: r.leaders()}
	if r.mode == domain.ModeCombat {
		over.FinalPlayers = r.views()
	} else {
		over.FinalScores = r.scoreCopy()
	}
	r.log.Info().Int("rounds", r.round).Strs("winners", over.Winners).Msg("match finished")
	r.broadcast(domain.EventGameOver, over)
}
