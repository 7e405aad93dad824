package app

import (
	"time"

	"trivia-room-service/internal/domain"
)

// NoAnswer is the answer index recorded for a player who did not submit in time.
const NoAnswer = -1

// Submission is one player's entry in a round ledger. Elapsed is measured server-side from the
// moment the question was broadcast.
type Submission struct {
	PlayerID    string
	AnswerIndex int
	Elapsed     time.Duration
	Missed      bool
}

// Correct reports whether the submission picked the correct option.
func (s Submission) Correct(correctIndex int) bool {
	return !s.Missed && s.AnswerIndex == correctIndex
}

// answerLedger holds at most one submission per player for the current round.
type answerLedger struct {
	entries map[string]Submission
}

func newAnswerLedger() *answerLedger {
	return &answerLedger{entries: make(map[string]Submission)}
}

// record stores a submission unless the player already answered this round.
func (l *answerLedger) record(s Submission) bool {
	if _, ok := l.entries[s.PlayerID]; ok {
		return false
	}
	l.entries[s.PlayerID] = s
	return true
}

func (l *answerLedger) has(playerID string) bool {
	_, ok := l.entries[playerID]
	return ok
}

func (l *answerLedger) drop(playerID string) {
	delete(l.entries, playerID)
}

func (l *answerLedger) len() int {
	return len(l.entries)
}

// complete reports whether every seated player has an entry.
func (l *answerLedger) complete(players []domain.Player) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !l.has(p.ID) {
			return false
		}
	}
	return true
}

// close synthesizes a missed entry for every seated player without one and returns the ledger
// in join order.
func (l *answerLedger) close(players []domain.Player, deadline time.Duration) []Submission {
	out := make([]Submission, 0, len(players))
	for _, p := range players {
		s, ok := l.entries[p.ID]
		if !ok {
			s = Submission{PlayerID: p.ID, AnswerIndex: NoAnswer, Elapsed: deadline, Missed: true}
			l.entries[p.ID] = s
		}
		out = append(out, s)
	}
	return out
}

// answers maps player ids to their chosen option, NoAnswer for misses.
func (l *answerLedger) answers() map[string]int {
	out := make(map[string]int, len(l.entries))
	for id, s := range l.entries {
		out[id] = s.AnswerIndex
	}
	return out
}
