package app

import (
	"cmp"
	"slices"
	"time"

	"trivia-room-service/internal/domain"
)

// Combat outcome labels.
const (
	OutcomeChip    = "chip"
	OutcomeHit     = "hit"
	OutcomeCounter = "counter"
	OutcomeNone    = "none"
)

// ScoringPolicy turns a round's answers into per-player deltas and decides when a match ends.
// Implementations are pure; the room owns the score state they operate on.
type ScoringPolicy interface {
	Mode() domain.Mode
	// Initial is the value every player starts with.
	Initial() int
	// Settle scores one round. answers holds exactly one entry per seated player, in join order.
	Settle(correctIndex int, answers []Submission) Settlement
	// Apply folds a delta into a player's current value.
	Apply(current, delta int) int
	IsGameOver(state map[string]int) bool
}

// Settlement is the scoring outcome of one round.
type Settlement struct {
	Deltas map[string]int
	Combat *domain.CombatOutcome
}

// TimeDecay awards up to MaxPoints for a correct answer, decaying linearly to zero at Deadline.
// MinPoints, when positive, is the floor for any correct answer.
type TimeDecay struct {
	Deadline  time.Duration
	MaxPoints int
	MinPoints int
	WinScore  int
}

func (p TimeDecay) Mode() domain.Mode { return domain.ModeScore }

func (p TimeDecay) Initial() int { return 0 }

// Points computes ceil(max(0, D-t)/D * MaxPoints) at nanosecond resolution, clamped to MinPoints.
func (p TimeDecay) Points(elapsed time.Duration) int {
	d := int64(p.Deadline)
	if d <= 0 {
		return p.MaxPoints
	}
	remaining := d - int64(elapsed)
	if remaining < 0 {
		remaining = 0
	}
	points := int((remaining*int64(p.MaxPoints) + d - 1) / d)
	if points < p.MinPoints {
		points = p.MinPoints
	}
	return points
}

func (p TimeDecay) Settle(correctIndex int, answers []Submission) Settlement {
	deltas := make(map[string]int, len(answers))
	for _, a := range answers {
		if a.Correct(correctIndex) {
			deltas[a.PlayerID] = p.Points(a.Elapsed)
		} else {
			deltas[a.PlayerID] = 0
		}
	}
	return Settlement{Deltas: deltas}
}

func (p TimeDecay) Apply(current, delta int) int { return current + delta }

func (p TimeDecay) IsGameOver(state map[string]int) bool {
	for _, score := range state {
		if score >= p.WinScore {
			return true
		}
	}
	return false
}

// Combat is the two-player relative-speed policy. The faster answer attacks first:
//
//	fast ok,  slow ok  -> slow takes ChipDamage
//	fast ok,  slow bad -> slow takes FullDamage
//	fast bad, slow ok  -> fast takes FullDamage
//	fast bad, slow bad -> nothing
type Combat struct {
	StartHealth int
	FullDamage  int
	ChipDamage  int
}

func (p Combat) Mode() domain.Mode { return domain.ModeCombat }

func (p Combat) Initial() int { return p.StartHealth }

func (p Combat) Settle(correctIndex int, answers []Submission) Settlement {
	out := Settlement{Deltas: make(map[string]int, len(answers))}
	for _, a := range answers {
		out.Deltas[a.PlayerID] = 0
	}
	if len(answers) == 0 {
		return out
	}

	// Stable sort keeps join order for equal elapsed times.
	ordered := slices.Clone(answers)
	slices.SortStableFunc(ordered, func(a, b Submission) int {
		return cmp.Compare(a.Elapsed, b.Elapsed)
	})

	fast := ordered[0]
	if len(ordered) < 2 {
		out.Combat = &domain.CombatOutcome{Fast: fast.PlayerID, Outcome: OutcomeNone}
		return out
	}
	slow := ordered[1]
	outcome := &domain.CombatOutcome{Fast: fast.PlayerID, Slow: slow.PlayerID, Outcome: OutcomeNone}

	fastOK, slowOK := fast.Correct(correctIndex), slow.Correct(correctIndex)
	switch {
	case fastOK && slowOK:
		outcome.Outcome, outcome.Target, outcome.Damage = OutcomeChip, slow.PlayerID, p.ChipDamage
	case fastOK:
		outcome.Outcome, outcome.Target, outcome.Damage = OutcomeHit, slow.PlayerID, p.FullDamage
	case slowOK:
		outcome.Outcome, outcome.Target, outcome.Damage = OutcomeCounter, fast.PlayerID, p.FullDamage
	}
	if outcome.Target != "" {
		out.Deltas[outcome.Target] = -outcome.Damage
	}
	out.Combat = outcome
	return out
}

// Apply floors health at zero.
func (p Combat) Apply(current, delta int) int {
	return max(0, current+delta)
}

func (p Combat) IsGameOver(state map[string]int) bool {
	for _, health := range state {
		if health <= 0 {
			return true
		}
	}
	return false
}
