package app

import (
	"fmt"
	"time"

	"trivia-room-service/internal/domain"
)

// Rules are the match constants shared by every room of a registry.
type Rules struct {
	Deadline      time.Duration
	Reveal        time.Duration
	MaxPoints     int
	MinPoints     int
	WinScore      int
	StartHealth   int
	FullDamage    int
	ChipDamage    int
	MaxCapacity   int
	RoomCodeWidth int
}

// DefaultRules mirrors the values observed in production matches.
func DefaultRules() Rules {
	return Rules{
		Deadline:      15 * time.Second,
		Reveal:        4 * time.Second,
		MaxPoints:     1000,
		MinPoints:     100,
		WinScore:      3000,
		StartHealth:   100,
		FullDamage:    20,
		ChipDamage:    5,
		MaxCapacity:   8,
		RoomCodeWidth: 6,
	}
}

// Policy builds the scoring policy for a mode.
func (r Rules) Policy(mode domain.Mode) (ScoringPolicy, error) {
	switch mode {
	case domain.ModeScore:
		return TimeDecay{Deadline: r.Deadline, MaxPoints: r.MaxPoints, MinPoints: r.MinPoints, WinScore: r.WinScore}, nil
	case domain.ModeCombat:
		return Combat{StartHealth: r.StartHealth, FullDamage: r.FullDamage, ChipDamage: r.ChipDamage}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
}

// validateCapacity checks a requested capacity against the mode. Combat pairs exactly two players.
func (r Rules) validateCapacity(mode domain.Mode, capacity int) error {
	if capacity < 2 || capacity > r.MaxCapacity {
		return fmt.Errorf("%w: %d not in [2, %d]", domain.ErrInvalidCapacity, capacity, r.MaxCapacity)
	}
	if mode == domain.ModeCombat && capacity != 2 {
		return fmt.Errorf("%w: combat rooms seat exactly 2 players", domain.ErrInvalidCapacity)
	}
	return nil
}
