package domain

// Phase is the room state-machine state.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseActive    Phase = "active"
	PhaseRevealing Phase = "revealing"
	PhaseFinished  Phase = "finished"
)

// Mode selects the scoring policy of a room.
type Mode string

const (
	// ModeScore accumulates time-decayed points per correct answer.
	ModeScore Mode = "score"
	// ModeCombat pits two players against each other's health.
	ModeCombat Mode = "combat"
)

// ParseMode maps a wire value onto a Mode; the empty string means score mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeScore:
		return ModeScore, nil
	case ModeCombat:
		return ModeCombat, nil
	}
	return "", ErrUnknownMode
}

// Player is a seated participant. Identity fields come from the external auth provider.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Question is a multiple-choice item owned by the question bank.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Category     string   `json:"category" yaml:"category"`
	Prompt       string   `json:"prompt" yaml:"prompt"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correctIndex"`
}

// Valid reports whether the question has options and an in-range correct index.
func (q Question) Valid() bool {
	return q.Prompt != "" && len(q.Options) > 1 && q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

// Public strips the correct answer for broadcast while a round is open.
func (q Question) Public(round int, deadlineMs int64) PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:         q.ID,
		Category:   q.Category,
		Prompt:     q.Prompt,
		Options:    options,
		Round:      round,
		DeadlineMs: deadlineMs,
	}
}

// PublicQuestion is the newQuestion payload.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	Round      int      `json:"round"`
	DeadlineMs int64    `json:"deadlineMs"`
}

// PlayerView is one player's row in a room snapshot. Exactly one of Score and Health is set.
type PlayerView struct {
	Player
	Ready  bool `json:"ready"`
	Score  *int `json:"score,omitempty"`
	Health *int `json:"health,omitempty"`
}

// RoomSnapshot is the updateRoom payload.
type RoomSnapshot struct {
	ID       string       `json:"id"`
	Capacity int          `json:"capacity"`
	Subject  string       `json:"subject"`
	Mode     Mode         `json:"mode"`
	Phase    Phase        `json:"phase"`
	Round    int          `json:"round"`
	Players  []PlayerView `json:"players"`
}

// CombatOutcome describes who hit whom in a combat round.
type CombatOutcome struct {
	Fast    string `json:"fast"`
	Slow    string `json:"slow,omitempty"`
	Outcome string `json:"outcome"`
	Target  string `json:"target,omitempty"`
	Damage  int    `json:"damage"`
}

// RoundResult is emitted once per settled round.
type RoundResult struct {
	Round         int            `json:"round"`
	QuestionID    string         `json:"questionId"`
	CorrectAnswer int            `json:"correctAnswer"`
	PlayerAnswers map[string]int `json:"playerAnswers"`
	Awarded       map[string]int `json:"awarded,omitempty"`
	Scores        map[string]int `json:"scores,omitempty"`
	Players       []PlayerView   `json:"players,omitempty"`
	Combat        *CombatOutcome `json:"combat,omitempty"`
}

// GameOver is emitted once when a room reaches the finished phase.
type GameOver struct {
	FinalScores  map[string]int `json:"finalScores,omitempty"`
	FinalPlayers []PlayerView   `json:"finalPlayers,omitempty"`
	Winners      []string       `json:"winners"`
}

// Joined acknowledges a seat to the requester.
type Joined struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// GameStart is emitted on the first Waiting to Active transition.
type GameStart struct {
	RoomID string `json:"roomId"`
}

// ErrorMessage is sent only to the requester of a failed create or join.
type ErrorMessage struct {
	Message string `json:"message"`
}

// EventType names an outbound message.
type EventType string

const (
	EventUpdateRoom  EventType = "updateRoom"
	EventError       EventType = "errorMsg"
	EventJoined      EventType = "joined"
	EventGameStart   EventType = "gameStart"
	EventNewQuestion EventType = "newQuestion"
	EventRoundResult EventType = "roundResult"
	EventGameOver    EventType = "gameOver"
)

// Event is an outbound message to a player.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}
