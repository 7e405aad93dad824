package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room has the requested id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a room already seats its capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrAlreadyStarted is returned when joining a room that left the waiting phase.
	ErrAlreadyStarted = errors.New("match already started")
	// ErrInvalidCapacity indicates a capacity outside the allowed range for the mode.
	ErrInvalidCapacity = errors.New("invalid room capacity")
	// ErrUnknownSubject indicates the question bank has no partition for the subject.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrUnknownMode indicates a scoring mode other than score or combat.
	ErrUnknownMode = errors.New("unknown scoring mode")
	// ErrCodeSpaceExhausted is returned when no free room code could be allocated.
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
	// ErrNoQuestions indicates a subject source produced no usable questions.
	ErrNoQuestions = errors.New("no questions for subject")
)
