package app

import (
	"slices"

	"trivia-room-service/internal/domain"
)

// removePlayer erases a departed player from every per-room structure. An empty room is torn
// down; a match left without an opponent ends; a round whose remaining players have all
// answered settles now instead of waiting for the deadline.
func (r *Room) removePlayer(playerID string) {
	idx := r.indexOf(playerID)
	if idx < 0 {
		return
	}
	r.seats = slices.Delete(r.seats, idx, idx+1)
	delete(r.ready, playerID)
	delete(r.scores, playerID)
	r.answers.drop(playerID)
	r.owner.unseat(playerID, r.id)
	r.log.Debug().Str("player", playerID).Int("players", len(r.seats)).Msg("player left")

	if len(r.seats) == 0 {
		r.shutdown()
		return
	}

	r.broadcast(domain.EventUpdateRoom, r.snapshot())

	switch r.phase {
	case domain.PhaseWaiting:
		r.maybeStart()
	case domain.PhaseActive, domain.PhaseRevealing:
		if len(r.seats) < 2 {
			r.finish()
			return
		}
		if r.phase == domain.PhaseActive && r.answers.complete(r.players()) {
			r.settle()
		}
	}
}

// shutdown cancels the outstanding timer, drops the room from the registry and stops the actor.
func (r *Room) shutdown() {
	if r.stopped {
		return
	}
	r.cancelPending()
	r.stopped = true
	r.owner.release(r)
	close(r.done)
	r.log.Info().Msg("room closed")
}
