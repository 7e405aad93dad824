package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/app"
)

// Claim values are "<instance>:<nonce>" so a claim belongs to exactly one room allocation.
var (
	// extendClaim refreshes a claim we still own, re-takes one that lapsed, and reports 0 when
	// another owner holds the key.
	extendClaim = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if not v then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0`)

	// releaseClaim deletes the key only while it still holds our value.
	releaseClaim = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Rooms live in a local map; their state never leaves the owning process.
//   - Each live code is claimed with SETNX so codes stay unique across instances sharing Redis.
//   - Claims expire after ttl unless Refresh (the heartbeat job) extends them. Extending and
//     releasing only touch claims this store still owns.
type RoomStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu    sync.RWMutex
	rooms map[string]claimedRoom
}

type claimedRoom struct {
	room  *app.Room
	claim string
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client:   client,
		ttl:      ttl,
		instance: uuid.NewString(),
		rooms:    make(map[string]claimedRoom),
	}
}

func (s *RoomStore) Insert(ctx context.Context, room *app.Room) (bool, error) {
	id := room.ID()
	if _, ok := s.Get(id); ok {
		return false, nil
	}
	claim := s.instance + ":" + uuid.NewString()
	// The claim is made without holding mu so room actors deleting entries never wait on Redis.
	claimed, err := s.client.SetNX(ctx, s.key(id), claim, s.ttl).Result()
	if err != nil {
		// best-effort: local uniqueness still holds and the heartbeat takes the key once Redis is back
		log.Warn().Err(err).Str("room", id).Msg("redis room claim failed")
		claimed = true
	}
	if !claimed {
		return false, nil
	}

	s.mu.Lock()
	if _, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		s.release(ctx, id, claim)
		return false, nil
	}
	s.rooms[id] = claimedRoom{room: room, claim: claim}
	s.mu.Unlock()
	return true, nil
}

func (s *RoomStore) Get(id string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[id]
	return entry.room, ok
}

// Delete drops the local entry now and releases the claim in the background so room actors
// never wait on Redis.
func (s *RoomStore) Delete(id string, room *app.Room) {
	s.mu.Lock()
	entry, ok := s.rooms[id]
	if !ok || entry.room != room {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, id)
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.release(ctx, id, entry.claim)
	}()
}

func (s *RoomStore) All() []*app.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Room, 0, len(s.rooms))
	for _, entry := range s.rooms {
		out = append(out, entry.room)
	}
	return out
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Refresh extends the claim of every local room. A code that another instance claimed after ours
// lapsed is left alone and logged.
func (s *RoomStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	claims := make(map[string]string, len(s.rooms))
	for id, entry := range s.rooms {
		claims[id] = entry.claim
	}
	s.mu.RUnlock()
	if len(claims) == 0 {
		return nil
	}

	ttl := strconv.FormatInt(s.ttl.Milliseconds(), 10)
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.Cmd, len(claims))
	for id, claim := range claims {
		cmds[id] = extendClaim.Eval(ctx, pipe, []string{s.key(id)}, claim, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	for id, cmd := range cmds {
		if n, err := cmd.Int(); err == nil && n == 0 {
			log.Warn().Str("room", id).Msg("room code claimed by another instance")
		}
	}
	return nil
}

func (s *RoomStore) release(ctx context.Context, id, claim string) {
	if err := releaseClaim.Run(ctx, s.client, []string{s.key(id)}, claim).Err(); err != nil && err != redis.Nil {
		log.Warn().Err(err).Str("room", id).Msg("redis room release failed")
	}
}

func (s *RoomStore) key(id string) string {
	return "trivia:room:" + id
}
