package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

// SubjectRepository caches subject partitions in Redis (hash per subject) and falls back to a
// loader on cache miss. Questions are stored as:
//
//	HSET trivia:subject:{subject}:questions {questionID} {question JSON}
type SubjectRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewSubjectRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *SubjectRepository {
	return &SubjectRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *SubjectRepository) GetSubject(ctx context.Context, subject string) ([]domain.Question, error) {
	if questions, ok := r.cached(ctx, subject); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(subject, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := r.cached(ctx, subject); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadSubject(ctx, subject)
		if err != nil {
			return nil, err
		}

		key := r.questionsKey(subject)
		pipe := r.client.Pipeline()
		pipe.Del(ctx, key)
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, key, q.ID, raw)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("redis subject cache fill failed")
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *SubjectRepository) cached(ctx context.Context, subject string) ([]domain.Question, bool) {
	entries, err := r.client.HGetAll(ctx, r.questionsKey(subject)).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	questions := make([]domain.Question, 0, len(entries))
	for _, raw := range entries {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, true
}

func (r *SubjectRepository) questionsKey(subject string) string {
	return "trivia:subject:" + subject + ":questions"
}

func (r *SubjectRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
