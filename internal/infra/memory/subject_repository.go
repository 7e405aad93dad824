package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// QuestionLoader fetches one subject's questions from a backing store (files, Postgres).
type QuestionLoader interface {
	LoadSubject(ctx context.Context, subject string) ([]domain.Question, error)
}

// SubjectRepository caches subject partitions with TTL to avoid repeated loader hits.
type SubjectRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedSubject
}

type cachedSubject struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewSubjectRepository(loader QuestionLoader, ttl time.Duration) *SubjectRepository {
	return &SubjectRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedSubject),
	}
}

func (r *SubjectRepository) GetSubject(ctx context.Context, subject string) ([]domain.Question, error) {
	if questions, ok := r.cached(subject); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(subject, func() (interface{}, error) {
		if questions, ok := r.cached(subject); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadSubject(ctx, subject)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[subject] = cachedSubject{
			questions: questions,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *SubjectRepository) cached(subject string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[subject]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (r *SubjectRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// StaticLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticLoader struct {
	subjects map[string][]domain.Question
}

func NewStaticLoader(subjects map[string][]domain.Question) *StaticLoader {
	return &StaticLoader{subjects: subjects}
}

func (l *StaticLoader) LoadSubject(_ context.Context, subject string) ([]domain.Question, error) {
	if questions, ok := l.subjects[subject]; ok && len(questions) > 0 {
		return questions, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNoQuestions, subject)
}
