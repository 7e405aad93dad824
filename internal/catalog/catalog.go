// Package catalog holds the question bank rooms draw from. Each subject is an immutable
// partition; reloads swap whole partitions and never mutate a question in place.
package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// SubjectRepository returns one subject's questions (cached or straight from a loader).
type SubjectRepository interface {
	GetSubject(ctx context.Context, subject string) ([]domain.Question, error)
}

// Catalog is the process-wide question bank.
type Catalog struct {
	repo     SubjectRepository
	subjects []string
	pick     func(n int) int

	mu          sync.RWMutex
	partitions  map[string][]domain.Question
	placeholder map[string]bool
	failing     map[string]bool
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithPicker replaces the uniform random index source.
func WithPicker(pick func(n int) int) Option {
	return func(c *Catalog) { c.pick = pick }
}

// SubjectInfo summarizes one loaded subject.
type SubjectInfo struct {
	Subject     string `json:"subject"`
	Questions   int    `json:"questions"`
	Placeholder bool   `json:"placeholder"`
}

// Key normalizes a subject name into its catalog key ("HTML & CSS" -> "html-and-css").
func Key(raw string) string {
	return slug.Make(raw)
}

func New(repo SubjectRepository, subjects []string, opts ...Option) *Catalog {
	keys := make([]string, 0, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		k := Key(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := &Catalog{
		repo:        repo,
		subjects:    keys,
		pick:        rand.Intn,
		partitions:  make(map[string][]domain.Question),
		placeholder: make(map[string]bool),
		failing:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches every configured subject. A subject that cannot be loaded keeps its last good
// partition, or gets a single placeholder question if it never loaded. Failures are logged once
// per subject until the subject recovers.
func (c *Catalog) Load(ctx context.Context) {
	for _, subject := range c.subjects {
		questions, err := c.fetch(ctx, subject)
		c.install(subject, questions, err)
	}
}

// Refresh reloads every subject; it never fails the caller.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.Load(ctx)
	return nil
}

func (c *Catalog) fetch(ctx context.Context, subject string) ([]domain.Question, error) {
	questions, err := c.repo.GetSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	valid := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if !q.Valid() {
			log.Warn().Str("subject", subject).Str("question", q.ID).Msg("skipping malformed question")
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoQuestions, subject)
	}
	return valid, nil
}

func (c *Catalog) install(subject string, questions []domain.Question, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.partitions[subject] = questions
		delete(c.placeholder, subject)
		if c.failing[subject] {
			log.Info().Str("subject", subject).Int("questions", len(questions)).Msg("subject recovered")
		}
		delete(c.failing, subject)
		return
	}

	if !c.failing[subject] {
		log.Warn().Err(err).Str("subject", subject).Msg("subject unavailable, serving fallback")
		c.failing[subject] = true
	}
	if _, ok := c.partitions[subject]; !ok {
		c.partitions[subject] = []domain.Question{Placeholder(subject)}
		c.placeholder[subject] = true
	}
}

// Subject resolves a requested subject name to a loaded catalog key.
func (c *Catalog) Subject(raw string) (string, bool) {
	key := Key(raw)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.partitions[key]
	return key, ok
}

// Pick draws a question uniformly at random from a subject partition.
func (c *Catalog) Pick(subject string) domain.Question {
	c.mu.RLock()
	questions := c.partitions[subject]
	c.mu.RUnlock()
	if len(questions) == 0 {
		return Placeholder(subject)
	}
	return questions[c.pick(len(questions))]
}

// Subjects lists the loaded subjects in key order.
func (c *Catalog) Subjects() []SubjectInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SubjectInfo, 0, len(c.partitions))
	for subject, questions := range c.partitions {
		out = append(out, SubjectInfo{
			Subject:     subject,
			Questions:   len(questions),
			Placeholder: c.placeholder[subject],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// Placeholder stands in for a subject whose questions could not be loaded.
func Placeholder(subject string) domain.Question {
	return domain.Question{
		ID:           "placeholder-" + subject,
		Category:     subject,
		Prompt:       fmt.Sprintf("Questions for %q are unavailable right now. Pick the first option.", subject),
		Options:      []string{"OK", "-", "-", "-"},
		CorrectIndex: 0,
	}
}
