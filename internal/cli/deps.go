package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/catalog"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/files"
	"trivia-room-service/internal/infra/memory"
	pgloader "trivia-room-service/internal/infra/postgres"
	redisinfra "trivia-room-service/internal/infra/redis"
)

// deps are the external clients and the question bank shared by start and subjects.
type deps struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	bank  *catalog.Catalog
}

func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.pool = pool
	}

	loader, subjects, err := d.questionSource(ctx, cfg)
	if err != nil {
		d.close()
		return nil, err
	}

	ttl := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var repo catalog.SubjectRepository
	if d.redis != nil {
		repo = redisinfra.NewSubjectRepository(d.redis, loader, ttl)
	} else {
		repo = memory.NewSubjectRepository(loader, ttl)
	}

	d.bank = catalog.New(repo, subjects)
	d.bank.Load(ctx)
	return d, nil
}

// questionSource picks the loader (Postgres, then a question directory, then built-in samples)
// and the subjects to serve when none are configured.
func (d *deps) questionSource(ctx context.Context, cfg config.Config) (memory.QuestionLoader, []string, error) {
	subjects := cfg.Questions.Subjects
	switch {
	case d.pool != nil:
		loader := pgloader.NewQuestionLoader(d.pool)
		if len(subjects) == 0 {
			found, err := loader.Subjects(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("list subjects: %w", err)
			}
			subjects = found
		}
		return loader, subjects, nil
	case cfg.Questions.Dir != "":
		loader := files.NewLoader(cfg.Questions.Dir)
		found, err := loader.Subjects()
		if err == nil {
			if len(subjects) > 0 {
				return loader, subjects, nil
			}
			return loader, found, nil
		}
		log.Warn().Err(err).Str("dir", cfg.Questions.Dir).Msg("question directory unreadable, serving built-in samples")
		subjects = nil
	default:
		log.Warn().Msg("no question source configured, serving built-in samples")
	}

	samples := sampleQuestions()
	if len(subjects) == 0 {
		for subject := range samples {
			subjects = append(subjects, subject)
		}
		sort.Strings(subjects)
	}
	return memory.NewStaticLoader(samples), subjects, nil
}

func (d *deps) close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

// sampleQuestions keeps the server playable without a question directory or database.
func sampleQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"html": {
			{ID: "html-1", Category: "HTML", Prompt: "What does HTML stand for?", Options: []string{"HyperText Markup Language", "Hyperlink Text Mode Language", "Home Tool Markup Language", "HighText Machine Language"}, CorrectIndex: 0},
			{ID: "html-2", Category: "HTML", Prompt: "Which element creates a hyperlink?", Options: []string{"<link>", "<a>", "<href>", "<nav>"}, CorrectIndex: 1},
		},
		"css": {
			{ID: "css-1", Category: "CSS", Prompt: "Which property changes the text color?", Options: []string{"color", "font-color", "text-color", "foreground"}, CorrectIndex: 0},
		},
	}
}
