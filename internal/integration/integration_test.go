package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/catalog"
	"trivia-room-service/internal/domain"
	pgloader "trivia-room-service/internal/infra/postgres"
	pgmigrations "trivia-room-service/internal/infra/postgres/migrations"
	infraredis "trivia-room-service/internal/infra/redis"
)

func TestRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL, "html", sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuestionLoader(pool)
	subjects, err := loader.Subjects(ctx)
	if err != nil {
		t.Fatalf("list subjects: %v", err)
	}
	if len(subjects) != 1 || subjects[0] != "html" {
		t.Fatalf("expected [html], got %v", subjects)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	bank := catalog.New(infraredis.NewSubjectRepository(redisClient, loader, 5*time.Minute), subjects)
	bank.Load(ctx)
	if infos := bank.Subjects(); len(infos) != 1 || infos[0].Questions != 2 || infos[0].Placeholder {
		t.Fatalf("unexpected catalog %+v", infos)
	}
	if n, _ := redisClient.HLen(ctx, "trivia:subject:html:questions").Result(); n != 2 {
		t.Fatalf("expected 2 cached questions, got %d", n)
	}

	store := infraredis.NewRoomStore(redisClient, 5*time.Minute)
	clock := clockwork.NewFakeClock()
	registry := app.NewRegistry(store, bank, app.DefaultRules(), app.WithClock(clock))
	defer registry.Close(ctx)

	xs, ys := &eventLog{}, &eventLog{}
	roomID, err := registry.CreateRoom(ctx, app.RoomSpec{Capacity: 2, Subject: "html"}, domain.Player{ID: "x", DisplayName: "X"}, xs)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if exists, _ := redisClient.Exists(ctx, "trivia:room:"+roomID).Result(); exists != 1 {
		t.Fatalf("expected room claim in redis")
	}
	if _, err := registry.JoinRoom(ctx, roomID, domain.Player{ID: "y", DisplayName: "Y"}, ys); err != nil {
		t.Fatalf("join: %v", err)
	}

	registry.Ready(roomID, "x")
	registry.Ready(roomID, "y")
	question := waitFor[domain.PublicQuestion](t, xs, domain.EventNewQuestion)
	correct := correctIndex(t, question.ID)

	registry.SubmitAnswer(roomID, "x", correct)
	registry.SubmitAnswer(roomID, "y", (correct+1)%len(question.Options))

	result := waitFor[domain.RoundResult](t, ys, domain.EventRoundResult)
	if result.Scores["x"] != 1000 || result.Scores["y"] != 0 {
		t.Fatalf("unexpected scores %v", result.Scores)
	}

	registry.Disconnect(ctx, "x")
	registry.Disconnect(ctx, "y")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if exists, _ := redisClient.Exists(ctx, "trivia:room:"+roomID).Result(); exists == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected room claim released after the last player left")
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Send(ev domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func waitFor[T any](t *testing.T, l *eventLog, typ domain.EventType) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, ev := range l.events {
			if ev.Type == typ {
				l.mu.Unlock()
				return ev.Payload.(T)
			}
		}
		l.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s event", typ)
	var zero T
	return zero
}

func correctIndex(t *testing.T, questionID string) int {
	t.Helper()
	for _, q := range sampleQuestions() {
		if q.ID == questionID {
			return q.CorrectIndex
		}
	}
	t.Fatalf("unknown question %s", questionID)
	return 0
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn, subject string, questions []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			t.Fatalf("marshal options: %v", err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, subject, category, prompt, options, correct_index) VALUES (?, ?, ?, ?, ?::jsonb, ?)
			 ON CONFLICT (id) DO UPDATE SET options=EXCLUDED.options, correct_index=EXCLUDED.correct_index`,
			q.ID, subject, q.Category, q.Prompt, string(options), q.CorrectIndex); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "html-1", Category: "HTML", Prompt: "Which element creates a hyperlink?", Options: []string{"<link>", "<a>", "<href>"}, CorrectIndex: 1},
		{ID: "html-2", Category: "HTML", Prompt: "Which attribute gives an image alt text?", Options: []string{"title", "alt", "src"}, CorrectIndex: 1},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
