package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/infra/memory"
	redisinfra "trivia-room-service/internal/infra/redis"
	"trivia-room-service/internal/jobs"
	"trivia-room-service/internal/logger"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Minute)
	var store app.RoomStore
	intervals := jobs.Intervals{CatalogRefresh: config.TTLDuration(cfg.Questions.Refresh, 5*time.Minute)}
	if d.redis != nil {
		store = redisinfra.NewRoomStore(d.redis, redisTTL)
		intervals.Heartbeat = redisTTL / 3
	} else {
		store = memory.NewRoomStore()
	}
	registry := app.NewRegistry(store, d.bank, cfg.Match.Rules())

	sched, err := jobs.Start(d.bank, registry, intervals)
	if err != nil {
		return err
	}

	perSecond, burst := cfg.Match.Inbound()
	wsHandler := transport.NewWSHandler(registry, perSecond, burst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/rooms", transport.RoomsHandler(registry))
	mux.HandleFunc("/subjects", transport.SubjectsHandler(d.bank))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Int("subjects", len(d.bank.Subjects())).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown")
	}
	err = server.Shutdown(shutdownCtx)
	registry.Close(shutdownCtx)
	return err
}
