package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/config"
	"exam-session-engine/internal/domain"
	"exam-session-engine/internal/infra/export"
	"exam-session-engine/internal/infra/httpapi"
	"exam-session-engine/internal/infra/memory"
	pgsource "exam-session-engine/internal/infra/postgres"
	redissession "exam-session-engine/internal/infra/redis"
	"exam-session-engine/internal/logger"
	transport "exam-session-engine/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that serves the session websocket
// endpoint for the candidate UI shell.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the exam session engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, *port)
		},
	}
}

func runServe(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	offset := cfg.Exam.RegionOffset
	if offset == "" {
		offset = "+05:30"
	}
	clock, err := app.NewRegionClock(offset)
	if err != nil {
		return err
	}

	var cache app.SessionCache = memory.NewSessionCache()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = redissession.NewSessionCache(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	}

	var source app.QuestionSource
	var uplink app.AnswerUplink
	switch {
	case cfg.Backend.BaseURL != "":
		backend := httpapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token)
		source = backend
		uplink = backend
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		source = pgsource.NewQuestionSource(pool)
		// Self-hosted centers have no hosted backend to sync to.
		uplink = memory.NewRecordingUplink()
	default:
		source = memory.NewStaticQuestionSource(sampleExams(clock))
		uplink = memory.NewRecordingUplink()
		log.Warn().Msg("no backend or postgres configured, serving the built-in sample exam")
	}
	source = memory.NewQuestionRepository(source, config.TTLDuration(cfg.Exam.QuestionTTL, 10*time.Minute))

	exportDir := cfg.Export.Dir
	if exportDir == "" {
		exportDir = "exports"
	}
	var docs app.DocumentSink = export.NewTextSink(exportDir)
	if cfg.Export.Format == "xlsx" {
		docs = export.NewXLSXSink(exportDir)
	}

	service := app.NewSessionService(source, cache, uplink, docs, clock, log)
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/session", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting exam session engine")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleExams provides a small exam whose window closes shortly after
// startup; useful for trying the engine without any backing services.
func sampleExams(clock app.Clock) map[string]domain.Exam {
	now := clock.Now()
	return map[string]domain.Exam{
		"demo-exam": {
			Name: "demo-exam",
			Schedule: domain.Schedule{
				Date:         now.Format("2006-01-02"),
				EndTimeLabel: now.Add(30 * time.Minute).Format("03:04 PM"),
			},
			Questions: []domain.Question{
				{ID: "q1", Order: 1, Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}},
				{ID: "q2", Order: 2, Prompt: "Which planet is closest to the sun?", Options: []string{"Venus", "Earth", "Mercury", "Mars"}},
				{ID: "q3", Order: 3, Prompt: "What is the capital of France?", Options: []string{"Lyon", "Paris", "Nice", "Lille"}},
			},
		},
	}
}
