package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bird-quiz-service/internal/app"
	"bird-quiz-service/internal/config"
	"bird-quiz-service/internal/imagefetch"
	"bird-quiz-service/internal/infra/memory"
	pgloader "bird-quiz-service/internal/infra/postgres"
	redisstore "bird-quiz-service/internal/infra/redis"
	transport "bird-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, *port, logger)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, logger zerolog.Logger) error {
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(memory.SeedCatalog())
	if pool != nil {
		loader = pgloader.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		catalogs app.CatalogRepository
		store    app.SessionRepository
		states   app.StateStore
	)
	if redisClient != nil {
		catalogs = redisstore.NewCatalogRepository(redisClient, loader, catalogTTL)
		store = redisstore.NewSessionStore(redisClient, redisTTL)
		states = redisstore.NewStateStore(redisClient, redisTTL)
	} else {
		catalogs = memory.NewCatalogRepository(loader, catalogTTL)
		store = memory.NewSessionStore()
		states = memory.NewStateStore(redisTTL)
	}

	service := app.NewQuizService(store, catalogs, states, quizOptions(cfg, logger))
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting bird quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server...")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func quizOptions(cfg config.Config, logger zerolog.Logger) app.Options {
	connectTimeout := config.TTLDuration(cfg.Images.ConnectTimeout, imagefetch.DefaultConnectTimeout)
	opts := app.Options{
		QuestionTime:   config.TTLDuration(cfg.Quiz.QuestionTime, 30*time.Second),
		MaxQuestions:   cfg.Quiz.MaxQuestions,
		Target:         imagefetch.Target{Width: cfg.Images.TargetWidth, Height: cfg.Images.TargetHeight},
		ConnectTimeout: connectTimeout,
		AwaitTimeout:   config.TTLDuration(cfg.Images.AwaitTimeout, 15*time.Millisecond),
		Logger:         logger,
	}
	if cfg.Images.ProbeAddr != "" {
		opts.Reachable = imagefetch.DialProbe(cfg.Images.ProbeAddr, connectTimeout)
	}
	return opts
}
