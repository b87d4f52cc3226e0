package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	pginfra "quiz-battle-service/internal/infra/postgres"
	redisinfra "quiz-battle-service/internal/infra/redis"
	"quiz-battle-service/internal/lib/slogcolor"
	transport "quiz-battle-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := slog.New(slogcolor.NewHandler(os.Stdout, slog.LevelInfo))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Battle.SessionTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.BattleStore = memory.NewRoomStore()
	if pool != nil {
		store = pginfra.NewBattleStore(pool)
	}

	var sessions app.SessionDirectory = memory.NewSessionDirectory(sessionTTL)
	if redisClient != nil {
		sessions = redisinfra.NewSessionDirectory(redisClient, sessionTTL)
	}

	var publisher app.EventPublisher = memory.NewLogPublisher(logger)
	if redisClient != nil {
		publisher = redisinfra.NewEventPublisher(redisClient)
	}

	users := memory.NewOpenUserDirectory()

	service := app.NewBattleService(store, quizRepo, users, sessions, publisher, app.Settings{
		MaxParticipants: cfg.Battle.MaxParticipants,
		QuestionSeconds: cfg.Battle.QuestionSeconds,
	}, logger)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := app.NewSweeper(service, config.TTLDuration(cfg.Battle.SweepInterval, time.Second), logger)
	go sweeper.Run(sweepCtx)

	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting battle service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal quiz data for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.QuestionRef{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					Answer:           "4",
					Explanation:      "Basic addition.",
					Points:           10,
					TimeLimitSeconds: 15,
				},
				{
					ID:   "q2",
					Text: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Mars"},
						{ID: "o3", Text: "Jupiter"},
					},
					Answer:           "Mars",
					Explanation:      "Iron oxide gives Mars its color.",
					Points:           10,
					TimeLimitSeconds: 15,
				},
			},
		},
	}
}
