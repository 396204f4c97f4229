package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"livequiz-service/internal/infra/notify"
	"livequiz-service/internal/infra/postgres"
	infraredis "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/reward"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
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

	var repo app.QuizRepository
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		repo = postgres.NewQuizStore(pool)
	} else {
		repo = memory.NewQuizStore(sampleQuizzes()...)
	}
	if redisClient != nil {
		repo = infraredis.NewQuizCache(redisClient, repo, config.Duration(cfg.Quiz.TTL, 10*time.Minute))
	}

	sessionCfg := app.SessionConfig{
		QuestionGrace:    config.Duration(cfg.Session.QuestionGrace, 500*time.Millisecond),
		LeaderboardGrace: config.Duration(cfg.Leaderboard.Grace, 30*time.Second),
		Winners:          cfg.Leaderboard.Winners,
	}
	if sessionCfg.Winners == 0 {
		sessionCfg.Winners = 3
	}

	secret := cfg.Reward.Secret
	if secret == "" {
		secret = os.Getenv("REWARD_SECRET")
	}

	hub := transport.NewHub()
	opts := app.ManagerOptions{
		Config:   sessionCfg,
		Rewards:  reward.NewIssuer(secret),
		Notifier: notify.NewLogNotifier(),
	}
	if redisClient != nil {
		opts.Liveness = infraredis.NewSessionLiveness(redisClient, config.Duration(cfg.Redis.TTL, 10*time.Minute))
	}
	manager := app.NewSessionManager(repo, hub, opts)

	scheduler := app.NewScheduler(repo, manager, config.Duration(cfg.Scheduler.Interval, 15*time.Second))
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Run(schedulerCtx)

	wsHandler := transport.NewWSHandler(manager, hub)

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
		log.Printf("starting live quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory store when no Postgres is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:        "quiz-1",
			Title:     "Warmup Trivia",
			StartTime: time.Now().Add(time.Minute),
			CreatedAt: time.Now(),
			Status:    domain.StatusScheduled,
			Questions: []domain.Question{
				{
					Text:         "What is 2 + 2?",
					Options:      []string{"3", "4", "5"},
					CorrectIndex: 1,
					Marks:        10,
					TimeLimitSec: 20,
				},
				{
					Text:         "Which planet is known as the red planet?",
					Options:      []string{"Venus", "Jupiter", "Mars"},
					CorrectIndex: 2,
					Marks:        10,
					TimeLimitSec: 30,
				},
			},
		},
	}
}
