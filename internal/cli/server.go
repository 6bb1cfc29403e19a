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
	"go.uber.org/zap"

	"livequiz-service/internal/access"
	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/infra/memory"
	pgstore "livequiz-service/internal/infra/postgres"
	redisstore "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/logger"
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

	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var quizzes app.QuizRepository
	var questions memory.QuestionStore
	if pool != nil {
		quizzes = pgstore.NewQuizStore(pool)
		questions = pgstore.NewQuestionStore(pool)
	} else {
		quizzes = memory.NewQuizStore()
		questions = memory.NewMapQuestionStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisstore.NewQuestionBank(redisClient, questions, quizTTL)
	} else {
		bank = memory.NewQuestionBank(questions, quizTTL)
	}

	rules := app.DefaultScoringRules()
	if cfg.Scoring.BasePoints > 0 {
		rules.BasePoints = cfg.Scoring.BasePoints
	}
	if cfg.Scoring.MaxSpeedBonus > 0 {
		rules.MaxSpeedBonus = cfg.Scoring.MaxSpeedBonus
	}
	rules.Grace = config.TTLDuration(cfg.Scoring.Grace, rules.Grace)

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, redisTTL, app.WithScoring(rules))
	} else {
		sessions = memory.NewSessionStore(app.WithScoring(rules))
	}

	policy := access.NewPolicy(cfg.Access.AdminEmails, cfg.Access.MasterAdmin)
	service := app.NewQuizService(quizzes, bank, sessions, policy, log)
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/play", wsHandler.ServePlay)
	mux.HandleFunc("/ws/host", wsHandler.ServeHost)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting live quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
