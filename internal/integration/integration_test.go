package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"livequiz-service/internal/access"
	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/postgres"
	pgmigrations "livequiz-service/internal/infra/postgres/migrations"
	infraredis "livequiz-service/internal/infra/redis"
)

const hostEmail = "host@x.com"

func TestQuizRoundTripEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := postgres.NewQuizStore(pool)
	bank := infraredis.NewQuestionBank(redisClient, postgres.NewQuestionStore(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	policy := access.NewPolicy([]string{hostEmail}, "")
	service := app.NewQuizService(quizzes, bank, sessions, policy, zap.NewNop())

	quiz, err := service.CreateQuiz(ctx, hostEmail, "Capitals", 30)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if err := service.AddQuestion(ctx, hostEmail, quiz.ID, "What is the capital of France?",
		[]string{"Berlin", "Paris", "Rome", "Madrid"}, 1); err != nil {
		t.Fatalf("add question: %v", err)
	}

	if err := service.Start(ctx, hostEmail, quiz.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Join(ctx, quiz.JoinCode, "alice@x.com", "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, quiz.JoinCode, "bob@x.com", "Bob", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := service.Advance(ctx, hostEmail, quiz.ID, domain.NoQuestion); err != nil {
		t.Fatalf("advance: %v", err)
	}

	result, err := service.SubmitAnswer(ctx, quiz.ID, "bob@x.com", 0, 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Awarded <= 0 {
		t.Fatalf("expected a scored correct answer, got %+v", result)
	}

	lb, err := service.Leaderboard(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].Email != "bob@x.com" {
		t.Fatalf("expected bob leading, got %+v", lb.Entries)
	}

	// The lifecycle state is mirrored into Redis for observers.
	status, err := redisClient.HGet(ctx, "quiz:"+quiz.ID+":state", "status").Result()
	if err != nil {
		t.Fatalf("read mirrored state: %v", err)
	}
	if status != string(domain.StatusLive) {
		t.Fatalf("mirrored status = %q, want live", status)
	}
	mirrored, err := redisClient.HGet(ctx, "quiz:"+quiz.ID+":scores", "bob@x.com").Result()
	if err != nil {
		t.Fatalf("read mirrored score: %v", err)
	}
	if mirrored != fmt.Sprintf("%d", result.Awarded) {
		t.Fatalf("mirrored score = %q, want %d", mirrored, result.Awarded)
	}

	// The stored document converged on the live state.
	stored, err := quizzes.Get(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("load stored quiz: %v", err)
	}
	if stored.Status != domain.StatusLive || stored.CurrentQuestion != 0 {
		t.Fatalf("stored document lagging: %+v", stored)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
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
