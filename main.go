// @title			coderace
// @version		1.0
// @description	Read-only REST view over live two-player coding race rooms. Gameplay runs over the /ws websocket.
// @BasePath		/

//go:generate go tool swag init -g main.go -o api_specs --outputTypes json,yaml

package main

import (
	"coderace/internal/config"
	"coderace/internal/database/db_client"
	"coderace/internal/database/migrations"
	"coderace/internal/http/http_server"
	"coderace/internal/judge"
	"coderace/internal/questions"
	"coderace/internal/redis/redis_client"
	"coderace/internal/results"
	"coderace/internal/services/race"
	"coderace/internal/syncrooms"
	"coderace/internal/ws"
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newLogger(format string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if format == "json" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func main() {
	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var pgDb *sql.DB

	// 1. Load configuration (.env first, so LOG_FORMAT may come from it)
	cfg, err = config.LoadConfig()
	if err != nil {
		Log := newLogger("")
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}

	Log := newLogger(cfg.LogFormat)
	defer Log.Sync()
	zap.ReplaceGlobals(Log)
	Log.Debug("Configuration loaded successfully",
		zap.Uint16("port", cfg.HttpServerPort),
		zap.String("questions_source", cfg.QuestionsSource),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.Bool("postgres", cfg.PostgresEnabled),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Postgres (questions + race history)
	if cfg.PostgresEnabled {
		pgParams := db_client.Params{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			Database: cfg.PostgresDb,
		}
		pgDb, err = db_client.Open(ctx, pgParams)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		if err := migrations.Apply(ctx, pgParams.MigrateURL()); err != nil {
			Log.Fatal("pg-migrate", zap.Error(err))
		}
	}

	// 4. Redis (result stream + room mirror)
	if cfg.RedisEnabled {
		redisClient, err = redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")
	}

	// 5. Question provider
	var provider race.QuestionProvider
	switch cfg.QuestionsSource {
	case "postgres":
		if pgDb == nil {
			Log.Fatal("QUESTIONS_SOURCE=postgres requires POSTGRES_ENABLED=true")
		}
		provider = questions.NewPgProvider(pgDb)
	default:
		provider, err = questions.LoadFile(cfg.QuestionsFile)
		if err != nil {
			Log.Fatal("load-questions", zap.Error(err))
		}
	}

	// 6. Race service (room registry + timers)
	opts := []race.Option{race.WithTotalTime(cfg.TotalTime)}
	if redisClient != nil {
		opts = append(opts, race.WithResultSink(results.NewStreamSink(redisClient)))
	}
	raceService := race.NewRaceService(provider, judge.NewPythonJudge(cfg.JudgePython, cfg.JudgeTimeout), opts...)

	// 7. Background: result stream -> Postgres, live rooms -> Redis
	if redisClient != nil {
		if pgDb != nil {
			results.Run(ctx, redisClient, pgDb)
		}
		syncrooms.Run(ctx, redisClient, raceService, cfg.RoomSyncInterval)
	}

	// 8. WebSockets gateway
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, raceService, ws.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		ReadLimit:       cfg.WsReadLimit,
		PingPeriod:      cfg.WsPingPeriod,
		PongWait:        cfg.WsPongWait,
		DispatchTimeout: cfg.JudgeTimeout + 5*time.Second,
	})

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, cfg.AllowedOrigins, wsSrv, hub, raceService)
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case <-ctx.Done():
		Log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			Log.Error("http server stopped", zap.Error(err))
		}
	}

	_ = httpServer.Dispose()
	hub.CloseAll()
	raceService.Stop()
	Log.Info("server exited")
}
