package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	"bitbattle/internal/common/mq"
	"bitbattle/internal/common/storage"
	matchcontroller "bitbattle/internal/matchmaking/controller"
	matchservice "bitbattle/internal/matchmaking/service"
	problemcontroller "bitbattle/internal/problem/controller"
	problemrepo "bitbattle/internal/problem/repository"
	problemservice "bitbattle/internal/problem/service"
	"bitbattle/internal/room"
	"bitbattle/internal/sandbox"
	"bitbattle/internal/sandbox/engine"
	"bitbattle/internal/sandbox/profile"
	"bitbattle/internal/sandbox/spec"
	scoringrepo "bitbattle/internal/scoring/repository"
	scoringservice "bitbattle/internal/scoring/service"
	"bitbattle/internal/server"
	"bitbattle/internal/server/middleware"
	submitcontroller "bitbattle/internal/submission/controller"
	submitservice "bitbattle/internal/submission/service"
	usercontroller "bitbattle/internal/user/controller"
	userrepo "bitbattle/internal/user/repository"
	userservice "bitbattle/internal/user/service"
	"bitbattle/pkg/utils/logger"
)

const defaultConfigPath = "configs/battle_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *configPath != defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "battle server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.NewFromURL(appCfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()
	if err := db.Bootstrap(ctx, database); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	dbProvider := db.NewManager(database)

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var mqClient mq.MessageQueue
	if len(appCfg.Kafka.Brokers) > 0 {
		kq, err := mq.NewKafkaQueue(mq.KafkaConfig{
			Brokers:  appCfg.Kafka.Brokers,
			ClientID: appCfg.Kafka.ClientID,
		})
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = kq.Close()
		}()
		mqClient = kq
	}

	var objStorage storage.ObjectStorage
	if appCfg.Archive.MinIO.Endpoint != "" {
		objStorage, err = storage.NewMinIOStorage(appCfg.Archive.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
	}

	problemSvc := problemservice.NewProblemService(problemrepo.NewProblemRepository(database))
	if err := problemSvc.Load(ctx); err != nil {
		return fmt.Errorf("load problems: %w", err)
	}

	eng, err := engine.New(appCfg.Sandbox.Engine)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	runner, err := sandbox.NewRunner(sandbox.RunnerConfig{
		Engine:     eng,
		Profiles:   profile.NewRegistry(profile.DefaultProfiles()),
		WorkRoot:   appCfg.Sandbox.WorkRoot,
		BaseLimits: spec.DefaultLimits(),
	})
	if err != nil {
		return fmt.Errorf("init sandbox runner: %w", err)
	}
	pool := sandbox.NewPool(appCfg.Sandbox.Concurrency)

	scoringSvc, err := scoringservice.NewScoringService(scoringservice.Config{
		DB:              database,
		Repo:            scoringrepo.NewGameRepository(database),
		Cache:           redisCache,
		Queue:           mqClient,
		RetryTopic:      appCfg.Kafka.RetryTopic,
		DeadLetterTopic: appCfg.Kafka.DeadLetterTopic,
	})
	if err != nil {
		return fmt.Errorf("init scoring service: %w", err)
	}

	registry := room.NewRegistry(room.Config{
		Problems:     problemSvc,
		Scorer:       scoringSvc,
		Countdown:    appCfg.Room.Countdown,
		EndedGrace:   appCfg.Room.EndedGrace,
		ScoreTimeout: appCfg.Room.ScoreTimeout,
	})

	judgeSvc, err := submitservice.NewJudgeService(submitservice.Config{
		Problems:      problemSvc,
		Runner:        runner,
		Pool:          pool,
		Cache:         redisCache,
		Storage:       objStorage,
		ArchiveBucket: appCfg.Archive.MinIO.Bucket,
		ArchivePrefix: appCfg.Archive.Prefix,
		Rooms:         registry,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}

	matchmaker := matchservice.NewMatchmaker(matchservice.Config{
		Rooms:              registry,
		TickInterval:       appCfg.Matchmaking.TickInterval,
		BaseRatingWindow:   appCfg.Matchmaking.BaseRatingWindow,
		MaxRatingExpansion: appCfg.Matchmaking.MaxRatingExpansion,
		MaxWait:            appCfg.Matchmaking.MaxWait,
	})

	userRepo := userrepo.NewUserRepository(dbProvider, redisCache)
	tokenRepo := userrepo.NewRefreshTokenRepository(dbProvider)
	statsRepo := userrepo.NewStatsRepository(dbProvider)
	authSvc := userservice.NewAuthService(dbProvider, userRepo, tokenRepo, redisCache, userservice.AuthServiceConfig{
		JWTSecret:       []byte(appCfg.Auth.JWTSecret),
		JWTIssuer:       appCfg.Auth.JWTIssuer,
		AccessTokenTTL:  appCfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: appCfg.Auth.RefreshTokenTTL,
	})
	profileSvc := userservice.NewProfileService(userRepo, statsRepo, redisCache)

	roomHandler := room.NewHandler(room.HandlerConfig{
		Registry:               registry,
		CheckOrigin:            originChecker(appCfg.Server.FrontendOrigin),
		CodeChangeBurst:        appCfg.Room.CodeChangeBurst,
		CodeChangeRefillPerSec: appCfg.Room.CodeChangeRefillPerSec,
	})

	router := server.NewRouter(server.Config{
		Auth:         usercontroller.NewAuthController(authSvc),
		Users:        usercontroller.NewUserController(profileSvc),
		Problems:     problemcontroller.NewProblemController(problemSvc),
		Submit:       submitcontroller.NewSubmitController(judgeSvc),
		Matchmaking:  matchcontroller.NewMatchmakingController(matchmaker, scoringSvc),
		Rooms:        roomHandler,
		TokenManager: authSvc.TokenManager(),
		Limiter:      middleware.NewLimiter(redisCache, 0),
		CORS:         corsConfig(appCfg.Server.FrontendOrigin),
		Ready: func(ctx context.Context) error {
			if err := database.Ping(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := redisCache.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
	})

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go matchmaker.Run(shutdownCtx)
	if err := scoringSvc.StartRetryConsumer(shutdownCtx); err != nil {
		return fmt.Errorf("start scoring retry consumer: %w", err)
	}

	addr := fmt.Sprintf(":%d", appCfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "battle server started", zap.String("addr", addr))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(timeoutCtx); err != nil {
			logger.Warn(ctx, "http server shutdown incomplete", zap.Error(err))
		}
	}

	logger.Info(ctx, "battle server stopped")
	return nil
}

// corsConfig allows the configured frontend origins. Without any, CORS
// falls open to every origin so local development works out of the box.
func corsConfig(frontendOrigin string) middleware.CORSConfig {
	origins := corsOrigins(frontendOrigin)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cfg := middleware.DefaultCORSConfig(origins[0])
	cfg.AllowedOrigins = origins
	return cfg
}

// originChecker vets websocket upgrade origins against FRONTEND_ORIGIN.
// Without a configured origin every origin is accepted, matching the CORS
// middleware's behavior for plain HTTP.
func originChecker(frontendOrigin string) func(r *http.Request) bool {
	origins := corsOrigins(frontendOrigin)
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients carry no Origin header.
			return true
		}
		for _, allowed := range origins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
}
