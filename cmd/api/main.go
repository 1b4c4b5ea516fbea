package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/cash-ledger/internal/config"
	gateway "github.com/nimasrn/cash-ledger/internal/gateways"
	"github.com/nimasrn/cash-ledger/internal/handlers"
	"github.com/nimasrn/cash-ledger/internal/queue"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/internal/services"
	xhttp "github.com/nimasrn/cash-ledger/pkg/http"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"github.com/nimasrn/cash-ledger/pkg/prom"
	"github.com/nimasrn/cash-ledger/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting cash ledger api", "version", version, "commit", commit, "date", date)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CORSMiddleware(cfg.HttpCorsOrigin))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	// redis is optional; without it submissions rely on the database alone
	// and orphaned proofs that fail to delete are only logged
	var (
		guard   services.SubmissionLocker
		cleanup services.CleanupPublisher
	)
	if cfg.RedisAddr != "" {
		redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{cfg.RedisAddr},
			ClientName: cfg.AppName,
			DB:         cfg.RedisDatabase,
			Username:   cfg.RedisUsername,
			Password:   cfg.RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
		guard = services.NewSubmissionGuard(redisAdap, cfg.SubmissionLockTTL)

		q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
			Name:          cfg.QueueName,
			ConsumerGroup: cfg.QueueConsumerGroup,
			MaxLen:        cfg.QueueMaxLen,
		})
		if err != nil {
			logger.Error("failed creating cleanup queue", "error", err)
			return
		}
		cleanup = q
	} else {
		logger.Warn("REDIS_ADDR is not set, running without submission guard and cleanup queue")
	}

	proofStore, err := gateway.NewClient(&gateway.Config{
		BaseURL:                 cfg.ProofStoreURL,
		Timeout:                 cfg.ProofStoreTimeout,
		MaxRetries:              cfg.ProofStoreMaxRetries,
		RetryDelay:              200 * time.Millisecond,
		MaxConns:                256,
		ReadBufferSize:          1024 * 8,
		WriteBufferSize:         1024 * 8,
		CircuitBreakerThreshold: cfg.ProofStoreCircuitBreakerThreshold,
		CircuitBreakerTimeout:   cfg.ProofStoreCircuitBreakerTimeout,
	})
	if err != nil {
		logger.Error("failed to create proof store client", "error", err)
		return
	}
	defer proofStore.Close()

	periodRepo := repository.NewPeriodRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	memberRepo := repository.NewMemberRepository(db)

	// services
	periodService := services.NewPeriodService(periodRepo)
	transactionService := services.NewTransactionService(periodRepo, transactionRepo, guard)
	verificationService := services.NewVerificationService(transactionRepo)
	statisticsService := services.NewStatisticsService(periodRepo, transactionRepo, memberRepo)
	proofService := services.NewProofService(proofStore, cleanup)
	identityService := services.NewIdentityService(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
	healthService := services.NewHealthService(db)

	// v1 handlers
	cashHandler := handlers.NewCashHandler(periodService, transactionService, verificationService, statisticsService, proofService)
	healthHandler := handlers.NewHealthHandler(healthService)
	auth := handlers.NewAuth(identityService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterCashRoutes(g, cashHandler, auth)
	handlers.RegisterHealthRoutes(g, healthHandler)

	if cfg.AppDebugMetricsAddr != "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
			logger.Error("failed to create prometheus metrics", "error", err)
			return
		}
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
