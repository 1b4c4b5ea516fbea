package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/cash-ledger/internal/config"
	gateway "github.com/nimasrn/cash-ledger/internal/gateways"
	"github.com/nimasrn/cash-ledger/internal/processor"
	"github.com/nimasrn/cash-ledger/internal/queue"
	"github.com/nimasrn/cash-ledger/pkg/logger"
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
	logger.Info("starting proof cleanup processor", "version", version, "commit", commit, "date", date)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName + "-processor",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	store, err := gateway.NewClient(&gateway.Config{
		BaseURL:                 cfg.ProofStoreURL,
		Timeout:                 cfg.ProofStoreTimeout,
		MaxRetries:              cfg.ProofStoreMaxRetries,
		RetryDelay:              500 * time.Millisecond,
		MaxConns:                64,
		CircuitBreakerThreshold: cfg.ProofStoreCircuitBreakerThreshold,
		CircuitBreakerTimeout:   cfg.ProofStoreCircuitBreakerTimeout,
	})
	if err != nil {
		logger.Error("failed to create proof store client", "error", err)
		return
	}
	defer store.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	consumerName := cfg.QueueConsumerName
	if consumerName == "" {
		consumerName = hostname
	}

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.QueueMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(redisAdap, processor.Options{
		Queue: queue.QueueConfig{
			Name:              cfg.QueueName,
			ConsumerGroup:     cfg.QueueConsumerGroup,
			ConsumerName:      consumerName,
			MaxRetries:        cfg.QueueMaxRetries,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			PollInterval:      cfg.QueuePollInterval,
			BatchSize:         cfg.QueueBatchSize,
			MaxLen:            cfg.QueueMaxLen,
			EnableDLQ:         cfg.QueueEnableDLQ,
		},
		Consumers: cfg.QueueConsumers,
		Workers:   cfg.QueueWorkers,
	})
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewProofCleanupProcessor(store, idempotencyService))

	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if cfg.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		return
	}

	<-c
	service.Stop()
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
