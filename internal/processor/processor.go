package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/cash-ledger/internal/queue"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/redis"
	"github.com/nimasrn/cash-ledger/pkg/worker"
)

const ProcessingTimeout = time.Second * 10
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Processor handles one kind of queued job.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type Options struct {
	Queue queue.QueueConfig
	// Consumers is the number of stream consumers; each one gets
	// Queue.ConsumerName suffixed with its index.
	Consumers int
	Workers   int
	// MetricsInterval defaults to 30s.
	MetricsInterval time.Duration
}

// ProcessorService reads jobs from the queue and runs them on a worker pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	options   Options
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, options Options) (*ProcessorService, error) {
	if adapter == nil {
		return nil, fmt.Errorf("redis adapter is required")
	}
	if options.Consumers <= 0 {
		options.Consumers = 1
	}
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.MetricsInterval <= 0 {
		options.MetricsInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		options: options,
		metrics: NewServiceMetrics(),
		ctx:     ctx,
		cancel:  cancel,
		worker:  worker.NewWorkerManager(options.Workers*16, options.Workers, nil),
	}, nil
}

func (s *ProcessorService) RegisterProcessor(processor Processor) {
	s.processor = processor
	logger.Info("Registered processor", "type", processor.GetType())
}

func (s *ProcessorService) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *ProcessorService) Start() error {
	if s.processor == nil {
		return fmt.Errorf("no processor registered")
	}

	logger.Info("Starting Processor Service...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Info("Worker manager stopped", "reason", err)
		}
	}()

	for i := 0; i < s.options.Consumers; i++ {
		queueConfig := s.options.Queue
		queueConfig.ConsumerName = fmt.Sprintf("%s-instance-%d", queueConfig.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, queueConfig)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}

		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Info("Started consumer instance", "instance", i, "consumer", queueConfig.ConsumerName)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("Processor Service started", "consumers", len(s.queues), "workers", s.options.Workers)
	return nil
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.options.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	m := s.metrics.Snapshot()
	logger.Info("Processor metrics",
		"processed", m.Processed,
		"failed", m.Failed,
		"rate_per_second", m.RatePerSecond,
		"avg_duration_ms", m.AvgDuration.Milliseconds(),
		"uptime_seconds", m.Uptime.Seconds())

	if len(s.queues) > 0 {
		if q, err := s.queues[0].GetStats(); err == nil {
			logger.Info("Queue stats",
				"queue", s.queues[0].Name(),
				"total", q.TotalMessages,
				"pending", q.PendingMessages)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()

	if err := s.adapter.Client().Ping(ctx).Err(); err != nil {
		logger.Error("Health check failed: redis unreachable", "error", err)
		return
	}

	// every consumer reads the same stream
	if len(s.queues) == 0 {
		return
	}
	q := s.queues[0]
	stats, err := q.GetStats()
	if err != nil {
		logger.Warn("Health check: queue stats unavailable", "queue", q.Name(), "error", err)
		return
	}
	if stats.PendingMessages > 1000 {
		logger.Warn("Health check: cleanup backlog is growing", "queue", q.Name(), "pending", stats.PendingMessages)
	}
}

// Stop gracefully stops the service
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down Processor Service...")

	s.cancel()

	var stopping sync.WaitGroup
	for i, q := range s.queues {
		stopping.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopping.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("Error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopping.Wait()

	s.worker.Exit()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("Processor Service stopped")
}

type jobResult struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands a message to the worker pool and waits for the result
// so the queue can ack or leave it pending.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	resultChan := make(chan error, 1)

	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	job := &jobResult{
		msg:        msg,
		resultChan: resultChan,
		ctx:        msgCtx,
	}

	if !s.worker.Enqueue(job) {
		return worker.ErrWorkersStopped
	}

	select {
	case err := <-resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	if jobRes.ctx.Err() != nil {
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex)
		return
	}

	start := time.Now()
	err := s.processor.Process(jobRes.ctx, jobRes.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process message",
			"worker", workerIndex,
			"id", jobRes.msg.ID,
			"attempt", jobRes.msg.Attempts,
			"error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// resultChan is buffered, the send never blocks
	jobRes.resultChan <- err
}
