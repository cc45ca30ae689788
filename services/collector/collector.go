// Package collector periodically collects open loans that passed maturity.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"augmint/native/loan"
	"augmint/observability"
	"augmint/observability/logging"
)

// Node is the subset of the node the collector drives.
type Node interface {
	OpenMaturedLoans(limit int) ([]uint64, error)
	CollectLoans(ctx context.Context, loanIDs []uint64) ([]loan.CollectResult, error)
}

type Config struct {
	Schedule  string
	BatchSize int
	// Account identifies the operator in logs; collection needs no permission.
	Account string
}

// Service runs the collection job on a cron schedule.
type Service struct {
	cfg     Config
	node    Node
	logger  *slog.Logger
	metrics *observability.CollectorMetrics
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
}

func New(cfg Config, node Node, logger *slog.Logger) (*Service, error) {
	if node == nil {
		return nil, errors.New("collector: node required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("collector: batch size must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:     cfg,
		node:    node,
		logger:  logger.With("component", "collector", logging.MaskAddress("account", cfg.Account)),
		metrics: observability.Collector(),
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("collector: schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is done and waits for an in-flight run.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("collector started", "schedule", s.cfg.Schedule, "batch_size", s.cfg.BatchSize)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("collector stopped")
}

// RunOnce collects up to one batch of matured loans and returns the ids
// collected. Loans that fail individually are skipped by the node.
func (s *Service) RunOnce(ctx context.Context) ([]uint64, error) {
	ids, err := s.node.OpenMaturedLoans(s.cfg.BatchSize)
	if err != nil {
		s.metrics.ObserveRun("error", 0)
		s.logger.Error("list matured loans", "error", err)
		return nil, err
	}
	if len(ids) == 0 {
		s.metrics.ObserveRun("idle", 0)
		return nil, nil
	}
	results, err := s.node.CollectLoans(ctx, ids)
	if err != nil {
		s.metrics.ObserveRun("error", 0)
		s.logger.Warn("collect loans", "candidates", len(ids), "error", err)
		return nil, err
	}
	collected := make([]uint64, 0, len(results))
	for _, res := range results {
		collected = append(collected, res.LoanID)
	}
	s.metrics.ObserveRun("collected", len(collected))
	s.logger.Info("loans collected", "candidates", len(ids), "collected", len(collected))
	return collected, nil
}
