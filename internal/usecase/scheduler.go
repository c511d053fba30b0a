package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig configures the periodic analysis cycle.
type SchedulerConfig struct {
	// Spec is a cron expression ("@every 1m", "0 * * * *", ...).
	Spec string `yaml:"spec"`
	// Topic is the question topic each cycle analyzes.
	Topic string `yaml:"topic"`
	// CycleTimeout bounds a single agent's cycle. Zero means no limit.
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// Scheduler drives periodic analysis cycles across all active agents.
// Cycles run in parallel across agents; mutation within each agent stays
// serialized by the manager's per-agent locks.
type Scheduler struct {
	manager *AgentManager
	cfg     SchedulerConfig
	logger  *slog.Logger
	cron    *cron.Cron
	entry   cron.EntryID
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(manager *AgentManager, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers the cycle job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.cfg.Spec, func() { s.RunOnce(ctx) })
	if err != nil {
		return err
	}
	s.entry = id
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.cfg.Spec, "topic", s.cfg.Topic)
	return nil
}

// Stop halts scheduling and waits for running cycles to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce runs one analysis cycle for every active agent, in parallel.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ids := s.manager.ActiveAgentIDs()
	if len(ids) == 0 {
		s.logger.Debug("no active agents, skipping cycle")
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()

			cctx := ctx
			if s.cfg.CycleTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
				defer cancel()
			}

			purchased, confidence, err := s.manager.AnalyzeAndPurchase(cctx, agentID, s.cfg.Topic)
			if err != nil {
				s.logger.Warn("agent cycle failed", "agent", agentID, "error", err)
				return
			}
			s.logger.Debug("agent cycle done",
				"agent", agentID,
				"purchased", len(purchased),
				"confidence", confidence,
			)
		}(id)
	}
	wg.Wait()
}
