// Package scheduler implements the off-core polling loop. The engine itself
// never pushes readiness notifications, so a periodic job discovers due time
// triggers, filled limit orders and due escrow tasks, and dispatches them to
// the execution engine under a rate limit.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/services/execution"
	"github.com/PrismoFinance/bounties/internal/app/services/triggers"
	"github.com/PrismoFinance/bounties/internal/app/storage"
	"github.com/PrismoFinance/bounties/internal/config"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

const pollBatchSize = 100

// Scheduler polls for work on a fixed interval and dispatches executions.
type Scheduler struct {
	bounties storage.BountyStore
	tasks    storage.EscrowTaskStore
	triggers *triggers.Service
	exec     *execution.Service
	cfg      *config.Config
	log      *logger.Logger

	limiter *rate.Limiter
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// New constructs a scheduler.
func New(
	bountyStore storage.BountyStore,
	tasks storage.EscrowTaskStore,
	trg *triggers.Service,
	exec *execution.Service,
	cfg *config.Config,
	log *logger.Logger,
) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		bounties: bountyStore,
		tasks:    tasks,
		triggers: trg,
		exec:     exec,
		cfg:      cfg,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SchedulerRateLimit), 1),
	}
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "scheduler" }

// Start begins the polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New()
	s.cron.Schedule(cron.Every(s.cfg.SchedulerPollInterval), cron.FuncJob(func() {
		s.poll(pollCtx)
	}))
	s.cron.Start()

	s.log.WithField("interval", s.cfg.SchedulerPollInterval.String()).Info("scheduler started")
	return nil
}

// Stop halts the polling loop, waiting for an in-flight poll to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		stopped := s.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.log.Info("scheduler stopped")
	return nil
}

// poll runs one discovery pass.
func (s *Scheduler) poll(ctx context.Context) {
	now := time.Now().UTC()
	s.dispatchTimeTriggers(ctx, now)
	s.dispatchPriceTriggers(ctx, now)
	s.dispatchEscrowTasks(ctx, now)
}

func (s *Scheduler) dispatchTimeTriggers(ctx context.Context, now time.Time) {
	due, err := s.triggers.ListTimeTriggersDue(ctx, now, pollBatchSize)
	if err != nil {
		s.log.WithError(err).Error("listing due time triggers failed")
		return
	}
	for _, trg := range due {
		s.execute(ctx, trg, now)
	}
}

func (s *Scheduler) dispatchPriceTriggers(ctx context.Context, now time.Time) {
	armed, err := s.triggers.ListPriceTriggers(ctx, pollBatchSize)
	if err != nil {
		s.log.WithError(err).Error("listing price triggers failed")
		return
	}
	for _, trg := range armed {
		s.execute(ctx, trg, now)
	}
}

// execute checks readiness and dispatches a single trigger.
func (s *Scheduler) execute(ctx context.Context, trg trigger.Trigger, now time.Time) {
	b, err := s.bounties.GetBounty(ctx, trg.BountyID)
	if err != nil {
		s.log.WithError(err).WithField("bounty_id", trg.BountyID).Error("loading bounty failed")
		return
	}

	ready, err := s.triggers.Ready(ctx, b, trg, now)
	if err != nil {
		s.log.WithError(err).WithField("bounty_id", trg.BountyID).Error("readiness check failed")
		return
	}
	if !ready {
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	outcome, err := s.exec.ExecuteTrigger(ctx, trg.BountyID)
	switch {
	case errors.Is(err, execution.ErrTriggerNotReady), errors.Is(err, execution.ErrTriggerNotFound):
		// Lost the race against a concurrent dispatch or a state change
		// between readiness check and execution.
	case err != nil:
		s.log.WithError(err).WithField("bounty_id", trg.BountyID).Error("execution failed")
	default:
		s.log.WithField("bounty_id", trg.BountyID).
			WithField("result", string(outcome.Result)).
			Debug("trigger executed")
	}
}

func (s *Scheduler) dispatchEscrowTasks(ctx context.Context, now time.Time) {
	identity := s.cfg.AdminAddress
	if len(s.cfg.ExecutorAddresses) > 0 {
		identity = s.cfg.ExecutorAddresses[0]
	}

	due, err := s.tasks.ListEscrowTasksDue(ctx, now, pollBatchSize)
	if err != nil {
		s.log.WithError(err).Error("listing due escrow tasks failed")
		return
	}
	for _, bountyID := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := s.exec.DisburseEscrow(ctx, bountyID, identity); err != nil {
			s.log.WithError(err).WithField("bounty_id", bountyID).Error("escrow disbursement failed")
		}
	}
}
