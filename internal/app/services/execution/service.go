// Package execution implements the trigger execution engine. ExecuteTrigger
// runs the full per-cycle state machine: readiness validation, trigger
// consumption, activation, dust handling, baseline simulation, re-arming,
// threshold skipping, swapping and redistribution or escrow.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/allocation"
	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/metrics"
	"github.com/PrismoFinance/bounties/internal/app/services/events"
	"github.com/PrismoFinance/bounties/internal/app/services/triggers"
	"github.com/PrismoFinance/bounties/internal/app/storage"
	"github.com/PrismoFinance/bounties/internal/app/venue"
	"github.com/PrismoFinance/bounties/internal/config"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

var (
	// ErrBountyNotFound is returned when the trigger references no bounty.
	ErrBountyNotFound = errors.New("bounty not found")
	// ErrBountyCancelled is returned when executing a cancelled bounty.
	ErrBountyCancelled = errors.New("bounty is cancelled")
	// ErrTriggerNotFound is returned when the bounty has no armed trigger.
	ErrTriggerNotFound = errors.New("trigger not found")
	// ErrTriggerNotReady is returned when the trigger condition has not been
	// met yet.
	ErrTriggerNotReady = errors.New("trigger is not ready")
	// ErrEscrowNotDue is returned when escrow disbursement is requested
	// before its due date.
	ErrEscrowNotDue = errors.New("escrow is not due for disbursement")
	// ErrUnauthorized is returned when the sender may not disburse escrow.
	ErrUnauthorized = errors.New("unauthorized")
)

// Result classifies a completed ExecuteTrigger invocation.
type Result string

const (
	ResultCompleted       Result = "completed"
	ResultSkipped         Result = "skipped"
	ResultEscrowDisbursed Result = "escrow_disbursed"
)

// Outcome summarises what an execution did.
type Outcome struct {
	Result     Result           `json:"result"`
	SkipReason event.SkipReason `json:"skip_reason,omitempty"`

	Sent     bounty.Coin `json:"sent"`
	Received bounty.Coin `json:"received"`
	Fee      bounty.Coin `json:"fee"`
}

// Service is the execution engine.
type Service struct {
	bounties  storage.BountyStore
	tasks     storage.EscrowTaskStore
	triggers  *triggers.Service
	events    *events.Service
	venue     venue.Venue
	bank      venue.Bank
	delegator venue.Delegator
	cfg       *config.Config
	log       *logger.Logger

	now func() time.Time
}

// New constructs an execution engine.
func New(
	bountyStore storage.BountyStore,
	tasks storage.EscrowTaskStore,
	trg *triggers.Service,
	evt *events.Service,
	vn venue.Venue,
	bank venue.Bank,
	delegator venue.Delegator,
	cfg *config.Config,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewDefault("execution")
	}
	return &Service{
		bounties:  bountyStore,
		tasks:     tasks,
		triggers:  trg,
		events:    evt,
		venue:     vn,
		bank:      bank,
		delegator: delegator,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteTrigger runs one execution cycle for the bounty identified by the
// trigger. External failures of the swap itself convert to a skip outcome;
// every other failure aborts with no state change beyond what has already
// been persisted.
func (s *Service) ExecuteTrigger(ctx context.Context, triggerID string) (Outcome, error) {
	started := time.Now()
	now := s.now()

	b, err := s.bounties.GetBounty(ctx, triggerID)
	if errors.Is(err, storage.ErrNotFound) {
		return Outcome{}, ErrBountyNotFound
	} else if err != nil {
		return Outcome{}, err
	}
	if b.IsCancelled() {
		return Outcome{}, ErrBountyCancelled
	}

	trg, err := s.triggers.Get(ctx, b.ID)
	if errors.Is(err, triggers.ErrTriggerNotFound) {
		return Outcome{}, ErrTriggerNotFound
	} else if err != nil {
		return Outcome{}, err
	}

	switch trg.Kind {
	case trigger.KindTime:
		if trg.TargetTime.After(now) {
			return Outcome{}, fmt.Errorf("%w: target time %s has not passed", ErrTriggerNotReady, trg.TargetTime.Format(time.RFC3339))
		}
	case trigger.KindPrice:
		status, err := s.venue.GetOrder(ctx, b.Pair, trg.OrderIdx)
		if err != nil {
			return Outcome{}, fmt.Errorf("fetching order %d: %w", trg.OrderIdx, err)
		}
		if !status.Filled() {
			return Outcome{}, fmt.Errorf("%w: order %d is not completely filled", ErrTriggerNotReady, trg.OrderIdx)
		}
	default:
		return Outcome{}, fmt.Errorf("unknown trigger kind %q", trg.Kind)
	}

	// Filled proceeds are withdrawn while the trigger is still armed: a
	// failed venue withdrawal aborts with the trigger in place and a later
	// request retries the whole cycle.
	if trg.Kind == trigger.KindPrice {
		withdrawn, err := s.venue.WithdrawOrder(ctx, b.Pair, trg.OrderIdx)
		if err != nil {
			return Outcome{}, fmt.Errorf("withdrawing order %d: %w", trg.OrderIdx, err)
		}
		b.Balance = b.Balance.Add(withdrawn.Amount)
		b.UpdatedAt = now
		if b, err = s.bounties.UpdateBounty(ctx, b); err != nil {
			return Outcome{}, fmt.Errorf("persisting order proceeds: %w", err)
		}
	}

	// The trigger is consumed here; a re-delivered execution request fails
	// the trigger lookup instead of running twice.
	if err := s.triggers.Delete(ctx, b.ID); err != nil {
		return Outcome{}, err
	}

	if b.IsScheduled() {
		b.Status = bounty.StatusActive
		b.StartedAt = now
	}

	execAmount := min64(b.SwapAmount, b.Balance.Amount)

	price, err := s.venue.SpotPrice(ctx, b.Pair)
	if err != nil {
		s.restoreRetryTrigger(ctx, b.ID, now)
		return Outcome{}, fmt.Errorf("fetching spot price: %w", err)
	}

	thresholdExceeded := b.PriceThresholdExceeded(price)

	if b.IsDCAPlus() && !b.StandardScheduleFinished() {
		if err := s.simulateStandardExecution(ctx, &b, price, thresholdExceeded); err != nil {
			s.restoreRetryTrigger(ctx, b.ID, now)
			return Outcome{}, err
		}
	}

	b.UpdatedAt = now
	b, err = s.bounties.UpdateBounty(ctx, b)
	if err != nil {
		return Outcome{}, fmt.Errorf("persisting bounty: %w", err)
	}

	if _, err := s.events.Append(ctx, b.ID, event.ExecutionTriggered(b.Pair.BaseDenom, b.Pair.QuoteDenom, price)); err != nil {
		return Outcome{}, err
	}

	if thresholdExceeded {
		if err := s.rearm(ctx, b, now); err != nil {
			return Outcome{}, err
		}
		if _, err := s.events.Append(ctx, b.ID, event.ExecutionSkippedAtPrice(event.SkipPriceThresholdExceeded, price)); err != nil {
			return Outcome{}, err
		}
		metrics.RecordExecution(string(event.SkipPriceThresholdExceeded), time.Since(started))
		s.log.WithField("bounty_id", b.ID).
			WithField("price", price.String()).
			Info("execution skipped: price threshold exceeded")
		return Outcome{Result: ResultSkipped, SkipReason: event.SkipPriceThresholdExceeded}, nil
	}

	if b.IsDCAPlus() && b.IsInactive() && b.StandardScheduleFinished() {
		disbursed, fee, err := s.disburseEscrow(ctx, &b)
		if err != nil {
			return Outcome{}, err
		}
		metrics.RecordExecution(string(ResultEscrowDisbursed), time.Since(started))
		return Outcome{Result: ResultEscrowDisbursed, Received: disbursed, Fee: fee}, nil
	}

	outcome, err := s.swapAndSettle(ctx, &b, execAmount, price, now)
	if err != nil {
		return Outcome{}, err
	}
	metrics.RecordExecution(string(outcome.Result), time.Since(started))
	return outcome, nil
}

// swapAndSettle performs the committed swap and, on success, applies fees,
// accounting, the post-swap status transition and distribution or escrow.
// A failed swap converts to a skip that leaves balance and status untouched.
func (s *Service) swapAndSettle(ctx context.Context, b *bounty.Bounty, execAmount int64, price decimal.Decimal, now time.Time) (Outcome, error) {
	offer := bounty.Coin{Denom: b.SwapDenom(), Amount: execAmount}

	received, err := s.venue.Swap(ctx, b.Pair, offer, b.SlippageTolerance)
	if err != nil {
		reason := event.SkipUnknownFailure
		if b.Balance.Amount >= b.SwapAmount {
			reason = event.SkipSlippageToleranceExceeded
		}
		if _, appendErr := s.events.Append(ctx, b.ID, event.ExecutionSkipped(reason)); appendErr != nil {
			return Outcome{}, appendErr
		}
		if err := s.rearm(ctx, *b, now); err != nil {
			return Outcome{}, err
		}
		s.log.WithError(err).
			WithField("bounty_id", b.ID).
			WithField("reason", string(reason)).
			Info("execution skipped: swap failed")
		return Outcome{Result: ResultSkipped, SkipReason: reason}, nil
	}

	swapFee := decimal.NewFromInt(received.Amount).Mul(s.cfg.SwapFeePercent).IntPart()
	automationFee := decimal.NewFromInt(received.Amount).Mul(s.cfg.AutomationFeePercent).IntPart()
	totalFee := swapFee + automationFee
	net := received.Amount - totalFee

	balance, err := b.Balance.Sub(execAmount)
	if err != nil {
		return Outcome{}, err
	}
	b.Balance = balance
	// Dust is assessed on the realised post-swap balance.
	if b.Balance.Amount < s.cfg.DustThreshold {
		b.Status = bounty.StatusInactive
	}
	b.SwappedAmount = b.SwappedAmount.Add(execAmount)
	b.ReceivedAmount = b.ReceivedAmount.Add(net)

	feeCoin := bounty.Coin{Denom: b.TargetDenom(), Amount: totalFee}
	if totalFee > 0 {
		if err := s.bank.Send(ctx, s.cfg.FeeCollectorAddress, feeCoin); err != nil {
			return Outcome{}, fmt.Errorf("collecting execution fee: %w", err)
		}
	}

	if b.IsDCAPlus() {
		b.EscrowedAmount = b.EscrowedAmount.Add(net)
	} else if err := s.distribute(ctx, b, net); err != nil {
		return Outcome{}, err
	}

	updated, err := s.bounties.UpdateBounty(ctx, *b)
	if err != nil {
		return Outcome{}, fmt.Errorf("persisting execution: %w", err)
	}
	*b = updated

	if err := s.rearm(ctx, *b, now); err != nil {
		return Outcome{}, err
	}

	netCoin := bounty.Coin{Denom: b.TargetDenom(), Amount: net}
	if _, err := s.events.Append(ctx, b.ID, event.ExecutionCompleted(offer, netCoin, feeCoin)); err != nil {
		return Outcome{}, err
	}

	s.log.WithField("bounty_id", b.ID).
		WithField("sent", offer.String()).
		WithField("received", netCoin.String()).
		WithField("fee", feeCoin.String()).
		WithField("price", price.String()).
		Info("execution completed")
	return Outcome{Result: ResultCompleted, Sent: offer, Received: netCoin, Fee: feeCoin}, nil
}

// distribute applies the post-execution actions for an amount of the target
// denom. A failed action is recorded and skipped; the cycle never unwinds a
// committed swap.
func (s *Service) distribute(ctx context.Context, b *bounty.Bounty, amount int64) error {
	if amount <= 0 {
		return nil
	}
	shares := allocation.Split(amount, b.Destinations)
	for i, dest := range b.Destinations {
		if shares[i] <= 0 {
			continue
		}
		share := bounty.Coin{Denom: b.TargetDenom(), Amount: shares[i]}

		var err error
		switch dest.Action {
		case bounty.ActionDelegate:
			err = s.delegator.Delegate(ctx, b.Owner, dest.Address, share)
		default:
			err = s.bank.Send(ctx, dest.Address, share)
		}
		if err != nil {
			s.log.WithError(err).
				WithField("bounty_id", b.ID).
				WithField("destination", dest.Address).
				WithField("funds", share.String()).
				Warn("post execution action failed")
			if _, appendErr := s.events.Append(ctx, b.ID, event.PostExecutionActionFailed(share, dest.Address)); appendErr != nil {
				return appendErr
			}
		}
	}
	return nil
}

// rearm creates the next cycle's time trigger unless the bounty has reached
// its terminal state: Inactive with no standard schedule left to simulate.
func (s *Service) rearm(ctx context.Context, b bounty.Bounty, now time.Time) error {
	if b.ShouldNotContinue() {
		return nil
	}
	_, err := s.triggers.CreateTimeTrigger(ctx, b.ID, now.Add(b.TimeInterval))
	return err
}

// restoreRetryTrigger arms an immediately due time trigger after the armed
// trigger was consumed but the cycle aborted before reaching an outcome. The
// scheduler retries the execution on its next pass.
func (s *Service) restoreRetryTrigger(ctx context.Context, bountyID string, now time.Time) {
	if _, err := s.triggers.CreateTimeTrigger(ctx, bountyID, now); err != nil {
		s.log.WithError(err).
			WithField("bounty_id", bountyID).
			Error("re-arming trigger after aborted execution failed")
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
