package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/metrics"
	"github.com/PrismoFinance/bounties/internal/app/storage"
)

// simulateStandardExecution advances the theoretical standard DCA schedule by
// one cycle at the observed spot price. The baseline swaps the same recurring
// amount and pays the same swap fee, so the escrowed strategy is compared
// against what plain DCA would have received.
func (s *Service) simulateStandardExecution(ctx context.Context, b *bounty.Bounty, price decimal.Decimal, thresholdExceeded bool) error {
	if thresholdExceeded {
		// The standard schedule would have hit the same threshold.
		_, err := s.events.Append(ctx, b.ID, event.SimulatedExecutionSkipped(event.SkipPriceThresholdExceeded))
		return err
	}

	remaining := b.DepositedAmount.Amount - b.StandardSwappedAmount.Amount
	amount := min64(b.SwapAmount, remaining)
	if amount <= 0 {
		return nil
	}
	if price.IsZero() || price.IsNegative() {
		return fmt.Errorf("invalid spot price %s", price)
	}

	gross := decimal.NewFromInt(amount).Div(price).IntPart()
	fee := decimal.NewFromInt(gross).Mul(s.cfg.SwapFeePercent).IntPart()
	net := gross - fee

	b.StandardSwappedAmount = b.StandardSwappedAmount.Add(amount)
	b.StandardReceivedAmount = b.StandardReceivedAmount.Add(net)

	sent := bounty.Coin{Denom: b.SwapDenom(), Amount: amount}
	received := bounty.Coin{Denom: b.TargetDenom(), Amount: net}
	feeCoin := bounty.Coin{Denom: b.TargetDenom(), Amount: fee}
	_, err := s.events.Append(ctx, b.ID, event.SimulatedExecutionCompleted(sent, received, feeCoin))
	return err
}

// DisburseEscrow releases a bounty's escrowed funds once due: the performance
// fee goes to the fee collector and the remainder to the owner. The sender
// must be a configured executor or the admin. Called by the scheduler for
// deferred tasks registered at cancellation, and directly for bounties whose
// schedule has completed.
func (s *Service) DisburseEscrow(ctx context.Context, bountyID, sender string) (Outcome, error) {
	if !s.authorizedExecutor(sender) {
		return Outcome{}, ErrUnauthorized
	}

	b, err := s.bounties.GetBounty(ctx, bountyID)
	if err != nil {
		return Outcome{}, err
	}
	if b.EscrowedAmount.Amount <= 0 {
		return Outcome{}, fmt.Errorf("bounty %s has no escrowed funds", b.ID)
	}

	if due, ok, err := s.tasks.GetEscrowTaskDue(ctx, b.ID); err != nil {
		return Outcome{}, err
	} else if ok && due.After(s.now()) {
		return Outcome{}, fmt.Errorf("%w: due %s", ErrEscrowNotDue, due.Format(time.RFC3339))
	}

	disbursed, fee, err := s.disburseEscrow(ctx, &b)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: ResultEscrowDisbursed, Received: disbursed, Fee: fee}, nil
}

// disburseEscrow pays out the escrow of the given bounty. The performance fee
// is a fraction of the amount by which the strategy outperformed the standard
// baseline, capped at the escrowed balance. With no recorded baseline the fee
// is zero and the full escrow returns to the owner.
func (s *Service) disburseEscrow(ctx context.Context, b *bounty.Bounty) (bounty.Coin, bounty.Coin, error) {
	escrowed := b.EscrowedAmount

	feeCoin := s.performanceFee(*b)
	disbursed := bounty.Coin{Denom: escrowed.Denom, Amount: escrowed.Amount - feeCoin.Amount}

	if feeCoin.Amount > 0 {
		if err := s.bank.Send(ctx, s.cfg.FeeCollectorAddress, feeCoin); err != nil {
			return bounty.Coin{}, bounty.Coin{}, fmt.Errorf("paying performance fee: %w", err)
		}
	}
	if disbursed.Amount > 0 {
		if err := s.bank.Send(ctx, b.Owner, disbursed); err != nil {
			return bounty.Coin{}, bounty.Coin{}, fmt.Errorf("disbursing escrow: %w", err)
		}
	}

	b.EscrowedAmount = escrowed.EmptyOf()
	b.UpdatedAt = s.now()
	updated, err := s.bounties.UpdateBounty(ctx, *b)
	if err != nil {
		return bounty.Coin{}, bounty.Coin{}, fmt.Errorf("persisting escrow disbursement: %w", err)
	}
	*b = updated

	if err := s.tasks.DeleteEscrowTask(ctx, b.ID); err != nil {
		return bounty.Coin{}, bounty.Coin{}, err
	}
	if _, err := s.events.Append(ctx, b.ID, event.EscrowDisbursed(disbursed, feeCoin)); err != nil {
		return bounty.Coin{}, bounty.Coin{}, err
	}

	metrics.RecordEscrowDisbursed()
	s.log.WithField("bounty_id", b.ID).
		WithField("disbursed", disbursed.String()).
		WithField("performance_fee", feeCoin.String()).
		Info("escrow disbursed")
	return disbursed, feeCoin, nil
}

// performanceFee is the configured fraction of the amount by which the
// strategy outperformed the standard baseline, capped at the escrowed
// balance. With no recorded baseline the fee is zero.
func (s *Service) performanceFee(b bounty.Bounty) bounty.Coin {
	var fee int64
	if b.StandardReceivedAmount.Amount > 0 {
		outperformance := b.ReceivedAmount.Amount - b.StandardReceivedAmount.Amount
		if outperformance > 0 {
			fee = decimal.NewFromInt(outperformance).Mul(s.cfg.PerformanceFeePercent).IntPart()
			if fee > b.EscrowedAmount.Amount {
				fee = b.EscrowedAmount.Amount
			}
		}
	}
	return bounty.Coin{Denom: b.EscrowedAmount.Denom, Amount: fee}
}

// Performance summarises how a DCA+ bounty is tracking against the standard
// schedule.
type Performance struct {
	Received         bounty.Coin     `json:"received"`
	StandardReceived bounty.Coin     `json:"standard_received"`
	Factor           decimal.Decimal `json:"factor"`
	Fee              bounty.Coin     `json:"fee"`
}

// Performance reports the performance factor of a DCA+ bounty and the fee
// that would be taken were the escrow disbursed now. Bounties without a
// performance baseline opt-in are rejected.
func (s *Service) Performance(ctx context.Context, bountyID string) (Performance, error) {
	b, err := s.bounties.GetBounty(ctx, bountyID)
	if errors.Is(err, storage.ErrNotFound) {
		return Performance{}, ErrBountyNotFound
	} else if err != nil {
		return Performance{}, err
	}
	if !b.IsDCAPlus() {
		return Performance{}, fmt.Errorf("bounty %s has no performance assessment", b.ID)
	}

	factor := decimal.Zero
	if b.StandardReceivedAmount.Amount > 0 {
		factor = decimal.NewFromInt(b.ReceivedAmount.Amount).
			Div(decimal.NewFromInt(b.StandardReceivedAmount.Amount))
	}
	return Performance{
		Received:         b.ReceivedAmount,
		StandardReceived: b.StandardReceivedAmount,
		Factor:           factor,
		Fee:              s.performanceFee(b),
	}, nil
}

func (s *Service) authorizedExecutor(sender string) bool {
	if sender == s.cfg.AdminAddress && sender != "" {
		return true
	}
	for _, addr := range s.cfg.ExecutorAddresses {
		if sender == addr {
			return true
		}
	}
	return false
}
