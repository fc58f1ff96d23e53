// Package bounties implements the bounty lifecycle manager: creation with
// full request validation, owner-or-admin cancellation with refunds, and
// top-up deposits.
package bounties

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
	// ErrBountyNotFound is returned when the requested bounty does not exist.
	ErrBountyNotFound = errors.New("bounty not found")
	// ErrUnauthorized is returned when the sender may not act on the bounty.
	ErrUnauthorized = errors.New("unauthorized")
)

// Service is the bounty lifecycle manager.
type Service struct {
	store     storage.BountyStore
	tasks     storage.EscrowTaskStore
	triggers  *triggers.Service
	events    *events.Service
	venue     venue.Venue
	bank      venue.Bank
	addresses venue.AddressValidator
	cfg       *config.Config
	log       *logger.Logger
}

// New constructs a lifecycle manager.
func New(
	store storage.BountyStore,
	tasks storage.EscrowTaskStore,
	trg *triggers.Service,
	evt *events.Service,
	vn venue.Venue,
	bank venue.Bank,
	addresses venue.AddressValidator,
	cfg *config.Config,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewDefault("bounties")
	}
	return &Service{
		store:     store,
		tasks:     tasks,
		triggers:  trg,
		events:    evt,
		venue:     vn,
		bank:      bank,
		addresses: addresses,
		cfg:       cfg,
		log:       log,
	}
}

// CreateRequest carries the parameters of a new bounty.
type CreateRequest struct {
	Owner        string
	Label        string
	Destinations []bounty.Destination
	Funds        []bounty.Coin

	PairAddress  string
	SwapAmount   int64
	PositionType bounty.PositionType

	SlippageTolerance *decimal.Decimal
	PriceThreshold    *decimal.Decimal
	TimeInterval      time.Duration

	// At most one of TargetStartTime and TargetPrice may be set. A target
	// price arms the bounty behind a venue limit order instead of a clock.
	TargetStartTime *time.Time
	TargetPrice     *decimal.Decimal

	// A non-nil TargetReceiveAmount opts the bounty into escrowed
	// performance assessment.
	TargetReceiveAmount  *int64
	MinimumReceiveAmount *int64
}

// Create validates the request, persists the bounty in Scheduled state, arms
// its first trigger and records the initial deposit event.
func (s *Service) Create(ctx context.Context, req CreateRequest) (bounty.Bounty, error) {
	now := time.Now().UTC()

	if err := s.addresses.ValidateAddress(req.Owner); err != nil {
		return bounty.Bounty{}, fmt.Errorf("owner address %q is invalid: %w", req.Owner, err)
	}

	funds, err := allocation.ExactlyOneAsset(req.Funds)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if err := allocation.SwapAmountWithinBalance(req.SwapAmount, funds); err != nil {
		return bounty.Bounty{}, err
	}

	destinations := req.Destinations
	if len(destinations) == 0 {
		destinations = []bounty.Destination{{
			Address:    req.Owner,
			Allocation: decimal.NewFromInt(1),
			Action:     bounty.ActionSend,
		}}
	}
	if err := allocation.Destinations(destinations, s.cfg.MaxDestinations, s.addresses); err != nil {
		return bounty.Bounty{}, err
	}

	pair, err := s.venue.GetPair(ctx, req.PairAddress)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("resolving pair %q: %w", req.PairAddress, err)
	}
	if funds.Denom != pair.QuoteDenom {
		return bounty.Bounty{}, fmt.Errorf("fund denom %q does not match pair quote denom %q", funds.Denom, pair.QuoteDenom)
	}

	switch req.PositionType {
	case bounty.PositionEnter, bounty.PositionExit:
	default:
		return bounty.Bounty{}, fmt.Errorf("unsupported position type %q", req.PositionType)
	}

	if req.TimeInterval <= 0 {
		return bounty.Bounty{}, fmt.Errorf("time interval must be positive")
	}
	if req.TargetStartTime != nil && req.TargetReceiveAmount != nil {
		return bounty.Bounty{}, fmt.Errorf("cannot provide both a target start time and a target receive amount")
	}
	if req.TargetStartTime != nil && !req.TargetStartTime.After(now) {
		return bounty.Bounty{}, fmt.Errorf("target start time must be in the future")
	}
	if req.TargetPrice != nil && !req.TargetPrice.IsPositive() {
		return bounty.Bounty{}, fmt.Errorf("target price must be positive")
	}
	if req.TargetReceiveAmount != nil && *req.TargetReceiveAmount <= 0 {
		return bounty.Bounty{}, fmt.Errorf("target receive amount must be positive")
	}
	if req.MinimumReceiveAmount != nil {
		if req.TargetReceiveAmount == nil {
			return bounty.Bounty{}, fmt.Errorf("minimum receive amount requires a target receive amount")
		}
		if *req.TargetReceiveAmount < *req.MinimumReceiveAmount {
			return bounty.Bounty{}, fmt.Errorf("target receive amount must be at least the minimum receive amount")
		}
	}

	slippage := s.cfg.DefaultSlippageTolerance
	if req.SlippageTolerance != nil {
		if req.SlippageTolerance.IsNegative() {
			return bounty.Bounty{}, fmt.Errorf("slippage tolerance cannot be negative")
		}
		slippage = *req.SlippageTolerance
	}

	escrowLevel := decimal.Zero
	if req.TargetReceiveAmount != nil {
		escrowLevel = s.cfg.EscrowLevel
	}

	b := bounty.Bounty{
		Owner:                  req.Owner,
		Label:                  req.Label,
		Destinations:           destinations,
		Status:                 bounty.StatusScheduled,
		Balance:                funds,
		SwapAmount:             req.SwapAmount,
		Pair:                   pair,
		PositionType:           req.PositionType,
		SlippageTolerance:      slippage,
		PriceThreshold:         req.PriceThreshold,
		TimeInterval:           req.TimeInterval,
		TargetReceiveAmount:    req.TargetReceiveAmount,
		MinimumReceiveAmount:   req.MinimumReceiveAmount,
		EscrowLevel:            escrowLevel,
		EscrowedAmount:         bounty.Coin{Denom: pair.BaseDenom},
		DepositedAmount:        funds,
		SwappedAmount:          funds.EmptyOf(),
		ReceivedAmount:         bounty.Coin{Denom: pair.BaseDenom},
		StandardSwappedAmount:  funds.EmptyOf(),
		StandardReceivedAmount: bounty.Coin{Denom: pair.BaseDenom},
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	// The limit order goes in before the bounty is persisted: a venue
	// failure here aborts the whole creation instead of leaving a
	// trigger-less bounty behind.
	var orderIdx uint64
	if req.TargetPrice != nil {
		offer := bounty.Coin{Denom: b.SwapDenom(), Amount: b.SwapAmount}
		orderIdx, err = s.venue.SubmitOrder(ctx, b.Pair, offer, *req.TargetPrice)
		if err != nil {
			return bounty.Bounty{}, fmt.Errorf("submitting limit order: %w", err)
		}
	}

	b, err = s.store.CreateBounty(ctx, b)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("persisting bounty: %w", err)
	}

	if req.TargetPrice != nil {
		if _, err := s.triggers.CreatePriceTrigger(ctx, b.ID, orderIdx); err != nil {
			return bounty.Bounty{}, err
		}
	} else {
		target := now
		if req.TargetStartTime != nil {
			target = req.TargetStartTime.UTC()
		}
		if _, err := s.triggers.CreateTimeTrigger(ctx, b.ID, target); err != nil {
			return bounty.Bounty{}, err
		}
	}

	if _, err := s.events.Append(ctx, b.ID, event.FundsDeposited(funds)); err != nil {
		return bounty.Bounty{}, err
	}

	metrics.RecordBountyCreated()
	s.log.WithField("bounty_id", b.ID).
		WithField("owner", b.Owner).
		WithField("balance", b.Balance.String()).
		Info("bounty created")
	return b, nil
}

// UpdateRequest carries the mutable bounty parameters. Nil fields are left
// untouched; a non-nil empty Destinations slice resets to the owner default.
type UpdateRequest struct {
	Label                *string
	Destinations         []bounty.Destination
	SlippageTolerance    *decimal.Decimal
	MinimumReceiveAmount *int64
	SwapAmount           *int64
	TimeInterval         *time.Duration
}

// Update mutates a bounty's recurring parameters. Only the owner may update
// and cancelled bounties are immutable. Changing the swap amount rescales an
// existing minimum receive amount proportionally, and changing the time
// interval moves an armed time trigger onto the new cadence.
func (s *Service) Update(ctx context.Context, bountyID, sender string, req UpdateRequest) (bounty.Bounty, error) {
	b, err := s.get(ctx, bountyID)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if sender != b.Owner {
		return bounty.Bounty{}, ErrUnauthorized
	}
	if b.IsCancelled() {
		return bounty.Bounty{}, fmt.Errorf("bounty %s is cancelled", b.ID)
	}

	now := time.Now().UTC()
	var changes []event.FieldChange

	if req.SwapAmount != nil {
		if req.MinimumReceiveAmount != nil {
			return bounty.Bounty{}, fmt.Errorf("cannot update swap amount and minimum receive amount at the same time")
		}
		if *req.SwapAmount <= 0 {
			return bounty.Bounty{}, fmt.Errorf("swap amount must be positive")
		}
		if b.MinimumReceiveAmount != nil {
			// The guarantee scales with the amount being swapped per cycle.
			rescaled := decimal.NewFromInt(*b.MinimumReceiveAmount).
				Mul(decimal.NewFromInt(*req.SwapAmount)).
				Div(decimal.NewFromInt(b.SwapAmount)).
				IntPart()
			changes = append(changes, event.FieldChange{
				Field: "minimum_receive_amount",
				Old:   fmt.Sprint(*b.MinimumReceiveAmount),
				New:   fmt.Sprint(rescaled),
			})
			b.MinimumReceiveAmount = &rescaled
		}
		changes = append(changes, event.FieldChange{
			Field: "swap_amount",
			Old:   fmt.Sprint(b.SwapAmount),
			New:   fmt.Sprint(*req.SwapAmount),
		})
		b.SwapAmount = *req.SwapAmount
	}

	if req.Label != nil {
		if len(*req.Label) > 100 {
			return bounty.Bounty{}, fmt.Errorf("label cannot be longer than 100 characters")
		}
		changes = append(changes, event.FieldChange{Field: "label", Old: b.Label, New: *req.Label})
		b.Label = *req.Label
	}

	if req.Destinations != nil {
		destinations := req.Destinations
		if len(destinations) == 0 {
			destinations = []bounty.Destination{{
				Address:    b.Owner,
				Allocation: decimal.NewFromInt(1),
				Action:     bounty.ActionSend,
			}}
		}
		if err := allocation.Destinations(destinations, s.cfg.MaxDestinations, s.addresses); err != nil {
			return bounty.Bounty{}, err
		}
		changes = append(changes, event.FieldChange{
			Field: "destinations",
			Old:   fmt.Sprintf("%+v", b.Destinations),
			New:   fmt.Sprintf("%+v", destinations),
		})
		b.Destinations = destinations
	}

	if req.SlippageTolerance != nil {
		if req.SlippageTolerance.IsNegative() || req.SlippageTolerance.GreaterThan(decimal.NewFromInt(1)) {
			return bounty.Bounty{}, fmt.Errorf("slippage tolerance must be between 0 and 1")
		}
		changes = append(changes, event.FieldChange{
			Field: "slippage_tolerance",
			Old:   b.SlippageTolerance.String(),
			New:   req.SlippageTolerance.String(),
		})
		b.SlippageTolerance = *req.SlippageTolerance
	}

	if req.MinimumReceiveAmount != nil {
		if b.TargetReceiveAmount == nil {
			return bounty.Bounty{}, fmt.Errorf("minimum receive amount requires a target receive amount")
		}
		old := int64(0)
		if b.MinimumReceiveAmount != nil {
			old = *b.MinimumReceiveAmount
		}
		changes = append(changes, event.FieldChange{
			Field: "minimum_receive_amount",
			Old:   fmt.Sprint(old),
			New:   fmt.Sprint(*req.MinimumReceiveAmount),
		})
		b.MinimumReceiveAmount = req.MinimumReceiveAmount
	}

	if req.TimeInterval != nil {
		if *req.TimeInterval <= 0 {
			return bounty.Bounty{}, fmt.Errorf("time interval must be positive")
		}
		changes = append(changes, event.FieldChange{
			Field: "time_interval",
			Old:   b.TimeInterval.String(),
			New:   req.TimeInterval.String(),
		})
		b.TimeInterval = *req.TimeInterval

		if trg, err := s.triggers.Get(ctx, b.ID); err == nil && trg.Kind == trigger.KindTime {
			if _, err := s.triggers.CreateTimeTrigger(ctx, b.ID, now.Add(b.TimeInterval)); err != nil {
				return bounty.Bounty{}, err
			}
		} else if err != nil && !errors.Is(err, triggers.ErrTriggerNotFound) {
			return bounty.Bounty{}, err
		}
	}

	if len(changes) == 0 {
		return b, nil
	}

	b.UpdatedAt = now
	b, err = s.store.UpdateBounty(ctx, b)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("persisting update: %w", err)
	}

	if _, err := s.events.Append(ctx, b.ID, event.Updated(changes)); err != nil {
		return bounty.Bounty{}, err
	}

	metrics.RecordBountyUpdated()
	s.log.WithField("bounty_id", b.ID).
		WithField("fields", len(changes)).
		Info("bounty updated")
	return b, nil
}

// Cancel stops a bounty permanently. The sender must be the owner or the
// configured admin. The remaining balance is refunded, any armed trigger is
// disarmed and a pending venue order is retracted and withdrawn on a
// best-effort basis. Escrowed funds stay behind a deferred disbursement task.
func (s *Service) Cancel(ctx context.Context, bountyID, sender string) (bounty.Bounty, error) {
	b, err := s.get(ctx, bountyID)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if sender != b.Owner && sender != s.cfg.AdminAddress {
		return bounty.Bounty{}, ErrUnauthorized
	}
	if b.IsCancelled() {
		return bounty.Bounty{}, fmt.Errorf("bounty %s is already cancelled", b.ID)
	}

	now := time.Now().UTC()

	if trg, err := s.triggers.Get(ctx, b.ID); err == nil && trg.Kind == trigger.KindPrice {
		// The order may be partially filled or already consumed; neither
		// outcome should block cancellation.
		if err := s.venue.RetractOrder(ctx, b.Pair, trg.OrderIdx); err != nil {
			s.log.WithError(err).WithField("bounty_id", b.ID).Warn("retracting limit order failed")
		}
		if withdrawn, err := s.venue.WithdrawOrder(ctx, b.Pair, trg.OrderIdx); err != nil {
			s.log.WithError(err).WithField("bounty_id", b.ID).Warn("withdrawing limit order failed")
		} else if !withdrawn.IsZero() {
			if err := s.bank.Send(ctx, b.Owner, withdrawn); err != nil {
				s.log.WithError(err).WithField("bounty_id", b.ID).Warn("forwarding withdrawn order proceeds failed")
			}
		}
	}
	if err := s.triggers.Delete(ctx, b.ID); err != nil {
		return bounty.Bounty{}, err
	}

	refund := b.Balance
	if !refund.IsZero() {
		if err := s.bank.Send(ctx, b.Owner, refund); err != nil {
			return bounty.Bounty{}, fmt.Errorf("refunding balance: %w", err)
		}
	}

	if b.EscrowedAmount.Amount > 0 {
		due := b.ExpectedCompletionTime(now)
		if err := s.tasks.SaveEscrowTask(ctx, b.ID, due); err != nil {
			return bounty.Bounty{}, fmt.Errorf("registering escrow task: %w", err)
		}
	}

	b.Status = bounty.StatusCancelled
	b.Balance = b.Balance.EmptyOf()
	b.UpdatedAt = now
	b, err = s.store.UpdateBounty(ctx, b)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("persisting cancellation: %w", err)
	}

	if _, err := s.events.Append(ctx, b.ID, event.Cancelled()); err != nil {
		return bounty.Bounty{}, err
	}

	metrics.RecordBountyCancelled()
	s.log.WithField("bounty_id", b.ID).
		WithField("refunded", refund.String()).
		Info("bounty cancelled")
	return b, nil
}

// Deposit tops up a bounty's balance. Only the owner may deposit, the funds
// must match the swap denom, and an Inactive bounty reactivates.
func (s *Service) Deposit(ctx context.Context, bountyID, sender string, funds []bounty.Coin) (bounty.Bounty, error) {
	b, err := s.get(ctx, bountyID)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if sender != b.Owner {
		return bounty.Bounty{}, ErrUnauthorized
	}
	if b.IsCancelled() {
		return bounty.Bounty{}, fmt.Errorf("bounty %s is cancelled", b.ID)
	}

	coin, err := allocation.ExactlyOneAsset(funds)
	if err != nil {
		return bounty.Bounty{}, err
	}
	if coin.Denom != b.SwapDenom() {
		return bounty.Bounty{}, fmt.Errorf("deposit denom %q does not match swap denom %q", coin.Denom, b.SwapDenom())
	}

	now := time.Now().UTC()
	reactivated := b.IsInactive()

	b.Balance = b.Balance.Add(coin.Amount)
	b.DepositedAmount = b.DepositedAmount.Add(coin.Amount)
	if reactivated {
		b.Status = bounty.StatusActive
	}
	b.UpdatedAt = now

	b, err = s.store.UpdateBounty(ctx, b)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("persisting deposit: %w", err)
	}

	if reactivated {
		if _, err := s.triggers.Get(ctx, b.ID); errors.Is(err, triggers.ErrTriggerNotFound) {
			if _, err := s.triggers.CreateTimeTrigger(ctx, b.ID, now); err != nil {
				return bounty.Bounty{}, err
			}
		} else if err != nil {
			return bounty.Bounty{}, err
		}
	}

	if _, err := s.events.Append(ctx, b.ID, event.FundsDeposited(coin)); err != nil {
		return bounty.Bounty{}, err
	}

	metrics.RecordDeposit()
	s.log.WithField("bounty_id", b.ID).
		WithField("deposited", coin.String()).
		WithField("balance", b.Balance.String()).
		Info("funds deposited")
	return b, nil
}

// Get returns a bounty by id.
func (s *Service) Get(ctx context.Context, bountyID string) (bounty.Bounty, error) {
	return s.get(ctx, bountyID)
}

// List returns bounties ordered by id, starting after the given id.
func (s *Service) List(ctx context.Context, startAfter string, limit int) ([]bounty.Bounty, error) {
	return s.store.ListBounties(ctx, startAfter, limit)
}

// ListByOwner returns an owner's bounties, optionally filtered by status.
func (s *Service) ListByOwner(ctx context.Context, owner string, status *bounty.Status) ([]bounty.Bounty, error) {
	return s.store.ListBountiesByOwner(ctx, owner, status)
}

func (s *Service) get(ctx context.Context, bountyID string) (bounty.Bounty, error) {
	b, err := s.store.GetBounty(ctx, bountyID)
	if errors.Is(err, storage.ErrNotFound) {
		return bounty.Bounty{}, ErrBountyNotFound
	}
	return b, err
}
