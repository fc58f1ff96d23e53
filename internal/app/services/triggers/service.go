// Package triggers implements the trigger engine. It arms, disarms and
// evaluates the single condition object that gates each bounty's next
// execution.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/storage"
	"github.com/PrismoFinance/bounties/internal/app/venue"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

// ErrTriggerNotFound is returned when a bounty has no armed trigger.
var ErrTriggerNotFound = errors.New("trigger not found")

// Service is the trigger engine.
type Service struct {
	store storage.TriggerStore
	venue venue.Venue
	log   *logger.Logger
}

// New constructs a trigger engine.
func New(store storage.TriggerStore, vn venue.Venue, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("triggers")
	}
	return &Service{store: store, venue: vn, log: log}
}

// CreateTimeTrigger arms a time trigger for a bounty, replacing any trigger
// already armed for it.
func (s *Service) CreateTimeTrigger(ctx context.Context, bountyID string, targetTime time.Time) (trigger.Trigger, error) {
	trg := trigger.Trigger{
		BountyID:   bountyID,
		Kind:       trigger.KindTime,
		TargetTime: targetTime.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveTrigger(ctx, trg); err != nil {
		return trigger.Trigger{}, fmt.Errorf("saving time trigger: %w", err)
	}
	s.log.WithField("bounty_id", bountyID).
		WithField("target_time", trg.TargetTime).
		Debug("time trigger armed")
	return trg, nil
}

// CreatePriceTrigger arms a price trigger referencing a venue limit order,
// replacing any trigger already armed for the bounty.
func (s *Service) CreatePriceTrigger(ctx context.Context, bountyID string, orderIdx uint64) (trigger.Trigger, error) {
	trg := trigger.Trigger{
		BountyID:  bountyID,
		Kind:      trigger.KindPrice,
		OrderIdx:  orderIdx,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveTrigger(ctx, trg); err != nil {
		return trigger.Trigger{}, fmt.Errorf("saving price trigger: %w", err)
	}
	s.log.WithField("bounty_id", bountyID).
		WithField("order_idx", orderIdx).
		Debug("price trigger armed")
	return trg, nil
}

// Get returns the trigger armed for a bounty.
func (s *Service) Get(ctx context.Context, bountyID string) (trigger.Trigger, error) {
	trg, err := s.store.GetTrigger(ctx, bountyID)
	if errors.Is(err, storage.ErrNotFound) {
		return trigger.Trigger{}, ErrTriggerNotFound
	}
	return trg, err
}

// GetByOrderIdx resolves a venue order index to the trigger referencing it.
func (s *Service) GetByOrderIdx(ctx context.Context, orderIdx uint64) (trigger.Trigger, error) {
	trg, err := s.store.GetTriggerByOrderIdx(ctx, orderIdx)
	if errors.Is(err, storage.ErrNotFound) {
		return trigger.Trigger{}, ErrTriggerNotFound
	}
	return trg, err
}

// Delete disarms a bounty's trigger. Disarming an absent trigger is a no-op.
func (s *Service) Delete(ctx context.Context, bountyID string) error {
	return s.store.DeleteTrigger(ctx, bountyID)
}

// ListTimeTriggersDue returns time triggers whose target time has passed.
func (s *Service) ListTimeTriggersDue(ctx context.Context, now time.Time, limit int) ([]trigger.Trigger, error) {
	return s.store.ListTimeTriggersDue(ctx, now, limit)
}

// ListPriceTriggers returns armed price triggers for fill polling.
func (s *Service) ListPriceTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error) {
	return s.store.ListPriceTriggers(ctx, limit)
}

// Ready evaluates the trigger's readiness predicate. A time trigger is ready
// once its target time has passed and the bounty's directional price
// threshold, if any, is satisfied at the current spot price. A price trigger
// is ready once the referenced limit order is completely filled.
func (s *Service) Ready(ctx context.Context, b bounty.Bounty, trg trigger.Trigger, now time.Time) (bool, error) {
	switch trg.Kind {
	case trigger.KindTime:
		if trg.TargetTime.After(now) {
			return false, nil
		}
		if b.PriceThreshold == nil {
			return true, nil
		}
		price, err := s.venue.SpotPrice(ctx, b.Pair)
		if err != nil {
			return false, fmt.Errorf("fetching spot price: %w", err)
		}
		return !b.PriceThresholdExceeded(price), nil
	case trigger.KindPrice:
		status, err := s.venue.GetOrder(ctx, b.Pair, trg.OrderIdx)
		if err != nil {
			return false, fmt.Errorf("fetching order %d: %w", trg.OrderIdx, err)
		}
		return status.Filled(), nil
	default:
		return false, fmt.Errorf("unknown trigger kind %q", trg.Kind)
	}
}
