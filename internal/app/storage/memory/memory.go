// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu           sync.RWMutex
	nextBountyID int64
	nextEventID  int64
	blockHeight  int64

	bounties         map[string]bounty.Bounty
	triggers         map[string]trigger.Trigger
	triggersByOrder  map[uint64]string
	events           []event.Event
	escrowTasks      map[string]time.Time
	eventsByResource map[string][]int // positions into events
}

var _ storage.BountyStore = (*Store)(nil)
var _ storage.TriggerStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
var _ storage.EscrowTaskStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextBountyID:     1,
		nextEventID:      1,
		blockHeight:      1,
		bounties:         make(map[string]bounty.Bounty),
		triggers:         make(map[string]trigger.Trigger),
		triggersByOrder:  make(map[uint64]string),
		escrowTasks:      make(map[string]time.Time),
		eventsByResource: make(map[string][]int),
	}
}

// BountyStore implementation ---------------------------------------------------

func (s *Store) CreateBounty(_ context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = fmt.Sprintf("%d", s.nextBountyID)
		s.nextBountyID++
	} else if _, exists := s.bounties[b.ID]; exists {
		return bounty.Bounty{}, fmt.Errorf("bounty %s already exists", b.ID)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Destinations = cloneDestinations(b.Destinations)

	s.bounties[b.ID] = b
	return cloneBounty(b), nil
}

func (s *Store) UpdateBounty(_ context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.bounties[b.ID]
	if !ok {
		return bounty.Bounty{}, fmt.Errorf("bounty %s: %w", b.ID, storage.ErrNotFound)
	}

	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	b.Destinations = cloneDestinations(b.Destinations)

	s.bounties[b.ID] = b
	return cloneBounty(b), nil
}

func (s *Store) GetBounty(_ context.Context, id string) (bounty.Bounty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bounties[id]
	if !ok {
		return bounty.Bounty{}, fmt.Errorf("bounty %s: %w", id, storage.ErrNotFound)
	}
	return cloneBounty(b), nil
}

func (s *Store) ListBounties(_ context.Context, startAfter string, limit int) ([]bounty.Bounty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]bounty.Bounty, 0, len(s.bounties))
	for _, b := range s.bounties {
		result = append(result, cloneBounty(b))
	}
	sort.Slice(result, func(i, j int) bool { return numericLess(result[i].ID, result[j].ID) })

	if startAfter != "" {
		cut := 0
		for i, b := range result {
			if b.ID == startAfter {
				cut = i + 1
				break
			}
		}
		result = result[cut:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListBountiesByOwner(_ context.Context, owner string, status *bounty.Status) ([]bounty.Bounty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]bounty.Bounty, 0)
	for _, b := range s.bounties {
		if b.Owner != owner {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		result = append(result, cloneBounty(b))
	}
	sort.Slice(result, func(i, j int) bool { return numericLess(result[i].ID, result[j].ID) })
	return result, nil
}

// TriggerStore implementation --------------------------------------------------

func (s *Store) SaveTrigger(_ context.Context, trg trigger.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trg.BountyID == "" {
		return fmt.Errorf("trigger requires a bounty id")
	}
	if existing, ok := s.triggers[trg.BountyID]; ok && existing.Kind == trigger.KindPrice {
		delete(s.triggersByOrder, existing.OrderIdx)
	}
	trg.CreatedAt = time.Now().UTC()
	s.triggers[trg.BountyID] = trg
	if trg.Kind == trigger.KindPrice {
		s.triggersByOrder[trg.OrderIdx] = trg.BountyID
	}
	return nil
}

func (s *Store) GetTrigger(_ context.Context, bountyID string) (trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trg, ok := s.triggers[bountyID]
	if !ok {
		return trigger.Trigger{}, fmt.Errorf("trigger %s: %w", bountyID, storage.ErrNotFound)
	}
	return trg, nil
}

func (s *Store) DeleteTrigger(_ context.Context, bountyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trg, ok := s.triggers[bountyID]; ok && trg.Kind == trigger.KindPrice {
		delete(s.triggersByOrder, trg.OrderIdx)
	}
	delete(s.triggers, bountyID)
	return nil
}

func (s *Store) GetTriggerByOrderIdx(_ context.Context, orderIdx uint64) (trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bountyID, ok := s.triggersByOrder[orderIdx]
	if !ok {
		return trigger.Trigger{}, fmt.Errorf("trigger for order %d: %w", orderIdx, storage.ErrNotFound)
	}
	return s.triggers[bountyID], nil
}

func (s *Store) ListTimeTriggersDue(_ context.Context, before time.Time, limit int) ([]trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]trigger.Trigger, 0)
	for _, trg := range s.triggers {
		if trg.Kind == trigger.KindTime && !trg.TargetTime.After(before) {
			result = append(result, trg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TargetTime.Before(result[j].TargetTime) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListPriceTriggers(_ context.Context, limit int) ([]trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]trigger.Trigger, 0)
	for _, trg := range s.triggers {
		if trg.Kind == trigger.KindPrice {
			result = append(result, trg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderIdx < result[j].OrderIdx })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// EventStore implementation ----------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, resourceID string, data event.Data) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt := event.Event{
		ID:          s.nextEventID,
		ResourceID:  resourceID,
		BlockHeight: s.blockHeight,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
	s.nextEventID++
	s.blockHeight++

	s.events = append(s.events, evt)
	s.eventsByResource[resourceID] = append(s.eventsByResource[resourceID], len(s.events)-1)
	return evt, nil
}

func (s *Store) ListEvents(_ context.Context, resourceID string, startAfter int64, limit int) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Event, 0)
	for _, idx := range s.eventsByResource[resourceID] {
		evt := s.events[idx]
		if evt.ID <= startAfter {
			continue
		}
		result = append(result, evt)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListAllEvents(_ context.Context, startAfter int64, limit int) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Event, 0)
	for _, evt := range s.events {
		if evt.ID <= startAfter {
			continue
		}
		result = append(result, evt)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// EscrowTaskStore implementation -----------------------------------------------

func (s *Store) SaveEscrowTask(_ context.Context, bountyID string, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrowTasks[bountyID] = due.UTC()
	return nil
}

func (s *Store) GetEscrowTaskDue(_ context.Context, bountyID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due, ok := s.escrowTasks[bountyID]
	return due, ok, nil
}

func (s *Store) DeleteEscrowTask(_ context.Context, bountyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.escrowTasks, bountyID)
	return nil
}

func (s *Store) ListEscrowTasksDue(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0)
	for id, due := range s.escrowTasks {
		if !due.After(before) {
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return numericLess(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Helpers ------------------------------------------------------------------

func cloneBounty(b bounty.Bounty) bounty.Bounty {
	b.Destinations = cloneDestinations(b.Destinations)
	if b.PriceThreshold != nil {
		threshold := *b.PriceThreshold
		b.PriceThreshold = &threshold
	}
	if b.TargetReceiveAmount != nil {
		target := *b.TargetReceiveAmount
		b.TargetReceiveAmount = &target
	}
	if b.MinimumReceiveAmount != nil {
		minimum := *b.MinimumReceiveAmount
		b.MinimumReceiveAmount = &minimum
	}
	return b
}

func cloneDestinations(src []bounty.Destination) []bounty.Destination {
	if len(src) == 0 {
		return nil
	}
	return append([]bounty.Destination(nil), src...)
}

func numericLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
