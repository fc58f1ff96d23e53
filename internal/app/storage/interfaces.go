package storage

import (
	"context"
	"errors"
	"time"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BountyStore persists bounty records. The store exclusively owns them:
// callers re-read, mutate and persist within a single operation.
type BountyStore interface {
	CreateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error)
	UpdateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error)
	GetBounty(ctx context.Context, id string) (bounty.Bounty, error)
	ListBounties(ctx context.Context, startAfter string, limit int) ([]bounty.Bounty, error)
	ListBountiesByOwner(ctx context.Context, owner string, status *bounty.Status) ([]bounty.Bounty, error)
}

// TriggerStore persists at most one trigger per bounty, with a secondary
// index from venue order index to bounty id for price triggers.
type TriggerStore interface {
	SaveTrigger(ctx context.Context, trg trigger.Trigger) error
	GetTrigger(ctx context.Context, bountyID string) (trigger.Trigger, error)
	// DeleteTrigger is idempotent: deleting an absent trigger is a no-op.
	DeleteTrigger(ctx context.Context, bountyID string) error
	GetTriggerByOrderIdx(ctx context.Context, orderIdx uint64) (trigger.Trigger, error)
	ListTimeTriggersDue(ctx context.Context, before time.Time, limit int) ([]trigger.Trigger, error)
	ListPriceTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error)
}

// EventStore is the append-only event log. The store assigns monotonically
// increasing ids and the logical block height; there are no update or delete
// operations.
type EventStore interface {
	AppendEvent(ctx context.Context, resourceID string, data event.Data) (event.Event, error)
	ListEvents(ctx context.Context, resourceID string, startAfter int64, limit int) ([]event.Event, error)
	ListAllEvents(ctx context.Context, startAfter int64, limit int) ([]event.Event, error)
}

// EscrowTaskStore persists pending escrow disbursement tasks keyed by bounty
// id with their due dates.
type EscrowTaskStore interface {
	SaveEscrowTask(ctx context.Context, bountyID string, due time.Time) error
	GetEscrowTaskDue(ctx context.Context, bountyID string) (time.Time, bool, error)
	DeleteEscrowTask(ctx context.Context, bountyID string) error
	ListEscrowTasksDue(ctx context.Context, before time.Time, limit int) ([]string, error)
}
