package triggers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/storage/memory"
	"github.com/PrismoFinance/bounties/pkg/testutil"
)

var testPair = bounty.Pair{Address: "pair-1", BaseDenom: "uatom", QuoteDenom: "uusdc"}

func newService(t *testing.T) (*Service, *testutil.FakeVenue) {
	t.Helper()
	fakeVenue := testutil.NewFakeVenue(testPair, decimal.NewFromInt(2))
	return New(memory.New(), fakeVenue, nil), fakeVenue
}

func TestCreateAndDeleteTrigger(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	target := time.Now().Add(time.Hour)
	if _, err := svc.CreateTimeTrigger(ctx, "1", target); err != nil {
		t.Fatalf("CreateTimeTrigger failed: %v", err)
	}

	trg, err := svc.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if trg.Kind != trigger.KindTime {
		t.Fatalf("expected time trigger, got %s", trg.Kind)
	}

	// Arming again replaces the existing trigger.
	if _, err := svc.CreatePriceTrigger(ctx, "1", 7); err != nil {
		t.Fatalf("CreatePriceTrigger failed: %v", err)
	}
	trg, err = svc.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if trg.Kind != trigger.KindPrice || trg.OrderIdx != 7 {
		t.Fatalf("expected price trigger for order 7, got %+v", trg)
	}
	if got, err := svc.GetByOrderIdx(ctx, 7); err != nil || got.BountyID != "1" {
		t.Fatalf("order index lookup failed: %v %+v", err, got)
	}

	if err := svc.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, "1"); !errors.Is(err, ErrTriggerNotFound) {
		t.Fatalf("expected ErrTriggerNotFound, got %v", err)
	}
	// Deleting again is a no-op.
	if err := svc.Delete(ctx, "1"); err != nil {
		t.Fatalf("repeat Delete failed: %v", err)
	}
}

func TestTimeTriggerReadiness(t *testing.T) {
	svc, fakeVenue := newService(t)
	ctx := context.Background()
	now := time.Now()

	b := bounty.Bounty{Pair: testPair, PositionType: bounty.PositionEnter}

	future := trigger.Trigger{BountyID: "1", Kind: trigger.KindTime, TargetTime: now.Add(time.Hour)}
	if ready, err := svc.Ready(ctx, b, future, now); err != nil || ready {
		t.Fatalf("expected not ready before target time, got ready=%v err=%v", ready, err)
	}

	due := trigger.Trigger{BountyID: "1", Kind: trigger.KindTime, TargetTime: now.Add(-time.Hour)}
	if ready, err := svc.Ready(ctx, b, due, now); err != nil || !ready {
		t.Fatalf("expected ready after target time, got ready=%v err=%v", ready, err)
	}

	// An Enter position tolerates prices at or below the threshold.
	threshold := decimal.NewFromFloat(1.5)
	b.PriceThreshold = &threshold
	if ready, err := svc.Ready(ctx, b, due, now); err != nil || ready {
		t.Fatalf("expected threshold to block at price 2, got ready=%v err=%v", ready, err)
	}
	fakeVenue.SetPrice(decimal.NewFromFloat(1.4))
	if ready, err := svc.Ready(ctx, b, due, now); err != nil || !ready {
		t.Fatalf("expected ready at price 1.4, got ready=%v err=%v", ready, err)
	}

	// An Exit position wants prices at or above the threshold.
	b.PositionType = bounty.PositionExit
	if ready, err := svc.Ready(ctx, b, due, now); err != nil || ready {
		t.Fatalf("expected exit threshold to block at price 1.4, got ready=%v err=%v", ready, err)
	}
	fakeVenue.SetPrice(decimal.NewFromInt(2))
	if ready, err := svc.Ready(ctx, b, due, now); err != nil || !ready {
		t.Fatalf("expected exit ready at price 2, got ready=%v err=%v", ready, err)
	}
}

func TestPriceTriggerReadiness(t *testing.T) {
	svc, fakeVenue := newService(t)
	ctx := context.Background()
	now := time.Now()

	orderIdx, err := fakeVenue.SubmitOrder(ctx, testPair, bounty.Coin{Denom: "uusdc", Amount: 10000}, decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	b := bounty.Bounty{Pair: testPair}
	trg := trigger.Trigger{BountyID: "1", Kind: trigger.KindPrice, OrderIdx: orderIdx}

	if ready, err := svc.Ready(ctx, b, trg, now); err != nil || ready {
		t.Fatalf("expected unfilled order to block, got ready=%v err=%v", ready, err)
	}
	fakeVenue.FillOrder(orderIdx, bounty.Coin{Denom: "uusdc", Amount: 9000})
	if ready, err := svc.Ready(ctx, b, trg, now); err != nil || !ready {
		t.Fatalf("expected filled order to be ready, got ready=%v err=%v", ready, err)
	}
}

func TestListTimeTriggersDue(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.CreateTimeTrigger(ctx, "1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("CreateTimeTrigger failed: %v", err)
	}
	if _, err := svc.CreateTimeTrigger(ctx, "2", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateTimeTrigger failed: %v", err)
	}
	if _, err := svc.CreatePriceTrigger(ctx, "3", 1); err != nil {
		t.Fatalf("CreatePriceTrigger failed: %v", err)
	}

	due, err := svc.ListTimeTriggersDue(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListTimeTriggersDue failed: %v", err)
	}
	if len(due) != 1 || due[0].BountyID != "1" {
		t.Fatalf("expected only bounty 1 due, got %+v", due)
	}

	armed, err := svc.ListPriceTriggers(ctx, 0)
	if err != nil {
		t.Fatalf("ListPriceTriggers failed: %v", err)
	}
	if len(armed) != 1 || armed[0].BountyID != "3" {
		t.Fatalf("expected only bounty 3 armed, got %+v", armed)
	}
}
