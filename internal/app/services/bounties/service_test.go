package bounties

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/services/events"
	"github.com/PrismoFinance/bounties/internal/app/services/triggers"
	"github.com/PrismoFinance/bounties/internal/app/storage/memory"
	"github.com/PrismoFinance/bounties/pkg/testutil"
)

var testPair = bounty.Pair{Address: "pair-1", BaseDenom: "uatom", QuoteDenom: "uusdc"}

type env struct {
	svc      *Service
	store    *memory.Store
	venue    *testutil.FakeVenue
	bank     *testutil.FakeBank
	triggers *triggers.Service
	events   *events.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.New()
	fakeVenue := testutil.NewFakeVenue(testPair, decimal.NewFromInt(2))
	fakeBank := testutil.NewFakeBank()
	triggerSvc := triggers.New(store, fakeVenue, nil)
	eventSvc := events.New(store, nil)
	addresses := &testutil.FakeAddressValidator{}

	svc := New(store, store, triggerSvc, eventSvc, fakeVenue, fakeBank, addresses, testutil.Config(), nil)
	return &env{svc: svc, store: store, venue: fakeVenue, bank: fakeBank, triggers: triggerSvc, events: eventSvc}
}

func validRequest() CreateRequest {
	return CreateRequest{
		Owner:        "prismo1owner",
		Funds:        []bounty.Coin{{Denom: "uusdc", Amount: 100000}},
		PairAddress:  testPair.Address,
		SwapAmount:   10000,
		PositionType: bounty.PositionEnter,
		TimeInterval: 24 * time.Hour,
	}
}

func TestCreateBounty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != bounty.StatusScheduled {
		t.Fatalf("expected Scheduled status, got %s", b.Status)
	}
	if b.Balance.Amount != 100000 {
		t.Fatalf("expected balance 100000, got %d", b.Balance.Amount)
	}
	if len(b.Destinations) != 1 || b.Destinations[0].Address != "prismo1owner" {
		t.Fatalf("expected defaulted owner destination, got %+v", b.Destinations)
	}

	trg, err := e.triggers.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("expected a trigger: %v", err)
	}
	if trg.Kind != trigger.KindTime {
		t.Fatalf("expected a time trigger, got %s", trg.Kind)
	}
	if time.Since(trg.TargetTime) > time.Minute {
		t.Fatalf("expected target time at now, got %s", trg.TargetTime)
	}

	evts, err := e.events.ListByResource(ctx, b.ID, 0, 0)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(evts) != 1 || evts[0].Data.Type != event.TypeFundsDeposited {
		t.Fatalf("expected a FundsDeposited event, got %+v", evts)
	}
}

func TestCreateBountyWithTargetPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	price := decimal.NewFromFloat(1.8)
	req.TargetPrice = &price

	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	trg, err := e.triggers.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("expected a trigger: %v", err)
	}
	if trg.Kind != trigger.KindPrice {
		t.Fatalf("expected a price trigger, got %s", trg.Kind)
	}
	if trg.OrderIdx == 0 {
		t.Fatal("expected a venue order index")
	}
	if _, err := e.triggers.GetByOrderIdx(ctx, trg.OrderIdx); err != nil {
		t.Fatalf("order index lookup failed: %v", err)
	}
}

func TestCreateBountyValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*CreateRequest)
		wantErr string
	}{
		{
			name:    "two denoms",
			mutate:  func(r *CreateRequest) { r.Funds = append(r.Funds, bounty.Coin{Denom: "uatom", Amount: 1}) },
			wantErr: "required exactly 1",
		},
		{
			name:    "swap amount exceeds funds",
			mutate:  func(r *CreateRequest) { r.SwapAmount = 100001 },
			wantErr: "greater than the starting balance",
		},
		{
			name:    "wrong quote denom",
			mutate:  func(r *CreateRequest) { r.Funds = []bounty.Coin{{Denom: "uatom", Amount: 100000}} },
			wantErr: "does not match pair quote denom",
		},
		{
			name:    "unknown pair",
			mutate:  func(r *CreateRequest) { r.PairAddress = "pair-unknown" },
			wantErr: "resolving pair",
		},
		{
			name: "allocations below one",
			mutate: func(r *CreateRequest) {
				r.Destinations = []bounty.Destination{
					{Address: "prismo1a", Allocation: decimal.NewFromFloat(0.999999), Action: bounty.ActionSend},
				}
			},
			wantErr: "add up to 1",
		},
		{
			name: "allocations above one",
			mutate: func(r *CreateRequest) {
				r.Destinations = []bounty.Destination{
					{Address: "prismo1a", Allocation: decimal.NewFromFloat(1.000001), Action: bounty.ActionSend},
				}
			},
			wantErr: "add up to 1",
		},
		{
			name: "zero allocation",
			mutate: func(r *CreateRequest) {
				r.Destinations = []bounty.Destination{
					{Address: "prismo1a", Allocation: decimal.NewFromInt(1), Action: bounty.ActionSend},
					{Address: "prismo1b", Allocation: decimal.Zero, Action: bounty.ActionSend},
				}
			},
			wantErr: "greater than 0",
		},
		{
			name: "too many destinations",
			mutate: func(r *CreateRequest) {
				share := decimal.NewFromInt(1).Div(decimal.NewFromInt(11))
				for i := 0; i < 11; i++ {
					r.Destinations = append(r.Destinations, bounty.Destination{
						Address: "prismo1a", Allocation: share, Action: bounty.ActionSend,
					})
				}
			},
			wantErr: "no more than 10",
		},
		{
			name: "past start time",
			mutate: func(r *CreateRequest) {
				past := time.Now().Add(-time.Hour)
				r.TargetStartTime = &past
			},
			wantErr: "must be in the future",
		},
		{
			name: "start time with target receive amount",
			mutate: func(r *CreateRequest) {
				future := time.Now().Add(time.Hour)
				target := int64(1000)
				r.TargetStartTime = &future
				r.TargetReceiveAmount = &target
			},
			wantErr: "cannot provide both",
		},
		{
			name: "target below minimum",
			mutate: func(r *CreateRequest) {
				target, minimum := int64(1000), int64(2000)
				r.TargetReceiveAmount = &target
				r.MinimumReceiveAmount = &minimum
			},
			wantErr: "at least the minimum",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := e.svc.Create(ctx, req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestCreateBountyDCAPlusSetsEscrowLevel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	target := int64(40000)
	req.TargetReceiveAmount = &target

	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !b.IsDCAPlus() {
		t.Fatal("expected a DCA+ bounty")
	}
	if !b.EscrowLevel.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("expected escrow level 0.05, got %s", b.EscrowLevel)
	}
}

func TestCreateBountySubmitOrderFailureLeavesNoBounty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	price := decimal.NewFromFloat(1.8)
	req.TargetPrice = &price
	e.venue.SubmitErr = errors.New("venue unavailable")

	if _, err := e.svc.Create(ctx, req); err == nil {
		t.Fatal("expected an error when the limit order cannot be placed")
	}

	// Nothing was persisted: no half-created bounty without a trigger.
	all, err := e.store.ListBounties(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListBounties failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no bounties, got %d", len(all))
	}
}

func TestUpdateBounty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	label := "weekly atom buys"
	slippage := decimal.NewFromFloat(0.02)
	destinations := []bounty.Destination{
		{Address: "prismo1a", Allocation: decimal.NewFromFloat(0.4), Action: bounty.ActionSend},
		{Address: "prismovaloper1b", Allocation: decimal.NewFromFloat(0.6), Action: bounty.ActionDelegate},
	}

	updated, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{
		Label:             &label,
		SlippageTolerance: &slippage,
		Destinations:      destinations,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Label != label {
		t.Fatalf("expected label %q, got %q", label, updated.Label)
	}
	if !updated.SlippageTolerance.Equal(slippage) {
		t.Fatalf("expected slippage 0.02, got %s", updated.SlippageTolerance)
	}
	if len(updated.Destinations) != 2 || updated.Destinations[1].Action != bounty.ActionDelegate {
		t.Fatalf("unexpected destinations: %+v", updated.Destinations)
	}

	evts, err := e.events.ListByResource(ctx, b.ID, 0, 0)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	last := evts[len(evts)-1]
	if last.Data.Type != event.TypeUpdated {
		t.Fatalf("expected an Updated event, got %s", last.Data.Type)
	}
	if len(last.Data.Updates) != 3 {
		t.Fatalf("expected 3 field changes, got %+v", last.Data.Updates)
	}
}

func TestUpdateBountyValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := e.svc.Update(ctx, b.ID, "prismo1stranger", UpdateRequest{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	tooHigh := decimal.NewFromFloat(1.01)
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{SlippageTolerance: &tooHigh}); err == nil {
		t.Fatal("expected slippage above 1 to be rejected")
	}

	swap, minimum := int64(20000), int64(5000)
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{SwapAmount: &swap, MinimumReceiveAmount: &minimum}); err == nil {
		t.Fatal("expected combined swap amount and minimum receive amount to be rejected")
	}
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{MinimumReceiveAmount: &minimum}); err == nil {
		t.Fatal("expected minimum receive amount without a target to be rejected")
	}

	longLabel := strings.Repeat("x", 101)
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{Label: &longLabel}); err == nil {
		t.Fatal("expected a label over 100 characters to be rejected")
	}

	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1owner"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	label := "late"
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{Label: &label}); err == nil {
		t.Fatal("expected a cancelled bounty to be immutable")
	}
}

func TestUpdateBountySwapAmountRescalesMinimumReceive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	target, minimum := int64(40000), int64(4000)
	req.TargetReceiveAmount = &target
	req.MinimumReceiveAmount = &minimum

	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	swap := int64(20000)
	updated, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{SwapAmount: &swap})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.SwapAmount != 20000 {
		t.Fatalf("expected swap amount 20000, got %d", updated.SwapAmount)
	}
	// Doubling the per-cycle swap doubles the per-cycle guarantee.
	if updated.MinimumReceiveAmount == nil || *updated.MinimumReceiveAmount != 8000 {
		t.Fatalf("expected minimum receive amount 8000, got %+v", updated.MinimumReceiveAmount)
	}
}

func TestUpdateBountyTimeIntervalRearmsTrigger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	interval := time.Hour
	if _, err := e.svc.Update(ctx, b.ID, "prismo1owner", UpdateRequest{TimeInterval: &interval}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	trg, err := e.triggers.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("expected a trigger: %v", err)
	}
	if trg.Kind != trigger.KindTime {
		t.Fatalf("expected a time trigger, got %s", trg.Kind)
	}
	expected := time.Now().Add(time.Hour)
	if trg.TargetTime.Before(expected.Add(-time.Minute)) || trg.TargetTime.After(expected.Add(time.Minute)) {
		t.Fatalf("expected target time near now+1h, got %s", trg.TargetTime)
	}
}

func TestCancelBounty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	req.Funds = []bounty.Coin{{Denom: "uusdc", Amount: 42000}}
	req.SwapAmount = 10000
	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cancelled, err := e.svc.Cancel(ctx, b.ID, "prismo1owner")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != bounty.StatusCancelled {
		t.Fatalf("expected Cancelled status, got %s", cancelled.Status)
	}
	if cancelled.Balance.Amount != 0 {
		t.Fatalf("expected zero balance, got %d", cancelled.Balance.Amount)
	}
	if got := e.bank.SentTo("prismo1owner"); got != 42000 {
		t.Fatalf("expected refund of 42000, got %d", got)
	}
	if _, err := e.triggers.Get(ctx, b.ID); !errors.Is(err, triggers.ErrTriggerNotFound) {
		t.Fatalf("expected trigger to be deleted, got %v", err)
	}

	// Re-cancelling is rejected.
	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1owner"); err == nil {
		t.Fatal("expected an error cancelling twice")
	}
}

func TestCancelBountyAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1stranger"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// The admin may cancel any bounty.
	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1admin"); err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}
}

func TestCancelBountyRetractsLimitOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	price := decimal.NewFromFloat(1.8)
	req.TargetPrice = &price
	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1owner"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(e.venue.Retracted) != 1 {
		t.Fatalf("expected one retracted order, got %d", len(e.venue.Retracted))
	}
	if len(e.venue.Withdrawn) != 1 {
		t.Fatalf("expected one withdrawn order, got %d", len(e.venue.Withdrawn))
	}
}

func TestCancelBountyRegistersEscrowTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := validRequest()
	target := int64(40000)
	req.TargetReceiveAmount = &target
	b, err := e.svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Simulate prior executions having escrowed proceeds.
	stored, err := e.store.GetBounty(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBounty failed: %v", err)
	}
	stored.EscrowedAmount.Amount = 1234
	if _, err := e.store.UpdateBounty(ctx, stored); err != nil {
		t.Fatalf("UpdateBounty failed: %v", err)
	}

	if _, err := e.svc.Cancel(ctx, b.ID, "prismo1owner"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, ok, _ := e.store.GetEscrowTaskDue(ctx, b.ID); !ok {
		t.Fatal("expected a deferred escrow task")
	}
}

func TestDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := e.svc.Deposit(ctx, b.ID, "prismo1owner", []bounty.Coin{{Denom: "uusdc", Amount: 5000}})
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if updated.Balance.Amount != 105000 {
		t.Fatalf("expected balance 105000, got %d", updated.Balance.Amount)
	}
	if updated.DepositedAmount.Amount != 105000 {
		t.Fatalf("expected deposited 105000, got %d", updated.DepositedAmount.Amount)
	}

	if _, err := e.svc.Deposit(ctx, b.ID, "prismo1stranger", []bounty.Coin{{Denom: "uusdc", Amount: 1}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.svc.Deposit(ctx, b.ID, "prismo1owner", []bounty.Coin{{Denom: "uatom", Amount: 1}}); err == nil {
		t.Fatal("expected denom mismatch error")
	}
}

func TestDepositReactivatesInactiveBounty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Drive the bounty Inactive with an exhausted schedule and no trigger.
	stored, err := e.store.GetBounty(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBounty failed: %v", err)
	}
	stored.Status = bounty.StatusInactive
	stored.Balance.Amount = 1000
	if _, err := e.store.UpdateBounty(ctx, stored); err != nil {
		t.Fatalf("UpdateBounty failed: %v", err)
	}
	if err := e.triggers.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete trigger failed: %v", err)
	}

	updated, err := e.svc.Deposit(ctx, b.ID, "prismo1owner", []bounty.Coin{{Denom: "uusdc", Amount: 60000}})
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if updated.Status != bounty.StatusActive {
		t.Fatalf("expected Active status, got %s", updated.Status)
	}
	trg, err := e.triggers.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("expected a re-created trigger: %v", err)
	}
	if trg.Kind != trigger.KindTime {
		t.Fatalf("expected a time trigger, got %s", trg.Kind)
	}
}
