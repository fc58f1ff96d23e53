// Package testutil provides deterministic fakes for the engine's external
// collaborators. The fakes return scripted prices, fills and failures so
// tests can drive every execution path without a live venue.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/venue"
)

// FakeVenue is a scripted swap venue.
type FakeVenue struct {
	mu sync.Mutex

	Pairs map[string]bounty.Pair

	Price    decimal.Decimal
	PriceErr error

	// SwapErr fails the next swaps until cleared.
	SwapErr error
	// SwapFeePercent is deducted from the gross conversion, venue-side.
	SwapFeePercent decimal.Decimal

	SubmitErr   error
	WithdrawErr error
	RetractErr  error

	nextOrderIdx uint64
	orders       map[uint64]*venue.OrderStatus
	withdrawals  map[uint64]bounty.Coin

	Swaps     []bounty.Coin
	Retracted []uint64
	Withdrawn []uint64
}

var _ venue.Venue = (*FakeVenue)(nil)

// NewFakeVenue creates a venue with a single registered pair and price.
func NewFakeVenue(pair bounty.Pair, price decimal.Decimal) *FakeVenue {
	return &FakeVenue{
		Pairs:        map[string]bounty.Pair{pair.Address: pair},
		Price:        price,
		nextOrderIdx: 1,
		orders:       make(map[uint64]*venue.OrderStatus),
		withdrawals:  make(map[uint64]bounty.Coin),
	}
}

func (f *FakeVenue) GetPair(_ context.Context, address string) (bounty.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair, ok := f.Pairs[address]
	if !ok {
		return bounty.Pair{}, fmt.Errorf("unknown pair %q", address)
	}
	return pair, nil
}

func (f *FakeVenue) SpotPrice(_ context.Context, _ bounty.Pair) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PriceErr != nil {
		return decimal.Decimal{}, f.PriceErr
	}
	return f.Price, nil
}

// SetPrice rescripts the spot price.
func (f *FakeVenue) SetPrice(price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Price = price
}

func (f *FakeVenue) Swap(_ context.Context, pair bounty.Pair, offer bounty.Coin, _ decimal.Decimal) (bounty.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SwapErr != nil {
		return bounty.Coin{}, f.SwapErr
	}
	f.Swaps = append(f.Swaps, offer)

	gross := decimal.NewFromInt(offer.Amount).Div(f.Price)
	if !f.SwapFeePercent.IsZero() {
		gross = gross.Mul(decimal.NewFromInt(1).Sub(f.SwapFeePercent))
	}
	return bounty.Coin{Denom: pair.BaseDenom, Amount: gross.IntPart()}, nil
}

func (f *FakeVenue) SubmitOrder(_ context.Context, _ bounty.Pair, offer bounty.Coin, _ decimal.Decimal) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return 0, f.SubmitErr
	}
	idx := f.nextOrderIdx
	f.nextOrderIdx++
	f.orders[idx] = &venue.OrderStatus{
		OrderIdx:       idx,
		OriginalOffer:  offer,
		RemainingOffer: offer.Amount,
	}
	return idx, nil
}

func (f *FakeVenue) GetOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) (venue.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderIdx]
	if !ok {
		return venue.OrderStatus{}, fmt.Errorf("unknown order %d", orderIdx)
	}
	return *order, nil
}

// FillOrder scripts a complete fill paying out the given coin on withdrawal.
func (f *FakeVenue) FillOrder(orderIdx uint64, payout bounty.Coin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderIdx]; ok {
		order.FilledAmount = payout
		order.RemainingOffer = 0
		f.withdrawals[orderIdx] = payout
	}
}

func (f *FakeVenue) RetractOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RetractErr != nil {
		return f.RetractErr
	}
	f.Retracted = append(f.Retracted, orderIdx)
	return nil
}

func (f *FakeVenue) WithdrawOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) (bounty.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WithdrawErr != nil {
		return bounty.Coin{}, f.WithdrawErr
	}
	f.Withdrawn = append(f.Withdrawn, orderIdx)
	payout := f.withdrawals[orderIdx]
	delete(f.withdrawals, orderIdx)
	return payout, nil
}

// Transfer records one FakeBank send.
type Transfer struct {
	To     string
	Amount bounty.Coin
}

// FakeBank records transfers and can fail sends to selected addresses.
type FakeBank struct {
	mu      sync.Mutex
	Sends   []Transfer
	FailFor map[string]error
}

var _ venue.Bank = (*FakeBank)(nil)

func NewFakeBank() *FakeBank {
	return &FakeBank{FailFor: make(map[string]error)}
}

func (f *FakeBank) Send(_ context.Context, to string, amount bounty.Coin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[to]; ok {
		return err
	}
	f.Sends = append(f.Sends, Transfer{To: to, Amount: amount})
	return nil
}

// SentTo sums all amounts transferred to an address.
func (f *FakeBank) SentTo(to string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, transfer := range f.Sends {
		if transfer.To == to {
			total += transfer.Amount.Amount
		}
	}
	return total
}

// Delegation records one FakeDelegator call.
type Delegation struct {
	Delegator string
	Validator string
	Amount    bounty.Coin
}

// FakeDelegator records delegations and can fail on demand.
type FakeDelegator struct {
	mu          sync.Mutex
	Delegations []Delegation
	Err         error
}

var _ venue.Delegator = (*FakeDelegator)(nil)

func (f *FakeDelegator) Delegate(_ context.Context, delegator, validator string, amount bounty.Coin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Delegations = append(f.Delegations, Delegation{Delegator: delegator, Validator: validator, Amount: amount})
	return nil
}

// FakeAddressValidator accepts every non-empty address except those listed.
type FakeAddressValidator struct {
	InvalidAddresses  map[string]bool
	InvalidValidators map[string]bool
}

var _ venue.AddressValidator = (*FakeAddressValidator)(nil)

func (f *FakeAddressValidator) ValidateAddress(address string) error {
	if address == "" || f.InvalidAddresses[address] {
		return fmt.Errorf("invalid address %q", address)
	}
	return nil
}

func (f *FakeAddressValidator) ValidateValidator(address string) error {
	if address == "" || f.InvalidValidators[address] {
		return fmt.Errorf("invalid validator address %q", address)
	}
	return nil
}
