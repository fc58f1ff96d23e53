// Package simvenue provides an in-process venue, bank, delegator and address
// validator for local development. Prices follow a deterministic random walk
// and orders fill as soon as the walk crosses their limit price.
package simvenue

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/venue"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

const addressPrefix = "prismo1"
const validatorPrefix = "prismovaloper1"

type order struct {
	status venue.OrderStatus
	limit  decimal.Decimal
	payout bounty.Coin
}

// Venue is a self-contained simulated exchange.
type Venue struct {
	mu    sync.Mutex
	rng   *rand.Rand
	log   *logger.Logger
	pairs map[string]bounty.Pair
	price decimal.Decimal

	nextOrderIdx uint64
	orders       map[uint64]*order
}

var _ venue.Venue = (*Venue)(nil)

// New creates a simulated venue with one pair and a starting price.
func New(pair bounty.Pair, startPrice decimal.Decimal, seed int64, log *logger.Logger) *Venue {
	if log == nil {
		log = logger.NewDefault("simvenue")
	}
	return &Venue{
		rng:          rand.New(rand.NewSource(seed)),
		log:          log,
		pairs:        map[string]bounty.Pair{pair.Address: pair},
		price:        startPrice,
		nextOrderIdx: 1,
		orders:       make(map[uint64]*order),
	}
}

func (v *Venue) GetPair(_ context.Context, address string) (bounty.Pair, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pair, ok := v.pairs[address]
	if !ok {
		return bounty.Pair{}, fmt.Errorf("unknown pair %q", address)
	}
	return pair, nil
}

func (v *Venue) SpotPrice(_ context.Context, _ bounty.Pair) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.step()
	return v.price, nil
}

// step advances the price walk by up to ±0.5% and fills crossed orders.
func (v *Venue) step() {
	drift := decimal.NewFromFloat((v.rng.Float64() - 0.5) / 100)
	v.price = v.price.Mul(decimal.NewFromInt(1).Add(drift))

	for _, o := range v.orders {
		if o.status.RemainingOffer > 0 && v.price.LessThanOrEqual(o.limit) {
			filled := decimal.NewFromInt(o.status.RemainingOffer).Div(o.limit).IntPart()
			o.payout = bounty.Coin{Denom: o.payout.Denom, Amount: filled}
			o.status.FilledAmount = o.payout
			o.status.RemainingOffer = 0
		}
	}
}

func (v *Venue) Swap(_ context.Context, pair bounty.Pair, offer bounty.Coin, _ decimal.Decimal) (bounty.Coin, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.step()
	received := decimal.NewFromInt(offer.Amount).Div(v.price).IntPart()
	return bounty.Coin{Denom: pair.BaseDenom, Amount: received}, nil
}

func (v *Venue) SubmitOrder(_ context.Context, pair bounty.Pair, offer bounty.Coin, price decimal.Decimal) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.nextOrderIdx
	v.nextOrderIdx++
	v.orders[idx] = &order{
		status: venue.OrderStatus{OrderIdx: idx, OriginalOffer: offer, RemainingOffer: offer.Amount},
		limit:  price,
		payout: bounty.Coin{Denom: pair.BaseDenom},
	}
	return idx, nil
}

func (v *Venue) GetOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) (venue.OrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderIdx]
	if !ok {
		return venue.OrderStatus{}, fmt.Errorf("unknown order %d", orderIdx)
	}
	return o.status, nil
}

func (v *Venue) RetractOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderIdx]
	if !ok {
		return fmt.Errorf("unknown order %d", orderIdx)
	}
	o.status.RemainingOffer = 0
	return nil
}

func (v *Venue) WithdrawOrder(_ context.Context, _ bounty.Pair, orderIdx uint64) (bounty.Coin, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderIdx]
	if !ok {
		return bounty.Coin{}, fmt.Errorf("unknown order %d", orderIdx)
	}
	payout := o.payout
	delete(v.orders, orderIdx)
	return payout, nil
}

// Bank is a logging no-op transfer service for local development.
type Bank struct {
	log *logger.Logger
}

var _ venue.Bank = (*Bank)(nil)

func NewBank(log *logger.Logger) *Bank {
	if log == nil {
		log = logger.NewDefault("simbank")
	}
	return &Bank{log: log}
}

func (b *Bank) Send(_ context.Context, to string, amount bounty.Coin) error {
	b.log.WithField("to", to).WithField("amount", amount.String()).Info("transfer")
	return nil
}

// Delegator is a logging no-op delegation service for local development.
type Delegator struct {
	log *logger.Logger
}

var _ venue.Delegator = (*Delegator)(nil)

func NewDelegator(log *logger.Logger) *Delegator {
	if log == nil {
		log = logger.NewDefault("simdelegator")
	}
	return &Delegator{log: log}
}

func (d *Delegator) Delegate(_ context.Context, delegator, validator string, amount bounty.Coin) error {
	d.log.WithField("delegator", delegator).
		WithField("validator", validator).
		WithField("amount", amount.String()).
		Info("delegation")
	return nil
}

// AddressValidator enforces simple bech32-style prefixes.
type AddressValidator struct{}

var _ venue.AddressValidator = (*AddressValidator)(nil)

func (AddressValidator) ValidateAddress(address string) error {
	if !strings.HasPrefix(address, addressPrefix) || len(address) < len(addressPrefix)+8 {
		return fmt.Errorf("address must start with %q", addressPrefix)
	}
	return nil
}

func (AddressValidator) ValidateValidator(address string) error {
	if !strings.HasPrefix(address, validatorPrefix) || len(address) < len(validatorPrefix)+8 {
		return fmt.Errorf("validator address must start with %q", validatorPrefix)
	}
	return nil
}
