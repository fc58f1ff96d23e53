// Package venue defines the narrow synchronous interfaces through which the
// engine talks to its external collaborators: the swap venue, the bank, the
// delegated-authorization service and the address validator. Implementations
// live outside the core; tests use the fakes in pkg/testutil.
package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
)

// ErrSlippageExceeded is returned by Swap when the venue cannot fill within
// the requested slippage tolerance.
var ErrSlippageExceeded = errors.New("slippage tolerance exceeded")

// OrderStatus describes a limit order at the venue.
type OrderStatus struct {
	OrderIdx       uint64
	OriginalOffer  bounty.Coin
	RemainingOffer int64
	FilledAmount   bounty.Coin
}

// Filled reports whether the order has been completely consumed.
func (o OrderStatus) Filled() bool { return o.RemainingOffer == 0 }

// Venue is the swap venue / order book.
type Venue interface {
	// GetPair resolves a pair address to its denomination ordering.
	GetPair(ctx context.Context, address string) (bounty.Pair, error)

	// SpotPrice returns the current price of the base denom quoted in the
	// quote denom.
	SpotPrice(ctx context.Context, pair bounty.Pair) (decimal.Decimal, error)

	// Swap executes an immediate swap of the offer coin at current price,
	// returning the received coin. Returns ErrSlippageExceeded when the
	// fill would violate the tolerance.
	Swap(ctx context.Context, pair bounty.Pair, offer bounty.Coin, slippageTolerance decimal.Decimal) (bounty.Coin, error)

	// SubmitOrder places a limit order for the offer coin at the given
	// price and returns the venue's order index.
	SubmitOrder(ctx context.Context, pair bounty.Pair, offer bounty.Coin, price decimal.Decimal) (uint64, error)

	// GetOrder returns the current status of a limit order.
	GetOrder(ctx context.Context, pair bounty.Pair, orderIdx uint64) (OrderStatus, error)

	// RetractOrder cancels the unfilled remainder of a limit order.
	RetractOrder(ctx context.Context, pair bounty.Pair, orderIdx uint64) error

	// WithdrawOrder claims the filled proceeds of a limit order.
	WithdrawOrder(ctx context.Context, pair bounty.Pair, orderIdx uint64) (bounty.Coin, error)
}

// Bank transfers funds to an address.
type Bank interface {
	Send(ctx context.Context, to string, amount bounty.Coin) error
}

// Delegator performs a stake delegation on behalf of a third-party address.
type Delegator interface {
	Delegate(ctx context.Context, delegator, validator string, amount bounty.Coin) error
}

// AddressValidator checks address syntax for accounts and validators.
type AddressValidator interface {
	ValidateAddress(address string) error
	ValidateValidator(address string) error
}
