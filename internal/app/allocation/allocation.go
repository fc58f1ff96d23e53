// Package allocation holds the pure validation rules for destination lists
// and fund assertions shared by the lifecycle and execution services.
package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/venue"
)

var one = decimal.NewFromInt(1)

// ExactlyOneAsset asserts funds carry a single denomination and returns it.
func ExactlyOneAsset(funds []bounty.Coin) (bounty.Coin, error) {
	if len(funds) != 1 {
		return bounty.Coin{}, fmt.Errorf("received %d denoms but required exactly 1", len(funds))
	}
	if funds[0].Amount <= 0 {
		return bounty.Coin{}, fmt.Errorf("fund amount must be positive")
	}
	return funds[0], nil
}

// SwapAmountWithinBalance asserts the recurring swap amount does not exceed
// the starting balance.
func SwapAmountWithinBalance(swapAmount int64, balance bounty.Coin) error {
	if swapAmount <= 0 {
		return fmt.Errorf("swap amount must be positive")
	}
	if swapAmount > balance.Amount {
		return fmt.Errorf("swap amount of %d is greater than the starting balance %d", swapAmount, balance.Amount)
	}
	return nil
}

// Destinations validates a destination list: size limit, strictly positive
// allocations summing to exactly 1, and per-action address validity.
func Destinations(destinations []bounty.Destination, maxDestinations int, addresses venue.AddressValidator) error {
	if len(destinations) == 0 {
		return fmt.Errorf("at least one destination must be provided")
	}
	if len(destinations) > maxDestinations {
		return fmt.Errorf("no more than %d destinations can be provided", maxDestinations)
	}

	total := decimal.Zero
	for _, dest := range destinations {
		if !dest.Allocation.IsPositive() {
			return fmt.Errorf("destination allocations must all be greater than 0")
		}
		total = total.Add(dest.Allocation)

		switch dest.Action {
		case bounty.ActionSend:
			if err := addresses.ValidateAddress(dest.Address); err != nil {
				return fmt.Errorf("destination address %q is invalid: %w", dest.Address, err)
			}
		case bounty.ActionDelegate:
			if err := addresses.ValidateValidator(dest.Address); err != nil {
				return fmt.Errorf("destination validator address %q is invalid: %w", dest.Address, err)
			}
		default:
			return fmt.Errorf("unsupported destination action %q", dest.Action)
		}
	}

	if !total.Equal(one) {
		return fmt.Errorf("destination allocations must add up to 1")
	}
	return nil
}

// Split divides amount across destinations by allocation fraction, flooring
// each share and assigning the rounding residue to the final destination so
// the shares sum to exactly amount.
func Split(amount int64, destinations []bounty.Destination) []int64 {
	shares := make([]int64, len(destinations))
	var assigned int64
	for i, dest := range destinations {
		if i == len(destinations)-1 {
			shares[i] = amount - assigned
			break
		}
		share := decimal.NewFromInt(amount).Mul(dest.Allocation).IntPart()
		shares[i] = share
		assigned += share
	}
	return shares
}
