// Package bounty defines the bounty aggregate: a funded recurring-execution
// commitment whose balance is periodically swapped and redistributed.
package bounty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the bounty lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusCancelled Status = "cancelled"
)

// PositionType determines the direction of the price threshold test.
type PositionType string

const (
	PositionEnter PositionType = "enter"
	PositionExit  PositionType = "exit"
)

// PostExecutionAction is what happens to a destination's share of proceeds.
type PostExecutionAction string

const (
	ActionSend     PostExecutionAction = "send"
	ActionDelegate PostExecutionAction = "delegate"
)

// Coin is an amount of a single denomination in base units.
type Coin struct {
	Denom  string `json:"denom"`
	Amount int64  `json:"amount"`
}

// EmptyOf returns a zero coin of the same denom.
func (c Coin) EmptyOf() Coin { return Coin{Denom: c.Denom} }

// Add returns the coin increased by amount.
func (c Coin) Add(amount int64) Coin { return Coin{Denom: c.Denom, Amount: c.Amount + amount} }

// Sub returns the coin decreased by amount. It errors rather than go negative.
func (c Coin) Sub(amount int64) (Coin, error) {
	if amount > c.Amount {
		return Coin{}, fmt.Errorf("cannot subtract %d from %d%s", amount, c.Amount, c.Denom)
	}
	return Coin{Denom: c.Denom, Amount: c.Amount - amount}, nil
}

func (c Coin) IsZero() bool { return c.Amount == 0 }

func (c Coin) String() string { return fmt.Sprintf("%d%s", c.Amount, c.Denom) }

// Destination receives a fraction of post-execution proceeds.
type Destination struct {
	Address    string              `json:"address"`
	Allocation decimal.Decimal     `json:"allocation"`
	Action     PostExecutionAction `json:"action"`
}

// Pair identifies a trading pair at the swap venue. The bounty's swap denom
// is always the pair's quote denom; proceeds arrive in the base denom.
type Pair struct {
	Address    string `json:"address"`
	BaseDenom  string `json:"base_denom"`
	QuoteDenom string `json:"quote_denom"`
}

// Bounty is a funded recurring conditional-execution commitment.
type Bounty struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner"`
	Label        string        `json:"label,omitempty"`
	Destinations []Destination `json:"destinations"`
	Status       Status        `json:"status"`

	Balance      Coin         `json:"balance"`
	SwapAmount   int64        `json:"swap_amount"`
	Pair         Pair         `json:"pair"`
	PositionType PositionType `json:"position_type"`

	SlippageTolerance decimal.Decimal  `json:"slippage_tolerance"`
	PriceThreshold    *decimal.Decimal `json:"price_threshold,omitempty"`
	TimeInterval      time.Duration    `json:"time_interval"`

	// DCA+ fields. A non-nil TargetReceiveAmount marks the bounty as DCA+.
	TargetReceiveAmount  *int64          `json:"target_receive_amount,omitempty"`
	MinimumReceiveAmount *int64          `json:"minimum_receive_amount,omitempty"`
	EscrowLevel          decimal.Decimal `json:"escrow_level"`
	EscrowedAmount       Coin            `json:"escrowed_amount"`

	// Running statistics.
	DepositedAmount Coin `json:"deposited_amount"`
	SwappedAmount   Coin `json:"swapped_amount"`
	ReceivedAmount  Coin `json:"received_amount"`

	// Standard DCA baseline tracked for performance assessment.
	StandardSwappedAmount  Coin `json:"standard_swapped_amount"`
	StandardReceivedAmount Coin `json:"standard_received_amount"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Bounty) IsScheduled() bool { return b.Status == StatusScheduled }
func (b Bounty) IsActive() bool    { return b.Status == StatusActive }
func (b Bounty) IsInactive() bool  { return b.Status == StatusInactive }
func (b Bounty) IsCancelled() bool { return b.Status == StatusCancelled }

// IsDCAPlus reports whether the bounty escrows proceeds for performance
// assessment instead of distributing them per cycle.
func (b Bounty) IsDCAPlus() bool { return b.TargetReceiveAmount != nil }

// SwapDenom is the denomination being spent each execution.
func (b Bounty) SwapDenom() string { return b.Balance.Denom }

// TargetDenom is the denomination received from the venue.
func (b Bounty) TargetDenom() string { return b.Pair.BaseDenom }

// StandardScheduleFinished reports whether the theoretical standard DCA
// schedule would have consumed the entire deposited amount by now.
func (b Bounty) StandardScheduleFinished() bool {
	return b.IsDCAPlus() && b.StandardSwappedAmount.Amount >= b.DepositedAmount.Amount
}

// ShouldNotContinue reports whether no further trigger should be armed:
// the bounty is inactive and, for DCA+, the standard schedule has finished.
func (b Bounty) ShouldNotContinue() bool {
	if !b.IsInactive() {
		return false
	}
	if !b.IsDCAPlus() {
		return true
	}
	return b.StandardScheduleFinished()
}

// PriceThresholdExceeded applies the directional threshold test: an Enter
// position tolerates prices at or below the threshold, an Exit position
// prices at or above it.
func (b Bounty) PriceThresholdExceeded(price decimal.Decimal) bool {
	if b.PriceThreshold == nil {
		return false
	}
	if b.PositionType == PositionExit {
		return price.LessThan(*b.PriceThreshold)
	}
	return price.GreaterThan(*b.PriceThreshold)
}

// ExpectedCompletionTime estimates when the remaining schedule (the longer of
// the actual balance and the unfinished standard baseline) runs out.
func (b Bounty) ExpectedCompletionTime(now time.Time) time.Time {
	remaining := b.Balance.Amount
	if b.IsDCAPlus() {
		if standardRemaining := b.DepositedAmount.Amount - b.StandardSwappedAmount.Amount; standardRemaining > remaining {
			remaining = standardRemaining
		}
	}
	if b.SwapAmount <= 0 || remaining <= 0 {
		return now
	}
	executions := remaining / b.SwapAmount
	if remaining%b.SwapAmount != 0 {
		executions++
	}
	return now.Add(time.Duration(executions) * b.TimeInterval)
}
