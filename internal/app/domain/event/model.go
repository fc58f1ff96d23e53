// Package event defines the append-only audit records emitted by the engine.
// Events are write-only from the engine's perspective: they are never read
// back to drive execution decisions.
package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
)

// Type tags the event data variant.
type Type string

const (
	TypeFundsDeposited              Type = "funds_deposited"
	TypeExecutionTriggered          Type = "execution_triggered"
	TypeExecutionCompleted          Type = "execution_completed"
	TypeSimulatedExecutionCompleted Type = "simulated_execution_completed"
	TypeExecutionSkipped            Type = "execution_skipped"
	TypeSimulatedExecutionSkipped   Type = "simulated_execution_skipped"
	TypeUpdated                     Type = "updated"
	TypeCancelled                   Type = "cancelled"
	TypeEscrowDisbursed             Type = "escrow_disbursed"
	TypePostExecutionActionFailed   Type = "post_execution_action_failed"
)

// SkipReason explains a non-erroneous execution outcome with no swap.
type SkipReason string

const (
	SkipSlippageToleranceExceeded SkipReason = "slippage_tolerance_exceeded"
	SkipPriceThresholdExceeded    SkipReason = "price_threshold_exceeded"
	SkipUnknownFailure            SkipReason = "unknown_failure"
)

// FieldChange records one mutated bounty field in an Updated event.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Data is the tagged payload of an event. Only the fields relevant to the
// Type are populated.
type Data struct {
	Type Type `json:"type"`

	// Updated.
	Updates []FieldChange `json:"updates,omitempty"`

	// FundsDeposited.
	Deposited *bounty.Coin `json:"deposited,omitempty"`

	// ExecutionTriggered.
	BaseDenom  string          `json:"base_denom,omitempty"`
	QuoteDenom string          `json:"quote_denom,omitempty"`
	AssetPrice decimal.Decimal `json:"asset_price,omitempty"`

	// ExecutionCompleted / SimulatedExecutionCompleted.
	Sent     *bounty.Coin `json:"sent,omitempty"`
	Received *bounty.Coin `json:"received,omitempty"`
	Fee      *bounty.Coin `json:"fee,omitempty"`

	// ExecutionSkipped / SimulatedExecutionSkipped.
	SkipReason SkipReason       `json:"skip_reason,omitempty"`
	SkipPrice  *decimal.Decimal `json:"skip_price,omitempty"`

	// EscrowDisbursed.
	Disbursed      *bounty.Coin `json:"disbursed,omitempty"`
	PerformanceFee *bounty.Coin `json:"performance_fee,omitempty"`

	// PostExecutionActionFailed.
	FailedFunds       *bounty.Coin `json:"failed_funds,omitempty"`
	FailedDestination string       `json:"failed_destination,omitempty"`
}

// Event is an immutable audit record tied to a bounty.
type Event struct {
	ID          int64     `json:"id"`
	ResourceID  string    `json:"resource_id"`
	BlockHeight int64     `json:"block_height"`
	Timestamp   time.Time `json:"timestamp"`
	Data        Data      `json:"data"`
}

// FundsDeposited builds the deposit event payload.
func FundsDeposited(amount bounty.Coin) Data {
	return Data{Type: TypeFundsDeposited, Deposited: &amount}
}

// ExecutionTriggered builds the trigger-fired event payload.
func ExecutionTriggered(baseDenom, quoteDenom string, price decimal.Decimal) Data {
	return Data{Type: TypeExecutionTriggered, BaseDenom: baseDenom, QuoteDenom: quoteDenom, AssetPrice: price}
}

// ExecutionCompleted builds the successful execution event payload.
func ExecutionCompleted(sent, received, fee bounty.Coin) Data {
	return Data{Type: TypeExecutionCompleted, Sent: &sent, Received: &received, Fee: &fee}
}

// SimulatedExecutionCompleted records a standard-schedule baseline execution.
func SimulatedExecutionCompleted(sent, received, fee bounty.Coin) Data {
	return Data{Type: TypeSimulatedExecutionCompleted, Sent: &sent, Received: &received, Fee: &fee}
}

// ExecutionSkipped builds a skip event payload.
func ExecutionSkipped(reason SkipReason) Data {
	return Data{Type: TypeExecutionSkipped, SkipReason: reason}
}

// ExecutionSkippedAtPrice builds a price-threshold skip event payload.
func ExecutionSkippedAtPrice(reason SkipReason, price decimal.Decimal) Data {
	return Data{Type: TypeExecutionSkipped, SkipReason: reason, SkipPrice: &price}
}

// SimulatedExecutionSkipped records a skipped standard-schedule execution.
func SimulatedExecutionSkipped(reason SkipReason) Data {
	return Data{Type: TypeSimulatedExecutionSkipped, SkipReason: reason}
}

// Updated builds the bounty-updated event payload.
func Updated(changes []FieldChange) Data {
	return Data{Type: TypeUpdated, Updates: changes}
}

// Cancelled builds the cancellation event payload.
func Cancelled() Data { return Data{Type: TypeCancelled} }

// EscrowDisbursed builds the escrow disbursement event payload.
func EscrowDisbursed(disbursed, performanceFee bounty.Coin) Data {
	return Data{Type: TypeEscrowDisbursed, Disbursed: &disbursed, PerformanceFee: &performanceFee}
}

// PostExecutionActionFailed records destination-side funds that could not be
// applied after a committed swap.
func PostExecutionActionFailed(funds bounty.Coin, destination string) Data {
	return Data{Type: TypePostExecutionActionFailed, FailedFunds: &funds, FailedDestination: destination}
}
