// Package trigger defines the condition objects that gate bounty execution.
package trigger

import "time"

// Kind discriminates the two trigger variants.
type Kind string

const (
	// KindTime triggers fire once their target time has passed.
	KindTime Kind = "time"
	// KindPrice triggers fire once the referenced venue limit order is
	// fully filled.
	KindPrice Kind = "price"
)

// Trigger gates the next execution of a bounty. A bounty has at most one
// trigger at any instant; the trigger id is the owning bounty's id.
type Trigger struct {
	BountyID string `json:"bounty_id"`

	Kind Kind `json:"kind"`

	// TargetTime is set for time triggers.
	TargetTime time.Time `json:"target_time,omitempty"`

	// OrderIdx references the venue limit order for price triggers.
	OrderIdx uint64 `json:"order_idx,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
