package stock

import (
	"errors"
	"math"
	"time"
)

// Item is one stock card: physical quantity on hand plus the soft holds
// reservations place against it.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ProductCode string    `json:"product_code"`
	ColorCode   string    `json:"color_code,omitempty"`
	Unit        string    `json:"unit"`
	OnHand      float64   `json:"on_hand"`
	Reserved    float64   `json:"reserved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available is the quantity not yet promised to any job. reserved <= onHand
// is a target, not a hard rule: over-reservation is allowed and surfaced,
// never silently normalised.
func (i Item) Available() float64 {
	return math.Max(0, i.OnHand-i.Reserved)
}

// OverReserved reports the soft-constraint breach reserved > onHand.
func (i Item) OverReserved() bool {
	return i.Reserved > i.OnHand
}

// Line is one requested quantity against an item.
type Line struct {
	ItemID string  `json:"item_id"`
	Qty    float64 `json:"qty"`
}

// LineResult carries the per-line availability verdict. The ledger never
// refuses a reserve outright; the caller decides based on these flags.
type LineResult struct {
	ItemID              string  `json:"item_id"`
	Requested           float64 `json:"requested"`
	SufficientAvailable bool    `json:"sufficient_available"`
	SufficientOnHand    bool    `json:"sufficient_on_hand"`
	Shortage            float64 `json:"shortage"`
	OnHandShortage      float64 `json:"on_hand_shortage"`
}

// BatchResult is the outcome of a Reserve, Consume or Release request.
// When RequiresConfirmation is set, nothing was written: the caller must
// repeat the call with Confirmed to borrow from other jobs' reservations.
type BatchResult struct {
	JobID                string       `json:"job_id"`
	Lines                []LineResult `json:"lines"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	Applied              bool         `json:"applied"`
}

// MovementKind enumerates ledger movements.
type MovementKind string

const (
	// MovementReserve places a soft hold without touching on-hand.
	MovementReserve MovementKind = "RESERVE"
	// MovementConsume commits stock: on-hand and reservation both drop.
	MovementConsume MovementKind = "CONSUME"
	// MovementRelease returns a reservation without consuming.
	MovementRelease MovementKind = "RELEASE"
)

// Movement is one ledger entry.
type Movement struct {
	ID     int64        `json:"id"`
	ItemID string       `json:"item_id"`
	JobID  string       `json:"job_id"`
	Kind   MovementKind `json:"kind"`
	Qty    float64      `json:"qty"`
	Note   string       `json:"note,omitempty"`
	At     time.Time    `json:"at"`
}

// ErrItemNotFound indicates an unknown stock item id.
var ErrItemNotFound = errors.New("stock: item not found")

// ErrInvalidQuantity indicates a non-positive line quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrEmptyBatch indicates a request without lines.
var ErrEmptyBatch = errors.New("stock: at least one line is required")

// ErrDuplicateLine indicates the same item appears twice in one batch.
var ErrDuplicateLine = errors.New("stock: duplicate item in batch")
