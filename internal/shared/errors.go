package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly indicates the record is archived and cannot be mutated.
	ErrReadOnly = errors.New("record is read only")
)

// ValidationError accumulates stage-guard failures so the caller can present
// every missing precondition at once instead of the first one only.
type ValidationError struct {
	Reasons []string
}

// NewValidationError builds a ValidationError from the given reasons.
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// Add appends a formatted reason.
func (e *ValidationError) Add(format string, args ...any) {
	e.Reasons = append(e.Reasons, fmt.Sprintf(format, args...))
}

// HasReasons reports whether any precondition failed.
func (e *ValidationError) HasReasons() bool {
	return e != nil && len(e.Reasons) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// ReconciliationMismatch is returned when a payment plan does not match the
// agreed offer total, or when the closing balance is not zero.
type ReconciliationMismatch struct {
	Expected   float64
	Actual     float64
	Difference float64
	Context    string
}

func (e *ReconciliationMismatch) Error() string {
	return fmt.Sprintf("%s: expected %.2f, got %.2f (difference %.2f)", e.Context, e.Expected, e.Actual, e.Difference)
}

// StockShortage describes one line that cannot be covered from available stock.
type StockShortage struct {
	ItemID         string  `json:"item_id"`
	Requested      float64 `json:"requested"`
	Available      float64 `json:"available"`
	OnHand         float64 `json:"on_hand"`
	Shortage       float64 `json:"shortage"`
	OnHandShortage float64 `json:"on_hand_shortage"`
}

// InsufficientStock is advisory: it carries the shortage per line and whether
// borrowing from another job's reservation would cover the request.
type InsufficientStock struct {
	Lines          []StockShortage
	BorrowResolves bool
}

func (e *InsufficientStock) Error() string {
	return fmt.Sprintf("insufficient stock on %d line(s)", len(e.Lines))
}

// ConcurrencyConflict is surfaced after the ledger's single retry failed.
type ConcurrencyConflict struct {
	ItemIDs []string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrent update conflict on items %s", strings.Join(e.ItemIDs, ", "))
}

// UserSafeMessage maps an error to a message safe to show end users.
func UserSafeMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return strings.Join(verr.Reasons, "\n")
	}
	var rerr *ReconciliationMismatch
	if errors.As(err, &rerr) {
		return rerr.Error()
	}
	var serr *InsufficientStock
	if errors.As(err, &serr) {
		return serr.Error()
	}
	if errors.Is(err, ErrNotFound) {
		return "Kayıt bulunamadı"
	}
	return "İşlem gerçekleştirilemedi"
}
