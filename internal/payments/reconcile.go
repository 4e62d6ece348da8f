package payments

import (
	"math"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// ChequeTotal returns the cheque leg's effective amount: the sum of the
// received lines when they are in hand, the declared aggregate otherwise.
func ChequeTotal(plan Plan) float64 {
	if !plan.ChequesIn {
		return plan.Cheque.Amount
	}
	var total float64
	for _, line := range plan.ChequeLines {
		total += line.Amount
	}
	return total
}

// PlanTotal sums all four legs.
func PlanTotal(plan Plan) float64 {
	return plan.Cash.Amount + plan.Card.Amount + ChequeTotal(plan) + plan.AfterDelivery.Amount
}

// Validate checks the plan against the offer total. The comparison is
// float-safe: matches iff |difference| < 1 currency unit, so a gap of
// exactly 1 already fails.
func Validate(plan Plan, offerTotal float64) Result {
	total := PlanTotal(plan)
	diff := offerTotal - total
	// Kill the display-rounding noise before comparing against tolerance.
	diff = math.Round(diff*100) / 100
	return Result{
		Matches:    math.Abs(diff) < Tolerance,
		Difference: diff,
		PlanTotal:  total,
	}
}

// MismatchError converts a failed result into the domain error surfaced to
// callers; returns nil when the plan matches.
func MismatchError(plan Plan, offerTotal float64) *shared.ReconciliationMismatch {
	result := Validate(plan, offerTotal)
	if result.Matches {
		return nil
	}
	return &shared.ReconciliationMismatch{
		Expected:   offerTotal,
		Actual:     result.PlanTotal,
		Difference: result.Difference,
		Context:    "payment plan does not match offer total",
	}
}

// AverageMaturity computes the amount-weighted mean of days-until-due over
// the cheque lines, with already-due cheques counting as zero days.
func AverageMaturity(lines []ChequeLine, now time.Time) float64 {
	var weighted, total float64
	for _, line := range lines {
		if line.Amount <= 0 {
			continue
		}
		days := line.DueDate.Sub(now).Hours() / 24
		weighted += line.Amount * math.Max(0, days)
		total += line.Amount
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Maturity returns the advisory for the plan's cheque lines.
func Maturity(plan Plan, now time.Time) MaturityAdvisory {
	avg := AverageMaturity(plan.ChequeLines, now)
	return MaturityAdvisory{AverageDays: avg, Flagged: avg > MaturityAdvisoryDays}
}

// ClosingBalance computes the running balance at finance close:
// offer total minus everything collected minus the discount.
func ClosingBalance(offerTotal, collected, discount float64) float64 {
	return math.Round((offerTotal-collected-discount)*100) / 100
}

// CloseCheck returns nil when the balance is exactly zero (to the cent),
// otherwise the mismatch describing the open amount.
func CloseCheck(offerTotal, collected, discount float64) *shared.ReconciliationMismatch {
	balance := ClosingBalance(offerTotal, collected, discount)
	if math.Abs(balance) <= 0.01 {
		return nil
	}
	return &shared.ReconciliationMismatch{
		Expected:   offerTotal,
		Actual:     collected + discount,
		Difference: balance,
		Context:    "closing balance must be zero",
	}
}
