// Package payments validates a job's declared payment plan against its
// agreed offer total and computes cheque maturity risk figures.
package payments

import "time"

// SubPlan is one leg of a payment plan.
type SubPlan struct {
	Amount  float64    `json:"amount"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// ChequeLine is one physically received cheque.
type ChequeLine struct {
	Amount  float64   `json:"amount"`
	DueDate time.Time `json:"due_date"`
	Bank    string    `json:"bank"`
	Number  string    `json:"number"`
}

// Plan is the full payment plan declared at agreement time. When the cheques
// were physically received, Lines carries them and their sum replaces the
// declared aggregate.
type Plan struct {
	Cash          SubPlan      `json:"cash"`
	Card          SubPlan      `json:"card"`
	Cheque        SubPlan      `json:"cheque"`
	AfterDelivery SubPlan      `json:"after_delivery"`
	ChequeLines   []ChequeLine `json:"cheque_lines,omitempty"`
	ChequesIn     bool         `json:"cheques_in"`
}

// Result is the reconciliation verdict.
type Result struct {
	Matches    bool    `json:"matches"`
	Difference float64 `json:"difference"`
	PlanTotal  float64 `json:"plan_total"`
}

// MaturityAdvisory flags long average cheque maturities. Advisory only,
// never a hard block.
type MaturityAdvisory struct {
	AverageDays float64 `json:"average_days"`
	Flagged     bool    `json:"flagged"`
}

// Tolerance is the allowed absolute gap between plan and offer totals.
const Tolerance = 1.0

// MaturityAdvisoryDays is the average maturity above which cheques are
// flagged for review.
const MaturityAdvisoryDays = 90
