package service

import (
	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
)

// installmentTranches is the fixed percentage schedule for the installments
// plan: 30% up front, then two 35% tranches.
var installmentTranches = []int64{30, 35, 35}

// Installment is one tranche of the read-only installment breakdown.
type Installment struct {
	Percent int64           `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

// PercentPaid reports how much of the billable amount has been collected, in
// [0,1]. A zero billable amount reports 0 rather than dividing by zero.
func PercentPaid(s model.Shipment) float64 {
	if !s.BillableAmount.IsPositive() {
		return 0
	}
	ratio, _ := s.PaidAmount.Div(s.BillableAmount).Float64()
	if ratio > 1 {
		return 1
	}
	return ratio
}

// InstallmentSchedule splits the billable amount into the fixed tranche
// sequence. It is computed on demand for customer display and never persisted;
// the last tranche absorbs rounding so the sum always equals the billable
// amount exactly.
func InstallmentSchedule(s model.Shipment) []Installment {
	out := make([]Installment, 0, len(installmentTranches))
	remaining := s.BillableAmount
	hundred := decimal.NewFromInt(100)
	for i, pct := range installmentTranches {
		amount := s.BillableAmount.Mul(decimal.NewFromInt(pct)).Div(hundred).Round(2)
		if i == len(installmentTranches)-1 {
			amount = remaining
		}
		out = append(out, Installment{Percent: pct, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return out
}
