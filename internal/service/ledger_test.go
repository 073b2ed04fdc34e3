package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
)

func TestPercentPaid(t *testing.T) {
	s := model.Shipment{
		BillableAmount: decimal.NewFromInt(60),
		PaidAmount:     decimal.NewFromInt(15),
	}
	if got := PercentPaid(s); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	s.PaidAmount = decimal.NewFromInt(60)
	if got := PercentPaid(s); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	// A zero billable amount reports 0, never a division by zero.
	s.BillableAmount = decimal.Zero
	if got := PercentPaid(s); got != 0 {
		t.Fatalf("expected 0 for zero billable, got %v", got)
	}
}

func TestInstallmentScheduleSumsExactly(t *testing.T) {
	s := model.Shipment{BillableAmount: decimal.NewFromFloat(100.01)}
	schedule := InstallmentSchedule(s)
	if len(schedule) != 3 {
		t.Fatalf("expected 3 tranches, got %d", len(schedule))
	}
	if schedule[0].Percent != 30 || schedule[1].Percent != 35 || schedule[2].Percent != 35 {
		t.Fatalf("unexpected tranche percentages: %+v", schedule)
	}
	total := decimal.Zero
	for _, tranche := range schedule {
		total = total.Add(tranche.Amount)
	}
	// The last tranche absorbs rounding so the sum matches to the cent.
	if !total.Equal(s.BillableAmount) {
		t.Fatalf("tranches sum to %s, want %s", total, s.BillableAmount)
	}
}

func TestOutstandingNeverNegative(t *testing.T) {
	s := model.Shipment{
		BillableAmount: decimal.NewFromInt(50),
		PaidAmount:     decimal.NewFromInt(80),
	}
	if !s.Outstanding().IsZero() {
		t.Fatalf("expected outstanding 0, got %s", s.Outstanding())
	}
	s.DerivePaymentStatus()
	if s.PaymentStatus != model.PaymentPaid {
		t.Fatalf("overpaid ledger must derive paid")
	}
}
