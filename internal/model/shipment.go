// Package model contains the typed records persisted by the snapshot store and
// shared across packages.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects the unit of measurement and the applicable rate for a shipment:
// air and domestic freight bill by weight in kilograms, sea freight bills by
// volume in cubic feet.
type Mode string

const (
	ModeAir      Mode = "air"
	ModeSea      Mode = "sea"
	ModeDomestic Mode = "domestic"
)

// ParseMode validates a mode value coming from the API or a snapshot file.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAir:
		return ModeAir, true
	case ModeSea:
		return ModeSea, true
	case ModeDomestic:
		return ModeDomestic, true
	}
	return "", false
}

// LifecycleState describes where a shipment sits in the transit flow. Warehouse
// verification is an orthogonal boolean on the record, not a state.
type LifecycleState string

const (
	StateIntake    LifecycleState = "intake"
	StateInTransit LifecycleState = "in_transit"
	StateDelivered LifecycleState = "delivered"
)

// CanonicalStates lists lifecycle states in their forward order. Dashboards and
// grouped views iterate this slice so output ordering stays stable.
var CanonicalStates = []LifecycleState{StateIntake, StateInTransit, StateDelivered}

// ParseLifecycleState validates a state value.
func ParseLifecycleState(raw string) (LifecycleState, bool) {
	switch LifecycleState(strings.ToLower(strings.TrimSpace(raw))) {
	case StateIntake:
		return StateIntake, true
	case StateInTransit:
		return StateInTransit, true
	case StateDelivered:
		return StateDelivered, true
	}
	return "", false
}

// Rank returns the position of the state in the canonical order, used to spot
// backward transitions. Unknown states rank last.
func (s LifecycleState) Rank() int {
	for i, state := range CanonicalStates {
		if state == s {
			return i
		}
	}
	return len(CanonicalStates)
}

// PaymentStatus is derived, never set directly: paid iff the accumulated
// payments cover the billable amount.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentPlan is informational only; it shapes customer-facing messaging and
// the installment breakdown but never the computed amounts.
type PaymentPlan string

const (
	PlanFull              PaymentPlan = "full"
	PlanCollectOnDelivery PaymentPlan = "cod"
	PlanInstallments      PaymentPlan = "installments"
)

// ParsePaymentPlan validates a plan value.
func ParsePaymentPlan(raw string) (PaymentPlan, bool) {
	switch PaymentPlan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanFull:
		return PlanFull, true
	case PlanCollectOnDelivery:
		return PlanCollectOnDelivery, true
	case PlanInstallments:
		return PlanInstallments, true
	}
	return "", false
}

// Shipment is the central record: one guía, tracked from intake to delivery,
// carrying both the measurement ledger (declared vs verified) and the payment
// ledger (billable vs paid).
type Shipment struct {
	ID                  string          `json:"id"`
	OwnerEmail          string          `json:"ownerEmail"`
	CustomerName        string          `json:"customerName"`
	Mode                Mode            `json:"mode"`
	DeclaredMeasurement float64         `json:"declaredMeasurement"`
	VerifiedMeasurement float64         `json:"verifiedMeasurement"`
	Verified            bool            `json:"verified"`
	BillableAmount      decimal.Decimal `json:"billableAmount"`
	PaidAmount          decimal.Decimal `json:"paidAmount"`
	PaymentStatus       PaymentStatus   `json:"paymentStatus"`
	PaymentPlan         PaymentPlan     `json:"paymentPlan"`
	LifecycleState      LifecycleState  `json:"lifecycleState"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// MeasurementInUse returns the figure billing is based on: the verified
// measurement once the warehouse has confirmed it, the declared one before.
func (s Shipment) MeasurementInUse() float64 {
	if s.Verified {
		return s.VerifiedMeasurement
	}
	return s.DeclaredMeasurement
}

// DerivePaymentStatus recomputes the payment status from the two ledger
// amounts. Every mutation that touches either amount must call this.
func (s *Shipment) DerivePaymentStatus() {
	if s.PaidAmount.GreaterThanOrEqual(s.BillableAmount) {
		s.PaymentStatus = PaymentPaid
		return
	}
	s.PaymentStatus = PaymentUnpaid
}

// Outstanding returns the remaining balance, floored at zero so an overpaid
// ledger never renders a negative amount.
func (s Shipment) Outstanding() decimal.Decimal {
	out := s.BillableAmount.Sub(s.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// NormalizeEmail lower-cases and trims an email so owner matching stays
// case-insensitive everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
