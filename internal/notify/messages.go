package notify

import (
	"fmt"

	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/pricing"
)

// stateLabels are the customer-facing names for lifecycle states.
var stateLabels = map[model.LifecycleState]string{
	model.StateIntake:    "received at intake",
	model.StateInTransit: "in transit",
	model.StateDelivered: "delivered",
}

// ShipmentRegistered formats the intake confirmation.
func ShipmentRegistered(s model.Shipment) (subject, body string) {
	subject = fmt.Sprintf("Guía %s registered", s.ID)
	body = fmt.Sprintf("Hello %s, your shipment %s was registered. Billable amount: $%s.",
		s.CustomerName, s.ID, s.BillableAmount.StringFixed(2))
	if s.PaymentPlan == model.PlanInstallments {
		body += " Your installment plan is available in your account."
	}
	return subject, body
}

// StateChanged formats the lifecycle-change notification.
func StateChanged(s model.Shipment) (subject, body string) {
	label, ok := stateLabels[s.LifecycleState]
	if !ok {
		label = string(s.LifecycleState)
	}
	subject = fmt.Sprintf("Guía %s update", s.ID)
	body = fmt.Sprintf("Hello %s, your shipment %s is now %s.", s.CustomerName, s.ID, label)
	return subject, body
}

// PaymentReceived formats the payment confirmation, including the remaining
// balance so partial payers always see what is left.
func PaymentReceived(s model.Shipment, applied string) (subject, body string) {
	subject = fmt.Sprintf("Payment received for guía %s", s.ID)
	body = fmt.Sprintf("Hello %s, we received a payment of $%s for shipment %s. Outstanding balance: $%s.",
		s.CustomerName, applied, s.ID, s.Outstanding().StringFixed(2))
	if s.PaymentStatus == model.PaymentPaid {
		body = fmt.Sprintf("Hello %s, we received a payment of $%s for shipment %s. The shipment is fully paid.",
			s.CustomerName, applied, s.ID)
	}
	return subject, body
}

// DiscrepancyFound formats the staff-facing measurement advisory.
func DiscrepancyFound(s model.Shipment, d pricing.Discrepancy) (subject, body string) {
	subject = fmt.Sprintf("Measurement discrepancy on guía %s", s.ID)
	body = fmt.Sprintf("Shipment %s: declared %.2f but verified %.2f (drift %.2f, tolerance %.2f). Billing now follows the verified measurement.",
		s.ID, d.Declared, d.Verified, d.Delta, d.Tolerance)
	return subject, body
}

// Welcome formats the registration confirmation.
func Welcome(displayName string) (subject, body string) {
	subject = "Welcome to GuiaTrack"
	body = fmt.Sprintf("Hello %s, your account is ready. You can now track your shipments online.", displayName)
	return subject, body
}
