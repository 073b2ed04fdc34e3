package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/pricing"
	"github.com/andrescamacho/guiatrack/internal/store"
)

// captureNotifier records every dispatched message so tests can assert on
// lifecycle and payment events.
type captureNotifier struct {
	messages []capturedMessage
	fail     bool
}

type capturedMessage struct {
	email   string
	subject string
}

func (c *captureNotifier) Notify(ctx context.Context, email, subject, body string) error {
	if c.fail {
		return errors.New("relay down")
	}
	c.messages = append(c.messages, capturedMessage{email: email, subject: subject})
	return nil
}

// failingStore rejects every save to exercise persistence-failure handling.
type failingStore struct {
	store.MemoryStore
}

func (f *failingStore) Save(ctx context.Context, snap *store.Snapshot) error {
	return errors.New("disk full")
}

func newTestService(t *testing.T) (*Service, *captureNotifier) {
	t.Helper()
	engine, err := pricing.NewEngine(map[model.Mode]decimal.Decimal{
		model.ModeAir:      decimal.NewFromInt(5),
		model.ModeSea:      decimal.NewFromInt(12),
		model.ModeDomestic: decimal.NewFromInt(3),
	}, 5)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	notifier := &captureNotifier{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc, err := New(context.Background(), Config{
		Store:      store.NewMemoryStore(),
		Pricing:    engine,
		Notifier:   notifier,
		Log:        log,
		StaffEmail: "staff@example.com",
		Now:        func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
		NewID:      func() string { return "GEN-1" },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, notifier
}

func createAir(t *testing.T, svc *Service, id string) model.Shipment {
	t.Helper()
	shipment, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		ID:                  id,
		OwnerEmail:          "Ana@Example.com",
		CustomerName:        "Ana Pérez",
		Mode:                model.ModeAir,
		DeclaredMeasurement: 10,
		PaymentPlan:         model.PlanFull,
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	return shipment
}

func TestCreateShipmentComputesBillable(t *testing.T) {
	svc, notifier := newTestService(t)
	shipment := createAir(t, svc, "IAC-001")
	// Air at $5/kg, declared 10 kg.
	if !shipment.BillableAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected billable 50, got %s", shipment.BillableAmount)
	}
	if shipment.PaymentStatus != model.PaymentUnpaid {
		t.Fatalf("expected unpaid, got %s", shipment.PaymentStatus)
	}
	if shipment.LifecycleState != model.StateIntake {
		t.Fatalf("expected intake, got %s", shipment.LifecycleState)
	}
	if shipment.OwnerEmail != "ana@example.com" {
		t.Fatalf("owner email not normalized: %q", shipment.OwnerEmail)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].email != "ana@example.com" {
		t.Fatalf("expected registration notification, got %+v", notifier.messages)
	}
}

func TestCreateShipmentGeneratesID(t *testing.T) {
	svc, _ := newTestService(t)
	shipment, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		OwnerEmail:          "ana@example.com",
		CustomerName:        "Ana",
		Mode:                model.ModeSea,
		DeclaredMeasurement: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if shipment.ID != "GEN-1" {
		t.Fatalf("expected generated id, got %q", shipment.ID)
	}
	if shipment.PaymentPlan != model.PlanFull {
		t.Fatalf("expected default plan full, got %s", shipment.PaymentPlan)
	}
}

func TestCreateShipmentRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	_, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		ID:                  "IAC-001",
		OwnerEmail:          "ana@example.com",
		CustomerName:        "Ana",
		Mode:                model.ModeAir,
		DeclaredMeasurement: 1,
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	// Ids in the trash still collide: a restore must never be blocked by a
	// newer shipment reusing the id.
	if err := svc.SoftDelete(context.Background(), "IAC-001"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, err = svc.CreateShipment(context.Background(), CreateShipmentInput{
		ID:                  "IAC-001",
		OwnerEmail:          "ana@example.com",
		CustomerName:        "Ana",
		Mode:                model.ModeAir,
		DeclaredMeasurement: 1,
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID against trash, got %v", err)
	}
}

func TestCreateShipmentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []CreateShipmentInput{
		{CustomerName: "Ana", Mode: model.ModeAir, DeclaredMeasurement: 1},
		{OwnerEmail: "a@b.com", Mode: model.ModeAir, DeclaredMeasurement: 1},
		{OwnerEmail: "a@b.com", CustomerName: "Ana", Mode: model.ModeAir, DeclaredMeasurement: -1},
	}
	for i, in := range cases {
		if _, err := svc.CreateShipment(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestConfirmVerificationRecomputesBillingAndFlagsDiscrepancy(t *testing.T) {
	svc, notifier := newTestService(t)
	createAir(t, svc, "IAC-001")
	// Declared 10, verified 12, tolerance 5% => drift 2 > 0.5.
	shipment, disc, err := svc.ConfirmVerification(context.Background(), "IAC-001", 12)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !shipment.Verified || shipment.VerifiedMeasurement != 12 {
		t.Fatalf("verification not recorded: %+v", shipment)
	}
	if !shipment.BillableAmount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected billable 60, got %s", shipment.BillableAmount)
	}
	if disc == nil || disc.Delta != 2 {
		t.Fatalf("expected discrepancy with delta 2, got %+v", disc)
	}
	// The advisory goes to staff, not the owner.
	last := notifier.messages[len(notifier.messages)-1]
	if last.email != "staff@example.com" {
		t.Fatalf("expected staff advisory, got %+v", last)
	}
}

func TestConfirmVerificationWithinTolerance(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	_, disc, err := svc.ConfirmVerification(context.Background(), "IAC-001", 10.3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if disc != nil {
		t.Fatalf("expected no discrepancy, got %+v", disc)
	}
}

func TestConfirmVerificationIdempotentOnFlag(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	if _, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", 12); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	// A second call keeps verified=true and rebills with the new measurement.
	shipment, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", 11)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if !shipment.Verified {
		t.Fatalf("second call un-verified the shipment")
	}
	if !shipment.BillableAmount.Equal(decimal.NewFromInt(55)) {
		t.Fatalf("expected billable 55 after rebill, got %s", shipment.BillableAmount)
	}
}

func TestConfirmVerificationErrors(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.ConfirmVerification(context.Background(), "missing", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	createAir(t, svc, "IAC-001")
	if _, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecordPaymentAccumulatesAndDerivesStatus(t *testing.T) {
	svc, notifier := newTestService(t)
	createAir(t, svc, "IAC-001")
	if _, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", 12); err != nil {
		t.Fatalf("verify: %v", err)
	}
	shipment, err := svc.RecordPayment(context.Background(), "IAC-001", decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if shipment.PaymentStatus != model.PaymentUnpaid {
		t.Fatalf("expected unpaid after partial payment")
	}
	if !shipment.Outstanding().Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected outstanding 35, got %s", shipment.Outstanding())
	}
	shipment, err = svc.RecordPayment(context.Background(), "IAC-001", decimal.NewFromInt(35))
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if shipment.PaymentStatus != model.PaymentPaid {
		t.Fatalf("expected paid, got %s", shipment.PaymentStatus)
	}
	if !shipment.Outstanding().IsZero() {
		t.Fatalf("expected outstanding 0, got %s", shipment.Outstanding())
	}
	last := notifier.messages[len(notifier.messages)-1]
	if last.email != "ana@example.com" {
		t.Fatalf("expected owner payment notification, got %+v", last)
	}
}

func TestRecordPaymentClampsToOutstanding(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	if _, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", 12); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Outstanding is 60; a 100 payment applies only 60.
	shipment, err := svc.RecordPayment(context.Background(), "IAC-001", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if !shipment.PaidAmount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected paid clamped to 60, got %s", shipment.PaidAmount)
	}
	if shipment.PaymentStatus != model.PaymentPaid {
		t.Fatalf("expected paid, got %s", shipment.PaymentStatus)
	}
}

func TestRecordPaymentMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	previous := decimal.Zero
	for _, amount := range []int64{0, 10, 0, 5, 100} {
		shipment, err := svc.RecordPayment(context.Background(), "IAC-001", decimal.NewFromInt(amount))
		if err != nil {
			t.Fatalf("payment %d: %v", amount, err)
		}
		if shipment.PaidAmount.LessThan(previous) {
			t.Fatalf("paid amount decreased: %s -> %s", previous, shipment.PaidAmount)
		}
		previous = shipment.PaidAmount
	}
}

func TestRecordPaymentErrors(t *testing.T) {
	svc, _ := newTestService(t)
	createAir(t, svc, "IAC-001")
	if _, err := svc.RecordPayment(context.Background(), "IAC-001", decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), "missing", decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetLifecycleStateNotifiesAndAllowsBackwardMoves(t *testing.T) {
	svc, notifier := newTestService(t)
	createAir(t, svc, "IAC-001")
	before := len(notifier.messages)
	shipment, err := svc.SetLifecycleState(context.Background(), "IAC-001", model.StateDelivered)
	if err != nil {
		t.Fatalf("set state: %v", err)
	}
	if shipment.LifecycleState != model.StateDelivered {
		t.Fatalf("expected delivered, got %s", shipment.LifecycleState)
	}
	if len(notifier.messages) != before+1 {
		t.Fatalf("expected one state notification")
	}
	// No guard on backward moves: delivered back to intake is accepted.
	shipment, err = svc.SetLifecycleState(context.Background(), "IAC-001", model.StateIntake)
	if err != nil {
		t.Fatalf("backward move rejected: %v", err)
	}
	if shipment.LifecycleState != model.StateIntake {
		t.Fatalf("expected intake, got %s", shipment.LifecycleState)
	}
	// Re-setting the current state changes nothing and stays silent.
	count := len(notifier.messages)
	if _, err := svc.SetLifecycleState(context.Background(), "IAC-001", model.StateIntake); err != nil {
		t.Fatalf("same-state set: %v", err)
	}
	if len(notifier.messages) != count {
		t.Fatalf("same-state transition fired a notification")
	}
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	original := createAir(t, svc, "IAC-001")
	createAir(t, svc, "IAC-002")
	if err := svc.SoftDelete(context.Background(), "IAC-001"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if got := svc.ListAll("IAC-001"); len(got) != 0 {
		t.Fatalf("deleted shipment still visible: %+v", got)
	}
	if got := svc.TrashEntries(); len(got) != 1 || got[0].ID != "IAC-001" {
		t.Fatalf("trash does not hold the deleted shipment: %+v", got)
	}
	restored, err := svc.Restore(context.Background(), "IAC-001")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(original, restored) {
		t.Fatalf("restore changed the record:\n before %+v\n after  %+v", original, restored)
	}
	if got := svc.ListAll(""); len(got) != 2 {
		t.Fatalf("active membership not restored: %d shipments", len(got))
	}
	if got := svc.TrashEntries(); len(got) != 0 {
		t.Fatalf("trash not emptied after restore: %+v", got)
	}
}

func TestSoftDeleteAndRestoreUnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.SoftDelete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Restore(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBillableInvariantHolds(t *testing.T) {
	svc, _ := newTestService(t)
	shipment := createAir(t, svc, "IAC-001")
	rate := decimal.NewFromInt(5)
	want := rate.Mul(decimal.NewFromFloat(shipment.MeasurementInUse())).Round(2)
	if !shipment.BillableAmount.Equal(want) {
		t.Fatalf("invariant broken after create: %s != %s", shipment.BillableAmount, want)
	}
	shipment, _, err := svc.ConfirmVerification(context.Background(), "IAC-001", 12)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want = rate.Mul(decimal.NewFromFloat(shipment.MeasurementInUse())).Round(2)
	if !shipment.BillableAmount.Equal(want) {
		t.Fatalf("invariant broken after verify: %s != %s", shipment.BillableAmount, want)
	}
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	engine, err := pricing.NewEngine(map[model.Mode]decimal.Decimal{model.ModeAir: decimal.NewFromInt(5)}, 5)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc, err := New(context.Background(), Config{Store: &failingStore{}, Pricing: engine, Log: log})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.CreateShipment(context.Background(), CreateShipmentInput{
		ID:                  "IAC-001",
		OwnerEmail:          "ana@example.com",
		CustomerName:        "Ana",
		Mode:                model.ModeAir,
		DeclaredMeasurement: 1,
	})
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if got := svc.ListAll(""); len(got) != 0 {
		t.Fatalf("failed mutation leaked into state: %+v", got)
	}
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	svc, notifier := newTestService(t)
	notifier.fail = true
	if _, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		ID:                  "IAC-001",
		OwnerEmail:          "ana@example.com",
		CustomerName:        "Ana",
		Mode:                model.ModeAir,
		DeclaredMeasurement: 1,
	}); err != nil {
		t.Fatalf("mutation failed on notifier error: %v", err)
	}
	if _, err := svc.Get("IAC-001"); err != nil {
		t.Fatalf("shipment not persisted: %v", err)
	}
}

func TestAddUserAndLookup(t *testing.T) {
	svc, notifier := newTestService(t)
	user := model.User{
		DisplayName:  "Ana Pérez",
		Email:        "Ana@Example.com",
		PasswordHash: "hash",
		Role:         model.RoleCustomer,
	}
	if err := svc.AddUser(context.Background(), user); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := svc.AddUser(context.Background(), user); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	got, err := svc.UserByEmail("ANA@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Email != "ana@example.com" || got.DisplayName != "Ana Pérez" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].subject != "Welcome to GuiaTrack" {
		t.Fatalf("expected welcome notification, got %+v", notifier.messages)
	}
}

func TestSummaryCountsAllStates(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		createAir(t, svc, fmt.Sprintf("IAC-%03d", i))
	}
	if _, err := svc.SetLifecycleState(context.Background(), "IAC-001", model.StateInTransit); err != nil {
		t.Fatalf("set state: %v", err)
	}
	summary := svc.Summary()
	if summary[model.StateIntake] != 2 || summary[model.StateInTransit] != 1 || summary[model.StateDelivered] != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
