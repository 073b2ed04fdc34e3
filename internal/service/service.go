// Package service owns the shipment lifecycle, the billing ledger and the
// search views. All state lives in an explicit Service value: collections are
// loaded once from the record store and every mutation persists a full
// snapshot before it returns.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/metrics"
	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/notify"
	"github.com/andrescamacho/guiatrack/internal/pricing"
	"github.com/andrescamacho/guiatrack/internal/store"
)

var (
	// ErrNotFound mirrors the store sentinel for unknown shipment ids.
	ErrNotFound = store.ErrNotFound
	// ErrInvalidInput mirrors the pricing sentinel for bad numeric input.
	ErrInvalidInput = pricing.ErrInvalidInput
	// ErrDuplicateID rejects intake of a tracking id that already exists in
	// the active collection or the trash.
	ErrDuplicateID = errors.New("shipment id already exists")
	// ErrDuplicateEmail rejects registering an already-used customer email.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Config wires the service dependencies.
type Config struct {
	Store    store.Store
	Pricing  *pricing.Engine
	Notifier notify.Notifier
	Log      *logrus.Logger
	// StaffEmail receives measurement-discrepancy advisories when set.
	StaffEmail string
	// Now and NewID are injectable for tests; they default to time.Now and
	// uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Service is the single logical writer over the snapshot store. A mutex
// serializes mutations; readers get copies, never aliases.
type Service struct {
	mu         sync.Mutex
	store      store.Store
	snap       *store.Snapshot
	pricing    *pricing.Engine
	notifier   notify.Notifier
	log        *logrus.Logger
	staffEmail string
	now        func() time.Time
	newID      func() string
}

// New loads the snapshot and returns a ready service. A load failure is fatal:
// starting from a silently empty collection would lose data on the next save.
func New(ctx context.Context, cfg Config) (*Service, error) {
	snap, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load record store: %w", err)
	}
	s := &Service{
		store:      cfg.Store,
		snap:       snap,
		pricing:    cfg.Pricing,
		notifier:   cfg.Notifier,
		log:        cfg.Log,
		staffEmail: model.NormalizeEmail(cfg.StaffEmail),
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// CreateShipmentInput carries the intake fields for a new guía.
type CreateShipmentInput struct {
	ID                  string
	OwnerEmail          string
	CustomerName        string
	Mode                model.Mode
	DeclaredMeasurement float64
	PaymentPlan         model.PaymentPlan
}

// CreateShipment registers a shipment at intake: billable amount comes from
// the declared measurement, payment starts at zero, lifecycle starts at
// intake. Duplicate tracking ids are rejected across active and trash.
func (s *Service) CreateShipment(ctx context.Context, in CreateShipmentInput) (model.Shipment, error) {
	if in.OwnerEmail == "" || in.CustomerName == "" {
		return model.Shipment{}, fmt.Errorf("owner email and customer name are required: %w", ErrInvalidInput)
	}
	if in.DeclaredMeasurement < 0 {
		return model.Shipment{}, fmt.Errorf("negative declared measurement: %w", ErrInvalidInput)
	}
	if in.PaymentPlan == "" {
		in.PaymentPlan = model.PlanFull
	}
	billable, err := s.pricing.Billable(in.DeclaredMeasurement, in.Mode)
	if err != nil {
		return model.Shipment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := in.ID
	if id == "" {
		id = s.newID()
	}
	if s.idExists(id) {
		return model.Shipment{}, fmt.Errorf("%q: %w", id, ErrDuplicateID)
	}
	shipment := model.Shipment{
		ID:                  id,
		OwnerEmail:          model.NormalizeEmail(in.OwnerEmail),
		CustomerName:        in.CustomerName,
		Mode:                in.Mode,
		DeclaredMeasurement: in.DeclaredMeasurement,
		BillableAmount:      billable,
		PaidAmount:          decimal.Zero,
		PaymentPlan:         in.PaymentPlan,
		LifecycleState:      model.StateIntake,
		CreatedAt:           s.now().UTC(),
	}
	shipment.DerivePaymentStatus()
	next := s.snap.Clone()
	next.Shipments = append(next.Shipments, shipment)
	if err := s.persist(ctx, next); err != nil {
		return model.Shipment{}, err
	}
	subject, body := notify.ShipmentRegistered(shipment)
	s.notify(ctx, shipment.OwnerEmail, subject, body)
	return shipment, nil
}

// ConfirmVerification records the warehouse-verified measurement, flips the
// one-shot verified flag and recomputes the billable amount from the verified
// figure. A drift beyond tolerance yields a non-fatal advisory; the transition
// completes either way. Calling it again never un-verifies, but it does
// recompute billing from the latest measurement passed.
func (s *Service) ConfirmVerification(ctx context.Context, id string, measurement float64) (model.Shipment, *pricing.Discrepancy, error) {
	if measurement < 0 {
		return model.Shipment{}, nil, fmt.Errorf("negative verified measurement: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	idx := findIndex(next.Shipments, id)
	if idx < 0 {
		return model.Shipment{}, nil, fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	shipment := &next.Shipments[idx]
	billable, err := s.pricing.Billable(measurement, shipment.Mode)
	if err != nil {
		return model.Shipment{}, nil, err
	}
	shipment.VerifiedMeasurement = measurement
	shipment.Verified = true
	shipment.BillableAmount = billable
	shipment.DerivePaymentStatus()
	disc := s.pricing.CheckDiscrepancy(shipment.DeclaredMeasurement, measurement)
	if err := s.persist(ctx, next); err != nil {
		return model.Shipment{}, nil, err
	}
	if disc != nil {
		s.log.WithFields(logrus.Fields{
			"shipment": shipment.ID,
			"declared": disc.Declared,
			"verified": disc.Verified,
		}).Warn("measurement discrepancy beyond tolerance")
		if s.staffEmail != "" {
			subject, body := notify.DiscrepancyFound(*shipment, *disc)
			s.notify(ctx, s.staffEmail, subject, body)
		}
	}
	return *shipment, disc, nil
}

// RecordPayment adds a partial or full payment to the ledger. The applied
// amount is clamped to the outstanding balance, so paid never exceeds billable
// and an overpayment attempt simply settles the shipment.
func (s *Service) RecordPayment(ctx context.Context, id string, amount decimal.Decimal) (model.Shipment, error) {
	if amount.IsNegative() {
		return model.Shipment{}, fmt.Errorf("negative payment amount: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	idx := findIndex(next.Shipments, id)
	if idx < 0 {
		return model.Shipment{}, fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	shipment := &next.Shipments[idx]
	applied := amount
	if outstanding := shipment.Outstanding(); applied.GreaterThan(outstanding) {
		applied = outstanding
	}
	shipment.PaidAmount = shipment.PaidAmount.Add(applied)
	shipment.DerivePaymentStatus()
	if err := s.persist(ctx, next); err != nil {
		return model.Shipment{}, err
	}
	subject, body := notify.PaymentReceived(*shipment, applied.StringFixed(2))
	s.notify(ctx, shipment.OwnerEmail, subject, body)
	return *shipment, nil
}

// SetLifecycleState moves a shipment to any state by explicit staff action. No
// guard prevents backward moves; those are logged for later review. A change
// of state fires a notifier event; setting the current state again is a no-op.
func (s *Service) SetLifecycleState(ctx context.Context, id string, state model.LifecycleState) (model.Shipment, error) {
	if _, ok := model.ParseLifecycleState(string(state)); !ok {
		return model.Shipment{}, fmt.Errorf("unknown lifecycle state %q: %w", state, ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	idx := findIndex(next.Shipments, id)
	if idx < 0 {
		return model.Shipment{}, fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	shipment := &next.Shipments[idx]
	if shipment.LifecycleState == state {
		return *shipment, nil
	}
	if state.Rank() < shipment.LifecycleState.Rank() {
		s.log.WithFields(logrus.Fields{
			"shipment": shipment.ID,
			"from":     shipment.LifecycleState,
			"to":       state,
		}).Warn("backward lifecycle transition")
	}
	shipment.LifecycleState = state
	if err := s.persist(ctx, next); err != nil {
		return model.Shipment{}, err
	}
	subject, body := notify.StateChanged(*shipment)
	s.notify(ctx, shipment.OwnerEmail, subject, body)
	return *shipment, nil
}

// SoftDelete moves a shipment from the active collection into the trash,
// keeping the record byte-for-byte intact for a later restore.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	idx := findIndex(next.Shipments, id)
	if idx < 0 {
		return fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	shipment := next.Shipments[idx]
	next.Shipments = append(next.Shipments[:idx], next.Shipments[idx+1:]...)
	next.Trash = append(next.Trash, shipment)
	return s.persist(ctx, next)
}

// Restore moves a trashed shipment back into the active collection.
func (s *Service) Restore(ctx context.Context, id string) (model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	idx := findIndex(next.Trash, id)
	if idx < 0 {
		return model.Shipment{}, fmt.Errorf("trash entry %q: %w", id, ErrNotFound)
	}
	shipment := next.Trash[idx]
	next.Trash = append(next.Trash[:idx], next.Trash[idx+1:]...)
	next.Shipments = append(next.Shipments, shipment)
	if err := s.persist(ctx, next); err != nil {
		return model.Shipment{}, err
	}
	return shipment, nil
}

// AddUser registers a customer principal. Duplicate emails are rejected.
func (s *Service) AddUser(ctx context.Context, user model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	if user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("email and password are required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.snap.Users {
		if existing.Email == user.Email {
			return fmt.Errorf("%q: %w", user.Email, ErrDuplicateEmail)
		}
	}
	next := s.snap.Clone()
	next.Users = append(next.Users, user)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	subject, body := notify.Welcome(user.DisplayName)
	s.notify(ctx, user.Email, subject, body)
	return nil
}

// UserByEmail looks a customer up by normalized email.
func (s *Service) UserByEmail(email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.snap.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

// Get returns a shipment by exact id from the active collection.
func (s *Service) Get(id string) (model.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := findIndex(s.snap.Shipments, id)
	if idx < 0 {
		return model.Shipment{}, fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	return s.snap.Shipments[idx], nil
}

// ListAll returns the active collection, optionally filtered by an id
// substring.
func (s *Service) ListAll(term string) []model.Shipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterByID(cloneShipments(s.snap.Shipments), term)
}

// ListForOwner returns the owner-scoped view customers see, optionally
// filtered by an id substring.
func (s *Service) ListForOwner(email, term string) []model.Shipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterByID(FindByOwner(s.snap.Shipments, email), term)
}

// TrashEntries returns the soft-delete buffer.
func (s *Service) TrashEntries() []model.Shipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneShipments(s.snap.Trash)
}

// Summary counts active shipments per lifecycle state in canonical order.
func (s *Service) Summary() map[model.LifecycleState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.LifecycleState]int, len(model.CanonicalStates))
	for _, state := range model.CanonicalStates {
		out[state] = 0
	}
	for _, sh := range s.snap.Shipments {
		out[sh.LifecycleState]++
	}
	return out
}

// persist saves the candidate snapshot and promotes it on success. A save
// failure leaves the previous state in place so the caller sees a clean
// rejection instead of a half-applied mutation.
func (s *Service) persist(ctx context.Context, next *store.Snapshot) error {
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.snap = next
	return nil
}

// notify dispatches best-effort; delivery errors are logged, never propagated.
func (s *Service) notify(ctx context.Context, email, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, email, subject, body); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		s.log.WithError(err).WithField("email", email).Warn("notifier failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
}

func (s *Service) idExists(id string) bool {
	return findIndex(s.snap.Shipments, id) >= 0 || findIndex(s.snap.Trash, id) >= 0
}

func findIndex(shipments []model.Shipment, id string) int {
	for i := range shipments {
		if shipments[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneShipments(in []model.Shipment) []model.Shipment {
	out := make([]model.Shipment, len(in))
	copy(out, in)
	return out
}
