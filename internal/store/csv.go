package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
)

const (
	shipmentsFile = "shipments.csv"
	usersFile     = "users.csv"
	trashFile     = "trash.csv"
)

var shipmentHeader = []string{
	"id", "ownerEmail", "customerName", "mode",
	"declaredMeasurement", "verifiedMeasurement", "verified",
	"billableAmount", "paidAmount", "paymentStatus", "paymentPlan",
	"lifecycleState", "createdAt",
}

var userHeader = []string{"displayName", "email", "passwordHash", "role"}

// CSVStore persists the snapshot as three delimited text files inside a data
// directory. Every Save rewrites all three files through a temp-file rename so
// a crash mid-write never leaves a half-written collection behind.
type CSVStore struct {
	dir string
}

// NewCSVStore creates the data directory if needed and returns the store.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Load reads all three collections. A missing file is an empty collection (the
// first boot), a malformed file is an error the caller must surface.
func (c *CSVStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if snap.Shipments, err = c.loadShipments(shipmentsFile); err != nil {
		return nil, err
	}
	if snap.Trash, err = c.loadShipments(trashFile); err != nil {
		return nil, err
	}
	if snap.Users, err = c.loadUsers(usersFile); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save rewrites the full snapshot.
func (c *CSVStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := c.writeShipments(shipmentsFile, snap.Shipments); err != nil {
		return err
	}
	if err := c.writeShipments(trashFile, snap.Trash); err != nil {
		return err
	}
	return c.writeUsers(usersFile, snap.Users)
}

func (c *CSVStore) loadShipments(name string) ([]model.Shipment, error) {
	rows, err := c.readRows(name, len(shipmentHeader))
	if err != nil {
		return nil, err
	}
	out := make([]model.Shipment, 0, len(rows))
	for i, row := range rows {
		shipment, err := decodeShipment(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+2, err)
		}
		out = append(out, shipment)
	}
	return out, nil
}

func (c *CSVStore) loadUsers(name string) ([]model.User, error) {
	rows, err := c.readRows(name, len(userHeader))
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.User{
			DisplayName:  row[0],
			Email:        model.NormalizeEmail(row[1]),
			PasswordHash: row[2],
			Role:         model.Role(row[3]),
		})
	}
	return out, nil
}

func (c *CSVStore) readRows(name string, fields int) ([][]string, error) {
	f, err := os.Open(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = fields
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	// First row is the header.
	return records[1:], nil
}

func decodeShipment(row []string) (model.Shipment, error) {
	var s model.Shipment
	s.ID = row[0]
	s.OwnerEmail = model.NormalizeEmail(row[1])
	s.CustomerName = row[2]
	mode, ok := model.ParseMode(row[3])
	if !ok {
		return s, fmt.Errorf("unknown mode %q", row[3])
	}
	s.Mode = mode
	var err error
	if s.DeclaredMeasurement, err = strconv.ParseFloat(row[4], 64); err != nil {
		return s, fmt.Errorf("declared measurement: %w", err)
	}
	if s.VerifiedMeasurement, err = strconv.ParseFloat(row[5], 64); err != nil {
		return s, fmt.Errorf("verified measurement: %w", err)
	}
	if s.Verified, err = strconv.ParseBool(row[6]); err != nil {
		return s, fmt.Errorf("verified flag: %w", err)
	}
	if s.BillableAmount, err = decimal.NewFromString(row[7]); err != nil {
		return s, fmt.Errorf("billable amount: %w", err)
	}
	if s.PaidAmount, err = decimal.NewFromString(row[8]); err != nil {
		return s, fmt.Errorf("paid amount: %w", err)
	}
	s.PaymentStatus = model.PaymentStatus(row[9])
	plan, ok := model.ParsePaymentPlan(row[10])
	if !ok {
		return s, fmt.Errorf("unknown payment plan %q", row[10])
	}
	s.PaymentPlan = plan
	state, ok := model.ParseLifecycleState(row[11])
	if !ok {
		return s, fmt.Errorf("unknown lifecycle state %q", row[11])
	}
	s.LifecycleState = state
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, row[12]); err != nil {
		return s, fmt.Errorf("created at: %w", err)
	}
	return s, nil
}

func encodeShipment(s model.Shipment) []string {
	return []string{
		s.ID,
		s.OwnerEmail,
		s.CustomerName,
		string(s.Mode),
		strconv.FormatFloat(s.DeclaredMeasurement, 'f', -1, 64),
		strconv.FormatFloat(s.VerifiedMeasurement, 'f', -1, 64),
		strconv.FormatBool(s.Verified),
		s.BillableAmount.String(),
		s.PaidAmount.String(),
		string(s.PaymentStatus),
		string(s.PaymentPlan),
		string(s.LifecycleState),
		s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (c *CSVStore) writeShipments(name string, shipments []model.Shipment) error {
	rows := make([][]string, 0, len(shipments)+1)
	rows = append(rows, shipmentHeader)
	for _, s := range shipments {
		rows = append(rows, encodeShipment(s))
	}
	return c.writeFile(name, rows)
}

func (c *CSVStore) writeUsers(name string, users []model.User) error {
	rows := make([][]string, 0, len(users)+1)
	rows = append(rows, userHeader)
	for _, u := range users {
		rows = append(rows, []string{u.DisplayName, u.Email, u.PasswordHash, string(u.Role)})
	}
	return c.writeFile(name, rows)
}

func (c *CSVStore) writeFile(name string, rows [][]string) error {
	tmp, err := os.CreateTemp(c.dir, name+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	writer := csv.NewWriter(tmp)
	if err := writer.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
