// Package postgres provides the Postgres-backed snapshot driver. It keeps the
// same full-rewrite semantics as the file driver: Save replaces all three
// collections inside one transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/store"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the snapshot tables if needed. Keeping the migration in
// code lets docker-compose bootstrap a working stack with no extra tooling.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS shipments (
	id TEXT PRIMARY KEY,
	owner_email TEXT NOT NULL,
	customer_name TEXT NOT NULL,
	mode TEXT NOT NULL,
	declared_measurement DOUBLE PRECISION NOT NULL,
	verified_measurement DOUBLE PRECISION NOT NULL,
	verified BOOLEAN NOT NULL,
	billable_amount TEXT NOT NULL,
	paid_amount TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	payment_plan TEXT NOT NULL,
	lifecycle_state TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS trash (LIKE shipments INCLUDING ALL);
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shipments_owner ON shipments(owner_email);
CREATE INDEX IF NOT EXISTS idx_shipments_state ON shipments(lifecycle_state);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Store implements store.Store on top of a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the driver.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load reads the full snapshot.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := &store.Snapshot{}
	var err error
	if snap.Shipments, err = s.loadShipments(ctx, "shipments"); err != nil {
		return nil, err
	}
	if snap.Trash, err = s.loadShipments(ctx, "trash"); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT display_name, email, password_hash, role FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.DisplayName, &u.Email, &u.PasswordHash, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(role)
		snap.Users = append(snap.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return snap, nil
}

func (s *Store) loadShipments(ctx context.Context, table string) ([]model.Shipment, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, owner_email, customer_name, mode, declared_measurement, verified_measurement,
		       verified, billable_amount, paid_amount, payment_status, payment_plan,
		       lifecycle_state, created_at
		FROM %s ORDER BY created_at, id`, table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()
	var out []model.Shipment
	for rows.Next() {
		var (
			sh                        model.Shipment
			mode, status, plan, state string
			billableRaw, paidRaw      string
		)
		if err := rows.Scan(&sh.ID, &sh.OwnerEmail, &sh.CustomerName, &mode,
			&sh.DeclaredMeasurement, &sh.VerifiedMeasurement, &sh.Verified,
			&billableRaw, &paidRaw, &status, &plan, &state, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if sh.BillableAmount, err = decimal.NewFromString(billableRaw); err != nil {
			return nil, fmt.Errorf("%s %s billable amount: %w", table, sh.ID, err)
		}
		if sh.PaidAmount, err = decimal.NewFromString(paidRaw); err != nil {
			return nil, fmt.Errorf("%s %s paid amount: %w", table, sh.ID, err)
		}
		sh.Mode = model.Mode(mode)
		sh.PaymentStatus = model.PaymentStatus(status)
		sh.PaymentPlan = model.PaymentPlan(plan)
		sh.LifecycleState = model.LifecycleState(state)
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Save truncates and re-inserts every collection in one transaction, matching
// the snapshot model of the other drivers.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `TRUNCATE shipments, trash, users`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	batch := &pgx.Batch{}
	for _, table := range []struct {
		name string
		rows []model.Shipment
	}{{"shipments", snap.Shipments}, {"trash", snap.Trash}} {
		for _, sh := range table.rows {
			batch.Queue(fmt.Sprintf(`
				INSERT INTO %s (id, owner_email, customer_name, mode, declared_measurement,
					verified_measurement, verified, billable_amount, paid_amount,
					payment_status, payment_plan, lifecycle_state, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, table.name),
				sh.ID, sh.OwnerEmail, sh.CustomerName, string(sh.Mode),
				sh.DeclaredMeasurement, sh.VerifiedMeasurement, sh.Verified,
				sh.BillableAmount.String(), sh.PaidAmount.String(),
				string(sh.PaymentStatus), string(sh.PaymentPlan),
				string(sh.LifecycleState), sh.CreatedAt)
		}
	}
	for _, u := range snap.Users {
		batch.Queue(`INSERT INTO users (display_name, email, password_hash, role) VALUES ($1,$2,$3,$4)`,
			u.DisplayName, u.Email, u.PasswordHash, string(u.Role))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
