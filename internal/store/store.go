// Package store defines the snapshot record store: three collections loaded in
// full at startup and rewritten in full after every mutation. Drivers exist for
// memory, delimited text files and Postgres; all of them surface load failures
// instead of falling back to an empty collection.
package store

import (
	"context"
	"errors"

	"github.com/andrescamacho/guiatrack/internal/model"
)

// ErrNotFound is the shared sentinel for lookups against an absent identifier.
var ErrNotFound = errors.New("record not found")

// Snapshot is the full persisted state: active shipments, registered customers
// and the soft-delete buffer. Trash entries keep the exact Shipment shape so a
// restore is bit-for-bit.
type Snapshot struct {
	Shipments []model.Shipment
	Users     []model.User
	Trash     []model.Shipment
}

// Clone deep-copies a snapshot so in-memory working copies never alias the
// driver's own state.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Shipments: make([]model.Shipment, len(s.Shipments)),
		Users:     make([]model.User, len(s.Users)),
		Trash:     make([]model.Shipment, len(s.Trash)),
	}
	copy(out.Shipments, s.Shipments)
	copy(out.Users, s.Users)
	copy(out.Trash, s.Trash)
	return out
}

// Store is the persistence contract. Load returns the last saved snapshot (an
// empty one on first boot) and Save replaces it wholesale. There are no
// incremental writes and no cross-call transactions.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}
