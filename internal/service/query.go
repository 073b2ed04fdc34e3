package service

import (
	"strings"

	"github.com/andrescamacho/guiatrack/internal/model"
)

// FindByOwner filters shipments to those owned by the given email. Matching is
// a case-insensitive exact comparison; ownership is a string join, not a
// foreign key.
func FindByOwner(shipments []model.Shipment, email string) []model.Shipment {
	email = model.NormalizeEmail(email)
	out := make([]model.Shipment, 0)
	for _, s := range shipments {
		if model.NormalizeEmail(s.OwnerEmail) == email {
			out = append(out, s)
		}
	}
	return out
}

// FilterByID keeps shipments whose tracking id contains the term,
// case-insensitively. An empty term returns the input unchanged.
func FilterByID(shipments []model.Shipment, term string) []model.Shipment {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return shipments
	}
	out := make([]model.Shipment, 0)
	for _, s := range shipments {
		if strings.Contains(strings.ToLower(s.ID), term) {
			out = append(out, s)
		}
	}
	return out
}

// GroupByState partitions shipments by lifecycle state. Iterate
// model.CanonicalStates over the result to render states in their canonical
// order.
func GroupByState(shipments []model.Shipment) map[model.LifecycleState][]model.Shipment {
	out := make(map[model.LifecycleState][]model.Shipment, len(model.CanonicalStates))
	for _, s := range shipments {
		out[s.LifecycleState] = append(out[s.LifecycleState], s)
	}
	return out
}
