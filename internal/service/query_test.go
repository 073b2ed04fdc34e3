package service

import (
	"testing"

	"github.com/andrescamacho/guiatrack/internal/model"
)

func fixtures() []model.Shipment {
	return []model.Shipment{
		{ID: "IAC-001", OwnerEmail: "ana@example.com", LifecycleState: model.StateIntake},
		{ID: "IAC-002", OwnerEmail: "ana@example.com", LifecycleState: model.StateDelivered},
		{ID: "SEA-778", OwnerEmail: "luis@example.com", LifecycleState: model.StateInTransit},
	}
}

func TestFindByOwnerIsCaseInsensitive(t *testing.T) {
	got := FindByOwner(fixtures(), "ANA@Example.COM")
	if len(got) != 2 {
		t.Fatalf("expected 2 shipments, got %d", len(got))
	}
	for _, s := range got {
		if s.OwnerEmail != "ana@example.com" {
			t.Fatalf("wrong owner in result: %+v", s)
		}
	}
	if got := FindByOwner(fixtures(), "nobody@example.com"); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestFilterByID(t *testing.T) {
	// Case-insensitive substring on the tracking id.
	got := FilterByID(fixtures(), "iac")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	got = FilterByID(fixtures(), "778")
	if len(got) != 1 || got[0].ID != "SEA-778" {
		t.Fatalf("expected SEA-778, got %+v", got)
	}
	// Empty term returns the input unchanged.
	all := fixtures()
	if got := FilterByID(all, ""); len(got) != len(all) {
		t.Fatalf("empty term filtered the input")
	}
	if got := FilterByID(fixtures(), "zzz"); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestGroupByState(t *testing.T) {
	grouped := GroupByState(fixtures())
	if len(grouped[model.StateIntake]) != 1 || len(grouped[model.StateInTransit]) != 1 || len(grouped[model.StateDelivered]) != 1 {
		t.Fatalf("unexpected grouping: %+v", grouped)
	}
	if grouped[model.StateIntake][0].ID != "IAC-001" {
		t.Fatalf("wrong member in intake group: %+v", grouped[model.StateIntake])
	}
}
