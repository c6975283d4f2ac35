package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

func TestStaticResolves(t *testing.T) {
	dir, err := NewStatic(
		[]domain.Device{{NodeID: "D1", SerialNumber: "SN1", IP: "10.0.0.5", Port: 502}},
		[]domain.Collection{{NodeID: "C1", UUID: "u1", Name: "Fast"}, {NodeID: "C2", Name: "Slow"}},
	)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}

	d, err := dir.ResolveDevice(context.Background(), "D1")
	if err != nil {
		t.Fatalf("resolve device: %v", err)
	}
	if d.SerialNumber != "SN1" || d.Port != 502 {
		t.Fatalf("unexpected device: %+v", d)
	}

	c, err := dir.ResolveCollection(context.Background(), "C1")
	if err != nil {
		t.Fatalf("resolve collection: %v", err)
	}
	if c.UUID != "u1" {
		t.Fatalf("configured uuid replaced: %q", c.UUID)
	}

	c2, err := dir.ResolveCollection(context.Background(), "C2")
	if err != nil {
		t.Fatalf("resolve collection: %v", err)
	}
	if len(c2.UUID) != 36 {
		t.Fatalf("expected generated uuid, got %q", c2.UUID)
	}
	again, _ := dir.ResolveCollection(context.Background(), "C2")
	if again.UUID != c2.UUID {
		t.Fatalf("generated uuid must be stable, got %q then %q", c2.UUID, again.UUID)
	}
}

func TestStaticDerivedUUIDSurvivesRestart(t *testing.T) {
	collections := []domain.Collection{{NodeID: "C1", Name: "Fast"}, {NodeID: "C2", Name: "Slow"}}
	first, err := NewStatic(nil, collections)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	second, err := NewStatic(nil, collections)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}

	a, _ := first.ResolveCollection(context.Background(), "C1")
	b, _ := second.ResolveCollection(context.Background(), "C1")
	if a.UUID == "" || a.UUID != b.UUID {
		t.Fatalf("uuid changed between instances: %q vs %q", a.UUID, b.UUID)
	}
	other, _ := first.ResolveCollection(context.Background(), "C2")
	if other.UUID == a.UUID {
		t.Fatalf("distinct node ids share uuid %q", a.UUID)
	}
	if collections[0].UUID != "" {
		t.Fatalf("input slice modified: %q", collections[0].UUID)
	}
}

func TestStaticUnknownNode(t *testing.T) {
	dir, err := NewStatic(nil, nil)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	if _, err := dir.ResolveDevice(context.Background(), "nope"); !errors.Is(err, ports.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	_, err = dir.ResolveCollection(context.Background(), "nope")
	if !errors.Is(err, ports.ErrNodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaticRejectsBadEntries(t *testing.T) {
	if _, err := NewStatic([]domain.Device{{SerialNumber: "x"}}, nil); err == nil {
		t.Fatalf("expected error for missing node_id")
	}
	if _, err := NewStatic([]domain.Device{{NodeID: "D"}, {NodeID: "D"}}, nil); err == nil {
		t.Fatalf("expected error for duplicate device")
	}
	if _, err := NewStatic(nil, []domain.Collection{{NodeID: "C"}, {NodeID: "C"}}); err == nil {
		t.Fatalf("expected error for duplicate collection")
	}
}
