package ml

import (
	"testing"
	"time"

	"github.com/medivuehealth/flarecast/internal/store"
)

func registryBundle(version string) *Bundle {
	b := &Bundle{
		Model: Model{
			Version:   version,
			TrainedAt: time.Now().UTC(),
			Weights:   []float64{0.1},
			Intercept: 0,
			Metrics:   store.MetricSet{AUC: 0.8},
		},
		Preprocessor: nil,
	}
	return b
}

func TestRegistryActivateAndRollback(t *testing.T) {
	r, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, err := r.Register(registryBundle("v1"), 100); err != nil {
		t.Fatalf("register v1: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // distinct CreatedAt ordering
	if _, err := r.Register(registryBundle("v2"), 120); err != nil {
		t.Fatalf("register v2: %v", err)
	}

	if _, ok := r.Active(); ok {
		t.Fatal("no version should be active before Activate")
	}

	if err := r.Activate("v2"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, ok := r.Active()
	if !ok || active.Version != "v2" {
		t.Fatalf("active = %+v, ok = %v", active, ok)
	}

	if err := r.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	active, ok = r.Active()
	if !ok || active.Version != "v1" {
		t.Fatalf("after rollback active = %+v, ok = %v", active, ok)
	}

	if err := r.Activate("missing"); err == nil {
		t.Fatal("activating an unknown version must fail")
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := r.Register(registryBundle("v1"), 50); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Activate("v1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	reopened, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	active, ok := reopened.Active()
	if !ok || active.Version != "v1" {
		t.Fatalf("reopened active = %+v, ok = %v", active, ok)
	}
	if len(reopened.List()) != 1 {
		t.Fatalf("reopened versions = %d, want 1", len(reopened.List()))
	}
}
