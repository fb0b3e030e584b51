package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValid(t *testing.T) {
	for _, id := range []ID{Ryan, Kat, Guest} {
		if !Valid(id) {
			t.Errorf("expected %q valid", id)
		}
	}
	for _, id := range []ID{Unknown, "wizard", "RYAN", "admin"} {
		if Valid(id) {
			t.Errorf("expected %q invalid", id)
		}
	}
}

func TestAssignAndResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	r := NewResolver(path)

	if got := r.Resolve("10.0.0.1"); got != Unknown {
		t.Fatalf("expected unknown for fresh address, got %q", got)
	}

	if err := r.Assign("10.0.0.1", Ryan); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if got := r.Resolve("10.0.0.1"); got != Ryan {
		t.Fatalf("expected ryan, got %q", got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 known address, got %d", r.Count())
	}
}

func TestAssignRejectsOutsideClosedSet(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "identity.json"))
	if err := r.Assign("10.0.0.1", ID("gandalf")); err == nil {
		t.Fatal("expected error for identity outside the closed set")
	}
}

func TestAssignOverwritesSilently(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "identity.json"))

	if err := r.Assign("10.0.0.1", Guest); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := r.Assign("10.0.0.1", Kat); err != nil {
		t.Fatalf("correcting assign: %v", err)
	}
	if got := r.Resolve("10.0.0.1"); got != Kat {
		t.Fatalf("expected corrected identity, got %q", got)
	}
}

func TestPersistsAcrossResolvers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	r := NewResolver(path)
	if err := r.Assign("10.0.0.1", Ryan); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	r2 := NewResolver(path)
	if got := r2.Resolve("10.0.0.1"); got != Ryan {
		t.Fatalf("expected mapping to survive reload, got %q", got)
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewResolver(path)
	if got := r.Resolve("10.0.0.1"); got != Unknown {
		t.Fatalf("expected empty map after corrupt file, got %q", got)
	}
	// And it still accepts new assignments.
	if err := r.Assign("10.0.0.1", Guest); err != nil {
		t.Fatalf("Assign after corrupt load: %v", err)
	}
}
