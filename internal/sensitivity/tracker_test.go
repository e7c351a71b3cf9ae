package sensitivity

import (
	"os"
	"testing"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker() failed: %v", err)
	}
	return tr
}

func TestSensitivityIsMaxOfAllLevels(t *testing.T) {
	tr := newTestTracker(t)
	key := "alice:s1"

	calls := []struct {
		name  string
		level Level
	}{
		{"a", Internal},
		{"b", Confidential},
		{"c", Public},
	}
	for _, c := range calls {
		if err := tr.AddDataset(key, c.name, c.level); err != nil {
			t.Fatalf("AddDataset(%q) failed: %v", c.name, err)
		}
	}

	if got := tr.Sensitivity(key); got != Confidential {
		t.Errorf("Sensitivity() = %v, want %v", got, Confidential)
	}
}

func TestRatchetNeverReverses(t *testing.T) {
	tr := newTestTracker(t)
	key := "alice:s1"

	if err := tr.AddDataset(key, "secret-report", Secret); err != nil {
		t.Fatalf("AddDataset() failed: %v", err)
	}
	if !tr.HasPrivateData(key) {
		t.Fatal("HasPrivateData() = false after registering a SECRET dataset")
	}

	// Registering public data afterwards must not lower anything.
	if err := tr.AddDataset(key, "weather", Public); err != nil {
		t.Fatalf("AddDataset() failed: %v", err)
	}
	if !tr.HasPrivateData(key) {
		t.Error("HasPrivateData() became false after a PUBLIC registration")
	}
	if got := tr.Sensitivity(key); got != Secret {
		t.Errorf("Sensitivity() = %v, want %v", got, Secret)
	}
	if got := tr.RequiredNetworkMode(key); got != NetworkNone {
		t.Errorf("RequiredNetworkMode() = %v, want %v", got, NetworkNone)
	}
}

func TestFreshSessionIsPublic(t *testing.T) {
	tr := newTestTracker(t)

	if tr.HasPrivateData("nobody:ever") {
		t.Error("HasPrivateData() = true for an untouched session")
	}
	if got := tr.RequiredNetworkMode("nobody:ever"); got != NetworkFull {
		t.Errorf("RequiredNetworkMode() = %v, want %v", got, NetworkFull)
	}
}

func TestAddDatasetIdempotent(t *testing.T) {
	tr := newTestTracker(t)
	key := "alice:s1"

	for i := 0; i < 3; i++ {
		if err := tr.AddDataset(key, "payroll", Confidential); err != nil {
			t.Fatalf("AddDataset() failed: %v", err)
		}
	}

	if got := tr.Datasets(key); len(got) != 1 || got[0] != "payroll" {
		t.Errorf("Datasets() = %v, want [payroll]", got)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	key := "alice:s1"

	tr, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("NewTracker() failed: %v", err)
	}
	if err := tr.AddDataset(key, "hr-data", Internal); err != nil {
		t.Fatalf("AddDataset() failed: %v", err)
	}

	// A second tracker over the same directory simulates a host restart.
	reopened, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("NewTracker() failed: %v", err)
	}
	if got := reopened.Sensitivity(key); got != Internal {
		t.Errorf("Sensitivity() after restart = %v, want %v", got, Internal)
	}
	if got := reopened.Datasets(key); len(got) != 1 || got[0] != "hr-data" {
		t.Errorf("Datasets() after restart = %v, want [hr-data]", got)
	}
}

func TestPersistFailureFailsMutation(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("NewTracker() failed: %v", err)
	}

	// Remove the state directory so the write-through must fail.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll() failed: %v", err)
	}

	if err := tr.AddDataset("alice:s1", "secret", Secret); err == nil {
		t.Error("AddDataset() succeeded though the escalation could not be persisted")
	}
}

func TestReset(t *testing.T) {
	tr := newTestTracker(t)
	key := "alice:s1"

	if err := tr.AddDataset(key, "secret", Secret); err != nil {
		t.Fatalf("AddDataset() failed: %v", err)
	}
	if err := tr.Reset(key); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	if tr.HasPrivateData(key) {
		t.Error("HasPrivateData() = true after Reset()")
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, l := range []Level{Public, Internal, Confidential, Secret} {
		parsed, err := ParseLevel(l.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", l.String(), err)
		}
		if parsed != l {
			t.Errorf("ParseLevel(%q) = %v, want %v", l.String(), parsed, l)
		}
	}

	if _, err := ParseLevel("ULTRA"); err == nil {
		t.Error("ParseLevel(\"ULTRA\") did not error")
	}
}
