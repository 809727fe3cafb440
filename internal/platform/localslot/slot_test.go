package localslot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	slot := New(filepath.Join(t.TempDir(), "absent.json"))
	var out []string
	found, err := slot.Load(&out)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a missing slot")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	slot := New(filepath.Join(t.TempDir(), "slot.json"))
	if err := slot.Save([]string{"a", "b"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	var out []string
	found, err := slot.Load(&out)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Fatalf("unexpected contents: %v", out)
	}
}

func TestSave_OverwritesWholeSlot(t *testing.T) {
	slot := New(filepath.Join(t.TempDir(), "slot.json"))
	if err := slot.Save([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := slot.Save([]string{"z"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	var out []string
	if _, err := slot.Load(&out); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(out) != 1 || out[0] != "z" {
		t.Fatalf("unexpected contents: %v", out)
	}
}

func TestLoad_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.json")
	payload := []byte(`{"schema_version": 99, "data": []}`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var out []string
	_, err := New(path).Load(&out)
	if !errors.Is(err, ErrSchemaVersion) {
		t.Fatalf("expected ErrSchemaVersion, got %v", err)
	}
}
