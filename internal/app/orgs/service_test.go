package orgs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/streamboard/streamboard/internal/app/caption"
	"github.com/streamboard/streamboard/internal/platform/localslot"
)

func newTestService(t *testing.T) (*Service, *localslot.Slot) {
	t.Helper()
	slot := localslot.New(filepath.Join(t.TempDir(), "organizations.json"))
	svc, err := NewService(slot)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, slot
}

func TestCreateGetUpdateDelete(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create("Velvet Rose", map[string]string{
		caption.PlatformIMVUFeed: "{item_names} tonight",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created profile has empty id")
	}

	got, err := svc.Get(created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Name != "Velvet Rose" || got.Templates[caption.PlatformIMVUFeed] != "{item_names} tonight" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	updated, err := svc.Update(created.ID, "Velvet Rose Agency", map[string]string{
		caption.PlatformRequest: "{item_name} for {creator_name}",
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Name != "Velvet Rose Agency" {
		t.Fatalf("name not updated: %+v", updated)
	}
	if _, ok := updated.Templates[caption.PlatformIMVUFeed]; ok {
		t.Fatal("update should replace templates wholesale")
	}

	if err := svc.Delete(created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreate_RequiresName(t *testing.T) {
	svc, _ := newTestService(t)
	for _, name := range []string{"", "   "} {
		if _, err := svc.Create(name, nil); !errors.Is(err, ErrNameRequired) {
			t.Fatalf("name %q: expected ErrNameRequired, got %v", name, err)
		}
	}
}

func TestCreate_RejectsUnknownTemplateKey(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("Velvet Rose", map[string]string{"myspace_feed": "x"})
	if !errors.Is(err, ErrUnknownTemplateKey) {
		t.Fatalf("expected ErrUnknownTemplateKey, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Update("nope", "Name", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_AbsentIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Delete("nope"); err != nil {
		t.Fatalf("Delete of absent id returned error: %v", err)
	}
}

func TestProfilesPersistAcrossRestart(t *testing.T) {
	svc, slot := newTestService(t)
	created, err := svc.Create("Velvet Rose", nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	reloaded, err := NewService(slot)
	if err != nil {
		t.Fatalf("NewService (reload) returned error: %v", err)
	}
	profiles := reloaded.List()
	if len(profiles) != 1 || profiles[0].ID != created.ID {
		t.Fatalf("unexpected reloaded profiles: %+v", profiles)
	}
}
