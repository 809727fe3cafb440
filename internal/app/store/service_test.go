package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/streamboard/streamboard/internal/contracts"
	"github.com/streamboard/streamboard/internal/platform/localslot"
)

type fakeMirror struct {
	fetchFn  func(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error)
	createFn func(ctx context.Context, record contracts.StreamRecord) error
	updateFn func(ctx context.Context, id string, patch contracts.StreamPatch) error
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeMirror) FetchAll(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error) {
	if f.fetchFn == nil {
		return nil, nil
	}
	return f.fetchFn(ctx, ownerID)
}

func (f *fakeMirror) Create(ctx context.Context, record contracts.StreamRecord) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, record)
}

func (f *fakeMirror) Update(ctx context.Context, id string, patch contracts.StreamPatch) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, id, patch)
}

func (f *fakeMirror) Delete(ctx context.Context, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

func newTestService(t *testing.T) (*Service, *localslot.Slot) {
	t.Helper()
	slot := localslot.New(filepath.Join(t.TempDir(), "streams.json"))
	svc, err := NewService(slot, &fakeMirror{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, slot
}

func TestCreate_DueDateInvariant(t *testing.T) {
	svc, _ := newTestService(t)
	created := time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return created }

	for days := 1; days <= 7; days++ {
		rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: days})
		if err != nil {
			t.Fatalf("Create(%d days) returned error: %v", days, err)
		}
		want := created.AddDate(0, 0, days)
		if !rec.DueAt.Equal(want) {
			t.Fatalf("due_days=%d: DueAt = %v, want %v", days, rec.DueAt, want)
		}
		if !rec.CreatedAt.Equal(created) {
			t.Fatalf("CreatedAt = %v, want %v", rec.CreatedAt, created)
		}
		if rec.Status != contracts.StatusActive {
			t.Fatalf("new record status = %q", rec.Status)
		}
		if rec.ID == "" {
			t.Fatal("new record has empty id")
		}
	}
}

func TestCreate_RejectsNonPositiveDueDays(t *testing.T) {
	svc, _ := newTestService(t)
	for _, days := range []int{0, -3} {
		if _, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: days}); !errors.Is(err, ErrInvalidDueDays) {
			t.Fatalf("due_days=%d: expected ErrInvalidDueDays, got %v", days, err)
		}
	}
}

func TestCreate_AssignsItemIDs(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.Create(context.Background(), CreateStreamRequest{
		DueDays: 3,
		Items: []contracts.LineItem{
			{Name: "Gown", CreatorName: "Lira"},
			{ID: "kept", Name: "Heels", CreatorName: "Mori"},
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if rec.Items[0].ID == "" {
		t.Fatal("first item id was not assigned")
	}
	if rec.Items[1].ID != "kept" {
		t.Fatalf("existing item id was rewritten: %q", rec.Items[1].ID)
	}
}

func TestCreate_PersistsAcrossRestart(t *testing.T) {
	svc, slot := newTestService(t)
	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 2, Notes: "friday show"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	reloaded, err := NewService(slot, &fakeMirror{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService (reload) returned error: %v", err)
	}
	records := reloaded.List()
	if len(records) != 1 || records[0].ID != rec.ID || records[0].Notes != "friday show" {
		t.Fatalf("unexpected reloaded records: %+v", records)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Update(context.Background(), "nope", contracts.StreamPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_AppliesPatch(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1, Priority: contracts.PriorityLow})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	priority := contracts.PriorityHigh
	notes := "moved up"
	updated, err := svc.Update(context.Background(), rec.ID, contracts.StreamPatch{Priority: &priority, Notes: &notes})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Priority != contracts.PriorityHigh || updated.Notes != "moved up" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.CreatedAt != rec.CreatedAt || updated.ID != rec.ID {
		t.Fatalf("immutable fields changed: %+v", updated)
	}
}

func TestComplete_StampsAndRestamps(t *testing.T) {
	svc, _ := newTestService(t)
	times := []time.Time{
		time.Date(2026, 2, 9, 22, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC),
	}
	calls := 0
	svc.Now = func() time.Time {
		now := times[calls]
		calls++
		return now
	}

	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	first, err := svc.Complete(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if first.Status != contracts.StatusCompleted || first.CompletedAt == nil || !first.CompletedAt.Equal(times[1]) {
		t.Fatalf("unexpected first completion: %+v", first)
	}

	// A second Complete is not guarded: it restamps CompletedAt.
	second, err := svc.Complete(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("second Complete returned error: %v", err)
	}
	if second.CompletedAt == nil || !second.CompletedAt.Equal(times[2]) {
		t.Fatalf("expected restamped CompletedAt, got %+v", second.CompletedAt)
	}
}

func TestDelete_RemovesAndIgnoresAbsent(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	for _, got := range svc.List() {
		if got.ID == rec.ID {
			t.Fatal("deleted record still listed")
		}
	}
	if err := svc.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete of absent id returned error: %v", err)
	}
}

func TestMirrorFailureDoesNotFailLocalMutation(t *testing.T) {
	slot := localslot.New(filepath.Join(t.TempDir(), "streams.json"))
	fm := &fakeMirror{
		createFn: func(context.Context, contracts.StreamRecord) error {
			return fmt.Errorf("remote exploded")
		},
	}
	svc, err := NewService(slot, fm, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1})
	if err != nil {
		t.Fatalf("Create failed despite mirror being best-effort: %v", err)
	}
	if records := svc.List(); len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("local record missing after mirror failure: %+v", records)
	}
}

func TestReconcile_ReplacesWholesaleAndPersists(t *testing.T) {
	svc, slot := newTestService(t)
	if _, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	replacement := []contracts.StreamRecord{
		{ID: "remote-1", Status: contracts.StatusActive},
		{ID: "remote-2", Status: contracts.StatusCompleted},
	}
	err := svc.Reconcile(context.Background(), func(local []contracts.StreamRecord) ([]contracts.StreamRecord, error) {
		if len(local) != 1 {
			t.Fatalf("unexpected local snapshot: %+v", local)
		}
		return replacement, nil
	})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	records := svc.List()
	if len(records) != 2 || records[0].ID != "remote-1" || records[1].ID != "remote-2" {
		t.Fatalf("local set was not replaced: %+v", records)
	}

	var persisted []contracts.StreamRecord
	if _, err := slot.Load(&persisted); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("replacement was not persisted: %+v", persisted)
	}
}

func TestReconcile_NilKeepsLocalSet(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.Create(context.Background(), CreateStreamRequest{DueDays: 1})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	err = svc.Reconcile(context.Background(), func([]contracts.StreamRecord) ([]contracts.StreamRecord, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if records := svc.List(); len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("local set changed: %+v", records)
	}
}
