package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
	"github.com/streamboard/streamboard/internal/app/mirror"
	"github.com/streamboard/streamboard/internal/contracts"
	"github.com/streamboard/streamboard/internal/platform/localslot"
	"github.com/streamboard/streamboard/internal/platform/metrics"
)

var (
	ErrNotFound       = errors.New("stream not found")
	ErrInvalidDueDays = errors.New("due_days must be a positive integer")
)

// CreateStreamRequest carries the caller-validated fields for a new stream.
// The store itself only enforces DueDays > 0; enum membership and item
// field presence are the caller's contract.
type CreateStreamRequest struct {
	OrganizationName string               `json:"organization_name"`
	DueDays          int                  `json:"due_days"`
	Priority         string               `json:"priority"`
	Category         string               `json:"category"`
	Notes            string               `json:"notes"`
	Items            []contracts.LineItem `json:"items"`
}

// Service owns the local stream set. Every mutation rewrites the whole set
// to the slot before it is visible in memory; a failed write leaves both the
// slot and the in-memory set untouched. Mirror pushes run after the local
// write succeeds and can only ever produce a warning.
type Service struct {
	Mirror  mirror.Client
	OwnerID func() string
	Now     func() time.Time
	NewID   func() string
	Log     zerolog.Logger

	mu      sync.Mutex
	slot    *localslot.Slot
	records []contracts.StreamRecord
}

func NewService(slot *localslot.Slot, mirrorClient mirror.Client, log zerolog.Logger) (*Service, error) {
	s := &Service{
		Mirror:  mirrorClient,
		OwnerID: func() string { return "" },
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
		Log:     log,
		slot:    slot,
		records: []contracts.StreamRecord{},
	}
	if _, err := slot.Load(&s.records); err != nil {
		return nil, fmt.Errorf("load stream slot: %w", err)
	}
	if s.records == nil {
		s.records = []contracts.StreamRecord{}
	}
	return s, nil
}

// List returns a copy of every stream currently held.
func (s *Service) List() []contracts.StreamRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

func (s *Service) Get(id string) (contracts.StreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return contracts.StreamRecord{}, ErrNotFound
}

func (s *Service) Create(ctx context.Context, req CreateStreamRequest) (contracts.StreamRecord, error) {
	if req.DueDays <= 0 {
		return contracts.StreamRecord{}, ErrInvalidDueDays
	}

	now := s.Now()
	rec := contracts.StreamRecord{
		ID:               s.NewID(),
		OwnerID:          s.owner(),
		OrganizationName: req.OrganizationName,
		DueAt:            now.AddDate(0, 0, req.DueDays),
		Status:           contracts.StatusActive,
		Priority:         req.Priority,
		Category:         req.Category,
		Notes:            req.Notes,
		CreatedAt:        now,
		Items:            make([]contracts.LineItem, len(req.Items)),
	}
	copy(rec.Items, req.Items)
	for i := range rec.Items {
		if rec.Items[i].ID == "" {
			rec.Items[i].ID = s.NewID()
		}
	}

	s.mu.Lock()
	next := append(cloneRecords(s.records), rec)
	if err := s.slot.Save(next); err != nil {
		s.mu.Unlock()
		return contracts.StreamRecord{}, err
	}
	s.records = next
	s.mu.Unlock()

	s.pushMirror(ctx, "create", rec.ID, func(m mirror.Client) error {
		return m.Create(ctx, rec)
	})
	return cloneRecord(rec), nil
}

func (s *Service) Update(ctx context.Context, id string, patch contracts.StreamPatch) (contracts.StreamRecord, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return contracts.StreamRecord{}, ErrNotFound
	}
	next := cloneRecords(s.records)
	next[idx] = patch.Apply(next[idx])
	updated := next[idx]
	if err := s.slot.Save(next); err != nil {
		s.mu.Unlock()
		return contracts.StreamRecord{}, err
	}
	s.records = next
	s.mu.Unlock()

	s.pushMirror(ctx, "update", id, func(m mirror.Client) error {
		return m.Update(ctx, id, patch)
	})
	return cloneRecord(updated), nil
}

// Complete marks a stream completed and stamps CompletedAt. Calling it again
// restamps CompletedAt with the later time; the transition is not guarded.
func (s *Service) Complete(ctx context.Context, id string) (contracts.StreamRecord, error) {
	status := contracts.StatusCompleted
	completedAt := s.Now()
	return s.Update(ctx, id, contracts.StreamPatch{
		Status:      &status,
		CompletedAt: &completedAt,
	})
}

// Delete removes the stream permanently. Deleting an absent id is a no-op,
// not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	next := cloneRecords(s.records)
	next = append(next[:idx], next[idx+1:]...)
	if err := s.slot.Save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.records = next
	s.mu.Unlock()

	s.pushMirror(ctx, "delete", id, func(m mirror.Client) error {
		return m.Delete(ctx, id)
	})
	return nil
}

// Reconcile runs fn with a snapshot of the local set while holding the
// mutation lock, so a sign-in merge can never interleave with a concurrent
// create or delete. A nil return from fn keeps the local set; a non-nil
// return replaces it wholesale and persists.
func (s *Service) Reconcile(ctx context.Context, fn func(local []contracts.StreamRecord) ([]contracts.StreamRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement, err := fn(cloneRecords(s.records))
	if err != nil {
		return err
	}
	if replacement == nil {
		return nil
	}
	next := cloneRecords(replacement)
	if err := s.slot.Save(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *Service) owner() string {
	if s.OwnerID == nil {
		return ""
	}
	return s.OwnerID()
}

func (s *Service) indexOf(id string) int {
	for i, rec := range s.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// pushMirror forwards a successful local mutation to the remote mirror.
// Local state is authoritative: an unconfigured mirror is silent, anything
// else is downgraded to a warning.
func (s *Service) pushMirror(ctx context.Context, op, id string, push func(mirror.Client) error) {
	if s.Mirror == nil {
		return
	}
	if err := push(s.Mirror); err != nil {
		if errors.Is(err, mirror.ErrNotConfigured) {
			s.Log.Debug().Str("op", op).Str("stream_id", id).Msg("mirror not configured, keeping local only")
			return
		}
		metrics.MirrorPushes.WithLabelValues(op, "failed").Inc()
		s.Log.Warn().Err(err).Str("op", op).Str("stream_id", id).Msg("mirror push failed, local state kept")
		return
	}
	metrics.MirrorPushes.WithLabelValues(op, "ok").Inc()
}

func cloneRecords(records []contracts.StreamRecord) []contracts.StreamRecord {
	out := make([]contracts.StreamRecord, len(records))
	for i, rec := range records {
		out[i] = cloneRecord(rec)
	}
	return out
}

func cloneRecord(rec contracts.StreamRecord) contracts.StreamRecord {
	items := make([]contracts.LineItem, len(rec.Items))
	copy(items, rec.Items)
	rec.Items = items
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		rec.CompletedAt = &t
	}
	return rec
}
