package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streamboard/streamboard/internal/app/mirror"
	"github.com/streamboard/streamboard/internal/contracts"
)

// RecordSet is the slice of the record store reconciliation needs: a locked
// run over the local set with an optional wholesale replacement.
type RecordSet interface {
	Reconcile(ctx context.Context, fn func(local []contracts.StreamRecord) ([]contracts.StreamRecord, error)) error
}

// Coordinator merges the local and remote stream sets once per sign-in.
// The merge is deliberately one-way: locals missing remotely are pushed up,
// then the re-fetched remote set replaces the local set wholesale. There is
// no field-level merge and no conflict resolution.
type Coordinator struct {
	Store  RecordSet
	Mirror mirror.Client
	Log    zerolog.Logger

	mu       sync.Mutex
	signedIn bool
}

func NewCoordinator(store RecordSet, mirrorClient mirror.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{Store: store, Mirror: mirrorClient, Log: log}
}

// OnAuthChange consumes one auth collaborator event and reconciles only on
// the signed-out to signed-in edge.
func (c *Coordinator) OnAuthChange(ctx context.Context, ownerID string, signedIn bool) error {
	c.mu.Lock()
	wasSignedIn := c.signedIn
	c.signedIn = signedIn
	c.mu.Unlock()

	if !signedIn || wasSignedIn {
		return nil
	}
	return c.ReconcileOnSignIn(ctx, ownerID)
}

// ReconcileOnSignIn fetches the remote set, uploads local records the remote
// does not know, re-fetches, and replaces the local set with the re-fetched
// remote set when it is non-empty. Per-record upload failures are warnings:
// the replace still runs, and a record whose upload failed is dropped by it.
func (c *Coordinator) ReconcileOnSignIn(ctx context.Context, ownerID string) error {
	return c.Store.Reconcile(ctx, func(local []contracts.StreamRecord) ([]contracts.StreamRecord, error) {
		remote, err := c.Mirror.FetchAll(ctx, ownerID)
		if err != nil {
			if errors.Is(err, mirror.ErrNotConfigured) {
				c.Log.Debug().Str("owner_id", ownerID).Msg("mirror not configured, skipping reconciliation")
				return nil, nil
			}
			return nil, err
		}

		known := make(map[string]bool, len(remote))
		for _, rec := range remote {
			known[rec.ID] = true
		}

		pushFailures := 0
		for _, rec := range local {
			if known[rec.ID] {
				continue
			}
			rec.OwnerID = ownerID
			if err := c.Mirror.Create(ctx, rec); err != nil {
				pushFailures++
				c.Log.Warn().Err(err).Str("stream_id", rec.ID).Msg("reconcile upload failed, record will not survive the replace")
			}
		}
		if pushFailures > 0 {
			c.Log.Warn().Int("failed", pushFailures).Str("owner_id", ownerID).Msg("reconciliation pushed with partial failures")
		}

		merged, err := c.Mirror.FetchAll(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if len(merged) == 0 {
			// Empty may mean "no remote records" or "fetch failed"; either
			// way the local set stays authoritative.
			return nil, nil
		}
		return merged, nil
	})
}
