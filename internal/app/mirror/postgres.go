package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamboard/streamboard/internal/contracts"
	"github.com/streamboard/streamboard/internal/platform/dbpool"
)

const createStreamsSQL = `
CREATE TABLE IF NOT EXISTS streams (
  id text PRIMARY KEY,
  owner_id text NOT NULL,
  organization_name text NOT NULL DEFAULT '',
  due_at timestamptz NOT NULL,
  status text NOT NULL,
  priority text NOT NULL,
  category text NOT NULL,
  notes text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL,
  completed_at timestamptz,
  items jsonb NOT NULL DEFAULT '[]'
)`

const upsertStreamSQL = `
INSERT INTO streams (
  id, owner_id, organization_name, due_at, status, priority, category,
  notes, created_at, completed_at, items
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE
SET owner_id = EXCLUDED.owner_id,
    organization_name = EXCLUDED.organization_name,
    due_at = EXCLUDED.due_at,
    status = EXCLUDED.status,
    priority = EXCLUDED.priority,
    category = EXCLUDED.category,
    notes = EXCLUDED.notes,
    completed_at = EXCLUDED.completed_at,
    items = EXCLUDED.items
`

const fetchStreamsSQL = `
SELECT id, owner_id, organization_name, due_at, status, priority, category,
       notes, created_at, completed_at, items
FROM streams
WHERE owner_id = $1
ORDER BY created_at DESC
`

type postgresDriver struct {
	endpoint string
	password string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func newPostgresDriver(endpoint, apiKey string) *postgresDriver {
	return &postgresDriver{endpoint: endpoint, password: apiKey}
}

// connect is lazy so a configured-but-unreachable mirror never blocks
// process startup; the store treats every push as best-effort anyway.
func (d *postgresDriver) connect(ctx context.Context) (*pgxpool.Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		return d.pool, nil
	}
	pool, err := dbpool.New(ctx, d.endpoint, d.password)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createStreamsSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure streams schema: %w", err)
	}
	d.pool = pool
	return d.pool, nil
}

func (d *postgresDriver) Ping(ctx context.Context) error {
	pool, err := d.connect(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (d *postgresDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}

func (d *postgresDriver) FetchAll(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error) {
	pool, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, fetchStreamsSQL, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]contracts.StreamRecord, 0)
	for rows.Next() {
		var rec contracts.StreamRecord
		var items []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.OwnerID,
			&rec.OrganizationName,
			&rec.DueAt,
			&rec.Status,
			&rec.Priority,
			&rec.Category,
			&rec.Notes,
			&rec.CreatedAt,
			&rec.CompletedAt,
			&items,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return nil, fmt.Errorf("decode items for stream %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (d *postgresDriver) Create(ctx context.Context, record contracts.StreamRecord) error {
	pool, err := d.connect(ctx)
	if err != nil {
		return err
	}
	items, err := json.Marshal(record.Items)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, upsertStreamSQL,
		record.ID,
		record.OwnerID,
		record.OrganizationName,
		record.DueAt,
		record.Status,
		record.Priority,
		record.Category,
		record.Notes,
		record.CreatedAt,
		record.CompletedAt,
		items,
	)
	return err
}

func (d *postgresDriver) Update(ctx context.Context, id string, patch contracts.StreamPatch) error {
	pool, err := d.connect(ctx)
	if err != nil {
		return err
	}
	query, args, err := buildStreamUpdate(id, patch)
	if err != nil || query == "" {
		return err
	}
	_, err = pool.Exec(ctx, query, args...)
	return err
}

func (d *postgresDriver) Delete(ctx context.Context, id string) error {
	pool, err := d.connect(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `DELETE FROM streams WHERE id = $1`, id)
	return err
}

// buildStreamUpdate turns the non-nil patch fields into one targeted UPDATE.
// An empty patch yields an empty query, which callers treat as a no-op.
func buildStreamUpdate(id string, patch contracts.StreamPatch) (string, []any, error) {
	sets := make([]string, 0, 8)
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.OrganizationName != nil {
		add("organization_name", *patch.OrganizationName)
	}
	if patch.DueAt != nil {
		add("due_at", *patch.DueAt)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.CompletedAt != nil {
		var completedAt *time.Time
		t := *patch.CompletedAt
		completedAt = &t
		add("completed_at", completedAt)
	}
	if patch.Items != nil {
		items, err := json.Marshal(*patch.Items)
		if err != nil {
			return "", nil, err
		}
		add("items", items)
	}

	if len(sets) == 0 {
		return "", nil, nil
	}
	return "UPDATE streams SET " + strings.Join(sets, ", ") + " WHERE id = $1", args, nil
}
