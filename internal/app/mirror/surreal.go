package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/streamboard/streamboard/internal/contracts"
	surrealdb "github.com/surrealdb/surrealdb.go"
)

const (
	surrealNamespace = "streamboard"
	surrealDatabase  = "streamboard"
	surrealTable     = "streams"
)

const fetchStreamsSurQL = `SELECT * FROM streams WHERE owner_id = $owner`

type surrealDriver struct {
	endpoint string
	user     string
	pass     string

	mu sync.Mutex
	db *surrealdb.DB
}

// newSurrealDriver reads the API key as a user:pass pair.
func newSurrealDriver(endpoint, apiKey string) *surrealDriver {
	user, pass, _ := strings.Cut(apiKey, ":")
	return &surrealDriver{endpoint: endpoint, user: user, pass: pass}
}

func (d *surrealDriver) connect() (*surrealdb.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return d.db, nil
	}
	db, err := surrealdb.New(d.endpoint)
	if err != nil {
		return nil, err
	}
	if _, err := db.Signin(map[string]any{"user": d.user, "pass": d.pass}); err != nil {
		db.Close()
		return nil, fmt.Errorf("surreal signin: %w", err)
	}
	if _, err := db.Use(surrealNamespace, surrealDatabase); err != nil {
		db.Close()
		return nil, fmt.Errorf("surreal use: %w", err)
	}
	d.db = db
	return d.db, nil
}

func (d *surrealDriver) Ping(_ context.Context) error {
	db, err := d.connect()
	if err != nil {
		return err
	}
	_, err = db.Info()
	return err
}

func (d *surrealDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		d.db.Close()
		d.db = nil
	}
}

func (d *surrealDriver) FetchAll(_ context.Context, ownerID string) ([]contracts.StreamRecord, error) {
	db, err := d.connect()
	if err != nil {
		return nil, err
	}
	res, err := db.Query(fetchStreamsSurQL, map[string]any{"owner": ownerID})
	if err != nil {
		return nil, err
	}
	records, err := decodeQueryStreams(res)
	if err != nil {
		return nil, err
	}
	// The driver's record ids carry the table prefix; strip it and order
	// newest-created-first, which the Postgres driver gets from SQL.
	for i := range records {
		records[i].ID = strings.TrimPrefix(records[i].ID, surrealTable+":")
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (d *surrealDriver) Create(_ context.Context, record contracts.StreamRecord) error {
	db, err := d.connect()
	if err != nil {
		return err
	}
	data, err := recordToMap(record)
	if err != nil {
		return err
	}
	// Change merges into an existing record or creates it, matching the
	// upsert contract of Create.
	_, err = db.Change(surrealTable+":"+record.ID, data)
	return err
}

func (d *surrealDriver) Update(_ context.Context, id string, patch contracts.StreamPatch) error {
	db, err := d.connect()
	if err != nil {
		return err
	}
	data, err := patchToMap(patch)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err = db.Change(surrealTable+":"+id, data)
	return err
}

func (d *surrealDriver) Delete(_ context.Context, id string) error {
	db, err := d.connect()
	if err != nil {
		return err
	}
	_, err = db.Delete(surrealTable + ":" + id)
	return err
}

// decodeQueryStreams peels the driver's loosely typed query response via a
// JSON round trip. A record's own lowercase status field must not be confused
// with a statement status, so the batch shape is only trusted when it carries
// a result payload or an uppercase OK/ERR marker.
func decodeQueryStreams(res any) ([]contracts.StreamRecord, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}

	var batches []struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &batches); err == nil && len(batches) > 0 {
		first := batches[0]
		if first.Result != nil || first.Status == "OK" || first.Status == "ERR" {
			if first.Status != "" && first.Status != "OK" {
				return nil, fmt.Errorf("surreal query status %s", first.Status)
			}
			if first.Result == nil {
				return []contracts.StreamRecord{}, nil
			}
			var records []contracts.StreamRecord
			if err := json.Unmarshal(first.Result, &records); err != nil {
				return nil, fmt.Errorf("decode surreal query result: %w", err)
			}
			return records, nil
		}
	}

	// Some server versions answer a single-statement query with the result
	// array itself.
	var records []contracts.StreamRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode surreal query response: %w", err)
	}
	return records, nil
}

func recordToMap(record contracts.StreamRecord) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	delete(data, "id")
	return data, nil
}

func patchToMap(patch contracts.StreamPatch) (map[string]any, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
