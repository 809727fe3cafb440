package localslot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is stamped into every slot on save. Loads reject anything
// newer so an older binary never silently rewrites a future layout.
const SchemaVersion = 1

var ErrSchemaVersion = errors.New("unsupported slot schema version")

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// Slot is one durable local storage slot holding a single JSON document.
// Saves always rewrite the whole document via a temp file and rename.
type Slot struct {
	Path string
}

func New(path string) *Slot {
	return &Slot{Path: path}
}

// Load reads the slot into v. It reports false with no error when the slot
// file does not exist yet.
func (s *Slot) Load(v any) (bool, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read slot %s: %w", s.Path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("decode slot %s: %w", s.Path, err)
	}
	if env.SchemaVersion > SchemaVersion {
		return false, fmt.Errorf("%w: slot %s has version %d", ErrSchemaVersion, s.Path, env.SchemaVersion)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, fmt.Errorf("decode slot %s: %w", s.Path, err)
	}
	return true, nil
}

// Save writes v as the slot's new full contents. The write either lands
// whole or not at all.
func (s *Slot) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", s.Path, err)
	}
	raw, err := json.Marshal(envelope{SchemaVersion: SchemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", s.Path, err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare slot dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write slot %s: %w", s.Path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", s.Path, err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", s.Path, err)
	}
	return nil
}
