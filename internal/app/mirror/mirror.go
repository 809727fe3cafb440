package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streamboard/streamboard/internal/contracts"
)

var (
	// ErrNotConfigured means the mirror endpoint, API key, or owner session
	// is missing. No network attempt has been made.
	ErrNotConfigured = errors.New("remote mirror is not configured")

	// ErrRemote wraps transport, auth, and validation failures from the
	// remote service.
	ErrRemote = errors.New("remote mirror error")

	ErrUnsupportedScheme = errors.New("unsupported mirror endpoint scheme")
)

// Config is the user-supplied remote endpoint. The endpoint scheme selects
// the driver: postgres:// and postgresql:// use Postgres, ws:// and wss://
// use SurrealDB. For Postgres the API key overrides the DSN password; for
// SurrealDB it is the user:pass pair.
type Config struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.APIKey) != ""
}

// Client mirrors one user's stream records on a remote data service. The
// local store stays authoritative: callers decide what to do with a returned
// error rather than having it thrown past them.
type Client interface {
	// FetchAll returns the remote set newest-created-first. Transport
	// failures are logged and reported as an empty set, so an empty result
	// alone does not distinguish "no records" from "fetch failed".
	FetchAll(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error)
	Create(ctx context.Context, record contracts.StreamRecord) error
	Update(ctx context.Context, id string, patch contracts.StreamPatch) error
	Delete(ctx context.Context, id string) error
}

type driver interface {
	Client
	Ping(ctx context.Context) error
	Close()
}

// New builds a gated client for cfg. An incomplete config yields a client
// whose every call fails fast with ErrNotConfigured; a malformed endpoint is
// an error so a bad setup is caught at configuration time, not on first use.
func New(cfg Config, owner func() string, log zerolog.Logger) (Client, error) {
	g := &gated{cfg: cfg, owner: owner, log: log}
	if !cfg.Enabled() {
		return g, nil
	}
	d, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	g.driver = d
	return g, nil
}

func newDriver(cfg Config) (driver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse mirror endpoint: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return newPostgresDriver(endpoint, strings.TrimSpace(cfg.APIKey)), nil
	case "ws", "wss":
		return newSurrealDriver(endpoint, strings.TrimSpace(cfg.APIKey)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

type gated struct {
	cfg    Config
	owner  func() string
	driver driver
	log    zerolog.Logger
}

func (g *gated) ready(ownerID string) error {
	if g.driver == nil || !g.cfg.Enabled() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(ownerID) == "" {
		return ErrNotConfigured
	}
	return nil
}

func (g *gated) activeOwner() string {
	if g.owner == nil {
		return ""
	}
	return g.owner()
}

func (g *gated) FetchAll(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error) {
	if err := g.ready(ownerID); err != nil {
		return nil, err
	}
	records, err := g.driver.FetchAll(ctx, ownerID)
	if err != nil {
		g.log.Warn().Err(err).Str("owner_id", ownerID).Msg("mirror fetch failed, treating remote set as empty")
		return []contracts.StreamRecord{}, nil
	}
	return records, nil
}

func (g *gated) Create(ctx context.Context, record contracts.StreamRecord) error {
	owner := g.activeOwner()
	if record.OwnerID != "" {
		owner = record.OwnerID
	}
	if err := g.ready(owner); err != nil {
		return err
	}
	record.OwnerID = owner
	if err := g.driver.Create(ctx, record); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrRemote, record.ID, err)
	}
	return nil
}

func (g *gated) Update(ctx context.Context, id string, patch contracts.StreamPatch) error {
	if err := g.ready(g.activeOwner()); err != nil {
		return err
	}
	if err := g.driver.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrRemote, id, err)
	}
	return nil
}

func (g *gated) Delete(ctx context.Context, id string) error {
	if err := g.ready(g.activeOwner()); err != nil {
		return err
	}
	if err := g.driver.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrRemote, id, err)
	}
	return nil
}

// TestConnection probes caller-supplied credentials with one lightweight
// authenticated call. It never touches the active configuration.
func TestConnection(ctx context.Context, endpoint, apiKey string) error {
	cfg := Config{Endpoint: endpoint, APIKey: apiKey}
	if !cfg.Enabled() {
		return ErrNotConfigured
	}
	d, err := newDriver(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Ping(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Handle is the process-wide mirror reference. It is constructed once at
// startup and swapped only on explicit reconfiguration.
type Handle struct {
	owner func() string
	log   zerolog.Logger

	mu     sync.RWMutex
	client Client
}

func NewHandle(cfg Config, owner func() string, log zerolog.Logger) (*Handle, error) {
	client, err := New(cfg, owner, log)
	if err != nil {
		return nil, err
	}
	return &Handle{owner: owner, log: log, client: client}, nil
}

func (h *Handle) Reconfigure(cfg Config) error {
	client, err := New(cfg, h.owner, h.log)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
	return nil
}

func (h *Handle) current() Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *Handle) FetchAll(ctx context.Context, ownerID string) ([]contracts.StreamRecord, error) {
	return h.current().FetchAll(ctx, ownerID)
}

func (h *Handle) Create(ctx context.Context, record contracts.StreamRecord) error {
	return h.current().Create(ctx, record)
}

func (h *Handle) Update(ctx context.Context, id string, patch contracts.StreamPatch) error {
	return h.current().Update(ctx, id, patch)
}

func (h *Handle) Delete(ctx context.Context, id string) error {
	return h.current().Delete(ctx, id)
}
