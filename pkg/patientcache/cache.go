package patientcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound means the patient has no cached record. Expired rows are
// reported identically: an outdated demographic snapshot must never be
// served as current.
var ErrNotFound = errors.New("patient not cached")

// Entry is one cached patient demographic snapshot, keyed by the same
// salted hash used everywhere else on the node. No direct identifiers
// are stored.
type Entry struct {
	PatientHash  string          `json:"patientHash"`
	Demographics json.RawMessage `json:"demographics"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Config configures the cache database.
type Config struct {
	// DBPath is the path to the cache database file. Kept separate
	// from the main store so the cache can be wiped independently.
	DBPath string

	// DefaultTTL is used when Put is called with a zero ttl.
	// Default: 24 hours
	DefaultTTL time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

func (c *Config) applyDefaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("cache db path cannot be empty")
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return nil
}

// Cache is a TTL mirror of patient demographics for offline operation.
// It is written by the inbound sync path and read by evaluation
// handlers that need demographic context without a network round trip.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex

	defaultTTL time.Duration

	getStmt   *sql.Stmt
	putStmt   *sql.Stmt
	purgeStmt *sql.Stmt

	closeOnce sync.Once
}

// New opens (creating if needed) the cache database.
func New(cfg Config) (*Cache, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Cache{db: db, defaultTTL: cfg.DefaultTTL}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	if err := c.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare cache statements: %w", err)
	}
	return c, nil
}

// Ping verifies the cache database is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patient_cache (
		patient_hash TEXT PRIMARY KEY,
		demographics TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patient_cache_expires ON patient_cache(expires_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *Cache) prepareStatements() error {
	var err error

	c.getStmt, err = c.db.Prepare(`
		SELECT demographics, updated_at, expires_at
		FROM patient_cache
		WHERE patient_hash = ? AND expires_at > ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	c.putStmt, err = c.db.Prepare(`
		INSERT INTO patient_cache (patient_hash, demographics, updated_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (patient_hash) DO UPDATE SET
			demographics = excluded.demographics,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare put statement: %w", err)
	}

	c.purgeStmt, err = c.db.Prepare(`
		DELETE FROM patient_cache WHERE expires_at <= ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare purge statement: %w", err)
	}

	return nil
}

// Get returns the cached entry for a patient hash. Expired rows are
// indistinguishable from missing ones.
func (c *Cache) Get(ctx context.Context, patientHash string) (*Entry, error) {
	if patientHash == "" {
		return nil, fmt.Errorf("patient hash cannot be empty")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		demographics string
		updatedAt    int64
		expiresAt    int64
	)
	err := c.getStmt.QueryRowContext(ctx, patientHash, time.Now().Unix()).Scan(
		&demographics, &updatedAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	return &Entry{
		PatientHash:  patientHash,
		Demographics: json.RawMessage(demographics),
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// Put stores or refreshes a patient entry. A zero ttl uses the
// configured default.
func (c *Cache) Put(ctx context.Context, patientHash string, demographics json.RawMessage, ttl time.Duration) error {
	if patientHash == "" {
		return fmt.Errorf("patient hash cannot be empty")
	}
	if len(demographics) == 0 {
		return fmt.Errorf("demographics cannot be empty")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	_, err := c.putStmt.ExecContext(ctx,
		patientHash,
		string(demographics),
		now.Unix(),
		now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and reports how many were removed.
// Purging is housekeeping only; Get already treats expired rows as
// absent.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.purgeStmt.ExecContext(ctx, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(purged), nil
}

// Close releases the database. Safe to call multiple times.
func (c *Cache) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		if c.getStmt != nil {
			c.getStmt.Close()
		}
		if c.putStmt != nil {
			c.putStmt.Close()
		}
		if c.purgeStmt != nil {
			c.purgeStmt.Close()
		}
		if c.db != nil {
			_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = c.db.Close()
		}
	})
	return closeErr
}
