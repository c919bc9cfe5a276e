// Package session implements the TTL-bounded session store (A3): it
// persists per-domain cookie jars (storage state) in a SQLite database
// so subsequent automation runs can skip re-login.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DefaultTTL mirrors the original session manager's 30-minute default.
const DefaultTTL = 30 * time.Minute

// Record is one persisted session.
type Record struct {
	Domain    string
	Cookies   json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
	TTL       time.Duration
}

// Summary is a listing-safe view of a Record, without the cookie payload.
type Summary struct {
	Domain    string
	Valid     bool
	CreatedAt time.Time
	ExpiresAt time.Time
	TTL       time.Duration
}

// Store is a SQLite-backed session store. All methods are safe for
// concurrent use; SQLite itself serializes writers.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) a session store at path. Use ":memory:"
// for an ephemeral, test-only store. Every save/evict emits a structured
// zerolog event (domain + action only, never cookie material).
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			domain     TEXT PRIMARY KEY,
			cookies    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			ttl_seconds INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: migrate: %w", err)
	}
	return &Store{db: db, log: logger.With().Str("component", "session_audit").Logger()}, nil
}

// auditEvent emits one structured audit event: action and domain only,
// never cookie/session payload material.
func (s *Store) auditEvent(action, domain string) {
	s.log.Info().Str("action", action).Str("domain", domain).Msg("session audit event")
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save stores cookies for domain with the given ttl (DefaultTTL if <= 0),
// replacing any existing session for that domain.
func (s *Store) Save(domain string, cookies json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO sessions (domain, cookies, created_at, expires_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			cookies = excluded.cookies,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			ttl_seconds = excluded.ttl_seconds`,
		domain, string(cookies), now.Unix(), now.Add(ttl).Unix(), int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("session: save %s: %w", domain, err)
	}
	s.auditEvent("session_saved", domain)
	return nil
}

// Get retrieves the active session for domain. An expired session is
// lazily evicted and reported as not found.
func (s *Store) Get(domain string) (Record, bool, error) {
	row := s.db.QueryRow(`SELECT cookies, created_at, expires_at, ttl_seconds FROM sessions WHERE domain = ?`, domain)
	var cookies string
	var createdAt, expiresAt, ttlSeconds int64
	if err := row.Scan(&cookies, &createdAt, &expiresAt, &ttlSeconds); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("session: get %s: %w", domain, err)
	}

	expiresAtTime := time.Unix(expiresAt, 0)
	if time.Now().After(expiresAtTime) {
		_, _ = s.Clear(domain)
		s.auditEvent("session_evicted_expired", domain)
		return Record{}, false, nil
	}

	return Record{
		Domain:    domain,
		Cookies:   json.RawMessage(cookies),
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: expiresAtTime,
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, true, nil
}

// IsValid reports whether domain has a non-expired session.
func (s *Store) IsValid(domain string) (bool, error) {
	_, ok, err := s.Get(domain)
	return ok, err
}

// Clear removes the session for domain, if any.
func (s *Store) Clear(domain string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE domain = ?`, domain)
	if err != nil {
		return false, fmt.Errorf("session: clear %s: %w", domain, err)
	}
	n, _ := res.RowsAffected()
	cleared := n > 0
	if cleared {
		s.auditEvent("session_cleared", domain)
	}
	return cleared, nil
}

// ClearAll removes every stored session.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("session: clear all: %w", err)
	}
	s.auditEvent("all_sessions_cleared", "")
	return nil
}

// List returns every stored session as a listing-safe Summary.
func (s *Store) List() ([]Summary, error) {
	rows, err := s.db.Query(`SELECT domain, created_at, expires_at, ttl_seconds FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []Summary
	for rows.Next() {
		var domain string
		var createdAt, expiresAt, ttlSeconds int64
		if err := rows.Scan(&domain, &createdAt, &expiresAt, &ttlSeconds); err != nil {
			return nil, fmt.Errorf("session: scan: %w", err)
		}
		expiresAtTime := time.Unix(expiresAt, 0)
		out = append(out, Summary{
			Domain:    domain,
			Valid:     now.Before(expiresAtTime),
			CreatedAt: time.Unix(createdAt, 0),
			ExpiresAt: expiresAtTime,
			TTL:       time.Duration(ttlSeconds) * time.Second,
		})
	}
	return out, rows.Err()
}

// CleanupExpired deletes every session whose TTL has elapsed and
// reports how many were removed. Intended to run periodically.
func (s *Store) CleanupExpired() (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("session: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info().Str("action", "sessions_cleanup_expired").Int64("count", n).Msg("session audit event")
	}
	return int(n), nil
}

// Extend re-saves an existing session so that it expires additionalTTL
// (DefaultTTL if <= 0) from now. Reports false if no session exists for
// domain.
func (s *Store) Extend(domain string, additionalTTL time.Duration) (bool, error) {
	if additionalTTL <= 0 {
		additionalTTL = DefaultTTL
	}
	rec, ok, err := s.Get(domain)
	if err != nil || !ok {
		return false, err
	}
	return true, s.Save(domain, rec.Cookies, additionalTTL)
}
