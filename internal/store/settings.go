package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/roach88/sometimes/internal/prefs"
)

// Settings keys.
const (
	keySalt        = "installation_salt"
	keyCycle       = "cycle"
	keyPreferences = "preferences"
)

// Salt bounds. The salt is drawn once per installation.
const (
	MinSalt = 10000
	MaxSalt = 99999
)

// RandomSalt draws a salt in [MinSalt, MaxSalt].
func RandomSalt() int64 {
	return MinSalt + rand.Int64N(MaxSalt-MinSalt+1)
}

// getSetting reads a settings value. ok is false when the key is absent.
func (s *Store) getSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, classify(err))
	}
	return v, true, nil
}

// putSetting upserts a settings value.
func (s *Store) putSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, classify(err))
	}
	return nil
}

// LoadOrCreateSalt returns the installation salt, creating it with gen on
// first use. gen must return a value in [MinSalt, MaxSalt].
//
// The insert uses ON CONFLICT DO NOTHING and re-reads, so two processes
// racing on a fresh database agree on one salt.
func (s *Store) LoadOrCreateSalt(ctx context.Context, gen func() int64) (int64, error) {
	if v, ok, err := s.getSetting(ctx, keySalt); err != nil {
		return 0, err
	} else if ok {
		return parseSalt(v)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, keySalt, strconv.FormatInt(gen(), 10))
	if err != nil {
		return 0, fmt.Errorf("write salt: %w", classify(err))
	}

	v, _, err := s.getSetting(ctx, keySalt)
	if err != nil {
		return 0, err
	}
	return parseSalt(v)
}

func parseSalt(v string) (int64, error) {
	salt, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse salt %q: %w", v, err)
	}
	return salt, nil
}

// LoadCycle returns the current cycle marker, 0 when unset.
func (s *Store) LoadCycle(ctx context.Context) (int64, error) {
	v, ok, err := s.getSetting(ctx, keyCycle)
	if err != nil || !ok {
		return 0, err
	}
	c, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cycle %q: %w", v, err)
	}
	return c, nil
}

// SaveCycle stores the cycle marker.
func (s *Store) SaveCycle(ctx context.Context, cycle int64) error {
	return s.putSetting(ctx, keyCycle, strconv.FormatInt(cycle, 10))
}

// LoadPreferences returns saved preferences, or prefs.Defaults when none
// are saved. Stored values are normalized on the way out.
func (s *Store) LoadPreferences(ctx context.Context) (prefs.Preferences, error) {
	v, ok, err := s.getSetting(ctx, keyPreferences)
	if err != nil {
		return prefs.Defaults(), err
	}
	if !ok {
		return prefs.Defaults(), nil
	}
	p := prefs.Defaults()
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return prefs.Defaults(), fmt.Errorf("parse preferences: %w", err)
	}
	return p.Normalize(), nil
}

// SavePreferences stores p after normalizing it.
func (s *Store) SavePreferences(ctx context.Context, p prefs.Preferences) error {
	data, err := json.Marshal(p.Normalize())
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return s.putSetting(ctx, keyPreferences, string(data))
}
