package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FlagEnabled reads a feature flag. A missing row reads as disabled, the
// fail-safe default.
func (s *Store) FlagEnabled(ctx context.Context, name string) (bool, error) {
	ctx = ensureContext(ctx)
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM feature_flags WHERE flag_name = ?`, name,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", name, err)
	}
	return enabled, nil
}

// GetFlags returns the flag rows for the given names. Missing rows are
// omitted from the result.
func (s *Store) GetFlags(ctx context.Context, names []string) (map[string]Flag, error) {
	ctx = ensureContext(ctx)
	flags := make(map[string]Flag, len(names))
	for _, name := range names {
		var (
			enabled   bool
			updatedAt string
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT enabled, updated_at FROM feature_flags WHERE flag_name = ?`, name,
		).Scan(&enabled, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read flag %s: %w", name, err)
		}
		parsed, err := parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		flags[name] = Flag{Name: name, Enabled: enabled, UpdatedAt: parsed}
	}
	return flags, nil
}

// SetFlag upserts one feature flag, refreshing its timestamp.
func (s *Store) SetFlag(ctx context.Context, name string, enabled bool) error {
	ctx = ensureContext(ctx)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO feature_flags (flag_name, enabled, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(flag_name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		name, enabled, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", name, err)
	}
	return nil
}

// SetFlags applies one enabled value across multiple flags.
func (s *Store) SetFlags(ctx context.Context, names []string, enabled bool) error {
	for _, name := range names {
		if err := s.SetFlag(ctx, name, enabled); err != nil {
			return err
		}
	}
	return nil
}

// SeedFlags inserts missing flag rows as disabled without touching existing
// rows. Called once at daemon startup.
func (s *Store) SeedFlags(ctx context.Context, names []string) error {
	ctx = ensureContext(ctx)
	timestamp := formatTime(time.Now())
	for _, name := range names {
		_, err := s.execWithRetry(ctx,
			`INSERT OR IGNORE INTO feature_flags (flag_name, enabled, updated_at) VALUES (?, 0, ?)`,
			name, timestamp,
		)
		if err != nil {
			return fmt.Errorf("seed flag %s: %w", name, err)
		}
	}
	return nil
}
