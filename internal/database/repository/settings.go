package repository

import (
	"context"
	"fmt"
	"strconv"
)

const (
	keyAutoRealize  = "auto_realize_past_due_items"
	keyLookbackDays = "past_due_lookback_days"
)

// SettingsRepo stores key/value preferences.
type SettingsRepo struct{ db DBTX }

func NewSettingsRepo(db DBTX) *SettingsRepo { return &SettingsRepo{db: db} }

// Load reads the settings, falling back to DefaultSettings for missing keys.
func (r *SettingsRepo) Load(ctx context.Context) (Settings, error) {
	s := DefaultSettings
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, err
		}
		switch k {
		case keyAutoRealize:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Settings{}, fmt.Errorf("setting %s: %w", k, err)
			}
			s.AutoRealizePastDueItems = b
		case keyLookbackDays:
			n, err := strconv.Atoi(v)
			if err != nil {
				return Settings{}, fmt.Errorf("setting %s: %w", k, err)
			}
			s.PastDueLookbackDays = n
		}
	}
	return s, rows.Err()
}

// Save writes every setting.
func (r *SettingsRepo) Save(ctx context.Context, s Settings) error {
	return r.write(ctx, s, `
	INSERT INTO settings(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`)
}

// SeedMissing writes s only for keys that are not stored yet.
func (r *SettingsRepo) SeedMissing(ctx context.Context, s Settings) error {
	return r.write(ctx, s, `INSERT OR IGNORE INTO settings(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)`)
}

func (r *SettingsRepo) write(ctx context.Context, s Settings, stmt string) error {
	if s.PastDueLookbackDays < 0 {
		return fmt.Errorf("past due lookback days must not be negative")
	}
	pairs := [][2]string{
		{keyAutoRealize, strconv.FormatBool(s.AutoRealizePastDueItems)},
		{keyLookbackDays, strconv.Itoa(s.PastDueLookbackDays)},
	}
	for _, p := range pairs {
		if _, err := r.db.ExecContext(ctx, stmt, p[0], p[1]); err != nil {
			return fmt.Errorf("write setting %s: %w", p[0], err)
		}
	}
	return nil
}

