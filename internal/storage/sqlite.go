package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Audit methods ---

// RecordAction persists one terminal action outcome
func (s *Store) RecordAction(ctx context.Context, rec domain.ActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_actions
			(id, action, player_name, persona_id, server_tag, group_id, reason, admin, success, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Action), rec.PlayerName, rec.PersonaID, rec.ServerTag, rec.GroupID,
		rec.Reason, rec.Admin, rec.Success, rec.Result, formatTimestamp(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("recording action: %w", err)
	}
	return nil
}

// ListActions returns the most recent audit records, newest first
func (s *Store) ListActions(ctx context.Context, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, player_name, persona_id, server_tag, group_id, reason, admin, success, result, created_at
		FROM moderation_actions ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ActionRecord
	for rows.Next() {
		var rec domain.ActionRecord
		var action string
		if err := rows.Scan(&rec.ID, &action, &rec.PlayerName, &rec.PersonaID, &rec.ServerTag,
			&rec.GroupID, &rec.Reason, &rec.Admin, &rec.Success, &rec.Result, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Action = domain.TaskKind(action)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecentActions counts successful actions against one player within
// the window, used by the coordinator's automatic-action cap.
func (s *Store) CountRecentActions(ctx context.Context, playerName string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM moderation_actions
		WHERE player_name = ? AND success = 1 AND created_at >= ?
	`, playerName, formatTimestamp(since)).Scan(&count)
	return count, err
}

// --- Server config methods ---

// UpsertServerConfig creates or updates a server configuration by tag
func (s *Store) UpsertServerConfig(ctx context.Context, cfg domain.ServerConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_configs (tag, external_id, display_name, group_id, game_id, is_tv, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			external_id = excluded.external_id,
			display_name = excluded.display_name,
			group_id = excluded.group_id,
			game_id = excluded.game_id,
			is_tv = excluded.is_tv,
			actor = excluded.actor
	`, cfg.Tag, cfg.ExternalID, cfg.DisplayName, cfg.GroupID, cfg.GameID, cfg.IsTV,
		string(cfg.Actor), formatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("upserting server config: %w", err)
	}
	return nil
}

// ListServerConfigs returns all stored server configurations
func (s *Store) ListServerConfigs(ctx context.Context) ([]domain.ServerConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, external_id, display_name, group_id, game_id, is_tv, actor
		FROM server_configs ORDER BY tag
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.ServerConfig
	for rows.Next() {
		var cfg domain.ServerConfig
		var actor string
		if err := rows.Scan(&cfg.Tag, &cfg.ExternalID, &cfg.DisplayName, &cfg.GroupID,
			&cfg.GameID, &cfg.IsTV, &actor); err != nil {
			return nil, err
		}
		cfg.Actor = domain.Actor(actor)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteServerConfig removes a server configuration
func (s *Store) DeleteServerConfig(ctx context.Context, tag string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM server_configs WHERE tag = ?", tag)
	return err
}

// --- Admin registry methods ---

// AdminLevel returns a player's admin level in a group, 0 if not an admin
func (s *Store) AdminLevel(ctx context.Context, groupID int64, name string) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx, `
		SELECT level FROM admins WHERE group_id = ? AND name = ?
	`, groupID, name).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return level, err
}

// SetAdmin creates or updates an admin entry; level 0 removes it
func (s *Store) SetAdmin(ctx context.Context, groupID int64, name string, level int) error {
	if level <= 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM admins WHERE group_id = ? AND name = ?", groupID, name)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (group_id, name, level) VALUES (?, ?, ?)
		ON CONFLICT(group_id, name) DO UPDATE SET level = excluded.level
	`, groupID, name, level)
	return err
}

// --- Warm record methods ---

// IsWarmed reports whether a persona holds an unexpired warm grace period
func (s *Store) IsWarmed(ctx context.Context, persona string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT expires_at FROM warm_records WHERE persona = ?
	`, persona).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().UTC().Before(expiresAt), nil
}

// SetWarm grants a persona a warm grace period until the given time
func (s *Store) SetWarm(ctx context.Context, persona string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warm_records (persona, expires_at) VALUES (?, ?)
		ON CONFLICT(persona) DO UPDATE SET expires_at = excluded.expires_at
	`, persona, formatTimestamp(until))
	return err
}

// PruneWarmRecords drops expired warm records
func (s *Store) PruneWarmRecords(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM warm_records WHERE expires_at < ?", formatTimestamp(time.Now()))
	return err
}
