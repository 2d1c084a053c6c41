package replay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cardroom/internal/codec"
)

const defaultReplayDBName = "cardroom_replay.db"

type SQLiteRecorder struct {
	db *sql.DB
}

func NewSQLiteRecorderFromEnv() (*SQLiteRecorder, error) {
	dbPath := strings.TrimSpace(os.Getenv("REPLAY_DATABASE_PATH"))
	if dbPath == "" {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(userConfigDir, "cardroom", defaultReplayDBName)
	}
	return NewSQLiteRecorder(dbPath)
}

func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureReplaySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRecorder{db: db}, nil
}

func (s *SQLiteRecorder) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteRecorder) Append(ctx context.Context, gameID uint64, envelopes []codec.EventEnvelope) error {
	if gameID == 0 || len(envelopes) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nowMs := time.Now().UTC().UnixMilli()
	for _, env := range envelopes {
		_, err := tx.ExecContext(ctx, `
INSERT INTO game_event_log (
    game_id, seq, event_type, envelope_json, server_ts_ms, created_at_ms
)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (game_id, seq) DO NOTHING
`, int64(gameID), int64(env.Sequence), env.Type, string(env.Payload), env.ServerTsMs, nowMs)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteRecorder) ReadLog(ctx context.Context, gameID uint64, afterSeq uint64) ([]codec.EventEnvelope, error) {
	if gameID == 0 {
		return nil, ErrNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, envelope_json, server_ts_ms
FROM game_event_log
WHERE game_id = ?
  AND seq > ?
ORDER BY seq ASC
`, int64(gameID), int64(afterSeq))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envelopes := make([]codec.EventEnvelope, 0, 128)
	for rows.Next() {
		var seq, serverTsMs int64
		var eventType, payload string
		if err := rows.Scan(&seq, &eventType, &payload, &serverTsMs); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, codec.EventEnvelope{
			Origin:     codec.OriginGame,
			OriginID:   gameID,
			Sequence:   uint64(seq),
			Type:       eventType,
			Payload:    []byte(payload),
			ServerTsMs: serverTsMs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(envelopes) == 0 && afterSeq == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM game_event_log WHERE game_id = ?`, int64(gameID)).Scan(&count); err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrNotFound
		}
	}
	return envelopes, nil
}

func (s *SQLiteRecorder) PutMeta(ctx context.Context, gameID uint64, meta []byte) error {
	if gameID == 0 {
		return ErrNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}
	nowMs := time.Now().UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO game_meta (game_id, meta_json, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (game_id) DO UPDATE
SET meta_json = excluded.meta_json,
    updated_at_ms = excluded.updated_at_ms
`, int64(gameID), string(meta), nowMs, nowMs)
	return err
}

func (s *SQLiteRecorder) GetMeta(ctx context.Context, gameID uint64) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var meta string
	err := s.db.QueryRowContext(ctx, `
SELECT meta_json FROM game_meta WHERE game_id = ?
`, int64(gameID)).Scan(&meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(meta), nil
}

func (s *SQLiteRecorder) GameIDs(ctx context.Context) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT game_id FROM game_event_log ORDER BY game_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

func ensureReplaySchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS game_event_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    game_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    envelope_json TEXT NOT NULL DEFAULT '{}',
    server_ts_ms INTEGER NOT NULL,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (game_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_game_event_log_game_seq ON game_event_log(game_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_game_event_log_created_at ON game_event_log(created_at_ms)`,
		`
CREATE TABLE IF NOT EXISTS game_meta (
    game_id INTEGER PRIMARY KEY,
    meta_json TEXT NOT NULL DEFAULT '{}',
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
