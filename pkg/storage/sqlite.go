package storage

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

	"github.com/playbeacon/beacon/pkg/types"
)

// SQLiteStore implements HeartbeatStore and AuditStore on a single
// SQLite file. The (server_id, heartbeat_id) primary key plus a global
// unique index on heartbeat_id make replay detection a single atomic
// insert-or-conflict.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the heartbeat database at path
// and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS heartbeats (
	server_id TEXT NOT NULL,
	heartbeat_id TEXT NOT NULL,
	key_version INTEGER NOT NULL,
	agent_timestamp TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('online','offline')),
	map_name TEXT,
	players_current INTEGER,
	players_capacity INTEGER,
	agent_version TEXT,
	received_at TEXT NOT NULL,
	PRIMARY KEY(server_id, heartbeat_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS heartbeats_id_owner ON heartbeats(heartbeat_id);
CREATE INDEX IF NOT EXISTS heartbeats_recent ON heartbeats(server_id, received_at DESC);

CREATE TABLE IF NOT EXISTS rejections (
	server_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS rejections_server ON rejections(server_id, at DESC);
`)
	if err != nil {
		return fmt.Errorf("migrate heartbeat schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so the job queue can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Insert appends one heartbeat. The unique indexes do the replay work:
// a conflicting insert fails atomically and is then classified by the
// existing row's owner. Rows are append-only, so the classification read
// cannot race with a delete.
func (s *SQLiteStore) Insert(ctx context.Context, hb *types.Heartbeat) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO heartbeats(server_id, heartbeat_id, key_version, agent_timestamp, status, map_name, players_current, players_capacity, agent_version, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, hb.ServerID, hb.HeartbeatID, hb.KeyVersion, ts(hb.AgentTimestamp), string(hb.Status),
		nullableStr(hb.MapName), nullableInt(hb.PlayersCurrent), nullableInt(hb.PlayersCapacity),
		nullableStr(hb.AgentVersion), ts(hb.ReceivedAt))
	if err == nil {
		return nil
	}
	if !isUniqueErr(err) {
		return fmt.Errorf("insert heartbeat: %w", err)
	}

	var owner string
	row := s.db.QueryRowContext(ctx, `SELECT server_id FROM heartbeats WHERE heartbeat_id = ?`, hb.HeartbeatID)
	if scanErr := row.Scan(&owner); scanErr != nil {
		return fmt.Errorf("classify heartbeat conflict: %w", scanErr)
	}
	if owner == hb.ServerID {
		return ErrDuplicate
	}
	return ErrIDConflict
}

// Recent returns up to limit heartbeats for the server, newest-first by
// received time.
func (s *SQLiteStore) Recent(ctx context.Context, serverID string, limit int) ([]types.Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT server_id, heartbeat_id, key_version, agent_timestamp, status, map_name, players_current, players_capacity, agent_version, received_at
FROM heartbeats
WHERE server_id = ?
ORDER BY received_at DESC
LIMIT ?
`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent heartbeats: %w", err)
	}
	defer rows.Close()

	var hbs []types.Heartbeat
	for rows.Next() {
		var (
			hb               types.Heartbeat
			agentTS, recvTS  string
			status           string
			mapName, version  sql.NullString
			players, capacity sql.NullInt64
		)
		if err := rows.Scan(&hb.ServerID, &hb.HeartbeatID, &hb.KeyVersion, &agentTS, &status,
			&mapName, &players, &capacity, &version, &recvTS); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		hb.Status = types.ServerStatus(status)
		if hb.AgentTimestamp, err = parseTS(agentTS); err != nil {
			return nil, fmt.Errorf("parse agent timestamp: %w", err)
		}
		if hb.ReceivedAt, err = parseTS(recvTS); err != nil {
			return nil, fmt.Errorf("parse received timestamp: %w", err)
		}
		if mapName.Valid {
			v := mapName.String
			hb.MapName = &v
		}
		if version.Valid {
			v := version.String
			hb.AgentVersion = &v
		}
		if players.Valid {
			v := int(players.Int64)
			hb.PlayersCurrent = &v
		}
		if capacity.Valid {
			v := int(capacity.Int64)
			hb.PlayersCapacity = &v
		}
		hbs = append(hbs, hb)
	}
	return hbs, rows.Err()
}

// RecordRejection appends one audit entry.
func (s *SQLiteStore) RecordRejection(ctx context.Context, rec types.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rejections(server_id, reason, at) VALUES (?, ?, ?)`,
		rec.ServerID, string(rec.Reason), ts(rec.At))
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

// Rejections returns recent audit entries for a server, newest-first.
func (s *SQLiteStore) Rejections(ctx context.Context, serverID string, limit int) ([]types.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT server_id, reason, at FROM rejections WHERE server_id = ? ORDER BY at DESC LIMIT ?
`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var recs []types.AuditRecord
	for rows.Next() {
		var (
			rec    types.AuditRecord
			reason string
			at     string
		)
		if err := rows.Scan(&rec.ServerID, &reason, &at); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		rec.Reason = types.RejectReason(reason)
		if rec.At, err = parseTS(at); err != nil {
			return nil, fmt.Errorf("parse rejection timestamp: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
