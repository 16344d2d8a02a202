package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// SQLite keeps transcripts in a single-file database. It uses one
// connection, so appends are serialized.
type SQLite struct {
	db       *sql.DB
	maxTurns int
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, maxTurns int) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if maxTurns <= 0 {
		maxTurns = transcript.DefaultMaxTurns
	}
	return &SQLite{db: db, maxTurns: maxTurns}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, sessionID string, turns ...transcript.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM conversation_turns WHERE session_id = ?",
		sessionID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("read last sequence: %w", err)
	}

	for _, t := range turns {
		last++
		marker, err := encodeMarker(t.Marker)
		if err != nil {
			return err
		}
		var markerCol sql.NullString
		if marker != nil {
			markerCol = sql.NullString{String: string(marker), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO conversation_turns (id, session_id, sequence, role, text, marker, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			turnID(t).String(), sessionID, last, string(t.Role), t.Text, markerCol, createdAt(t).Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM conversation_turns WHERE session_id = ? AND sequence <= ?",
		sessionID, last-int64(s.maxTurns),
	)
	if err != nil {
		return fmt.Errorf("trim session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, sessionID string, limit int) ([]transcript.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sequence, role, text, marker, created_at FROM (
			SELECT id, sequence, role, text, marker, created_at
			FROM conversation_turns
			WHERE session_id = ?
			ORDER BY sequence DESC
			LIMIT ?
		)
		ORDER BY sequence ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []transcript.Turn
	for rows.Next() {
		var (
			t               transcript.Turn
			id, role, stamp string
			marker          sql.NullString
		)
		if err := rows.Scan(&id, &t.Sequence, &role, &t.Text, &marker, &stamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse turn id: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if marker.Valid {
			if t.Marker, err = decodeMarker([]byte(marker.String)); err != nil {
				return nil, err
			}
		}
		t.Role = transcript.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLite) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns"); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// Sessions counts sessions with retained turns.
func (s *SQLite) Sessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT session_id) FROM conversation_turns").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
