package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// Store keeps transcripts in Postgres.
type Store struct {
	pool     *pgxpool.Pool
	maxTurns int
}

func New(ctx context.Context, databaseURL string, maxTurns int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if maxTurns <= 0 {
		maxTurns = transcript.DefaultMaxTurns
	}
	return &Store{pool: pool, maxTurns: maxTurns}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Append inserts turns after the session's last sequence and trims the
// session, holding a transaction-scoped advisory lock on the session.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...transcript.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	var last int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM conversation_turns WHERE session_id = $1`,
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
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_turns (id, session_id, sequence, role, text, marker, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			turnID(t), sessionID, last, string(t.Role), t.Text, marker, createdAt(t),
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM conversation_turns WHERE session_id = $1 AND sequence <= $2`,
		sessionID, last-int64(s.maxTurns),
	)
	if err != nil {
		return fmt.Errorf("trim session: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Read(ctx context.Context, sessionID string, limit int) ([]transcript.Turn, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sequence, role, text, marker, created_at FROM (
			SELECT id, sequence, role, text, marker, created_at
			FROM conversation_turns
			WHERE session_id = $1
			ORDER BY sequence DESC
			LIMIT $2
		) recent
		ORDER BY sequence ASC`,
		sessionID, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []transcript.Turn
	for rows.Next() {
		var (
			t      transcript.Turn
			role   string
			marker []byte
		)
		if err := rows.Scan(&t.ID, &t.Sequence, &role, &t.Text, &marker, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = transcript.Role(role)
		if t.Marker, err = decodeMarker(marker); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

// Sessions counts sessions with retained turns.
func (s *Store) Sessions(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT session_id) FROM conversation_turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func turnID(t transcript.Turn) uuid.UUID {
	if t.ID == uuid.Nil {
		return uuid.New()
	}
	return t.ID
}

func createdAt(t transcript.Turn) time.Time {
	if t.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return t.CreatedAt.UTC()
}

func encodeMarker(m *transcript.Marker) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode marker: %w", err)
	}
	return data, nil
}

func decodeMarker(data []byte) (*transcript.Marker, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m transcript.Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode marker: %w", err)
	}
	return &m, nil
}
