package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/attunelabs/attune-core/internal/config"
	"github.com/attunelabs/attune-core/internal/timeline"
	_ "modernc.org/sqlite"
)

// IntervalRecord is one persisted aggregation interval.
type IntervalRecord struct {
	ID            int64
	SessionID     string
	Start         float64
	End           float64
	DominantState string
	FrameCount    int
	WordCount     int
	Payload       []byte
	CreatedAt     time.Time
}

// AdviceRecord is one persisted piece of generated advice.
type AdviceRecord struct {
	ID        int64
	SessionID string
	TraceID   string
	Advice    string
	Cached    bool
	CreatedAt time.Time
}

// Store persists session timelines to SQLite. Retention modes:
// ephemeral keeps nothing, session drops a session's rows when it ends,
// persistent keeps history subject to Prune.
type Store struct {
	db    *sql.DB
	cfg   config.SessionStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. In ephemeral mode no
// database is opened and every write is a no-op.
func Open(ctx context.Context, cfg config.SessionStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("session store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("session store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS intervals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    start_s REAL NOT NULL,
    end_s REAL NOT NULL,
    dominant_state TEXT,
    frame_count INTEGER,
    word_count INTEGER,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS advice (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    trace_id TEXT,
    advice TEXT,
    cached INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_intervals_session_start ON intervals(session_id, start_s);
CREATE INDEX IF NOT EXISTS idx_advice_session_created ON advice(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s == nil || s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// BeginSession ensures a session row exists.
func (s *Store) BeginSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at)
		 VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, startedAt.UTC())
	return err
}

// EndSession stamps the session end. In session retention mode the
// session's rows are deleted instead, once the caller is done with them.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if s.disabled() {
		return nil
	}
	if s.cfg.RetentionMode == "session" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, endedAt.UTC(), sessionID)
	return err
}

// AppendInterval writes one finalized interval. The full summary rides
// along as a JSON payload next to the queryable columns.
func (s *Store) AppendInterval(ctx context.Context, sessionID string, iv timeline.IntervalSummary) error {
	if s.disabled() {
		return nil
	}
	payload, err := json.Marshal(iv)
	if err != nil {
		return fmt.Errorf("marshal interval: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intervals(session_id, start_s, end_s, dominant_state, frame_count, word_count, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, iv.Start, iv.End, iv.DominantState, iv.FrameCount, len(iv.Words), payload, s.clock().UTC())
	return err
}

// AppendAdvice writes one generated advice entry.
func (s *Store) AppendAdvice(ctx context.Context, sessionID, traceID, advice string, cached bool) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advice(session_id, trace_id, advice, cached, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		sessionID, traceID, advice, cached, s.clock().UTC())
	return err
}

// ListIntervals retrieves up to limit intervals for a session ordered by
// interval start.
func (s *Store) ListIntervals(ctx context.Context, sessionID string, limit int) ([]IntervalRecord, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, start_s, end_s, dominant_state, frame_count, word_count, payload, created_at
		 FROM intervals WHERE session_id = ? ORDER BY start_s ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []IntervalRecord
	for rows.Next() {
		var r IntervalRecord
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Start, &r.End, &r.DominantState, &r.FrameCount, &r.WordCount, &r.Payload, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListAdvice retrieves up to limit advice entries for a session ordered
// ascending by time.
func (s *Store) ListAdvice(ctx context.Context, sessionID string, limit int) ([]AdviceRecord, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, trace_id, advice, cached, created_at
		 FROM advice WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AdviceRecord
	for rows.Next() {
		var r AdviceRecord
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TraceID, &r.Advice, &r.Cached, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune applies configured retention. Called on startup, and cheap enough
// to schedule periodically.
func (s *Store) Prune(ctx context.Context) error {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
