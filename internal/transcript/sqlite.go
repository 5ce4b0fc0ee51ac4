package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oratio/teachback/api/session"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	input_mode TEXT NOT NULL,
	output_mode TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_activity_at INTEGER NOT NULL,
	voice_degraded INTEGER NOT NULL DEFAULT 0,
	text_degraded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, state);

CREATE TABLE IF NOT EXISTS entries (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	origin TEXT NOT NULL,
	content TEXT NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS interruptions (
	session_id TEXT NOT NULL,
	trigger_seq INTEGER NOT NULL,
	summary TEXT NOT NULL,
	correction TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	resolved_at INTEGER
);

CREATE TABLE IF NOT EXISTS exchanges (
	session_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	correct INTEGER NOT NULL,
	weak_areas TEXT NOT NULL,
	asked_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	session_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`

// SQLiteStore persists the transcript in a single sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for
// an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Concurrent writers trip sqlite's single-writer lock otherwise.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateSession(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE user_id = ? AND state NOT IN (?, ?)
	`, rec.UserID, string(session.StateCompleted), string(session.StateAborted)).Scan(&active)
	if err != nil {
		return fmt.Errorf("check active session: %w", err)
	}
	if active > 0 {
		return session.ErrActiveSessionExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, input_mode, output_mode, state, created_at, last_activity_at, voice_degraded, text_degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, string(rec.InputMode), string(rec.OutputMode), string(rec.State),
		rec.CreatedAt.UnixMilli(), rec.LastActivityAt.UnixMilli(), boolToInt(rec.VoiceDegraded), boolToInt(rec.TextDegraded))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, input_mode, output_mode, state, created_at, last_activity_at, voice_degraded, text_degraded
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, rec Record) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, last_activity_at = ?, voice_degraded = ?, text_degraded = ?, input_mode = ?, output_mode = ?
		WHERE id = ?
	`, string(rec.State), rec.LastActivityAt.UnixMilli(), boolToInt(rec.VoiceDegraded), boolToInt(rec.TextDegraded),
		string(rec.InputMode), string(rec.OutputMode), rec.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) ActiveSessionForUser(ctx context.Context, userID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, input_mode, output_mode, state, created_at, last_activity_at, voice_degraded, text_degraded
		FROM sessions WHERE user_id = ? AND state NOT IN ('completed', 'aborted')
		ORDER BY created_at DESC LIMIT 1
	`, userID)
	rec, err := scanSession(row)
	if err == session.ErrSessionNotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var state string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, entry.SessionID).Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			return session.ErrSessionNotFound
		}
		return fmt.Errorf("read session state: %w", err)
	}
	if session.State(state).Terminal() {
		return ErrAppendAfterCompleted
	}

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM entries WHERE session_id = ?`, entry.SessionID).Scan(&last); err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}
	if entry.Seq <= last {
		return ErrDuplicateEntry
	}
	if entry.Seq != last+1 {
		return ErrSeqGap
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (session_id, seq, role, origin, content, ts) VALUES (?, ?, ?, ?, ?, ?)
	`, entry.SessionID, entry.Seq, string(entry.Role), string(entry.Origin), entry.Content, entry.Timestamp.UnixMilli()); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, role, origin, content, ts FROM entries WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var role, origin string
		var ts int64
		if err := rows.Scan(&entry.SessionID, &entry.Seq, &role, &origin, &entry.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Role = Role(role)
		entry.Origin = Origin(origin)
		entry.Timestamp = time.UnixMilli(ts).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) AddInterruption(ctx context.Context, in Interruption) error {
	var unresolved int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM interruptions WHERE session_id = ? AND resolved_at IS NULL
	`, in.SessionID).Scan(&unresolved); err != nil {
		return fmt.Errorf("count unresolved: %w", err)
	}
	if unresolved > 0 {
		return ErrUnresolvedExists
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interruptions (session_id, trigger_seq, summary, correction, created_at) VALUES (?, ?, ?, ?, ?)
	`, in.SessionID, in.TriggerSeq, in.Summary, in.Correction, in.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert interruption: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResolveInterruption(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interruptions SET resolved_at = ? WHERE session_id = ? AND resolved_at IS NULL
	`, at.UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("resolve interruption: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoUnresolved
	}
	return nil
}

func (s *SQLiteStore) UnresolvedInterruption(ctx context.Context, sessionID string) (Interruption, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, trigger_seq, summary, correction, created_at FROM interruptions
		WHERE session_id = ? AND resolved_at IS NULL LIMIT 1
	`, sessionID)
	var in Interruption
	var createdAt int64
	if err := row.Scan(&in.SessionID, &in.TriggerSeq, &in.Summary, &in.Correction, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Interruption{}, false, nil
		}
		return Interruption{}, false, fmt.Errorf("scan interruption: %w", err)
	}
	in.CreatedAt = time.UnixMilli(createdAt).UTC()
	return in, true, nil
}

func (s *SQLiteStore) Interruptions(ctx context.Context, sessionID string) ([]Interruption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, trigger_seq, summary, correction, created_at, resolved_at FROM interruptions
		WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interruptions: %w", err)
	}
	defer rows.Close()

	var list []Interruption
	for rows.Next() {
		var in Interruption
		var createdAt int64
		var resolvedAt sql.NullInt64
		if err := rows.Scan(&in.SessionID, &in.TriggerSeq, &in.Summary, &in.Correction, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan interruption: %w", err)
		}
		in.CreatedAt = time.UnixMilli(createdAt).UTC()
		if resolvedAt.Valid {
			t := time.UnixMilli(resolvedAt.Int64).UTC()
			in.ResolvedAt = &t
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) AddExchange(ctx context.Context, ex ExamExchange) error {
	weakAreas, err := json.Marshal(ex.WeakAreas)
	if err != nil {
		return fmt.Errorf("marshal weak areas: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchanges (session_id, question, answer, correct, weak_areas, asked_at) VALUES (?, ?, ?, ?, ?, ?)
	`, ex.SessionID, ex.Question, ex.Answer, boolToInt(ex.Correct), string(weakAreas), ex.AskedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Exchanges(ctx context.Context, sessionID string) ([]ExamExchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, question, answer, correct, weak_areas, asked_at FROM exchanges
		WHERE session_id = ? ORDER BY asked_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var list []ExamExchange
	for rows.Next() {
		var ex ExamExchange
		var correct int
		var weakAreas string
		var askedAt int64
		if err := rows.Scan(&ex.SessionID, &ex.Question, &ex.Answer, &correct, &weakAreas, &askedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		ex.Correct = correct != 0
		ex.AskedAt = time.UnixMilli(askedAt).UTC()
		if err := json.Unmarshal([]byte(weakAreas), &ex.WeakAreas); err != nil {
			return nil, fmt.Errorf("unmarshal weak areas: %w", err)
		}
		list = append(list, ex)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, summary session.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO summaries (session_id, payload) VALUES (?, ?)`, summary.SessionID, string(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSummaryAlreadySaved
		}
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, sessionID string) (session.Summary, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM summaries WHERE session_id = ?`, sessionID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return session.Summary{}, session.ErrSessionNotFound
		}
		return session.Summary{}, fmt.Errorf("query summary: %w", err)
	}
	var summary session.Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return session.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return summary, nil
}

func (s *SQLiteStore) PruneCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions WHERE state = 'completed' AND last_activity_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("query expired sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, id)
		if err != nil {
			return pruned, fmt.Errorf("prune entries: %w", err)
		}
		affected, _ := result.RowsAffected()
		if _, err := s.db.ExecContext(ctx, `DELETE FROM interruptions WHERE session_id = ?`, id); err != nil {
			return pruned, fmt.Errorf("prune interruptions: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, id); err != nil {
			return pruned, fmt.Errorf("prune exchanges: %w", err)
		}
		if affected > 0 {
			pruned++
		}
	}
	return pruned, nil
}

func scanSession(row *sql.Row) (Record, error) {
	var rec Record
	var inputMode, outputMode, state string
	var createdAt, lastActivity int64
	var voiceDegraded, textDegraded int
	err := row.Scan(&rec.ID, &rec.UserID, &inputMode, &outputMode, &state, &createdAt, &lastActivity, &voiceDegraded, &textDegraded)
	if err != nil {
		if err == sql.ErrNoRows {
			return Record{}, session.ErrSessionNotFound
		}
		return Record{}, fmt.Errorf("scan session: %w", err)
	}
	rec.InputMode = session.InputMode(inputMode)
	rec.OutputMode = session.OutputMode(outputMode)
	rec.State = session.State(state)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.LastActivityAt = time.UnixMilli(lastActivity).UTC()
	rec.VoiceDegraded = voiceDegraded != 0
	rec.TextDegraded = textDegraded != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces constraint failures as plain error strings.
	return strings.Contains(err.Error(), "constraint failed")
}
