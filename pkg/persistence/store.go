// Package persistence stores chat sessions, turns, and their citations in a
// local SQLite database so conversation history survives process restarts.
// The database is single-writer; connection pooling is capped at one.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
)

// timeLayout is how turn timestamps are stored. RFC3339Nano keeps the rows
// readable in a plain sqlite3 shell and sorts lexicographically.
const timeLayout = time.RFC3339Nano

// Store persists sessions and their turns. Safe for concurrent use; SQLite
// serializes writers through the single pooled connection.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	CreatedAt    time.Time
	LastActiveAt time.Time
	ID           string
	TurnCount    int
}

// Open opens (creating if necessary) the database at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	logger := logx.NewLogger("persistence")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Single connection: SQLite handles one writer at a time and this keeps
	// transactions from deadlocking against our own pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger.Info("📦 Database initialized: %s (schema v%d)", path, CurrentSchemaVersion)

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSession creates the session row if it does not exist and bumps its
// last-active timestamp.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID); err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	return s.touchSession(ctx, s.db, sessionID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) touchSession(ctx context.Context, db execer, sessionID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}
	return nil
}

// SaveTurn appends a finalized turn (and its citations) to the session's
// history. The turn receives the next sequence number; the session row is
// created on first use.
func (s *Store) SaveTurn(ctx context.Context, sessionID string, turn session.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID); err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM turns WHERE session_id = ?`, sessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate turn sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, seq, role, text, rounds, incomplete, abort_reason, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, sessionID, seq, turn.Role, turn.Text, turn.Rounds,
		boolToInt(turn.Incomplete), string(turn.AbortReason),
		turn.StartedAt.UTC().Format(timeLayout), turn.CompletedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert turn %s: %w", turn.ID, err)
	}

	for i, cit := range turn.Citations {
		if err := insertCitation(ctx, tx, turn.ID, i, cit); err != nil {
			return err
		}
	}

	if err := s.touchSession(ctx, tx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn %s: %w", turn.ID, err)
	}

	s.logger.Debug("Saved turn %s (seq %d, %d citations) to session %s", turn.ID, seq, len(turn.Citations), sessionID)
	return nil
}

func insertCitation(ctx context.Context, tx *sql.Tx, turnID string, seq int, cit session.Citation) error {
	args, err := json.Marshal(cit.Request.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal citation arguments: %w", err)
	}

	var payload any
	if cit.Result.Payload != nil {
		data, err := json.Marshal(cit.Result.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal citation payload: %w", err)
		}
		payload = string(data)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO citations (turn_id, seq, round, capability, arguments, round_index,
			result_kind, failure_kind, message, payload, elapsed_ns, original_round)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turnID, seq, cit.Round, cit.Request.CapabilityName, string(args), cit.Request.RoundIndex,
		kindName(cit.Result.Kind), string(cit.Result.FailureKind), cit.Result.Message,
		payload, cit.Result.Elapsed.Nanoseconds(), cit.Result.OriginalRound)
	if err != nil {
		return fmt.Errorf("failed to insert citation %d for turn %s: %w", seq, turnID, err)
	}
	return nil
}

// Turns returns the session's history in order. A missing session yields an
// empty slice, not an error.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, rounds, incomplete, abort_reason, started_at, completed_at
		FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var turns []session.Turn
	for rows.Next() {
		var (
			turn                   session.Turn
			incomplete             int
			abortReason            string
			startedAt, completedAt string
		)
		err := rows.Scan(&turn.ID, &turn.Role, &turn.Text, &turn.Rounds,
			&incomplete, &abortReason, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Incomplete = incomplete != 0
		turn.AbortReason = session.AbortReason(abortReason)
		if turn.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse turn started_at: %w", err)
		}
		if turn.CompletedAt, err = time.Parse(timeLayout, completedAt); err != nil {
			return nil, fmt.Errorf("failed to parse turn completed_at: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	for i := range turns {
		citations, err := s.citationsForTurn(ctx, turns[i].ID)
		if err != nil {
			return nil, err
		}
		turns[i].Citations = citations
	}

	return turns, nil
}

func (s *Store) citationsForTurn(ctx context.Context, turnID string) ([]session.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, capability, arguments, round_index,
			result_kind, failure_kind, message, payload, elapsed_ns, original_round
		FROM citations WHERE turn_id = ? ORDER BY seq`, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query citations for turn %s: %w", turnID, err)
	}
	defer func() { _ = rows.Close() }()

	var citations []session.Citation
	for rows.Next() {
		var (
			cit                  session.Citation
			arguments, kind      string
			failureKind, message string
			payload              sql.NullString
			elapsedNS            int64
		)
		err := rows.Scan(&cit.Round, &cit.Request.CapabilityName, &arguments, &cit.Request.RoundIndex,
			&kind, &failureKind, &message, &payload, &elapsedNS, &cit.Result.OriginalRound)
		if err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}

		if arguments != "" && arguments != "null" {
			if err := json.Unmarshal([]byte(arguments), &cit.Request.Arguments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal citation arguments: %w", err)
			}
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &cit.Result.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal citation payload: %w", err)
			}
		}

		cit.Result.Kind = kindFromName(kind)
		cit.Result.FailureKind = capability.FailureKind(failureKind)
		cit.Result.Message = message
		cit.Result.Elapsed = time.Duration(elapsedNS)

		citations = append(citations, cit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate citations: %w", err)
	}
	return citations, nil
}

// ClearSession deletes the session's turns and citations but keeps the
// session row so its identity and creation time survive a history wipe.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	if err := s.touchSession(ctx, s.db, sessionID); err != nil {
		return err
	}
	s.logger.Info("🔄 Cleared history for session %s", sessionID)
	return nil
}

// DeleteSession removes the session entirely, turns and citations included.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// Sessions lists stored sessions, most recently active first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.last_active_at, COUNT(t.id)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id ORDER BY s.last_active_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SessionInfo
	for rows.Next() {
		var (
			info                  SessionInfo
			createdAt, lastActive string
		)
		if err := rows.Scan(&info.ID, &createdAt, &lastActive, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if info.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse session created_at: %w", err)
		}
		if info.LastActiveAt, err = time.Parse(timeLayout, lastActive); err != nil {
			return nil, fmt.Errorf("failed to parse session last_active_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return infos, nil
}

// kindName maps a ResultKind to the string stored in the result_kind column.
// The names match the JSON wire encoding so exported transcripts and database
// rows agree.
func kindName(k capability.ResultKind) string {
	switch k {
	case capability.ResultFailure:
		return "failure"
	case capability.ResultCacheHit:
		return "cache_hit"
	default:
		return "success"
	}
}

func kindFromName(name string) capability.ResultKind {
	switch name {
	case "failure":
		return capability.ResultFailure
	case "cache_hit":
		return capability.ResultCacheHit
	default:
		return capability.ResultSuccess
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
