package share

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore persists share tokens and the access log in a local SQLite file.
// It is meant for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
// path ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, invalidArgument("share.OpenSQLite", "path is required")
	}

	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
			path,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// One connection keeps writes serialized and an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const sqliteTokenColumns = `id, decision_id, token, expires_at_ms, passcode_hash, allowed_actions,
       revoked, revoked_at_ms, revoked_by, replaced_by, created_at_ms, created_by`

func (s *SQLiteStore) FindByToken(ctx context.Context, token string) (ShareToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTokenColumns+` FROM share_tokens WHERE token = ?`, token)
	return scanSQLiteToken(row)
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (ShareToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTokenColumns+` FROM share_tokens WHERE id = ?`, id)
	return scanSQLiteToken(row)
}

func (s *SQLiteStore) ListByDecision(ctx context.Context, decisionID string) ([]ShareToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteTokenColumns+`
		   FROM share_tokens
		  WHERE decision_id = ?
		  ORDER BY created_at_ms DESC, id DESC`,
		decisionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ShareToken, 0)
	for rows.Next() {
		t, err := scanSQLiteToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, tok ShareToken) (ShareToken, error) {
	if err := checkInsertable(tok); err != nil {
		return ShareToken{}, err
	}
	if err := insertSQLiteToken(ctx, s.db, tok); err != nil {
		return ShareToken{}, err
	}
	return s.FindByID(ctx, tok.ID)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch TokenPatch) (ShareToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ShareToken{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateSQLiteToken(ctx, tx, id, patch, nil); err != nil {
		return ShareToken{}, err
	}
	out, err := scanSQLiteToken(tx.QueryRowContext(ctx, `SELECT `+sqliteTokenColumns+` FROM share_tokens WHERE id = ?`, id))
	if err != nil {
		return ShareToken{}, err
	}
	return out, tx.Commit()
}

func (s *SQLiteStore) Rotate(ctx context.Context, in RotateRecord) (ShareToken, ShareToken, error) {
	if err := checkInsertable(in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSQLiteToken(ctx, tx, in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	newID := in.New.ID
	if err := updateSQLiteToken(ctx, tx, in.OldID, TokenPatch{Revoke: &in.Mark}, &newID); err != nil {
		return ShareToken{}, ShareToken{}, err
	}

	revoked, err := scanSQLiteToken(tx.QueryRowContext(ctx, `SELECT `+sqliteTokenColumns+` FROM share_tokens WHERE id = ?`, in.OldID))
	if err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	created, err := scanSQLiteToken(tx.QueryRowContext(ctx, `SELECT `+sqliteTokenColumns+` FROM share_tokens WHERE id = ?`, newID))
	if err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	if err := tx.Commit(); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	return revoked, created, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e AccessLogEntry) (AccessLogEntry, error) {
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.ShareTokenID) == "" || e.Action == "" {
		return AccessLogEntry{}, ErrInvalidArgument
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return AccessLogEntry{}, invalidArgument("share.SQLiteStore.Append", "metadata is not JSON-encodable")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO share_access_log (id, share_token_id, decision_id, action, client_name, client_email, metadata, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ShareTokenID, e.DecisionID, string(e.Action), e.ClientName, e.ClientEmail, string(b), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return AccessLogEntry{}, mapSQLiteErr(err)
	}
	return cloneEntry(e), nil
}

func (s *SQLiteStore) ListByToken(ctx context.Context, tokenID string, limit int) ([]AccessLogEntry, error) {
	if limit <= 0 {
		limit = DefaultConfig().MaxLogPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, share_token_id, decision_id, action, client_name, client_email, metadata, created_at_ms
		   FROM share_access_log
		  WHERE share_token_id = ?
		  ORDER BY created_at_ms DESC, id DESC
		  LIMIT ?`,
		tokenID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AccessLogEntry, 0)
	for rows.Next() {
		var (
			e           AccessLogEntry
			action      string
			name, email sql.NullString
			meta        string
			createdMS   int64
		)
		if err := rows.Scan(&e.ID, &e.ShareTokenID, &e.DecisionID, &action, &name, &email, &meta, &createdMS); err != nil {
			return nil, err
		}
		e.Action = LogAction(action)
		e.ClientName = nullStr(name)
		e.ClientEmail = nullStr(email)
		e.CreatedAt = time.UnixMilli(createdMS).UTC()
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, tokenID string) (AccessStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, count(*), min(created_at_ms), max(created_at_ms)
		   FROM share_access_log
		  WHERE share_token_id = ?
		  GROUP BY action`,
		tokenID,
	)
	if err != nil {
		return AccessStats{}, err
	}
	defer rows.Close()

	st := AccessStats{ShareTokenID: tokenID, ByAction: make(map[LogAction]int)}
	for rows.Next() {
		var (
			action          string
			n               int
			firstMS, lastMS int64
		)
		if err := rows.Scan(&action, &n, &firstMS, &lastMS); err != nil {
			return AccessStats{}, err
		}
		st.add(LogAction(action), n, time.UnixMilli(firstMS).UTC(), time.UnixMilli(lastMS).UTC())
	}
	return st, rows.Err()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertSQLiteToken(ctx context.Context, db sqlExecer, tok ShareToken) error {
	actions, err := json.Marshal(actionStrings(tok.AllowedActions))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO share_tokens (
		     id, decision_id, token, expires_at_ms, passcode_hash, allowed_actions,
		     revoked, revoked_at_ms, revoked_by, replaced_by, created_at_ms, created_by
		   ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tok.ID,
		tok.DecisionID,
		tok.Token,
		msPtr(tok.ExpiresAt),
		tok.PasscodeHash,
		string(actions),
		tok.Revoked,
		msPtr(tok.RevokedAt),
		tok.RevokedBy,
		tok.ReplacedBy,
		tok.CreatedAt.UnixMilli(),
		tok.CreatedBy,
	)
	return mapSQLiteErr(err)
}

// updateSQLiteToken applies patch to id, and sets replaced_by when replacedBy is non-nil.
func updateSQLiteToken(ctx context.Context, db sqlExecer, id string, p TokenPatch, replacedBy *string) error {
	var (
		revoke    bool
		revokedAt *int64
		revokedBy *string
	)
	if p.Revoke != nil {
		revoke = true
		ms := p.Revoke.At.UnixMilli()
		revokedAt = &ms
		revokedBy = p.Revoke.By
	}
	res, err := db.ExecContext(ctx,
		`UPDATE share_tokens
		    SET revoked_at_ms = CASE WHEN revoked = 0 AND ?1 THEN ?2 ELSE revoked_at_ms END,
		        revoked_by    = CASE WHEN revoked = 0 AND ?1 THEN ?3 ELSE revoked_by END,
		        revoked       = CASE WHEN ?1 THEN 1 ELSE revoked END,
		        expires_at_ms = COALESCE(?4, expires_at_ms),
		        replaced_by   = COALESCE(?5, replaced_by)
		  WHERE id = ?6
		    AND (?4 IS NULL OR (
		          revoked = 0
		          AND ?4 > ?7
		          AND (expires_at_ms IS NULL OR (expires_at_ms > ?7 AND expires_at_ms < ?4))))`,
		revoke, revokedAt, revokedBy, msPtr(p.ExpiresAt), replacedBy, id, p.AsOf.UnixMilli(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if p.ExpiresAt != nil {
			var one int
			err := db.QueryRowContext(ctx, `SELECT 1 FROM share_tokens WHERE id = ?`, id).Scan(&one)
			if err == nil {
				return ErrInvalidArgument
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		return ErrNotFound
	}
	return nil
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteToken(row sqlRow) (ShareToken, error) {
	var (
		out                     ShareToken
		expiresMS, revokedAtMS  sql.NullInt64
		hash, revokedBy, replBy sql.NullString
		createdBy               sql.NullString
		actions                 string
		createdMS               int64
	)
	err := row.Scan(
		&out.ID,
		&out.DecisionID,
		&out.Token,
		&expiresMS,
		&hash,
		&actions,
		&out.Revoked,
		&revokedAtMS,
		&revokedBy,
		&replBy,
		&createdMS,
		&createdBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ShareToken{}, ErrNotFound
		}
		return ShareToken{}, err
	}

	var names []string
	if err := json.Unmarshal([]byte(actions), &names); err != nil {
		return ShareToken{}, fmt.Errorf("decode allowed_actions of %s: %w", out.ID, err)
	}
	out.AllowedActions = make([]ClientAction, 0, len(names))
	for _, n := range names {
		out.AllowedActions = append(out.AllowedActions, ClientAction(n))
	}
	out.ExpiresAt = msTime(expiresMS)
	out.RevokedAt = msTime(revokedAtMS)
	out.PasscodeHash = nullStr(hash)
	out.RevokedBy = nullStr(revokedBy)
	out.ReplacedBy = nullStr(replBy)
	out.CreatedBy = nullStr(createdBy)
	out.CreatedAt = time.UnixMilli(createdMS).UTC()
	return out, nil
}

func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrNotFound
		}
	}
	return err
}

func msPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func msTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
