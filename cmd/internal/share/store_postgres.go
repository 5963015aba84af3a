package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore persists share tokens and the access log in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "decisionlogr").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidArgument
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "decisionlogr"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidArgument
	}
	return st, nil
}

// Close is a no-op; the pool outlives the store.
func (s *PostgresStore) Close() error { return nil }

// ApplySchema creates the store's schema, tables and indexes if they do not exist.
func (s *PostgresStore) ApplySchema(ctx context.Context) error {
	tokens := pgIdent(s.schema, "share_tokens")
	logs := pgIdent(s.schema, "share_access_log")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  decision_id TEXT NOT NULL,
  token TEXT NOT NULL,
  expires_at TIMESTAMPTZ NULL,
  passcode_hash TEXT NULL,
  allowed_actions TEXT[] NOT NULL DEFAULT '{}',
  revoked BOOLEAN NOT NULL DEFAULT false,
  revoked_at TIMESTAMPTZ NULL,
  revoked_by TEXT NULL,
  replaced_by TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_by TEXT NULL,
  CONSTRAINT chk_share_tokens_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_share_tokens_revoked_at CHECK (revoked OR revoked_at IS NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_share_tokens_token ON %s (token);
CREATE INDEX IF NOT EXISTS ix_share_tokens_decision ON %s (decision_id, created_at DESC);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  share_token_id TEXT NOT NULL REFERENCES %s(id),
  decision_id TEXT NOT NULL,
  action TEXT NOT NULL,
  client_name TEXT NULL,
  client_email TEXT NULL,
  metadata JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS ix_share_access_log_token ON %s (share_token_id, created_at DESC, id DESC);
`, pgx.Identifier{s.schema}.Sanitize(), tokens, tokens, tokens, logs, tokens, logs)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

const tokenColumns = `id, decision_id, token, expires_at, passcode_hash, allowed_actions,
       revoked, revoked_at, revoked_by, replaced_by, created_at, created_by`

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	tokens := pgIdent(s.schema, "share_tokens")
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM `+tokens+` WHERE token = $1`, token)
	return scanToken(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	tokens := pgIdent(s.schema, "share_tokens")
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM `+tokens+` WHERE id = $1`, id)
	return scanToken(row)
}

func (s *PostgresStore) ListByDecision(ctx context.Context, decisionID string) ([]ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := pgIdent(s.schema, "share_tokens")
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenColumns+`
		   FROM `+tokens+`
		  WHERE decision_id = $1
		  ORDER BY created_at DESC, id DESC`,
		decisionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ShareToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, tok ShareToken) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	if err := checkInsertable(tok); err != nil {
		return ShareToken{}, err
	}
	if err := insertToken(ctx, s.pool, pgIdent(s.schema, "share_tokens"), tok); err != nil {
		return ShareToken{}, err
	}
	return cloneToken(tok), nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch TokenPatch) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	tokens := pgIdent(s.schema, "share_tokens")

	var (
		revoke    bool
		revokedAt *time.Time
		revokedBy *string
	)
	if patch.Revoke != nil {
		revoke = true
		at := patch.Revoke.At
		revokedAt = &at
		revokedBy = patch.Revoke.By
	}

	// The expiry guard mirrors expiryApplies; $6 is the patch's AsOf.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+tokens+`
		    SET revoked    = revoked OR $2,
		        revoked_at = CASE WHEN NOT revoked AND $2 THEN $3 ELSE revoked_at END,
		        revoked_by = CASE WHEN NOT revoked AND $2 THEN $4 ELSE revoked_by END,
		        expires_at = COALESCE($5::timestamptz, expires_at)
		  WHERE id = $1
		    AND ($5::timestamptz IS NULL OR (
		          NOT revoked
		          AND $5::timestamptz > $6::timestamptz
		          AND (expires_at IS NULL OR (expires_at > $6::timestamptz AND expires_at < $5::timestamptz))))
		RETURNING `+tokenColumns,
		id, revoke, revokedAt, revokedBy, patch.ExpiresAt, patch.AsOf,
	)
	out, err := scanToken(row)
	if errors.Is(err, ErrNotFound) && patch.ExpiresAt != nil {
		var exists bool
		qerr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+tokens+` WHERE id = $1)`, id).Scan(&exists)
		if qerr != nil {
			return ShareToken{}, qerr
		}
		if exists {
			return ShareToken{}, ErrInvalidArgument
		}
	}
	return out, err
}

// Rotate locks the old row, inserts the replacement and revokes the old row in one
// transaction.
func (s *PostgresStore) Rotate(ctx context.Context, in RotateRecord) (ShareToken, ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	if err := checkInsertable(in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	tokens := pgIdent(s.schema, "share_tokens")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM `+tokens+` WHERE id = $1 FOR UPDATE`, in.OldID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShareToken{}, ShareToken{}, ErrNotFound
		}
		return ShareToken{}, ShareToken{}, err
	}

	if err := insertToken(ctx, tx, tokens, in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}

	revoked, err := scanToken(tx.QueryRow(ctx,
		`UPDATE `+tokens+`
		    SET revoked     = true,
		        revoked_at  = CASE WHEN revoked THEN revoked_at ELSE $2 END,
		        revoked_by  = CASE WHEN revoked THEN revoked_by ELSE $3 END,
		        replaced_by = $4
		  WHERE id = $1
		RETURNING `+tokenColumns,
		in.OldID, in.Mark.At, in.Mark.By, in.New.ID,
	))
	if err != nil {
		return ShareToken{}, ShareToken{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	return revoked, cloneToken(in.New), nil
}

func (s *PostgresStore) Append(ctx context.Context, e AccessLogEntry) (AccessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return AccessLogEntry{}, err
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.ShareTokenID) == "" || e.Action == "" {
		return AccessLogEntry{}, ErrInvalidArgument
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	logs := pgIdent(s.schema, "share_access_log")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+logs+` (id, share_token_id, decision_id, action, client_name, client_email, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ShareTokenID, e.DecisionID, string(e.Action), e.ClientName, e.ClientEmail, meta, e.CreatedAt,
	)
	if err != nil {
		return AccessLogEntry{}, mapPgErr(err)
	}
	return cloneEntry(e), nil
}

func (s *PostgresStore) ListByToken(ctx context.Context, tokenID string, limit int) ([]AccessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultConfig().MaxLogPageSize
	}
	logs := pgIdent(s.schema, "share_access_log")
	rows, err := s.pool.Query(ctx,
		`SELECT id, share_token_id, decision_id, action, client_name, client_email, metadata, created_at
		   FROM `+logs+`
		  WHERE share_token_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`,
		tokenID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AccessLogEntry, 0)
	for rows.Next() {
		var (
			e      AccessLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ShareTokenID, &e.DecisionID, &action, &e.ClientName, &e.ClientEmail, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = LogAction(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, tokenID string) (AccessStats, error) {
	if err := ctx.Err(); err != nil {
		return AccessStats{}, err
	}
	logs := pgIdent(s.schema, "share_access_log")
	rows, err := s.pool.Query(ctx,
		`SELECT action, count(*), min(created_at), max(created_at)
		   FROM `+logs+`
		  WHERE share_token_id = $1
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
			action      string
			n           int
			first, last time.Time
		)
		if err := rows.Scan(&action, &n, &first, &last); err != nil {
			return AccessStats{}, err
		}
		st.add(LogAction(action), n, first, last)
	}
	return st, rows.Err()
}

// add merges one per-action aggregate row into st.
func (st *AccessStats) add(action LogAction, n int, first, last time.Time) {
	st.ByAction[action] += n
	st.Total += n
	if st.FirstAt == nil || first.Before(*st.FirstAt) {
		f := first
		st.FirstAt = &f
	}
	if st.LastAt == nil || last.After(*st.LastAt) {
		l := last
		st.LastAt = &l
	}
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db pgExecer, table string, tok ShareToken) error {
	_, err := db.Exec(ctx,
		`INSERT INTO `+table+` (
		     id, decision_id, token, expires_at, passcode_hash, allowed_actions,
		     revoked, revoked_at, revoked_by, replaced_by, created_at, created_by
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tok.ID,
		tok.DecisionID,
		tok.Token,
		tok.ExpiresAt,
		tok.PasscodeHash,
		actionStrings(tok.AllowedActions),
		tok.Revoked,
		tok.RevokedAt,
		tok.RevokedBy,
		tok.ReplacedBy,
		tok.CreatedAt,
		tok.CreatedBy,
	)
	return mapPgErr(err)
}

func scanToken(row pgx.Row) (ShareToken, error) {
	var (
		out     ShareToken
		actions []string
	)
	err := row.Scan(
		&out.ID,
		&out.DecisionID,
		&out.Token,
		&out.ExpiresAt,
		&out.PasscodeHash,
		&actions,
		&out.Revoked,
		&out.RevokedAt,
		&out.RevokedBy,
		&out.ReplacedBy,
		&out.CreatedAt,
		&out.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShareToken{}, ErrNotFound
		}
		return ShareToken{}, err
	}
	out.AllowedActions = make([]ClientAction, 0, len(actions))
	for _, a := range actions {
		out.AllowedActions = append(out.AllowedActions, ClientAction(a))
	}
	return out, nil
}

func actionStrings(in []ClientAction) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, string(a))
	}
	return out
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
