package share

import (
	"context"
	"slices"
	"strings"
	"time"
)

const maxDecisionIDLen = 128

// CreateInput describes a new share token. Set at most one of ExpiresAt and TTL; with
// neither, Config.DefaultTTL applies (0 = no expiry).
type CreateInput struct {
	DecisionID     string
	AllowedActions []ClientAction
	ExpiresAt      *time.Time
	TTL            time.Duration
	Passcode       *string
}

// RegenerateOptions overrides what RegenerateToken carries forward from the old token.
type RegenerateOptions struct {
	AllowedActions *[]ClientAction
	Passcode       *string
	ClearPasscode  bool
	ExpiresAt      *time.Time
	TTL            time.Duration
}

// CreateToken shares a decision by issuing a new token.
func (g *Gate) CreateToken(ctx context.Context, actor Actor, in CreateInput) (ShareToken, error) {
	const op = "share.CreateToken"
	if !actor.valid() {
		return ShareToken{}, invalidArgument(op, "actor is required")
	}
	decisionID := strings.TrimSpace(in.DecisionID)
	if decisionID == "" || len(decisionID) > maxDecisionIDLen {
		return ShareToken{}, invalidArgument(op, "decision_id is required")
	}
	actions, err := NormalizeActions(in.AllowedActions)
	if err != nil {
		return ShareToken{}, err
	}

	now := g.now()
	expiresAt, err := g.resolveExpiry(op, now, in.ExpiresAt, in.TTL, g.cfg.DefaultTTL)
	if err != nil {
		return ShareToken{}, err
	}
	hash, err := g.hashPasscode(op, in.Passcode)
	if err != nil {
		return ShareToken{}, err
	}

	tok, err := g.newToken(now, decisionID, actions, expiresAt, hash, actor)
	if err != nil {
		return ShareToken{}, err
	}

	created, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.insert", func(ctx context.Context) (ShareToken, error) {
		return g.tokens.Insert(ctx, tok)
	})
	if err != nil {
		g.log.Error("share.token.create.fail", "err", err, "decision_id", decisionID)
		return ShareToken{}, storeErr(op, err)
	}

	g.log.Info("share.token.created",
		"share_token_id", created.ID,
		"decision_id", created.DecisionID,
		"actor", actor.UserID,
		"passcode", created.RequiresPasscode(),
		"expires", created.ExpiresAt != nil,
	)
	return created, nil
}

// RegenerateToken revokes oldID and issues a replacement for the same decision in one
// atomic store step. Allowed actions, passcode and lifetime carry forward unless opts
// overrides them. When it returns nil error the old token string no longer validates and
// the new one does.
func (g *Gate) RegenerateToken(ctx context.Context, actor Actor, oldID string, opts RegenerateOptions) (ShareToken, error) {
	const op = "share.RegenerateToken"
	if !actor.valid() {
		return ShareToken{}, invalidArgument(op, "actor is required")
	}
	oldID = strings.TrimSpace(oldID)
	if oldID == "" {
		return ShareToken{}, invalidArgument(op, "token id is required")
	}
	if opts.Passcode != nil && opts.ClearPasscode {
		return ShareToken{}, invalidArgument(op, "passcode and clear_passcode are exclusive")
	}

	old, err := g.findByID(ctx, oldID)
	if err != nil {
		return ShareToken{}, storeErr(op, err)
	}

	now := g.now()

	actions := slices.Clone(old.AllowedActions)
	if opts.AllowedActions != nil {
		if actions, err = NormalizeActions(*opts.AllowedActions); err != nil {
			return ShareToken{}, err
		}
	}

	hash := old.PasscodeHash
	switch {
	case opts.ClearPasscode:
		hash = nil
	case opts.Passcode != nil:
		if hash, err = g.hashPasscode(op, opts.Passcode); err != nil {
			return ShareToken{}, err
		}
	}

	var expiresAt *time.Time
	if opts.ExpiresAt != nil || opts.TTL != 0 {
		expiresAt, err = g.resolveExpiry(op, now, opts.ExpiresAt, opts.TTL, 0)
		if err != nil {
			return ShareToken{}, err
		}
	} else {
		expiresAt = g.carryExpiry(now, old.lifetime())
	}

	next, err := g.newToken(now, old.DecisionID, actions, expiresAt, hash, actor)
	if err != nil {
		return ShareToken{}, err
	}

	created, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.rotate", func(ctx context.Context) (ShareToken, error) {
		_, created, err := g.tokens.Rotate(ctx, RotateRecord{
			OldID: old.ID,
			Mark:  RevokeMark{At: now, By: actor.ref()},
			New:   next,
		})
		return created, err
	})
	if err != nil {
		g.log.Error("share.token.regenerate.fail", "err", err, "share_token_id", old.ID)
		return ShareToken{}, storeErr(op, err)
	}

	g.log.Info("share.token.regenerated",
		"share_token_id", old.ID,
		"replaced_by", created.ID,
		"decision_id", created.DecisionID,
		"actor", actor.UserID,
	)
	return created, nil
}

// RevokeToken permanently invalidates a token. Revoking a revoked token is a no-op.
func (g *Gate) RevokeToken(ctx context.Context, actor Actor, id string) (ShareToken, error) {
	const op = "share.RevokeToken"
	if !actor.valid() {
		return ShareToken{}, invalidArgument(op, "actor is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ShareToken{}, invalidArgument(op, "token id is required")
	}

	mark := RevokeMark{At: g.now(), By: actor.ref()}
	revoked, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.update", func(ctx context.Context) (ShareToken, error) {
		return g.tokens.Update(ctx, id, TokenPatch{Revoke: &mark})
	})
	if err != nil {
		return ShareToken{}, storeErr(op, err)
	}

	g.log.Info("share.token.revoked", "share_token_id", revoked.ID, "actor", actor.UserID)
	return revoked, nil
}

// ExtendExpiration moves a live token's expiry forward. It never moves expiry backward
// and never revives a revoked or lapsed token; those need RegenerateToken.
func (g *Gate) ExtendExpiration(ctx context.Context, actor Actor, id string, newExpiresAt time.Time) (ShareToken, error) {
	const op = "share.ExtendExpiration"
	if !actor.valid() {
		return ShareToken{}, invalidArgument(op, "actor is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ShareToken{}, invalidArgument(op, "token id is required")
	}

	tok, err := g.findByID(ctx, id)
	if err != nil {
		return ShareToken{}, storeErr(op, err)
	}

	now := g.now()
	switch tok.StateAt(now) {
	case StateRevoked:
		return ShareToken{}, invalidArgument(op, "token is revoked")
	case StateExpired:
		return ShareToken{}, invalidArgument(op, "token has expired; regenerate it instead")
	}
	if !newExpiresAt.After(now) {
		return ShareToken{}, invalidArgument(op, "expires_at must be in the future")
	}
	if tok.ExpiresAt != nil && !newExpiresAt.After(*tok.ExpiresAt) {
		return ShareToken{}, invalidArgument(op, "expires_at must be later than the current expiry")
	}
	if g.cfg.MaxTTL > 0 && newExpiresAt.Sub(now) > g.cfg.MaxTTL {
		return ShareToken{}, invalidArgument(op, "expires_at exceeds the maximum lifetime")
	}

	at := newExpiresAt.UTC()
	updated, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.update", func(ctx context.Context) (ShareToken, error) {
		return g.tokens.Update(ctx, tok.ID, TokenPatch{ExpiresAt: &at, AsOf: now})
	})
	if err != nil {
		// The token changed after it was read: revoked, lapsed or extended further.
		if IsInvalidArgument(err) {
			return ShareToken{}, invalidArgument(op, "token changed; expiry can only move forward on a live token")
		}
		return ShareToken{}, storeErr(op, err)
	}

	g.log.Info("share.token.extended", "share_token_id", updated.ID, "actor", actor.UserID, "expires_at", at)
	return updated, nil
}

// ListTokens returns every token ever issued for a decision, newest first.
func (g *Gate) ListTokens(ctx context.Context, actor Actor, decisionID string) ([]ShareToken, error) {
	const op = "share.ListTokens"
	if !actor.valid() {
		return nil, invalidArgument(op, "actor is required")
	}
	decisionID = strings.TrimSpace(decisionID)
	if decisionID == "" {
		return nil, invalidArgument(op, "decision_id is required")
	}

	out, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.list_by_decision", func(ctx context.Context) ([]ShareToken, error) {
		return g.tokens.ListByDecision(ctx, decisionID)
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

// AccessLog returns up to limit access-log entries for a token, newest first.
func (g *Gate) AccessLog(ctx context.Context, actor Actor, tokenID string, limit int) ([]AccessLogEntry, error) {
	const op = "share.AccessLog"
	if !actor.valid() {
		return nil, invalidArgument(op, "actor is required")
	}
	tok, err := g.findByID(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return nil, storeErr(op, err)
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > g.cfg.MaxLogPageSize {
		limit = g.cfg.MaxLogPageSize
	}

	out, err := storeCall(ctx, g, g.cfg.StoreTimeout, "access_log.list_by_token", func(ctx context.Context) ([]AccessLogEntry, error) {
		return g.logs.ListByToken(ctx, tok.ID, limit)
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

// AccessStats aggregates a token's access log.
func (g *Gate) AccessStats(ctx context.Context, actor Actor, tokenID string) (AccessStats, error) {
	const op = "share.AccessStats"
	if !actor.valid() {
		return AccessStats{}, invalidArgument(op, "actor is required")
	}
	tok, err := g.findByID(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return AccessStats{}, storeErr(op, err)
	}

	out, err := storeCall(ctx, g, g.cfg.StoreTimeout, "access_log.stats", func(ctx context.Context) (AccessStats, error) {
		return g.logs.Stats(ctx, tok.ID)
	})
	if err != nil {
		return AccessStats{}, storeErr(op, err)
	}
	return out, nil
}

func (g *Gate) findByID(ctx context.Context, id string) (ShareToken, error) {
	if id == "" {
		return ShareToken{}, ErrNotFound
	}
	return storeCall(ctx, g, g.cfg.StoreTimeout, "token.find_by_id", func(ctx context.Context) (ShareToken, error) {
		return g.tokens.FindByID(ctx, id)
	})
}

func (g *Gate) newToken(now time.Time, decisionID string, actions []ClientAction, expiresAt *time.Time, hash *string, actor Actor) (ShareToken, error) {
	id, err := newULID(now)
	if err != nil {
		return ShareToken{}, err
	}
	raw, err := newOpaqueToken(g.cfg.TokenBytes)
	if err != nil {
		return ShareToken{}, err
	}
	if actions == nil {
		actions = []ClientAction{}
	}
	return ShareToken{
		ID:             id,
		DecisionID:     decisionID,
		Token:          raw,
		ExpiresAt:      expiresAt,
		PasscodeHash:   hash,
		AllowedActions: actions,
		CreatedAt:      now,
		CreatedBy:      actor.ref(),
	}, nil
}

// resolveExpiry turns an explicit expiry or a TTL into an absolute expiry.
func (g *Gate) resolveExpiry(op string, now time.Time, explicit *time.Time, ttl, fallback time.Duration) (*time.Time, error) {
	if explicit != nil {
		if ttl != 0 {
			return nil, invalidArgument(op, "set either expires_at or ttl")
		}
		if !explicit.After(now) {
			return nil, invalidArgument(op, "expires_at must be in the future")
		}
		if g.cfg.MaxTTL > 0 && explicit.Sub(now) > g.cfg.MaxTTL {
			return nil, invalidArgument(op, "expires_at exceeds the maximum lifetime")
		}
		at := explicit.UTC()
		return &at, nil
	}
	if ttl < 0 {
		return nil, invalidArgument(op, "ttl must be positive")
	}
	d := ttl
	if d == 0 {
		d = fallback
	}
	if d == 0 {
		return nil, nil
	}
	if g.cfg.MaxTTL > 0 && d > g.cfg.MaxTTL {
		return nil, invalidArgument(op, "ttl exceeds the maximum lifetime")
	}
	at := now.Add(d)
	return &at, nil
}

// carryExpiry re-applies an old token's lifetime from now, clamped to MaxTTL.
func (g *Gate) carryExpiry(now time.Time, lifetime time.Duration) *time.Time {
	if lifetime <= 0 {
		return nil
	}
	if g.cfg.MaxTTL > 0 && lifetime > g.cfg.MaxTTL {
		lifetime = g.cfg.MaxTTL
	}
	at := now.Add(lifetime)
	return &at
}

func (g *Gate) hashPasscode(op string, code *string) (*string, error) {
	if code == nil {
		return nil, nil
	}
	h, err := g.hasher.Hash(*code)
	if err != nil {
		return nil, invalidArgument(op, err.Error())
	}
	return &h, nil
}
