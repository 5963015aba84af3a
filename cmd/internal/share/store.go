package share

import (
	"context"
	"time"
)

// TokenPatch is a partial update of a token. Nil fields are left unchanged.
//
// ExpiresAt only moves expiry forward on a live token: the store applies the patch
// only if, at AsOf, the token is not revoked, has not lapsed, and ExpiresAt is later
// than both AsOf and the stored expiry. The check and the write are one atomic step.
// When the condition fails nothing changes and the store returns ErrInvalidArgument.
type TokenPatch struct {
	Revoke    *RevokeMark
	ExpiresAt *time.Time
	AsOf      time.Time
}

// expiryApplies reports whether p's expiry may be written over t.
func expiryApplies(t ShareToken, p TokenPatch) bool {
	if p.ExpiresAt == nil {
		return true
	}
	if t.Revoked || !p.ExpiresAt.After(p.AsOf) {
		return false
	}
	if t.ExpiresAt == nil {
		return true
	}
	return t.ExpiresAt.After(p.AsOf) && p.ExpiresAt.After(*t.ExpiresAt)
}

// RevokeMark revokes a token. Revoking twice keeps the first RevokedAt.
type RevokeMark struct {
	At time.Time
	By *string
}

// RotateRecord revokes OldID and inserts New as one atomic step.
type RotateRecord struct {
	OldID string
	Mark  RevokeMark
	New   ShareToken
}

// TokenStore is the persistence boundary for share tokens.
// Lookups that match nothing return ErrNotFound.
type TokenStore interface {
	FindByToken(ctx context.Context, token string) (ShareToken, error)
	FindByID(ctx context.Context, id string) (ShareToken, error)
	ListByDecision(ctx context.Context, decisionID string) ([]ShareToken, error)
	Insert(ctx context.Context, tok ShareToken) (ShareToken, error)
	Update(ctx context.Context, id string, patch TokenPatch) (ShareToken, error)
	// Rotate must leave no observable state in which the old token is still usable
	// while the new one exists, or the new one is missing while the old one is revoked.
	Rotate(ctx context.Context, in RotateRecord) (revoked ShareToken, created ShareToken, err error)
}

// AccessLogStore persists access attempts as an append-only audit log.
type AccessLogStore interface {
	Append(ctx context.Context, e AccessLogEntry) (AccessLogEntry, error)
	// ListByToken returns the newest entries first.
	ListByToken(ctx context.Context, tokenID string, limit int) ([]AccessLogEntry, error)
	Stats(ctx context.Context, tokenID string) (AccessStats, error)
}

// Store is implemented by backends that hold both tokens and the access log.
type Store interface {
	TokenStore
	AccessLogStore
	Close() error
}
