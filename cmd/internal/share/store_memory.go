package share

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a dev-only Store used when no database is configured, and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*ShareToken
	byToken map[string]string // token -> id
	logs    map[string][]AccessLogEntry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*ShareToken),
		byToken: make(map[string]string),
		logs:    make(map[string][]AccessLogEntry),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) FindByToken(ctx context.Context, token string) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return ShareToken{}, ErrNotFound
	}
	return cloneToken(*s.byID[id]), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ShareToken{}, ErrNotFound
	}
	return cloneToken(*t), nil
}

func (s *MemoryStore) ListByDecision(ctx context.Context, decisionID string) ([]ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ShareToken, 0)
	for _, t := range s.byID {
		if t.DecisionID == decisionID {
			out = append(out, cloneToken(*t))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, tok ShareToken) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	if err := checkInsertable(tok); err != nil {
		return ShareToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertLocked(tok); err != nil {
		return ShareToken{}, err
	}
	return cloneToken(tok), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch TokenPatch) (ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ShareToken{}, ErrNotFound
	}
	if !expiryApplies(*t, patch) {
		return ShareToken{}, ErrInvalidArgument
	}
	applyPatch(t, patch)
	return cloneToken(*t), nil
}

func (s *MemoryStore) Rotate(ctx context.Context, in RotateRecord) (ShareToken, ShareToken, error) {
	if err := ctx.Err(); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	if err := checkInsertable(in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[in.OldID]
	if !ok {
		return ShareToken{}, ShareToken{}, ErrNotFound
	}
	if err := s.insertLocked(in.New); err != nil {
		return ShareToken{}, ShareToken{}, err
	}
	applyPatch(old, TokenPatch{Revoke: &in.Mark})
	newID := in.New.ID
	old.ReplacedBy = &newID
	return cloneToken(*old), cloneToken(in.New), nil
}

func (s *MemoryStore) insertLocked(tok ShareToken) error {
	if _, dup := s.byID[tok.ID]; dup {
		return ErrConflict
	}
	if _, dup := s.byToken[tok.Token]; dup {
		return ErrConflict
	}
	c := cloneToken(tok)
	s.byID[tok.ID] = &c
	s.byToken[tok.Token] = tok.ID
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, e AccessLogEntry) (AccessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return AccessLogEntry{}, err
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.ShareTokenID) == "" || e.Action == "" {
		return AccessLogEntry{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[e.ShareTokenID] = append(s.logs[e.ShareTokenID], cloneEntry(e))
	return cloneEntry(e), nil
}

func (s *MemoryStore) ListByToken(ctx context.Context, tokenID string, limit int) ([]AccessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.logs[tokenID]
	out := make([]AccessLogEntry, 0, min(len(all), max(limit, 0)))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, cloneEntry(all[i]))
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context, tokenID string) (AccessStats, error) {
	if err := ctx.Err(); err != nil {
		return AccessStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := AccessStats{ShareTokenID: tokenID, ByAction: make(map[LogAction]int)}
	for _, e := range s.logs[tokenID] {
		st.add(e.Action, 1, e.CreatedAt, e.CreatedAt)
	}
	return st, nil
}

func checkInsertable(tok ShareToken) error {
	if strings.TrimSpace(tok.ID) == "" || strings.TrimSpace(tok.Token) == "" || strings.TrimSpace(tok.DecisionID) == "" {
		return ErrInvalidArgument
	}
	return nil
}

// applyPatch mutates t in place. A second revoke keeps the original mark.
func applyPatch(t *ShareToken, p TokenPatch) {
	if p.Revoke != nil && !t.Revoked {
		at := p.Revoke.At
		t.Revoked = true
		t.RevokedAt = &at
		t.RevokedBy = copyStr(p.Revoke.By)
	}
	if p.ExpiresAt != nil {
		at := *p.ExpiresAt
		t.ExpiresAt = &at
	}
}

func sortNewestFirst(ts []ShareToken) {
	slices.SortFunc(ts, func(a, b ShareToken) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func cloneToken(t ShareToken) ShareToken {
	t.ExpiresAt = copyTime(t.ExpiresAt)
	t.PasscodeHash = copyStr(t.PasscodeHash)
	t.AllowedActions = slices.Clone(t.AllowedActions)
	if t.AllowedActions == nil {
		t.AllowedActions = []ClientAction{}
	}
	t.RevokedAt = copyTime(t.RevokedAt)
	t.RevokedBy = copyStr(t.RevokedBy)
	t.ReplacedBy = copyStr(t.ReplacedBy)
	t.CreatedBy = copyStr(t.CreatedBy)
	return t
}

func cloneEntry(e AccessLogEntry) AccessLogEntry {
	e.ClientName = copyStr(e.ClientName)
	e.ClientEmail = copyStr(e.ClientEmail)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
