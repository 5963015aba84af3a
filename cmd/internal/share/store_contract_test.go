package share

import (
	"context"
	"errors"
	"testing"
	"time"
)

// testStoreContract runs the behavior every Store backend must share.
func testStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	newTok := func(t *testing.T, decisionID string, created time.Time) ShareToken {
		t.Helper()
		id, err := newULID(created)
		if err != nil {
			t.Fatalf("ulid: %v", err)
		}
		raw, err := newOpaqueToken(32)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		return ShareToken{
			ID:             id,
			DecisionID:     decisionID,
			Token:          raw,
			AllowedActions: []ClientAction{ActionAskQuestion, ActionConfirmChoice},
			CreatedAt:      created,
			CreatedBy:      strPtr("owner-1"),
		}
	}

	t.Run("insert and find", func(t *testing.T) {
		st := open(t)
		tok := newTok(t, "dec-1", t0)
		tok.ExpiresAt = timePtr(t0.Add(time.Hour))
		tok.PasscodeHash = strPtr("$argon2id$fake")
		if _, err := st.Insert(ctx, tok); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := st.FindByToken(ctx, tok.Token)
		if err != nil {
			t.Fatalf("find by token: %v", err)
		}
		if got.ID != tok.ID || got.DecisionID != "dec-1" {
			t.Fatalf("unexpected token: %+v", got)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*tok.ExpiresAt) {
			t.Fatalf("expires_at mismatch: %v", got.ExpiresAt)
		}
		if !got.CreatedAt.Equal(t0) {
			t.Fatalf("created_at mismatch: %v", got.CreatedAt)
		}
		if got.PasscodeHash == nil || *got.PasscodeHash != "$argon2id$fake" {
			t.Fatalf("passcode hash mismatch")
		}
		if len(got.AllowedActions) != 2 || !got.Allows(ActionAskQuestion) || !got.Allows(ActionConfirmChoice) {
			t.Fatalf("allowed actions mismatch: %v", got.AllowedActions)
		}

		byID, err := st.FindByID(ctx, tok.ID)
		if err != nil {
			t.Fatalf("find by id: %v", err)
		}
		if byID.Token != tok.Token {
			t.Fatalf("find by id returned another token")
		}

		if _, err := st.FindByToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := st.FindByID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate token string conflicts", func(t *testing.T) {
		st := open(t)
		a := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
		b := newTok(t, "dec-1", t0)
		b.Token = a.Token
		if _, err := st.Insert(ctx, b); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("revoke keeps the first mark", func(t *testing.T) {
		st := open(t)
		tok := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, tok); err != nil {
			t.Fatalf("insert: %v", err)
		}

		first, err := st.Update(ctx, tok.ID, TokenPatch{Revoke: &RevokeMark{At: t0.Add(time.Minute), By: strPtr("a")}})
		if err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if !first.Revoked || first.RevokedAt == nil || !first.RevokedAt.Equal(t0.Add(time.Minute)) {
			t.Fatalf("unexpected revoke state: %+v", first)
		}

		second, err := st.Update(ctx, tok.ID, TokenPatch{Revoke: &RevokeMark{At: t0.Add(time.Hour), By: strPtr("b")}})
		if err != nil {
			t.Fatalf("second revoke: %v", err)
		}
		if !second.RevokedAt.Equal(t0.Add(time.Minute)) || second.RevokedBy == nil || *second.RevokedBy != "a" {
			t.Fatalf("second revoke must not overwrite the first: %+v", second)
		}

		if _, err := st.Update(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", TokenPatch{ExpiresAt: timePtr(t0)}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update expiry", func(t *testing.T) {
		st := open(t)
		tok := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, tok); err != nil {
			t.Fatalf("insert: %v", err)
		}
		at := t0.Add(48 * time.Hour)
		got, err := st.Update(ctx, tok.ID, TokenPatch{ExpiresAt: &at, AsOf: t0})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(at) || got.Revoked {
			t.Fatalf("unexpected token after update: %+v", got)
		}
	})

	t.Run("expiry only moves forward on a live token", func(t *testing.T) {
		st := open(t)
		tok := newTok(t, "dec-1", t0)
		tok.ExpiresAt = timePtr(t0.Add(3 * time.Hour))
		if _, err := st.Insert(ctx, tok); err != nil {
			t.Fatalf("insert: %v", err)
		}

		assertExpiry := func(t *testing.T, want time.Time) {
			t.Helper()
			got, err := st.FindByID(ctx, tok.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.ExpiresAt == nil || !got.ExpiresAt.Equal(want) {
				t.Fatalf("expires_at=%v want=%v", got.ExpiresAt, want)
			}
		}

		// A slower caller that read the old expiry must not pull it back.
		rejected := []struct {
			name string
			at   time.Time
			asOf time.Time
		}{
			{name: "earlier", at: t0.Add(2 * time.Hour), asOf: t0},
			{name: "equal", at: t0.Add(3 * time.Hour), asOf: t0},
			{name: "not after as-of", at: t0.Add(4 * time.Hour), asOf: t0.Add(5 * time.Hour)},
			{name: "lapsed", at: t0.Add(6 * time.Hour), asOf: t0.Add(3 * time.Hour)},
		}
		for _, tc := range rejected {
			at := tc.at
			if _, err := st.Update(ctx, tok.ID, TokenPatch{ExpiresAt: &at, AsOf: tc.asOf}); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
			}
			assertExpiry(t, t0.Add(3*time.Hour))
		}

		later := t0.Add(4 * time.Hour)
		if _, err := st.Update(ctx, tok.ID, TokenPatch{ExpiresAt: &later, AsOf: t0.Add(time.Hour)}); err != nil {
			t.Fatalf("forward extension: %v", err)
		}
		assertExpiry(t, later)

		if _, err := st.Update(ctx, tok.ID, TokenPatch{Revoke: &RevokeMark{At: t0.Add(time.Hour)}}); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		revived := t0.Add(10 * time.Hour)
		if _, err := st.Update(ctx, tok.ID, TokenPatch{ExpiresAt: &revived, AsOf: t0.Add(time.Hour)}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("extending a revoked token: expected ErrInvalidArgument, got %v", err)
		}
		assertExpiry(t, later)
	})

	t.Run("rotate an already revoked token", func(t *testing.T) {
		st := open(t)
		old := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, old); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := st.Update(ctx, old.ID, TokenPatch{Revoke: &RevokeMark{At: t0.Add(time.Minute), By: strPtr("a")}}); err != nil {
			t.Fatalf("revoke: %v", err)
		}

		next := newTok(t, "dec-1", t0.Add(time.Hour))
		revoked, _, err := st.Rotate(ctx, RotateRecord{
			OldID: old.ID,
			Mark:  RevokeMark{At: t0.Add(time.Hour), By: strPtr("b")},
			New:   next,
		})
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(t0.Add(time.Minute)) || revoked.RevokedBy == nil || *revoked.RevokedBy != "a" {
			t.Fatalf("rotate must keep the first revoke mark: %+v", revoked)
		}
		if revoked.ReplacedBy == nil || *revoked.ReplacedBy != next.ID {
			t.Fatalf("replaced_by not set: %+v", revoked)
		}

		got, err := st.FindByID(ctx, old.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !got.RevokedAt.Equal(t0.Add(time.Minute)) || got.ReplacedBy == nil || *got.ReplacedBy != next.ID {
			t.Fatalf("stored old token mismatch: %+v", got)
		}
	})

	t.Run("rotate", func(t *testing.T) {
		st := open(t)
		old := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, old); err != nil {
			t.Fatalf("insert: %v", err)
		}
		next := newTok(t, "dec-1", t0.Add(time.Second))

		revoked, created, err := st.Rotate(ctx, RotateRecord{
			OldID: old.ID,
			Mark:  RevokeMark{At: t0.Add(time.Second), By: strPtr("owner-1")},
			New:   next,
		})
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if !revoked.Revoked || revoked.ReplacedBy == nil || *revoked.ReplacedBy != next.ID {
			t.Fatalf("old token not revoked and linked: %+v", revoked)
		}
		if created.ID != next.ID || created.Revoked {
			t.Fatalf("unexpected created token: %+v", created)
		}
		got, err := st.FindByToken(ctx, old.Token)
		if err != nil || !got.Revoked {
			t.Fatalf("old token should read back revoked: %+v %v", got, err)
		}
		if _, err := st.FindByToken(ctx, next.Token); err != nil {
			t.Fatalf("new token should be findable: %v", err)
		}

		orphan := newTok(t, "dec-1", t0)
		if _, _, err := st.Rotate(ctx, RotateRecord{OldID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Mark: RevokeMark{At: t0}, New: orphan}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := st.FindByToken(ctx, orphan.Token); !errors.Is(err, ErrNotFound) {
			t.Fatalf("failed rotate must not insert the new token, got %v", err)
		}
	})

	t.Run("list by decision newest first", func(t *testing.T) {
		st := open(t)
		var ids []string
		for i := range 3 {
			tok := newTok(t, "dec-list", t0.Add(time.Duration(i)*time.Minute))
			if _, err := st.Insert(ctx, tok); err != nil {
				t.Fatalf("insert: %v", err)
			}
			ids = append(ids, tok.ID)
		}
		if _, err := st.Insert(ctx, newTok(t, "dec-other", t0)); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := st.ListByDecision(ctx, "dec-list")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 tokens, got %d", len(got))
		}
		for i, want := range []string{ids[2], ids[1], ids[0]} {
			if got[i].ID != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ID)
			}
		}

		empty, err := st.ListByDecision(ctx, "dec-none")
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty list, got %v %v", empty, err)
		}
	})

	t.Run("access log", func(t *testing.T) {
		st := open(t)
		tok := newTok(t, "dec-1", t0)
		if _, err := st.Insert(ctx, tok); err != nil {
			t.Fatalf("insert: %v", err)
		}

		actions := []LogAction{LogPasscodeRequired, LogPasscodeFailed, LogPasscodeSucceeded, LogConfirmed}
		for i, a := range actions {
			at := t0.Add(time.Duration(i) * time.Second)
			id, _ := newULID(at)
			_, err := st.Append(ctx, AccessLogEntry{
				ID:           id,
				ShareTokenID: tok.ID,
				DecisionID:   tok.DecisionID,
				Action:       a,
				ClientName:   strPtr("Client"),
				Metadata:     map[string]any{"seq": "x"},
				CreatedAt:    at,
			})
			if err != nil {
				t.Fatalf("append %s: %v", a, err)
			}
		}

		page, err := st.ListByToken(ctx, tok.ID, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) != 2 || page[0].Action != LogConfirmed || page[1].Action != LogPasscodeSucceeded {
			t.Fatalf("expected newest two entries, got %+v", page)
		}
		if page[0].ClientName == nil || *page[0].ClientName != "Client" || page[0].ClientEmail != nil {
			t.Fatalf("client fields mismatch: %+v", page[0])
		}
		if page[0].Metadata["seq"] != "x" {
			t.Fatalf("metadata mismatch: %v", page[0].Metadata)
		}

		stats, err := st.Stats(ctx, tok.ID)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Total != 4 || stats.ByAction[LogPasscodeFailed] != 1 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		if stats.FirstAt == nil || !stats.FirstAt.Equal(t0) || stats.LastAt == nil || !stats.LastAt.Equal(t0.Add(3*time.Second)) {
			t.Fatalf("unexpected stats window: %v %v", stats.FirstAt, stats.LastAt)
		}
		if stats.Granted() != 2 || stats.Denied() != 1 {
			t.Fatalf("granted/denied: %d/%d", stats.Granted(), stats.Denied())
		}

		none, err := st.Stats(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		if err != nil || none.Total != 0 || none.FirstAt != nil {
			t.Fatalf("expected empty stats, got %+v %v", none, err)
		}
	})
}
