package share

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Contract(t *testing.T) {
	testStoreContract(t, openTestSQLite)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "share.db")

	st, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	g, _ := newTestGateOn(t, st, st)
	tok := mustCreate(t, g, CreateInput{AllowedActions: []ClientAction{ActionConfirmChoice}})
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not re-run applied migrations.
	st, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.FindByToken(ctx, tok.Token)
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if got.ID != tok.ID || !got.Allows(ActionConfirmChoice) {
		t.Fatalf("unexpected token after reopen: %+v", got)
	}
}

func TestSQLiteStore_GateEndToEnd(t *testing.T) {
	st := openTestSQLite(t)
	g, _ := newTestGateOn(t, st, st)
	ctx := context.Background()

	tok := mustCreate(t, g, CreateInput{
		AllowedActions: []ClientAction{ActionAskQuestion},
		Passcode:       strPtr("2468"),
	})

	res, err := g.AuthorizeAction(ctx, AuthorizeInput{Token: tok.Token, Action: "ask_question", Passcode: strPtr("2468")})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !res.Granted {
		t.Fatalf("expected grant, got %+v", res)
	}

	entries := mustLog(t, st, tok.ID)
	if len(entries) != 1 || entries[0].Action != LogAskedQuestion {
		t.Fatalf("expected one asked_question entry, got %+v", entries)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	cases := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{name: "0001_init.sql", want: 1},
		{name: "0120_add_index.sql", want: 120},
		{name: "init.sql", wantErr: true},
		{name: "abc_init.sql", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseMigrationVersion(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %d, %v", tc.name, got, err)
		}
	}
}
