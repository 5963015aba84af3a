package share

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"decisionlogr/cmd/security/passcode"
)

var owner = Actor{UserID: "owner-1"}

// t0 is millisecond-aligned so every store round-trips it exactly.
var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// cheapHasher keeps argon2 fast in tests.
func cheapHasher() passcode.Config {
	cfg := passcode.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(t *testing.T, opts ...Option) (*Gate, *MemoryStore, *fakeClock) {
	t.Helper()
	st := NewMemoryStore()
	g, clk := newTestGateOn(t, st, st, opts...)
	return g, st, clk
}

func newTestGateOn(t *testing.T, tokens TokenStore, logs AccessLogStore, opts ...Option) (*Gate, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	base := []Option{
		WithPasscodeHasher(cheapHasher()),
		WithClock(clk.Now),
		WithLogger(discardLogger()),
	}
	g, err := NewGate(tokens, logs, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g, clk
}

func mustCreate(t *testing.T, g *Gate, in CreateInput) ShareToken {
	t.Helper()
	if in.DecisionID == "" {
		in.DecisionID = "dec-1"
	}
	tok, err := g.CreateToken(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tok
}

func mustLog(t *testing.T, st AccessLogStore, tokenID string) []AccessLogEntry {
	t.Helper()
	entries, err := st.ListByToken(context.Background(), tokenID, 100)
	if err != nil {
		t.Fatalf("list access log: %v", err)
	}
	return entries
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
