package token

import "testing"

func TestHashClientIPHex_Modes(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	plain := HashClientIPHex("203.0.113.7")
	if plain != HashSHA256Hex("203.0.113.7") {
		t.Fatalf("expected sha256 fallback without key")
	}
	if len(plain) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(plain))
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	keyed := HashClientIPHex("203.0.113.7")
	if keyed == plain {
		t.Fatalf("expected HMAC output to differ from plain sha256")
	}
	if keyed != HashHMACSHA256Hex("203.0.113.7", []byte("0123456789abcdef0123456789abcdef")) {
		t.Fatalf("unexpected HMAC digest")
	}

	if got := HashClientIPHex("  "); got != "" {
		t.Fatalf("expected empty hash for blank ip, got %q", got)
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("HMACKeyFromEnv: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 key bytes, got %d", len(key))
	}
	if !HMACEnabled() {
		t.Fatalf("expected HMACEnabled")
	}
}

func TestEqualSecret(t *testing.T) {
	t.Parallel()

	cases := []struct {
		got, want string
		ok        bool
	}{
		{got: "s3cret", want: "s3cret", ok: true},
		{got: "s3cret", want: "s3cret-longer", ok: false},
		{got: "", want: "", ok: false},
		{got: "x", want: "", ok: false},
	}
	for _, tc := range cases {
		if got := EqualSecret(tc.got, tc.want); got != tc.ok {
			t.Fatalf("EqualSecret(%q,%q)=%v want %v", tc.got, tc.want, got, tc.ok)
		}
	}
}
