package passcode

import (
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"DECISIONLOGR_PASSCODE_MIN_LEN",
		"DECISIONLOGR_PASSCODE_MAX_LEN",
		"DECISIONLOGR_PASSCODE_DIGITS_ONLY",
		"DECISIONLOGR_ARGON2_MEMORY_KIB",
		"DECISIONLOGR_ARGON2_ITERATIONS",
		"DECISIONLOGR_ARGON2_PARALLELISM",
		"DECISIONLOGR_ARGON2_SALT_LEN",
		"DECISIONLOGR_ARGON2_KEY_LEN",
	} {
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("DECISIONLOGR_PASSCODE_MIN_LEN", "6")
	t.Setenv("DECISIONLOGR_PASSCODE_MAX_LEN", "12")
	t.Setenv("DECISIONLOGR_PASSCODE_DIGITS_ONLY", "true")
	t.Setenv("DECISIONLOGR_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("DECISIONLOGR_ARGON2_ITERATIONS", "3")
	t.Setenv("DECISIONLOGR_ARGON2_PARALLELISM", "2")
	t.Setenv("DECISIONLOGR_ARGON2_SALT_LEN", "24")
	t.Setenv("DECISIONLOGR_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Policy.MinLength != 6 || cfg.Policy.MaxLength != 12 || !cfg.Policy.DigitsOnly {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 3 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("DECISIONLOGR_PASSCODE_MIN_LEN", "10")
	t.Setenv("DECISIONLOGR_PASSCODE_MAX_LEN", "5")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected min>max to fail")
	}

	t.Setenv("DECISIONLOGR_PASSCODE_MAX_LEN", "abc")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected non-integer to fail")
	}
}
