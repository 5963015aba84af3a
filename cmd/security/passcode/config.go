package passcode

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls which passcodes an owner may set.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, only decimal digits are accepted (PIN-style).
	DigitsOnly bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used for share-link passcodes.
// Cost follows the OWASP minimum for Argon2id (19 MiB, t=2, p=1); passcodes are
// verified on anonymous requests, so the cost is kept lower than for account passwords.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:  4,
			MaxLength:  64,
			DigitsOnly: false,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - DECISIONLOGR_PASSCODE_MIN_LEN
// - DECISIONLOGR_PASSCODE_MAX_LEN
// - DECISIONLOGR_PASSCODE_DIGITS_ONLY (true/false)
// - DECISIONLOGR_ARGON2_MEMORY_KIB
// - DECISIONLOGR_ARGON2_ITERATIONS
// - DECISIONLOGR_ARGON2_PARALLELISM
// - DECISIONLOGR_ARGON2_SALT_LEN
// - DECISIONLOGR_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("DECISIONLOGR_PASSCODE_MIN_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_PASSCODE_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_PASSCODE_MAX_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 256)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_PASSCODE_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_PASSCODE_DIGITS_ONLY"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_PASSCODE_DIGITS_ONLY: %w", err)
		}
		cfg.Policy.DigitsOnly = b
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_PARALLELISM: %w", err)
		}
		p, err := u32ToU8(u)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = p
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_ARGON2_SALT_LEN"); ok {
		u, err := atou32(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_SALT_LEN: %w", err)
		}
		cfg.Params.SaltLength = u
	}

	if v, ok := os.LookupEnv("DECISIONLOGR_ARGON2_KEY_LEN"); ok {
		u, err := atou32(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("DECISIONLOGR_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = u
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"passcode policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid boolean")
	}
	return b, nil
}
