package app

import (
	"errors"

	"decisionlogr/cmd/security/passcode"
	"decisionlogr/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// It validates the same packages that do the hashing, so a misconfigured key
// or passcode policy stops the process instead of degrading silently.
func ValidateSecurityConfig(cfg Config) error {
	if _, err := passcode.FromEnv(); err != nil {
		return errors.Join(errors.New("security policy: invalid passcode hashing config"), err)
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Key length is measured in bytes; the key is used raw.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: DECISIONLOGR_REQUIRE_TOKEN_HMAC=true but DECISIONLOGR_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: DECISIONLOGR_REQUIRE_TOKEN_HMAC=true but DECISIONLOGR_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: DECISIONLOGR_REQUIRE_TOKEN_HMAC=true but client IP hasher is not in HMAC mode")
	}

	return nil
}
