package passcode

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks passcode policy. It does not mutate input.
func (c Config) Validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrPasscodeBlank
	}

	// Count characters (runes), not bytes.
	n := utf8.RuneCountInString(code)
	if n < c.Policy.MinLength {
		return ErrPasscodeTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasscodeTooLong
	}

	if c.Policy.DigitsOnly {
		for _, r := range code {
			if !unicode.IsDigit(r) {
				return ErrPasscodeDigits
			}
		}
	}
	return nil
}
