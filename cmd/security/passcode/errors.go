package passcode

import "errors"

// Public, stable errors for callers.
var (
	ErrPasscodeTooShort = errors.New("passcode too short")
	ErrPasscodeTooLong  = errors.New("passcode too long")
	ErrPasscodeBlank    = errors.New("passcode blank")
	ErrPasscodeDigits   = errors.New("passcode must be digits only")
	ErrInvalidHash      = errors.New("invalid passcode hash")
)
