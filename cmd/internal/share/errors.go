package share

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Typed errors below unwrap to one of these.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("share token not found")
	ErrConflict           = errors.New("share token conflict")
	ErrInvalidToken       = errors.New("share token not active")
	ErrPasscodeMismatch   = errors.New("passcode mismatch")
	ErrUnauthorizedAction = errors.New("action not authorized")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; it never includes secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func invalidArgument(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidArgument, Msg: msg}
}

// NotFoundError reports that a token string or id matched nothing.
// Clients must not be able to tell it apart from InvalidTokenError.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidTokenError reports a revoked or expired token. Reason is for internal logging only.
type InvalidTokenError struct {
	Op     string
	Reason Reason
}

func (e InvalidTokenError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidToken, e.Reason)
}

func (e InvalidTokenError) Unwrap() error { return ErrInvalidToken }

// UnauthorizedActionError reports a client action that was denied.
type UnauthorizedActionError struct {
	Op     string
	Action string
	Reason Reason
}

func (e UnauthorizedActionError) Error() string {
	return fmt.Sprintf("%s: %v: %s (%s)", e.Op, ErrUnauthorizedAction, e.Action, e.Reason)
}

func (e UnauthorizedActionError) Unwrap() error { return ErrUnauthorizedAction }

// PasscodeMismatchError reports a wrong passcode.
type PasscodeMismatchError struct {
	Op string
}

func (e PasscodeMismatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrPasscodeMismatch)
}

func (e PasscodeMismatchError) Unwrap() error { return ErrPasscodeMismatch }

// StoreUnavailableError is the only retryable failure the gate surfaces.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrStoreUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e StoreUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStoreUnavailable}
	}
	return []error{ErrStoreUnavailable, e.Err}
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err represents ErrInvalidArgument.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsInvalidToken reports whether err represents a revoked or expired token.
func IsInvalidToken(err error) bool { return errors.Is(err, ErrInvalidToken) }

// IsStoreUnavailable reports whether err is a transient store failure.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool { return IsStoreUnavailable(err) }
