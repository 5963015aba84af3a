package share

import (
	"slices"
	"strings"
	"time"
)

// ClientAction is a mutation an anonymous client may request through a share link.
type ClientAction string

const (
	ActionConfirmChoice ClientAction = "confirm_choice"
	ActionAskQuestion   ClientAction = "ask_question"
	ActionRequestChange ClientAction = "request_change"
)

var knownActions = []ClientAction{ActionConfirmChoice, ActionAskQuestion, ActionRequestChange}

// ParseClientAction returns the action named by s, if it is known.
func ParseClientAction(s string) (ClientAction, bool) {
	a := ClientAction(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(knownActions, a) {
		return a, true
	}
	return "", false
}

// NormalizeActions validates, de-duplicates and sorts an action set.
// A nil or empty input yields an empty (read-only) set.
func NormalizeActions(in []ClientAction) ([]ClientAction, error) {
	out := make([]ClientAction, 0, len(in))
	for _, raw := range in {
		a, ok := ParseClientAction(string(raw))
		if !ok {
			return nil, invalidArgument("share.NormalizeActions", "unknown action "+string(raw))
		}
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out, nil
}

// logAction maps a granted client action to its access-log action.
func (a ClientAction) logAction() LogAction {
	switch a {
	case ActionConfirmChoice:
		return LogConfirmed
	case ActionAskQuestion:
		return LogAskedQuestion
	case ActionRequestChange:
		return LogRequestedChange
	default:
		return LogUnauthorizedAttempt
	}
}

// ShareToken is a stored share link credential. Tokens are never deleted.
type ShareToken struct {
	ID             string
	DecisionID     string
	Token          string
	ExpiresAt      *time.Time
	PasscodeHash   *string
	AllowedActions []ClientAction
	Revoked        bool
	RevokedAt      *time.Time
	RevokedBy      *string
	ReplacedBy     *string
	CreatedAt      time.Time
	CreatedBy      *string
}

// TokenState is the lifecycle state of a token at a point in time.
type TokenState string

const (
	StateActive  TokenState = "active"
	StateRevoked TokenState = "revoked"
	StateExpired TokenState = "expired"
)

// StateAt evaluates the token at now. Revocation wins over expiry.
func (t ShareToken) StateAt(now time.Time) TokenState {
	if t.Revoked {
		return StateRevoked
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// RequiresPasscode reports whether a passcode hash is set.
func (t ShareToken) RequiresPasscode() bool {
	return t.PasscodeHash != nil && *t.PasscodeHash != ""
}

// Allows reports whether a is in the allowed action set.
func (t ShareToken) Allows(a ClientAction) bool {
	return slices.Contains(t.AllowedActions, a)
}

// lifetime is the configured validity window of the token, or 0 for none.
func (t ShareToken) lifetime() time.Duration {
	if t.ExpiresAt == nil {
		return 0
	}
	d := t.ExpiresAt.Sub(t.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Actor is the authenticated owner on whose behalf a management call runs.
// It is passed explicitly; the package never reads an ambient session.
type Actor struct {
	UserID string
}

func (a Actor) valid() bool { return strings.TrimSpace(a.UserID) != "" }

func (a Actor) ref() *string {
	id := strings.TrimSpace(a.UserID)
	return &id
}
