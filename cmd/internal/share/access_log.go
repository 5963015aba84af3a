package share

import "time"

// LogAction characterizes one access-log entry.
type LogAction string

const (
	LogViewed            LogAction = "viewed"
	LogConfirmed         LogAction = "confirmed"
	LogAskedQuestion     LogAction = "asked_question"
	LogRequestedChange   LogAction = "requested_change"
	LogPasscodeFailed    LogAction = "passcode_failed"
	LogPasscodeSucceeded LogAction = "passcode_succeeded"
	LogExpiredAttempt    LogAction = "expired_attempt"
	LogRevokedAttempt    LogAction = "revoked_attempt"

	// Validation stopped at the passcode gate; nothing was revealed.
	LogPasscodeRequired LogAction = "passcode_required"
	// A client action outside the token's allowed set.
	LogUnauthorizedAttempt LogAction = "unauthorized_attempt"
)

// AccessLogEntry is one append-only audit record.
// ClientName and ClientEmail are client-supplied and never used for identity.
type AccessLogEntry struct {
	ID           string
	ShareTokenID string
	DecisionID   string
	Action       LogAction
	ClientName   *string
	ClientEmail  *string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// AccessStats aggregates the access log of one token.
type AccessStats struct {
	ShareTokenID string
	Total        int
	ByAction     map[LogAction]int
	FirstAt      *time.Time
	LastAt       *time.Time
}

// Granted reports the number of entries that reflect a successful access.
func (s AccessStats) Granted() int {
	return s.ByAction[LogViewed] + s.ByAction[LogPasscodeSucceeded] +
		s.ByAction[LogConfirmed] + s.ByAction[LogAskedQuestion] + s.ByAction[LogRequestedChange]
}

// Denied reports the number of entries that reflect a rejected attempt.
func (s AccessStats) Denied() int {
	return s.ByAction[LogPasscodeFailed] + s.ByAction[LogExpiredAttempt] +
		s.ByAction[LogRevokedAttempt] + s.ByAction[LogUnauthorizedAttempt]
}
