package shareapi

import (
	"math"
	"time"

	"decisionlogr/cmd/internal/share"
)

// ---- public (anonymous client) ----

const unavailableMessage = "This link is no longer available"

type shareStateResponse struct {
	State          string   `json:"state"`
	DecisionID     string   `json:"decision_id,omitempty"`
	AllowedActions []string `json:"allowed_actions,omitempty"`
	Message        string   `json:"message,omitempty"`
}

type passcodeRequest struct {
	Passcode    string  `json:"passcode"`
	ClientName  *string `json:"client_name,omitempty"`
	ClientEmail *string `json:"client_email,omitempty"`
}

type actionRequest struct {
	Action      string         `json:"action"`
	Passcode    *string        `json:"passcode,omitempty"`
	ClientName  *string        `json:"client_name,omitempty"`
	ClientEmail *string        `json:"client_email,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type actionResponse struct {
	Granted    bool      `json:"granted"`
	DecisionID string    `json:"decision_id,omitempty"`
	Error      *apiError `json:"error,omitempty"`
}

// ---- owner management ----

type createTokenRequest struct {
	DecisionID     string     `json:"decision_id"`
	AllowedActions []string   `json:"allowed_actions"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TTLSeconds     int64      `json:"ttl_seconds,omitempty"`
	Passcode       *string    `json:"passcode,omitempty"`
}

type regenerateRequest struct {
	AllowedActions *[]string  `json:"allowed_actions,omitempty"`
	Passcode       *string    `json:"passcode,omitempty"`
	ClearPasscode  bool       `json:"clear_passcode,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TTLSeconds     int64      `json:"ttl_seconds,omitempty"`
}

type extendRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

type tokenResponse struct {
	ID             string     `json:"id"`
	DecisionID     string     `json:"decision_id"`
	Token          string     `json:"token"`
	SharePath      string     `json:"share_path"`
	State          string     `json:"state"`
	HasPasscode    bool       `json:"has_passcode"`
	AllowedActions []string   `json:"allowed_actions"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy     *string    `json:"replaced_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      *string    `json:"created_by,omitempty"`
}

type tokenListResponse struct {
	Tokens []tokenResponse `json:"tokens"`
}

type logEntryResponse struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	ClientName  *string        `json:"client_name,omitempty"`
	ClientEmail *string        `json:"client_email,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type accessLogResponse struct {
	Entries []logEntryResponse `json:"entries"`
}

type accessStatsResponse struct {
	ShareTokenID string         `json:"share_token_id"`
	Total        int            `json:"total"`
	Granted      int            `json:"granted"`
	Denied       int            `json:"denied"`
	ByAction     map[string]int `json:"by_action"`
	FirstAt      *time.Time     `json:"first_at,omitempty"`
	LastAt       *time.Time     `json:"last_at,omitempty"`
}

func toTokenResponse(t share.ShareToken, now time.Time) tokenResponse {
	return tokenResponse{
		ID:             t.ID,
		DecisionID:     t.DecisionID,
		Token:          t.Token,
		SharePath:      "/share/" + t.Token,
		State:          string(t.StateAt(now)),
		HasPasscode:    t.RequiresPasscode(),
		AllowedActions: actionNames(t.AllowedActions),
		ExpiresAt:      t.ExpiresAt,
		RevokedAt:      t.RevokedAt,
		ReplacedBy:     t.ReplacedBy,
		CreatedAt:      t.CreatedAt,
		CreatedBy:      t.CreatedBy,
	}
}

func toLogEntryResponse(e share.AccessLogEntry) logEntryResponse {
	return logEntryResponse{
		ID:          e.ID,
		Action:      string(e.Action),
		ClientName:  e.ClientName,
		ClientEmail: e.ClientEmail,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
}

func toStatsResponse(s share.AccessStats) accessStatsResponse {
	by := make(map[string]int, len(s.ByAction))
	for a, n := range s.ByAction {
		by[string(a)] = n
	}
	return accessStatsResponse{
		ShareTokenID: s.ShareTokenID,
		Total:        s.Total,
		Granted:      s.Granted(),
		Denied:       s.Denied(),
		ByAction:     by,
		FirstAt:      s.FirstAt,
		LastAt:       s.LastAt,
	}
}

func actionNames(in []share.ClientAction) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, string(a))
	}
	return out
}

func parseActions(in []string) []share.ClientAction {
	out := make([]share.ClientAction, 0, len(in))
	for _, a := range in {
		out = append(out, share.ClientAction(a))
	}
	return out
}

// maxTTLSeconds is the largest ttl_seconds a time.Duration can hold.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// ttlFromSeconds converts ttl_seconds, rejecting values that would overflow.
func ttlFromSeconds(secs int64) (time.Duration, bool) {
	if secs < 0 || secs > maxTTLSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
