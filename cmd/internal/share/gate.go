package share

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"decisionlogr/cmd/security/passcode"
	"decisionlogr/cmd/security/token"
)

// Status is the client-facing outcome of a validation.
type Status string

const (
	StatusValid            Status = "valid"
	StatusRequiresPasscode Status = "requires_passcode"
	StatusInvalid          Status = "invalid"
)

// Reason explains a denial. It is for internal logging; clients see a generic message.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonRevoked          Reason = "revoked"
	ReasonExpired          Reason = "expired"
	ReasonPasscodeMismatch Reason = "passcode_mismatch"
	ReasonActionNotAllowed Reason = "action_not_allowed"
)

func (r Reason) logAction() LogAction {
	if r == ReasonRevoked {
		return LogRevokedAttempt
	}
	return LogExpiredAttempt
}

// PasscodeHasher hashes and verifies passcodes. passcode.Config implements it.
type PasscodeHasher interface {
	Hash(code string) (string, error)
	Verify(encodedHash, code string) (bool, error)
}

// ClientInfo describes the anonymous caller. Name and Email are self-reported.
type ClientInfo struct {
	Name      *string
	Email     *string
	IP        string
	UserAgent string
}

// ValidateInput is the input of ValidateToken.
type ValidateInput struct {
	Token  string
	Client ClientInfo
}

// ValidationResult is the outcome of ValidateToken. DecisionID and AllowedActions are
// only set when Status is StatusValid.
type ValidationResult struct {
	Status         Status
	Reason         Reason
	TokenID        string
	DecisionID     string
	AllowedActions []ClientAction
}

// Err returns the typed error matching an invalid result, or nil.
func (r ValidationResult) Err() error {
	if r.Status != StatusInvalid {
		return nil
	}
	return InvalidTokenError{Op: "share.ValidateToken", Reason: r.Reason}
}

// PasscodeInput is the input of VerifyPasscode.
type PasscodeInput struct {
	Token    string
	Passcode string
	Client   ClientInfo
}

// PasscodeResult is the outcome of VerifyPasscode.
type PasscodeResult struct {
	Valid          bool
	Reason         Reason
	TokenID        string
	DecisionID     string
	AllowedActions []ClientAction
}

// Err returns the typed error matching a failed verification, or nil.
func (r PasscodeResult) Err() error {
	const op = "share.VerifyPasscode"
	switch {
	case r.Valid:
		return nil
	case r.Reason == ReasonPasscodeMismatch:
		return PasscodeMismatchError{Op: op}
	default:
		return InvalidTokenError{Op: op, Reason: r.Reason}
	}
}

// AuthorizeInput is the input of AuthorizeAction. Passcode must be presented again for
// passcode-protected tokens. Metadata is recorded with the log entry.
type AuthorizeInput struct {
	Token    string
	Action   string
	Passcode *string
	Client   ClientInfo
	Metadata map[string]any
}

// AuthorizeResult is the outcome of AuthorizeAction.
type AuthorizeResult struct {
	Granted    bool
	Reason     Reason
	Action     ClientAction
	TokenID    string
	DecisionID string
}

// Err returns the typed error matching a denial, or nil.
func (r AuthorizeResult) Err() error {
	const op = "share.AuthorizeAction"
	switch {
	case r.Granted:
		return nil
	case r.Reason == ReasonRevoked || r.Reason == ReasonExpired:
		return InvalidTokenError{Op: op, Reason: r.Reason}
	default:
		return UnauthorizedActionError{Op: op, Action: string(r.Action), Reason: r.Reason}
	}
}

// Gate is the share access gate. It is safe for concurrent use and keeps no state
// between calls.
type Gate struct {
	tokens TokenStore
	logs   AccessLogStore

	cfg     Config
	hasher  PasscodeHasher
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
	hashIP  func(string) string
}

// Option configures the Gate.
type Option func(*Gate) error

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(g *Gate) error {
		g.cfg = cfg.normalized()
		return nil
	}
}

// WithPasscodeHasher overrides the default Argon2id passcode hasher.
func WithPasscodeHasher(h PasscodeHasher) Option {
	return func(g *Gate) error {
		if h == nil {
			return ErrInvalidArgument
		}
		g.hasher = h
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) error {
		if log != nil {
			g.log = log
		}
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) error {
		g.metrics = m
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) error {
		if now == nil {
			return ErrInvalidArgument
		}
		g.now = func() time.Time { return now().UTC() }
		return nil
	}
}

// NewGate constructs a Gate with safe defaults.
func NewGate(tokens TokenStore, logs AccessLogStore, opts ...Option) (*Gate, error) {
	if tokens == nil || logs == nil {
		return nil, ErrInvalidArgument
	}
	g := &Gate{
		tokens: tokens,
		logs:   logs,
		cfg:    DefaultConfig(),
		hasher: passcode.DefaultConfig(),
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		hashIP: token.HashClientIPHex,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ValidateToken resolves a token string presented in a share link.
//
// An unknown token yields NotFoundError. Revoked or expired tokens yield a
// StatusInvalid result; passcode-protected tokens yield StatusRequiresPasscode without
// revealing the decision. Each call that resolves a token appends exactly one log entry.
func (g *Gate) ValidateToken(ctx context.Context, in ValidateInput) (ValidationResult, error) {
	const op = "share.ValidateToken"

	tok, err := g.lookup(ctx, op, in.Token)
	if err != nil {
		return ValidationResult{}, err
	}

	if reason, inactive := g.inactive(tok); inactive {
		g.finish(ctx, op, tok, reason.logAction(), in.Client, nil)
		return ValidationResult{Status: StatusInvalid, Reason: reason, TokenID: tok.ID}, nil
	}

	if tok.RequiresPasscode() {
		g.finish(ctx, op, tok, LogPasscodeRequired, in.Client, nil)
		return ValidationResult{Status: StatusRequiresPasscode, TokenID: tok.ID}, nil
	}

	g.finish(ctx, op, tok, LogViewed, in.Client, nil)
	return ValidationResult{
		Status:         StatusValid,
		TokenID:        tok.ID,
		DecisionID:     tok.DecisionID,
		AllowedActions: slices.Clone(tok.AllowedActions),
	}, nil
}

// VerifyPasscode checks a passcode against a freshly fetched token.
// Revocation and expiry are re-checked first. The submitted passcode is never logged.
func (g *Gate) VerifyPasscode(ctx context.Context, in PasscodeInput) (PasscodeResult, error) {
	const op = "share.VerifyPasscode"

	tok, err := g.lookup(ctx, op, in.Token)
	if err != nil {
		return PasscodeResult{}, err
	}

	if reason, inactive := g.inactive(tok); inactive {
		g.finish(ctx, op, tok, reason.logAction(), in.Client, nil)
		return PasscodeResult{Reason: reason, TokenID: tok.ID}, nil
	}

	if tok.RequiresPasscode() {
		if !g.passcodeMatches(tok, in.Passcode) {
			g.finish(ctx, op, tok, LogPasscodeFailed, in.Client, nil)
			return PasscodeResult{Reason: ReasonPasscodeMismatch, TokenID: tok.ID}, nil
		}
		g.finish(ctx, op, tok, LogPasscodeSucceeded, in.Client, nil)
	} else {
		g.finish(ctx, op, tok, LogViewed, in.Client, nil)
	}

	return PasscodeResult{
		Valid:          true,
		TokenID:        tok.ID,
		DecisionID:     tok.DecisionID,
		AllowedActions: slices.Clone(tok.AllowedActions),
	}, nil
}

// AuthorizeAction decides whether a client mutation may proceed. It fails closed:
// any invalid token, missing or wrong passcode, or action outside the allowed set
// denies the request.
func (g *Gate) AuthorizeAction(ctx context.Context, in AuthorizeInput) (AuthorizeResult, error) {
	const op = "share.AuthorizeAction"

	tok, err := g.lookup(ctx, op, in.Token)
	if err != nil {
		return AuthorizeResult{}, err
	}

	requested := map[string]any{"requested_action": clipString(in.Action, 64)}
	action, known := ParseClientAction(in.Action)
	res := AuthorizeResult{Action: action, TokenID: tok.ID}

	if reason, inactive := g.inactive(tok); inactive {
		g.finish(ctx, op, tok, reason.logAction(), in.Client, requested)
		res.Reason = reason
		return res, nil
	}

	if tok.RequiresPasscode() && (in.Passcode == nil || !g.passcodeMatches(tok, *in.Passcode)) {
		g.finish(ctx, op, tok, LogPasscodeFailed, in.Client, requested)
		res.Reason = ReasonPasscodeMismatch
		return res, nil
	}

	if !known || !tok.Allows(action) {
		g.finish(ctx, op, tok, LogUnauthorizedAttempt, in.Client, requested)
		res.Reason = ReasonActionNotAllowed
		return res, nil
	}

	g.finish(ctx, op, tok, action.logAction(), in.Client, in.Metadata)
	res.Granted = true
	res.DecisionID = tok.DecisionID
	return res, nil
}

// lookup fetches a token by its string. It never logs the token itself.
func (g *Gate) lookup(ctx context.Context, op, raw string) (ShareToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ShareToken{}, invalidArgument(op, "token is required")
	}

	tok, err := storeCall(ctx, g, g.cfg.StoreTimeout, "token.find_by_token", func(ctx context.Context) (ShareToken, error) {
		return g.tokens.FindByToken(ctx, raw)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.metrics.outcome(op, "not_found")
			g.log.Info("share.lookup.not_found", "op", op)
			return ShareToken{}, NotFoundError{Op: op, Resource: "share_token"}
		}
		g.metrics.outcome(op, "store_unavailable")
		g.log.Error("share.lookup.fail", "op", op, "err", err)
		return ShareToken{}, StoreUnavailableError{Op: op, Err: err}
	}
	return tok, nil
}

func (g *Gate) inactive(tok ShareToken) (Reason, bool) {
	switch tok.StateAt(g.now()) {
	case StateRevoked:
		return ReasonRevoked, true
	case StateExpired:
		return ReasonExpired, true
	default:
		return ReasonNone, false
	}
}

// passcodeMatches fails closed on a corrupt stored hash.
func (g *Gate) passcodeMatches(tok ShareToken, code string) bool {
	if !tok.RequiresPasscode() {
		return true
	}
	ok, err := g.hasher.Verify(*tok.PasscodeHash, code)
	if err != nil {
		g.log.Error("share.passcode.verify.fail", "share_token_id", tok.ID, "err", err)
		return false
	}
	return ok
}

func clipString(s string, maxRunes int) string {
	if v := clip(&s, maxRunes); v != nil {
		return *v
	}
	return ""
}
