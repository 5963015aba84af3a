package shareapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"decisionlogr/cmd/internal/share"
	"decisionlogr/cmd/security/token"
)

// Handler exposes the share gate over HTTP: anonymous /share routes for clients and
// service-key protected /api routes for the owner backend.
type Handler struct {
	log  *slog.Logger
	cfg  Config
	gate *share.Gate
	now  func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides time.Now for token state rendering.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs a share API Handler.
func NewHandler(log *slog.Logger, gate *share.Gate, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if gate == nil {
		return nil, errors.New("shareapi: nil gate")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:  log,
		cfg:  cfg.normalized(),
		gate: gate,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires share routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /share/{token}", h.handleView)
	mux.HandleFunc("POST /share/{token}/passcode", h.handlePasscode)
	mux.HandleFunc("POST /share/{token}/actions", h.handleAction)

	mux.HandleFunc("POST /api/share-tokens", h.owner(h.handleCreate))
	mux.HandleFunc("GET /api/decisions/{decisionID}/share-tokens", h.owner(h.handleList))
	mux.HandleFunc("POST /api/share-tokens/{id}/regenerate", h.owner(h.handleRegenerate))
	mux.HandleFunc("POST /api/share-tokens/{id}/revoke", h.owner(h.handleRevoke))
	mux.HandleFunc("POST /api/share-tokens/{id}/extend", h.owner(h.handleExtend))
	mux.HandleFunc("GET /api/share-tokens/{id}/access-log", h.owner(h.handleAccessLog))
	mux.HandleFunc("GET /api/share-tokens/{id}/access-stats", h.owner(h.handleAccessStats))
}

// ---- helpers ----

func (h *Handler) clientInfo(r *http.Request, name, email *string) share.ClientInfo {
	c := share.ClientInfo{
		Name:      name,
		Email:     email,
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		c.IP = ip.String()
	}
	return c
}

// writeGateError maps gate errors to responses for the owner API.
func (h *Handler) writeGateError(w http.ResponseWriter, op string, err error) {
	var opErr share.OpError
	switch {
	case share.IsInvalidArgument(err):
		msg := "invalid request"
		if errors.As(err, &opErr) && opErr.Msg != "" {
			msg = opErr.Msg
		}
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
	case share.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "share token not found")
	case errors.Is(err, share.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "share token conflict")
	case share.IsRetryable(err):
		h.log.Warn(op+".store_unavailable", "err", err)
		writeTryAgain(w, h.cfg.RetryAfter)
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

func validServiceKey(got, want string) bool {
	return token.EqualSecret(got, want)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
