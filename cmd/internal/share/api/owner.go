package shareapi

import (
	"net/http"
	"strconv"
	"strings"

	"decisionlogr/cmd/internal/share"
)

type ownerHandler func(w http.ResponseWriter, r *http.Request, actor share.Actor)

// owner authenticates the trusted owner backend. The backend authenticates the user
// and forwards the user ID in X-Actor-ID.
func (h *Handler) owner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.ServiceKey == "" {
			writeError(w, http.StatusServiceUnavailable, "owner_api_disabled", "owner API is not configured")
			return
		}
		if !validServiceKey(bearerToken(r), h.cfg.ServiceKey) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid service key")
			return
		}
		actorID := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if actorID == "" || len(actorID) > 128 {
			writeError(w, http.StatusBadRequest, "invalid_request", "X-Actor-ID is required")
			return
		}
		next(w, r, share.Actor{UserID: actorID})
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	var req createTokenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	ttl, ok := ttlFromSeconds(req.TTLSeconds)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "ttl_seconds is out of range")
		return
	}

	tok, err := h.gate.CreateToken(r.Context(), actor, share.CreateInput{
		DecisionID:     req.DecisionID,
		AllowedActions: parseActions(req.AllowedActions),
		ExpiresAt:      req.ExpiresAt,
		TTL:            ttl,
		Passcode:       req.Passcode,
	})
	if err != nil {
		h.writeGateError(w, "shareapi.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(tok, h.now()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	toks, err := h.gate.ListTokens(r.Context(), actor, r.PathValue("decisionID"))
	if err != nil {
		h.writeGateError(w, "shareapi.list", err)
		return
	}
	now := h.now()
	out := tokenListResponse{Tokens: make([]tokenResponse, 0, len(toks))}
	for _, t := range toks {
		out.Tokens = append(out.Tokens, toTokenResponse(t, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	var req regenerateRequest
	if err := decodeOptionalJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	ttl, ok := ttlFromSeconds(req.TTLSeconds)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "ttl_seconds is out of range")
		return
	}

	opts := share.RegenerateOptions{
		Passcode:      req.Passcode,
		ClearPasscode: req.ClearPasscode,
		ExpiresAt:     req.ExpiresAt,
		TTL:           ttl,
	}
	if req.AllowedActions != nil {
		actions := parseActions(*req.AllowedActions)
		opts.AllowedActions = &actions
	}

	tok, err := h.gate.RegenerateToken(r.Context(), actor, r.PathValue("id"), opts)
	if err != nil {
		h.writeGateError(w, "shareapi.regenerate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(tok, h.now()))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	tok, err := h.gate.RevokeToken(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeGateError(w, "shareapi.revoke", err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok, h.now()))
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	var req extendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.ExpiresAt == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expires_at is required")
		return
	}

	tok, err := h.gate.ExtendExpiration(r.Context(), actor, r.PathValue("id"), *req.ExpiresAt)
	if err != nil {
		h.writeGateError(w, "shareapi.extend", err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok, h.now()))
}

func (h *Handler) handleAccessLog(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.gate.AccessLog(r.Context(), actor, r.PathValue("id"), limit)
	if err != nil {
		h.writeGateError(w, "shareapi.access_log", err)
		return
	}
	out := accessLogResponse{Entries: make([]logEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, toLogEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAccessStats(w http.ResponseWriter, r *http.Request, actor share.Actor) {
	stats, err := h.gate.AccessStats(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeGateError(w, "shareapi.access_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}
