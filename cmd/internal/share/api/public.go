package shareapi

import (
	"net/http"

	"decisionlogr/cmd/internal/share"
)

// Client-facing failures never say why a link stopped working.
func writeUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, shareStateResponse{State: "unavailable", Message: unavailableMessage})
}

// writePublicError maps gate errors for anonymous callers.
func (h *Handler) writePublicError(w http.ResponseWriter, op string, err error) {
	switch {
	case share.IsRetryable(err):
		h.log.Warn(op+".store_unavailable", "err", err)
		writeTryAgain(w, h.cfg.RetryAfter)
	case share.IsNotFound(err), share.IsInvalidArgument(err), share.IsInvalidToken(err):
		writeUnavailable(w)
	default:
		h.log.Error(op+".fail", "err", err)
		writeUnavailable(w)
	}
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	res, err := h.gate.ValidateToken(r.Context(), share.ValidateInput{
		Token:  r.PathValue("token"),
		Client: h.clientInfo(r, nil, nil),
	})
	if err != nil {
		h.writePublicError(w, "share.view", err)
		return
	}

	switch res.Status {
	case share.StatusValid:
		writeJSON(w, http.StatusOK, shareStateResponse{
			State:          "valid",
			DecisionID:     res.DecisionID,
			AllowedActions: actionNames(res.AllowedActions),
		})
	case share.StatusRequiresPasscode:
		writeJSON(w, http.StatusOK, shareStateResponse{State: "passcode_required"})
	default:
		writeUnavailable(w)
	}
}

func (h *Handler) handlePasscode(w http.ResponseWriter, r *http.Request) {
	var req passcodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.gate.VerifyPasscode(r.Context(), share.PasscodeInput{
		Token:    r.PathValue("token"),
		Passcode: req.Passcode,
		Client:   h.clientInfo(r, req.ClientName, req.ClientEmail),
	})
	if err != nil {
		h.writePublicError(w, "share.passcode", err)
		return
	}

	switch {
	case res.Valid:
		writeJSON(w, http.StatusOK, shareStateResponse{
			State:          "valid",
			DecisionID:     res.DecisionID,
			AllowedActions: actionNames(res.AllowedActions),
		})
	case res.Reason == share.ReasonPasscodeMismatch:
		writeError(w, http.StatusUnauthorized, "passcode_invalid", "incorrect passcode")
	default:
		writeUnavailable(w)
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.gate.AuthorizeAction(r.Context(), share.AuthorizeInput{
		Token:    r.PathValue("token"),
		Action:   req.Action,
		Passcode: req.Passcode,
		Client:   h.clientInfo(r, req.ClientName, req.ClientEmail),
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writePublicError(w, "share.action", err)
		return
	}

	switch {
	case res.Granted:
		writeJSON(w, http.StatusOK, actionResponse{Granted: true, DecisionID: res.DecisionID})
	case res.Reason == share.ReasonPasscodeMismatch:
		writeJSON(w, http.StatusUnauthorized, actionResponse{Error: &apiError{Code: "passcode_invalid", Message: "incorrect passcode"}})
	case res.Reason == share.ReasonActionNotAllowed:
		writeJSON(w, http.StatusForbidden, actionResponse{Error: &apiError{Code: "action_not_allowed", Message: "this link does not allow that action"}})
	default:
		writeUnavailable(w)
	}
}
