package share

import (
	"context"
	"strings"
)

// Keys the server owns; client-supplied metadata cannot set them.
var reservedMetaKeys = map[string]struct{}{
	"passcode":      {},
	"passcode_hash": {},
	"ip":            {},
	"ip_hash":       {},
	"user_agent":    {},
}

// finish counts the outcome and appends the access-log entry for one gate call.
func (g *Gate) finish(ctx context.Context, op string, tok ShareToken, action LogAction, c ClientInfo, meta map[string]any) {
	g.metrics.outcome(op, string(action))
	g.record(ctx, tok, action, c, meta)
}

// record appends an access-log entry. Failures are logged and counted but never
// returned: the access decision must not depend on the audit write.
func (g *Gate) record(ctx context.Context, tok ShareToken, action LogAction, c ClientInfo, meta map[string]any) {
	now := g.now()
	id, err := newULID(now)
	if err != nil {
		g.metrics.logAppendFailed()
		g.log.Error("share.log.id.fail", "err", err, "action", action, "share_token_id", tok.ID)
		return
	}

	entry := AccessLogEntry{
		ID:           id,
		ShareTokenID: tok.ID,
		DecisionID:   tok.DecisionID,
		Action:       action,
		ClientName:   clip(c.Name, g.cfg.MaxClientFieldLen),
		ClientEmail:  clip(c.Email, g.cfg.MaxClientFieldLen),
		Metadata:     g.metadata(c, meta),
		CreatedAt:    now,
	}

	// The audit write outlives a client that hangs up mid-request.
	_, err = storeCall(context.WithoutCancel(ctx), g, g.cfg.LogTimeout, "access_log.append", func(ctx context.Context) (AccessLogEntry, error) {
		return g.logs.Append(ctx, entry)
	})
	if err != nil {
		g.metrics.logAppendFailed()
		g.log.Error("share.log.append.fail", "err", err, "action", action, "share_token_id", tok.ID)
	}
}

func (g *Gate) metadata(c ClientInfo, extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if _, reserved := reservedMetaKeys[strings.ToLower(key)]; reserved {
			continue
		}
		out[key] = v
	}
	if h := g.hashIP(c.IP); h != "" {
		out["ip_hash"] = h
	}
	if ua := clipString(c.UserAgent, 256); ua != "" {
		out["user_agent"] = ua
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
