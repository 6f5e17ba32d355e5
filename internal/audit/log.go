package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes the JSON audit trail line enriched with request and actor
// context. This is the out-of-band record that survives even when the
// durable store is unavailable.
func LogEvent(ctx context.Context, entry Entry) {
	line := map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  entry.Action,
		"entity": entry.EntityType,
	}
	if entry.TenantID != "" {
		line["tenant_id"] = entry.TenantID
	}
	if entry.ActorID != "" {
		line["actor_id"] = entry.ActorID
	} else if p, ok := auth.PrincipalFromContext(ctx); ok {
		line["actor_id"] = p.AccountID
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	if len(entry.Metadata) > 0 {
		line["fields"] = entry.Metadata
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
