package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// WorkspaceIDKey is the context key for the workspace session id.
const WorkspaceIDKey contextKey = "workspace_id"

// WorkspaceExtractor pulls the session id from the X-Workspace-Id header or
// the workspace query parameter. An empty id is allowed; the session
// handlers decide whether one is required.
func WorkspaceExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Workspace-Id"))
		if id == "" {
			id = strings.TrimSpace(r.URL.Query().Get("workspace"))
		}

		ctx := context.WithValue(r.Context(), WorkspaceIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetWorkspaceID retrieves the workspace id from the request context.
func GetWorkspaceID(ctx context.Context) string {
	if v, ok := ctx.Value(WorkspaceIDKey).(string); ok {
		return v
	}
	return ""
}
