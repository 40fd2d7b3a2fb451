package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/duckmesh/tabletalk/internal/audit"
)

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []string{}})
		return
	}
	ids, err := deps.Sessions.Sessions(r.Context())
	if err != nil {
		internalError(deps, w, r, "list sessions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	turns, err := deps.Sessions.History(r.Context(), id)
	if err != nil {
		internalError(deps, w, r, "load session history", err)
		return
	}
	if len(turns) == 0 {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session has no turns", false, map[string]any{"session_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "conversation": conversation(turns)})
}

func handleListTurns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Audit == nil {
		writeError(r.Context(), w, http.StatusNotFound, "AUDIT_DISABLED", "turn log is not enabled", false, nil)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	limit := audit.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500", false, nil)
			return
		}
		limit = parsed
	}
	entries, err := deps.Audit.List(r.Context(), id, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "failed to list turn log", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": entries})
}
