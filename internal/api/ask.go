package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/duckmesh/tabletalk/internal/audit"
	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/pipeline"
	"github.com/duckmesh/tabletalk/internal/session"
)

const noResponse = "No response generated."

type askRequest struct {
	UserQuery string `json:"user_query" validate:"required"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type conversationTurn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

type askResponse struct {
	Response     string             `json:"response"`
	Conversation []conversationTurn `json:"conversation"`
}

func handleAsk(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil || deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}

	var request askRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	request.UserQuery = strings.TrimSpace(request.UserQuery)
	if err := validate.Struct(request); err != nil {
		if request.UserQuery == "" {
			writeDetail(w, http.StatusBadRequest, "user_query is required")
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := session.NormalizeID(request.SessionID)

	history, err := deps.Sessions.History(r.Context(), sessionID)
	if err != nil {
		internalError(deps, w, r, "load session history", err)
		return
	}

	state := pipeline.State{
		Query:  request.UserQuery,
		Memory: session.MemoryText(history, cfg.Pipeline.MemoryMaxTurns),
	}
	if cfg.Pipeline.CarryContext && len(history) > 0 {
		last := history[len(history)-1]
		state.TableName = last.TableName
		state.Filters = last.Filters
		state.LastAction = last.LastAction
		state.LastGroup = last.LastGroup
	}

	runCtx := r.Context()
	if cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.Pipeline.Timeout)
		defer cancel()
	}
	report, err := deps.Pipeline.Run(runCtx, state)
	if err != nil {
		internalError(deps, w, r, "run pipeline", err)
		return
	}
	for _, outcome := range report.Outcomes {
		if outcome.Status == pipeline.StatusOK || outcome.Status == pipeline.StatusSkipped {
			continue
		}
		deps.Logger.Debug("pipeline stage did not complete", "session_id", sessionID, "stage", outcome.Stage, "status", outcome.Status, "reason", outcome.Reason)
	}

	final := report.State
	answer := final.Answer
	if answer == "" {
		answer = noResponse
	}
	turns, err := deps.Sessions.Append(r.Context(), sessionID, session.Turn{
		User:       request.UserQuery,
		Bot:        answer,
		TableName:  final.TableName,
		Filters:    final.Filters,
		LastAction: final.LastAction,
		LastGroup:  final.LastGroup,
	})
	if err != nil {
		internalError(deps, w, r, "store session turn", err)
		return
	}

	if deps.Audit != nil {
		if _, err := deps.Audit.Record(r.Context(), audit.Entry{
			SessionID:  sessionID,
			Query:      request.UserQuery,
			TableName:  final.TableName,
			SQL:        final.SQL,
			Filters:    final.Filters,
			LastAction: final.LastAction,
			Answer:     answer,
		}); err != nil {
			deps.Logger.Warn("record turn log entry failed", "session_id", sessionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, askResponse{Response: answer, Conversation: conversation(turns)})
}

func conversation(turns []session.Turn) []conversationTurn {
	out := make([]conversationTurn, 0, len(turns))
	for _, turn := range turns {
		out = append(out, conversationTurn{User: turn.User, Bot: turn.Bot})
	}
	return out
}

func internalError(deps Dependencies, w http.ResponseWriter, r *http.Request, action string, err error) {
	deps.Logger.Error(action+" failed", "error", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":  "Internal server error",
		"detail": err.Error(),
	})
}
