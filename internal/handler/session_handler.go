package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bpmncollab/internal/app/session"
	"bpmncollab/internal/app/user"
	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/randx"
	"bpmncollab/internal/pkg/resp"
)

// SessionSummary describes a session without its diagram body.
type SessionSummary struct {
	ID             string      `json:"id"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	HasDiagram     bool        `json:"hasDiagram"`
	PresentUserIDs []string    `json:"presentUserIds"`
	Users          []user.User `json:"users"`
	Connections    int         `json:"connections"`
}

func summarize(deps *AppDeps, s session.Session) SessionSummary {
	xml, ok := s.Diagram()
	hasDiagram := ok && xml != ""

	return SessionSummary{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		HasDiagram:     hasDiagram,
		PresentUserIDs: s.PresentUserIDs,
		Users:          deps.Registry.Users(s.ID),
		Connections:    deps.Registry.ConnectionCount(s.ID),
	}
}

// HandleCreateSession creates an empty session so a client can share its id before connecting.
func HandleCreateSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Sessions.GetOrCreate("")

		logx.Info("Session created via API", "session_id", s.ID)
		resp.RespondSuccess(w, r, summarize(deps, s))
	}
}

// HandleGetSession returns the summary of an existing session. Ids that are not
// UUIDs are rejected before the lookup.
func HandleGetSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if !randx.IsValidID(sessionID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		s, ok := deps.Sessions.Get(sessionID)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionNotFound))
			return
		}

		resp.RespondSuccess(w, r, summarize(deps, s))
	}
}
