/*
Package handler provides the HTTP handlers and routing setup for the collaboration server.

This file contains HandleWebSocket, which rate limits the handshake, resolves the
session and the collaborator identity, upgrades the connection and hands it to the
registry for the rest of its lifetime.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"bpmncollab/internal/app/collab"
	"bpmncollab/internal/pkg/auth/jwt"
	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/limiter"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/resp"
)

// SessionQueryParam names the query parameter carrying the requested session id.
const SessionQueryParam = "session"

// HandleWebSocket creates an HTTP HandlerFunc that accepts collaboration sockets.
// An unknown or missing session id joins a freshly created session; an unknown or
// missing identity joins as a freshly minted user.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		requestedSession := r.URL.Query().Get(SessionQueryParam)
		s := deps.Sessions.GetOrCreate(requestedSession)
		u := deps.Users.GetOrCreate(jwt.UserIDFromContext(r))

		token, expiresAt, err := issueIdentity(deps, u.ID)
		if err != nil {
			logx.Error(err, "Failed to issue identity token", "user_id", u.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		header := http.Header{}
		header.Add("Set-Cookie", identityCookie(deps, token, expiresAt).String())

		wsConn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error(), "session_id", s.ID)
			return
		}

		conn := collab.NewConnection(wsConn, s.ID, u.ID, deps.Config.SendQueueSize, deps.Config.MaxMessageBytes)

		go conn.WritePump()

		if err := deps.Registry.Connect(conn, s.ID, u); err != nil {
			logx.Error(err, "Failed to join session", "session_id", s.ID, "user_id", u.ID)
			_ = conn.Close()
			return
		}

		logx.Info("WebSocket connection established",
			"connection_id", conn.ID(),
			"session_id", s.ID,
			"requested_session", requestedSession,
			"user_id", u.ID,
		)

		conn.ReadPump(deps.Router.Route, deps.Registry.Disconnect)
	}
}
