/*
Package collab contains the real-time collaboration engine.

This file defines the Router, which turns inbound frames into relayed messages.
A frame is checked in a fixed order: sender membership, envelope, claimed identity,
then payload. Only frames that pass every check reach the session.
*/
package collab

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"bpmncollab/internal/app/session"
	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/metrics"
)

// DiagramStore persists the diagram carried by sync messages.
type DiagramStore interface {
	ReplaceDiagram(sessionID, xml string) (session.Session, bool)
}

// Router validates inbound frames and relays them through the Registry.
type Router struct {
	registry *Registry
	diagrams DiagramStore
	metrics  *metrics.Metrics

	// echoErrors sends an error envelope back to the sender of a rejected frame.
	echoErrors bool

	logger zerolog.Logger
}

// NewRouter creates a Router. m may be nil.
func NewRouter(registry *Registry, diagrams DiagramStore, m *metrics.Metrics, echoErrors bool) *Router {
	return &Router{
		registry:   registry,
		diagrams:   diagrams,
		metrics:    m,
		echoErrors: echoErrors,
		logger:     logx.Component("Router"),
	}
}

// Route handles one inbound frame from conn. It never returns an error: rejected
// frames are dropped, optionally answered with an error envelope to conn only.
func (rt *Router) Route(conn Conn, raw []byte) {
	b, ok := rt.registry.Binding(conn)
	if !ok || b.State != StateActive {
		rt.metrics.FrameDropped(metrics.ReasonUnregistered)
		rt.logger.Debug().Str("connection_id", conn.ID()).Msg("Dropping frame from unregistered connection.")
		return
	}

	logger := rt.logger.With().
		Str("connection_id", conn.ID()).
		Str("session_id", b.SessionID).
		Str("user_id", b.User.ID).
		Logger()

	msg, perr := ParseMessage(raw)
	if perr != nil {
		rt.metrics.FrameDropped(metrics.ReasonMalformed)
		logger.Warn().Int("code", perr.Code).Str("reason", perr.Message).Msg("Dropping malformed frame.")
		rt.reject(conn, b, perr)
		return
	}

	if msg.UserID != b.User.ID {
		rt.metrics.FrameDropped(metrics.ReasonIdentityMismatch)
		logger.Warn().
			Int("code", errs.ErrIdentityMismatch).
			Str("claimed_user_id", msg.UserID).
			Str("type", string(msg.Type)).
			Msg("Dropping frame with mismatched user id.")
		return
	}

	if verr := msg.Validate(); verr != nil {
		rt.metrics.FrameDropped(metrics.ReasonInvalidPayload)
		logger.Warn().Int("code", verr.Code).Str("reason", verr.Message).Msg("Dropping frame with invalid payload.")
		rt.reject(conn, b, verr)
		return
	}

	if !rt.registry.Relay(conn, msg, msg.Type.ExcludesSender(), rt.applySideEffects) {
		rt.metrics.FrameDropped(metrics.ReasonUnregistered)
		logger.Debug().Str("type", string(msg.Type)).Msg("Connection left before relay. Frame dropped.")
		return
	}

	rt.metrics.MessageRouted(string(msg.Type))
	logger.Debug().Str("type", string(msg.Type)).Msg("Message relayed.")
}

// applySideEffects runs under the registry lock, before the message is delivered.
func (rt *Router) applySideEffects(msg Message) {
	if msg.Type != TypeSync {
		return
	}

	var p SyncPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		rt.logger.Error().Err(err).Str("session_id", msg.SessionID).Msg("Failed to decode validated sync payload.")
		return
	}

	if _, ok := rt.diagrams.ReplaceDiagram(msg.SessionID, p.XML); !ok {
		rt.logger.Warn().Str("session_id", msg.SessionID).Msg("Sync for unknown session. Diagram not stored.")
	}
}

// reject answers conn with an error envelope when echoing is enabled.
func (rt *Router) reject(conn Conn, b Binding, cerr *errs.CustomError) {
	if !rt.echoErrors {
		return
	}

	errMsg, err := NewMessage(TypeError, b.SessionID, SystemUserID, ErrorPayload{
		Error: cerr.Message,
		Code:  cerr.Code,
	})
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to build error message.")
		return
	}

	if err := rt.registry.Unicast(conn, errMsg); err != nil {
		rt.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("Failed to deliver error message.")
	}
}
