/*
Package collab contains the real-time collaboration engine.

This file defines the Registry, the single owner of the connection-to-session and
connection-to-user bindings. Every mutation and every fan-out happens under one
registry lock, so frames are delivered to each connection in the order the
registry processed them and a connection is never seen in one mapping but not the other.
*/
package collab

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"bpmncollab/internal/app/session"
	"bpmncollab/internal/app/user"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/metrics"
)

var (
	// ErrAlreadyConnected is returned when Connect is called twice for the same connection.
	ErrAlreadyConnected = errors.New("connection is already registered")

	// ErrNotRegistered is returned for operations on a connection the registry does not know.
	ErrNotRegistered = errors.New("connection is not registered")

	// ErrConnectionLost is returned by Connect when the joining connection failed during its own handshake.
	ErrConnectionLost = errors.New("connection failed while joining")
)

// Conn is a live, bidirectional client endpoint as seen by the registry.
// Send must not block: it either queues the frame or fails.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Sessions is the part of the session store the registry depends on.
type Sessions interface {
	Get(sessionID string) (session.Session, bool)
	AddPresentUser(sessionID, userID string)
	RemovePresentUser(sessionID, userID string)
}

// ConnState is the lifecycle state of a connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAccepted
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAccepted:
		return "accepted"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Binding is a copy of what the registry knows about a connection.
type Binding struct {
	SessionID string
	User      user.User
	State     ConnState
}

type presenceKey struct {
	sessionID string
	userID    string
}

// Registry tracks live connections per session and fans messages out to them.
type Registry struct {
	mu sync.Mutex

	// sessions maps a session id to its live connections. Empty sets are removed.
	sessions map[string]map[Conn]struct{}

	// bindings maps each live connection to its session and user.
	bindings map[Conn]*Binding

	// presence counts live connections per (session, user).
	presence map[presenceKey]int

	store   Sessions
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(store Sessions, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]map[Conn]struct{}),
		bindings: make(map[Conn]*Binding),
		presence: make(map[presenceKey]int),
		store:    store,
		metrics:  m,
		logger:   logx.Component("Registry"),
	}
}

// Connect registers conn in sessionID for u and performs the join handshake:
// the joiner receives its own identity and the users already present, the rest of the
// session is told about the joiner, and the joiner receives the stored diagram if any.
// On error conn is left unregistered.
func (r *Registry) Connect(conn Conn, sessionID string, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed, err := r.connectLocked(conn, sessionID, u)
	r.drainLocked(failed)
	r.recordActiveLocked()

	if err != nil {
		return err
	}
	if _, ok := r.bindings[conn]; !ok {
		return ErrConnectionLost
	}

	r.logger.Info().
		Str("connection_id", conn.ID()).
		Str("session_id", sessionID).
		Str("user_id", u.ID).
		Int("session_connections", len(r.sessions[sessionID])).
		Msg("Connection joined session.")

	return nil
}

func (r *Registry) connectLocked(conn Conn, sessionID string, u user.User) (failed []Conn, err error) {
	if _, exists := r.bindings[conn]; exists {
		return nil, ErrAlreadyConnected
	}

	announced := false
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		r.logger.Error().
			Str("connection_id", conn.ID()).
			Str("session_id", sessionID).
			Interface("panic", p).
			Bool("announced", announced).
			Msg("Join handshake panicked. Rolling back registration.")
		r.rollbackLocked(conn)
		failed = nil
		if announced {
			if leave, encErr := r.encode(TypeLeave, sessionID, u.ID, LeavePayload{}); encErr == nil {
				failed = r.broadcastLocked(sessionID, leave, nil)
			}
		}
		err = fmt.Errorf("join handshake: %v", p)
	}()

	b := r.registerLocked(conn, sessionID, u)

	self, err := r.encode(TypeJoin, sessionID, u.ID, JoinSelfPayload{
		User:          u,
		ExistingUsers: r.peersLocked(sessionID, u.ID),
	})
	if err == nil {
		err = conn.Send(self)
	}
	if err != nil {
		r.unregisterLocked(conn, b)
		return nil, err
	}

	announce, err := r.encode(TypeJoin, sessionID, u.ID, JoinPayload{User: u})
	if err != nil {
		r.unregisterLocked(conn, b)
		return nil, err
	}
	announced = true
	failed = r.broadcastLocked(sessionID, announce, func(c Conn, _ *Binding) bool {
		return c == conn
	})

	if s, ok := r.store.Get(sessionID); ok {
		// An empty document is indistinguishable from no document for a joiner.
		if xml, ok := s.Diagram(); ok && xml != "" {
			snapshot, err := r.encode(TypeSync, sessionID, SystemUserID, SyncPayload{XML: xml})
			if err == nil {
				err = conn.Send(snapshot)
			}
			if err != nil {
				r.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("Failed to deliver diagram to joining connection.")
				r.metrics.SendFailed()
				failed = append(failed, conn)
			}
		}
	}

	b.State = StateActive
	return failed, nil
}

// rollbackLocked undoes whatever part of registerLocked took effect for conn.
// A second panic from the session store is logged and swallowed so the
// registry maps stay consistent.
func (r *Registry) rollbackLocked(conn Conn) {
	b, ok := r.bindings[conn]
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("connection_id", conn.ID()).
				Interface("panic", p).
				Msg("Session store panicked during rollback.")
		}
	}()
	r.unregisterLocked(conn, b)
}

// Disconnect removes conn from the registry, closes it and tells the remaining
// connections of its session that its user left. Unknown connections are ignored.
func (r *Registry) Disconnect(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drainLocked([]Conn{conn})
	r.recordActiveLocked()
}

// Relay delivers msg to the session conn is bound to, stamping the envelope with the
// bound session and user. When excludeSender is set, every connection of the sending
// user is skipped. apply, if non-nil, runs before delivery inside the same critical
// section. It reports false when conn is not an active member of a session.
func (r *Registry) Relay(conn Conn, msg Message, excludeSender bool, apply func(Message)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[conn]
	if !ok || b.State != StateActive {
		return false
	}

	msg.SessionID = b.SessionID
	msg.UserID = b.User.ID

	if apply != nil {
		apply(msg)
	}

	data, err := msg.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode relayed message.")
		return false
	}

	var skip func(Conn, *Binding) bool
	if excludeSender {
		sender := b.User.ID
		skip = func(_ Conn, peer *Binding) bool { return peer.User.ID == sender }
	}

	r.drainLocked(r.broadcastLocked(b.SessionID, data, skip))
	r.recordActiveLocked()
	return true
}

// Broadcast delivers msg to every connection in sessionID, skipping the connections
// of excludeUserID when it is non-empty.
func (r *Registry) Broadcast(sessionID string, msg Message, excludeUserID string) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var skip func(Conn, *Binding) bool
	if excludeUserID != "" {
		skip = func(_ Conn, peer *Binding) bool { return peer.User.ID == excludeUserID }
	}

	r.drainLocked(r.broadcastLocked(sessionID, data, skip))
	r.recordActiveLocked()
	return nil
}

// Unicast delivers msg to conn only. A failed delivery disconnects conn.
func (r *Registry) Unicast(conn Conn, msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bindings[conn]; !ok {
		return ErrNotRegistered
	}

	if err := conn.Send(data); err != nil {
		r.metrics.SendFailed()
		r.drainLocked([]Conn{conn})
		r.recordActiveLocked()
		return err
	}
	return nil
}

// Binding returns what the registry knows about conn.
func (r *Registry) Binding(conn Conn) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[conn]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// State returns the lifecycle state of conn. Connections the registry does not
// hold, including ones already disconnected, report StateClosed.
func (r *Registry) State(conn Conn) ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[conn]; ok {
		return b.State
	}
	return StateClosed
}

// Users returns the distinct users connected to sessionID, sorted by id.
func (r *Registry) Users(sessionID string) []user.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.peersLocked(sessionID, "")
}

// ConnectionCount returns the number of live connections in sessionID.
func (r *Registry) ConnectionCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions[sessionID])
}

// TotalConnections returns the number of live connections across all sessions.
func (r *Registry) TotalConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.bindings)
}

// SessionCount returns the number of sessions with at least one live connection.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Shutdown closes every connection without leave notifications and empties the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info().Int("connections", len(r.bindings)).Msg("Shutting down registry...")

	for conn, b := range r.bindings {
		r.unregisterLocked(conn, b)
		if err := conn.Close(); err != nil {
			r.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("Connection close error during shutdown.")
		}
	}
	r.recordActiveLocked()

	r.logger.Info().Msg("Registry shutdown complete.")
}

// registerLocked adds conn to both mappings and counts its user as present.
// The session store is notified last.
func (r *Registry) registerLocked(conn Conn, sessionID string, u user.User) *Binding {
	b := &Binding{SessionID: sessionID, User: u, State: StateAccepted}
	r.bindings[conn] = b

	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[Conn]struct{})
		r.sessions[sessionID] = set
	}
	set[conn] = struct{}{}

	key := presenceKey{sessionID: sessionID, userID: u.ID}
	r.presence[key]++
	if r.presence[key] == 1 {
		r.store.AddPresentUser(sessionID, u.ID)
	}

	return b
}

// unregisterLocked removes conn from both mappings. The user stays present while
// any other connection of theirs remains in the session.
func (r *Registry) unregisterLocked(conn Conn, b *Binding) {
	if _, ok := r.bindings[conn]; !ok {
		return
	}
	delete(r.bindings, conn)
	b.State = StateClosed

	if set, ok := r.sessions[b.SessionID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.sessions, b.SessionID)
		}
	}

	key := presenceKey{sessionID: b.SessionID, userID: b.User.ID}
	if r.presence[key]--; r.presence[key] <= 0 {
		delete(r.presence, key)
		r.store.RemovePresentUser(b.SessionID, b.User.ID)
	}
}

// removeLocked disconnects conn and announces the leave. It returns the
// connections whose delivery of the leave failed.
func (r *Registry) removeLocked(conn Conn) []Conn {
	b, ok := r.bindings[conn]
	if !ok {
		return nil
	}

	r.unregisterLocked(conn, b)

	if err := conn.Close(); err != nil {
		r.logger.Warn().Err(err).Str("connection_id", conn.ID()).Msg("Connection close error.")
	}

	r.logger.Info().
		Str("connection_id", conn.ID()).
		Str("session_id", b.SessionID).
		Str("user_id", b.User.ID).
		Int("session_connections", len(r.sessions[b.SessionID])).
		Msg("Connection left session.")

	leave, err := r.encode(TypeLeave, b.SessionID, b.User.ID, LeavePayload{})
	if err != nil {
		return nil
	}
	return r.broadcastLocked(b.SessionID, leave, nil)
}

// drainLocked disconnects every pending connection, including the ones whose
// leave notifications fail along the way.
func (r *Registry) drainLocked(pending []Conn) {
	for len(pending) > 0 {
		conn := pending[0]
		pending = append(pending[1:], r.removeLocked(conn)...)
	}
}

// broadcastLocked sends data to the connections of sessionID that skip rejects.
// Deliveries that fail are returned for disconnection; they never stop the fan-out.
func (r *Registry) broadcastLocked(sessionID string, data []byte, skip func(Conn, *Binding) bool) []Conn {
	set := r.sessions[sessionID]
	targets := make([]Conn, 0, len(set))
	for conn := range set {
		targets = append(targets, conn)
	}

	var failed []Conn
	for _, conn := range targets {
		b, ok := r.bindings[conn]
		if !ok || (skip != nil && skip(conn, b)) {
			continue
		}

		if err := conn.Send(data); err != nil {
			r.logger.Warn().
				Err(err).
				Str("connection_id", conn.ID()).
				Str("session_id", sessionID).
				Msg("Delivery failed. Disconnecting connection.")
			r.metrics.SendFailed()
			failed = append(failed, conn)
		}
	}
	return failed
}

// peersLocked returns the distinct users of sessionID other than excludeUserID, sorted by id.
func (r *Registry) peersLocked(sessionID, excludeUserID string) []user.User {
	seen := make(map[string]struct{})
	users := make([]user.User, 0)

	for conn := range r.sessions[sessionID] {
		b := r.bindings[conn]
		if b == nil || b.User.ID == excludeUserID {
			continue
		}
		if _, dup := seen[b.User.ID]; dup {
			continue
		}
		seen[b.User.ID] = struct{}{}
		users = append(users, b.User)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Registry) recordActiveLocked() {
	r.metrics.SetActive(len(r.bindings), len(r.sessions))
}

func (r *Registry) encode(t MessageType, sessionID, userID string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, sessionID, userID, payload)
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}
