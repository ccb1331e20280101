package collab

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"bpmncollab/internal/app/session"
	"bpmncollab/internal/app/user"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeConn records every frame it is sent. sendHook, when set, decides the
// outcome of each Send before the frame is recorded.
type fakeConn struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	closes   int
	sendHook func(data []byte) error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.sendHook != nil {
		if err := c.sendHook(data); err != nil {
			return err
		}
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.closes++
	return nil
}

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendHook = func([]byte) error { return err }
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.frames))
	for _, f := range c.frames {
		var m Message
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func decodePayload[T any](t *testing.T, m Message) T {
	t.Helper()

	var p T
	require.NoError(t, json.Unmarshal(m.Payload, &p))
	return p
}

func types(msgs []Message) []MessageType {
	out := make([]MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

type fixture struct {
	sessions *session.Store
	registry *Registry
	router   *Router
	session  session.Session
}

func newFixture(t *testing.T, echoErrors bool) *fixture {
	t.Helper()

	sessions := session.NewStore()
	registry := NewRegistry(sessions, nil)

	return &fixture{
		sessions: sessions,
		registry: registry,
		router:   NewRouter(registry, sessions, nil, echoErrors),
		session:  sessions.GetOrCreate(""),
	}
}

func (f *fixture) join(t *testing.T, connID string, u user.User) *fakeConn {
	t.Helper()

	c := newFakeConn(connID)
	require.NoError(t, f.registry.Connect(c, f.session.ID, u))
	return c
}

var (
	alice = user.User{ID: "user-a", Name: "Fox", Color: "#3b82f6"}
	bob   = user.User{ID: "user-b", Name: "Wolf", Color: "#ef4444"}
	carol = user.User{ID: "user-c", Name: "Hawk", Color: "#10b981"}
)

// gaugeValues flattens unlabelled gauges from a gathered registry.
func gaugeValues(families []*dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_GAUGE || len(mf.GetMetric()) != 1 {
			continue
		}
		out[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	return out
}

// faultySessions wraps a real store and panics on demand.
type faultySessions struct {
	*session.Store

	panicOnAdd bool
	panicOnGet bool
}

func (s *faultySessions) AddPresentUser(sessionID, userID string) {
	if s.panicOnAdd {
		panic("presence store unavailable")
	}
	s.Store.AddPresentUser(sessionID, userID)
}

func (s *faultySessions) Get(sessionID string) (session.Session, bool) {
	if s.panicOnGet {
		panic("session lookup failed")
	}
	return s.Store.Get(sessionID)
}
