package collab

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/metrics"
)

// threeTabs joins alice twice and bob once and clears their inboxes.
func threeTabs(t *testing.T, f *fixture) (a1, a2, b *fakeConn) {
	t.Helper()

	a1 = f.join(t, "a1", alice)
	a2 = f.join(t, "a2", alice)
	b = f.join(t, "b1", bob)
	a1.reset()
	a2.reset()
	b.reset()
	return a1, a2, b
}

func TestRoute_ExcludesSenderForLocalActions(t *testing.T) {
	frames := map[MessageType]string{
		TypeCursor:  `{"type":"cursor","userId":"user-a","payload":{"x":10,"y":20.5}}`,
		TypeCommand: `{"type":"command","userId":"user-a","payload":{"command":"shape.create","context":{"id":"Task_1"}}}`,
		TypeLock:    `{"type":"lock","userId":"user-a","payload":{"elementId":"Task_1"}}`,
		TypeUnlock:  `{"type":"unlock","userId":"user-a","payload":{"elementId":"Task_1"}}`,
	}

	for typ, raw := range frames {
		t.Run(string(typ), func(t *testing.T) {
			f := newFixture(t, true)
			a1, a2, b := threeTabs(t, f)

			f.router.Route(a1, []byte(raw))

			assert.Empty(t, a1.messages(t))
			assert.Empty(t, a2.messages(t), "the sender's other tab must not receive its own action")

			msgs := b.messages(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, typ, msgs[0].Type)
			assert.Equal(t, alice.ID, msgs[0].UserID)
		})
	}
}

func TestRoute_SyncAndJoinReachEveryConnection(t *testing.T) {
	frames := map[MessageType]string{
		TypeSync: `{"type":"sync","userId":"user-a","payload":{"xml":"<definitions/>"}}`,
		TypeJoin: `{"type":"join","userId":"user-a","payload":{"hello":true}}`,
	}

	for typ, raw := range frames {
		t.Run(string(typ), func(t *testing.T) {
			f := newFixture(t, true)
			a1, a2, b := threeTabs(t, f)

			f.router.Route(a1, []byte(raw))

			for _, c := range []*fakeConn{a1, a2, b} {
				msgs := c.messages(t)
				require.Len(t, msgs, 1, c.id)
				assert.Equal(t, typ, msgs[0].Type)
				assert.Equal(t, alice.ID, msgs[0].UserID)
			}
		})
	}
}

func TestRoute_SyncReplacesDiagram(t *testing.T) {
	f := newFixture(t, true)
	a := f.join(t, "a1", alice)

	f.router.Route(a, []byte(`{"type":"sync","userId":"user-a","payload":{"xml":"<A/>"}}`))
	f.router.Route(a, []byte(`{"type":"sync","userId":"user-a","payload":{"xml":"<B/>"}}`))

	s, ok := f.sessions.Get(f.session.ID)
	require.True(t, ok)
	xml, ok := s.Diagram()
	require.True(t, ok)
	assert.Equal(t, "<B/>", xml)
}

func TestRoute_OverwritesAdvisorySessionID(t *testing.T) {
	f := newFixture(t, true)
	a, _, b := threeTabs(t, f)

	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-a","sessionId":"elsewhere","payload":{"x":1,"y":1}}`))

	msgs := b.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, f.session.ID, msgs[0].SessionID)
}

func TestRoute_MissingPayloadIsEmptyObject(t *testing.T) {
	f := newFixture(t, true)
	a, _, b := threeTabs(t, f)

	f.router.Route(a, []byte(`{"type":"leave","userId":"user-a"}`))

	msgs := b.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeLeave, msgs[0].Type)
	assert.JSONEq(t, `{}`, string(msgs[0].Payload))

	_, ok := f.registry.Binding(a)
	assert.True(t, ok, "a client leave message does not disconnect")
}

func TestRoute_ImpersonationIsDroppedSilently(t *testing.T) {
	for name, raw := range map[string]string{
		"other user": `{"type":"sync","userId":"user-b","payload":{"xml":"<evil/>"}}`,
		"no user":    `{"type":"cursor","payload":{"x":1,"y":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true)
			a1, a2, b := threeTabs(t, f)

			f.router.Route(a1, []byte(raw))

			assert.Empty(t, a1.messages(t))
			assert.Empty(t, a2.messages(t))
			assert.Empty(t, b.messages(t))

			s, _ := f.sessions.Get(f.session.ID)
			_, hasDiagram := s.Diagram()
			assert.False(t, hasDiagram)
		})
	}
}

func TestRoute_RejectedFramesEchoErrorToSenderOnly(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code int
	}{
		{"not json", `not json at all`, errs.ErrMalformedEnvelope},
		{"json array", `[1,2,3]`, errs.ErrMalformedEnvelope},
		{"missing type", `{"userId":"user-a","payload":{}}`, errs.ErrMalformedEnvelope},
		{"unknown type", `{"type":"dance","userId":"user-a","payload":{}}`, errs.ErrUnknownMessageType},
		{"server only type", `{"type":"error","userId":"user-a","payload":{}}`, errs.ErrServerOnlyMessageType},
		{"payload not object", `{"type":"cursor","userId":"user-a","payload":"x"}`, errs.ErrInvalidPayload},
		{"cursor without y", `{"type":"cursor","userId":"user-a","payload":{"x":1}}`, errs.ErrInvalidPayload},
		{"cursor with string x", `{"type":"cursor","userId":"user-a","payload":{"x":"1","y":2}}`, errs.ErrInvalidPayload},
		{"lock without element", `{"type":"lock","userId":"user-a","payload":{}}`, errs.ErrInvalidPayload},
		{"unlock empty element", `{"type":"unlock","userId":"user-a","payload":{"elementId":""}}`, errs.ErrInvalidPayload},
		{"command without name", `{"type":"command","userId":"user-a","payload":{"context":{}}}`, errs.ErrInvalidPayload},
		{"command bad context", `{"type":"command","userId":"user-a","payload":{"command":"x","context":[1]}}`, errs.ErrInvalidPayload},
		{"sync without xml", `{"type":"sync","userId":"user-a","payload":{}}`, errs.ErrInvalidPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, true)
			a1, a2, b := threeTabs(t, f)

			f.router.Route(a1, []byte(tc.raw))

			msgs := a1.messages(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, TypeError, msgs[0].Type)
			assert.Equal(t, SystemUserID, msgs[0].UserID)
			assert.Equal(t, f.session.ID, msgs[0].SessionID)

			p := decodePayload[ErrorPayload](t, msgs[0])
			assert.Equal(t, tc.code, p.Code)
			assert.NotEmpty(t, p.Error)

			assert.Empty(t, a2.messages(t))
			assert.Empty(t, b.messages(t))

			binding, ok := f.registry.Binding(a1)
			require.True(t, ok, "a malformed frame never disconnects")
			assert.Equal(t, StateActive, binding.State)
		})
	}
}

func TestRoute_ConnectionKeepsWorkingAfterMalformedFrame(t *testing.T) {
	f := newFixture(t, true)
	a, _, b := threeTabs(t, f)

	f.router.Route(a, []byte(`{{{`))
	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-a","payload":{"x":3,"y":4}}`))

	msgs := b.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeCursor, msgs[0].Type)
}

func TestRoute_EchoDisabledDropsSilently(t *testing.T) {
	f := newFixture(t, false)
	a1, a2, b := threeTabs(t, f)

	f.router.Route(a1, []byte(`nope`))

	assert.Empty(t, a1.messages(t))
	assert.Empty(t, a2.messages(t))
	assert.Empty(t, b.messages(t))
}

func TestRoute_UnregisteredConnectionIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	_, _, b := threeTabs(t, f)

	ghost := newFakeConn("ghost")
	f.router.Route(ghost, []byte(`{"type":"cursor","userId":"user-a","payload":{"x":1,"y":1}}`))

	assert.Empty(t, ghost.messages(t))
	assert.Empty(t, b.messages(t))
}

func TestRoute_DisconnectedConnectionIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	a, _, b := threeTabs(t, f)

	f.registry.Disconnect(a)
	b.reset()

	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-a","payload":{"x":1,"y":1}}`))
	assert.Empty(t, b.messages(t))
}

func TestRoute_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	f := newFixture(t, true)
	f.registry = NewRegistry(f.sessions, m)
	f.router = NewRouter(f.registry, f.sessions, m, true)

	a := f.join(t, "a1", alice)
	f.join(t, "b1", bob)

	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-a","payload":{"x":1,"y":1}}`))
	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-a","payload":{"x":2,"y":2}}`))
	f.router.Route(a, []byte(`garbage`))
	f.router.Route(a, []byte(`{"type":"cursor","userId":"user-b","payload":{"x":1,"y":1}}`))
	f.router.Route(newFakeConn("ghost"), []byte(`{}`))

	routed, err := testutil.GatherAndCount(reg, "bpmncollab_messages_routed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, routed, "one series: type=cursor")

	dropped, err := testutil.GatherAndCount(reg, "bpmncollab_frames_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 3, dropped, "malformed, identity_mismatch and unregistered")
}
