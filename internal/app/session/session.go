/*
Package session contains the collaboration room model and its in-memory store.

A Session holds one shared diagram (last writer wins, replaced wholesale) and the set
of users currently present. Sessions live for the lifetime of the process; there is
no expiry or eviction.
*/
package session

import (
	"sort"
	"time"
)

// Session is a point-in-time copy of a collaboration room's state.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// DiagramXML is the latest full diagram document, nil until the first sync.
	DiagramXML *string `json:"-"`

	// PresentUserIDs lists the users with a live connection, sorted.
	PresentUserIDs []string `json:"presentUserIds"`
}

// Diagram returns the diagram snapshot and whether one has been stored.
func (s Session) Diagram() (string, bool) {
	if s.DiagramXML == nil {
		return "", false
	}
	return *s.DiagramXML, true
}

// HasUser reports whether userID is in the present-user set.
func (s Session) HasUser(userID string) bool {
	i := sort.SearchStrings(s.PresentUserIDs, userID)
	return i < len(s.PresentUserIDs) && s.PresentUserIDs[i] == userID
}

// record is the store-owned mutable state behind a Session.
type record struct {
	id        string
	createdAt time.Time
	updatedAt time.Time
	diagram   *string
	present   map[string]struct{}
}

func (r *record) snapshot() Session {
	s := Session{
		ID:             r.id,
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
		PresentUserIDs: make([]string, 0, len(r.present)),
	}

	if r.diagram != nil {
		xml := *r.diagram
		s.DiagramXML = &xml
	}

	for id := range r.present {
		s.PresentUserIDs = append(s.PresentUserIDs, id)
	}
	sort.Strings(s.PresentUserIDs)

	return s
}
