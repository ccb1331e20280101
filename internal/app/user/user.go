/*
Package user contains the collaborator identity model and its in-memory store.

A User is minted once, handed back by the client on reconnect, and never changes
afterwards: there is no rename or recolour operation.
*/
package user

// User represents the identity of a collaborator.
// Fields use JSON tags for serialization in WebSocket messages.
type User struct {
	// ID is the opaque, server-generated identifier of the collaborator.
	ID string `json:"id"`

	// Name is the display name shown next to the collaborator's cursor.
	Name string `json:"name"`

	// Color is the collaborator's UI colour, one of Palette.
	Color string `json:"color"`
}

// Names is the pool display names are drawn from.
var Names = []string{"Fox", "Eagle", "Lion", "Wolf", "Hawk", "Bear", "Tiger", "Panther"}

// Palette is the fixed set of collaborator colours. Collisions between users are allowed.
var Palette = []string{
	"#3b82f6", // blue
	"#ef4444", // red
	"#10b981", // green
	"#f59e0b", // amber
	"#8b5cf6", // purple
	"#ec4899", // pink
	"#06b6d4", // cyan
	"#f97316", // orange
}
