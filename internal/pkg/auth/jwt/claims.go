package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of an identity token.
// The token is persisted by the browser and handed back on reconnect so the
// server can resolve the same collaborator identity.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the collaborator's user identifier.
	ID string `json:"id"`
}
