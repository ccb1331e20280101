package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// IdentityExpiration is how long a browser may reuse a collaborator identity
	// before a fresh user is minted for it.
	IdentityExpiration = 30 * 24 * time.Hour

	// TokenIssuer is stamped into every identity token and required on resolve.
	TokenIssuer = "BPMN-Collab-Server"
)

var (
	// ErrMissingUserID is returned when asked to issue an identity for nobody.
	ErrMissingUserID = errors.New("identity token requires a user id")

	// ErrForeignIdentity is returned for a well-signed token this server did not
	// issue as a collaborator identity.
	ErrForeignIdentity = errors.New("identity token was not issued for a collaborator")
)

// IssuedIdentity is a signed identity token and the instant it stops resolving.
type IssuedIdentity struct {
	Token     string
	ExpiresAt time.Time
}

// IssueIdentity signs a token that resolves back to userID for ttl.
// ExpiresAt matches the exp claim, truncated to whole seconds.
func IssueIdentity(userID, secretKey string, ttl time.Duration) (IssuedIdentity, error) {
	if userID == "" {
		return IssuedIdentity{}, ErrMissingUserID
	}

	now := time.Now()
	expiresAt := now.Add(ttl).Truncate(time.Second).UTC()

	payload := &Payload{
		ID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
			Subject:   userID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
	if err != nil {
		return IssuedIdentity{}, fmt.Errorf("sign identity token: %w", err)
	}

	return IssuedIdentity{Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveIdentity verifies tokenString and returns the collaborator it names.
// Tokens signed with another method, expired, or minted by another issuer do
// not resolve.
func ResolveIdentity(tokenString, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	if claims.ID == "" || claims.Subject != claims.ID || !claims.VerifyIssuer(TokenIssuer, true) {
		return nil, ErrForeignIdentity
	}

	return claims, nil
}
