/*
Package errs provides custom error types and application-level error code constants.

These error codes identify request, protocol and identity failures both inside the
server and in the error envelopes and HTTP responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained data after the JSON value.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Collaboration Protocol Errors
const (
	// ErrMalformedEnvelope indicates a frame that is not a JSON collaboration envelope.
	ErrMalformedEnvelope = 2001

	// ErrUnknownMessageType indicates an envelope whose type is not part of the protocol.
	ErrUnknownMessageType = 2002

	// ErrInvalidPayload indicates a payload that does not match the shape required by its type.
	ErrInvalidPayload = 2003

	// ErrServerOnlyMessageType indicates a client tried to send a type reserved for the server.
	ErrServerOnlyMessageType = 2004

	// ErrIdentityMismatch indicates the envelope claims a user other than the one bound to the connection.
	ErrIdentityMismatch = 2005

	// ErrSessionNotFound indicates that the requested collaboration session does not exist.
	ErrSessionNotFound = 2101
)

// 3xxx: Identity Errors
const (
	// ErrInvalidIdentityToken indicates the identity token could not be verified.
	ErrInvalidIdentityToken = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
