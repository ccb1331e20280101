/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its user-facing message and HTTP status.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Collaboration Protocol Errors
	ErrMalformedEnvelope:     {Code: ErrMalformedEnvelope, Message: "Malformed message: %v"},
	ErrUnknownMessageType:    {Code: ErrUnknownMessageType, Message: "Unknown message type: %q"},
	ErrInvalidPayload:        {Code: ErrInvalidPayload, Message: "Invalid %s payload: %s"},
	ErrServerOnlyMessageType: {Code: ErrServerOnlyMessageType, Message: "Message type %q can only be sent by the server"},
	ErrIdentityMismatch:      {Code: ErrIdentityMismatch, Message: "Message user does not match the connection."},
	ErrSessionNotFound:       {Code: ErrSessionNotFound, Message: "Collaboration session not found.", Status: http.StatusNotFound},

	// 3xxx: Identity Errors
	ErrInvalidIdentityToken: {Code: ErrInvalidIdentityToken, Message: "Identity token is invalid or expired.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
