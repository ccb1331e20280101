/*
Package resp writes the JSON envelope shared by the REST side of the collaboration
server: identity issuance, session summaries and health.

Every body has the shape {"code", "message", "data"}. Code 0 means success; any
other value is a business code from package errs, the same code a WebSocket client
sees in an error envelope. The HTTP status comes from the CustomError.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/logx"
)

// SuccessMessage is the message attached to every code 0 envelope.
const SuccessMessage = "success"

// JSONResponse is the REST envelope.
type JSONResponse struct {
	// Code is 0 on success, otherwise an errs code.
	Code int `json:"code"`

	Message string `json:"message"`

	// Data carries the identity, session summary or health report.
	Data any `json:"data,omitempty"`
}

// RespondSuccess answers 200 with data wrapped in a code 0 envelope.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	write(w, r, http.StatusOK, JSONResponse{Code: 0, Message: SuccessMessage, Data: data})
}

// RespondError answers with the status and code carried by customErr. A nil
// error is reported as ErrUnknown. Server-side failures are logged with the
// request id so they can be matched to the access log.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	if customErr.Status >= http.StatusInternalServerError {
		logx.Warn("Request failed with server error",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"code", customErr.Code,
		)
	}

	write(w, r, customErr.Status, JSONResponse{Code: customErr.Code, Message: customErr.Message})
}

func write(w http.ResponseWriter, r *http.Request, status int, body JSONResponse) {
	encoded, err := json.Marshal(body)
	if err != nil {
		logx.Error(err, "Failed to encode response envelope",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"http_status", status,
		)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")

	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		logx.Debug("Failed to write response envelope", "path", r.URL.Path, "error", err.Error())
	}
}
