package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// JSONResponse wraps every JSON body.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError carries a machine-readable code. Fields maps each invalid input
// to its message.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

const apiVersion = "v1"

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSONWithMeta(w, r, status, data, nil)
}

func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = new(ResponseMeta)
	}
	meta.Timestamp, meta.Version = time.Now().UTC(), apiVersion
	send(w, status, JSONResponse{
		Success:   status/100 == 2,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError is for middleware that answers before a request context
// with an id exists.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	send(w, status, JSONResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// writeError answers with the classification of err. Server-side failures
// are logged with the request's logger; their text never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
	}
	send(w, status, JSONResponse{
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

func send(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorClass maps one family of domain errors to a status and code. Classes
// are tried in order.
type errorClass struct {
	match   func(error) bool
	status  int
	code    string
	message string // fixed message; empty means rootMessage(err)
}

var errorClasses = []errorClass{
	{match: shared.IsValidation, status: http.StatusBadRequest, code: "validation_error"},
	{match: shared.IsNotFound, status: http.StatusNotFound, code: "not_found"},
	{match: shared.IsConflict, status: http.StatusConflict, code: "conflict"},
	{match: shared.IsGateway, status: http.StatusPaymentRequired, code: "payment_declined"},
	{
		match:   func(err error) bool { return errors.Is(err, shared.ErrUnauthorized) },
		status:  http.StatusUnauthorized,
		code:    "unauthorized",
		message: "unauthorized",
	},
	{
		match:   shared.IsExternalService,
		status:  http.StatusServiceUnavailable,
		code:    "service_unavailable",
		message: "a dependency is unavailable, try again later",
	},
}

func classify(err error) (int, *APIError) {
	if tooLarge := new(http.MaxBytesError); errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, &APIError{Code: "payload_too_large", Message: "Request body too large"}
	}
	if reason, ok := shared.PreconditionReasonOf(err); ok {
		return http.StatusConflict, &APIError{Code: string(reason), Message: rootMessage(err)}
	}
	if fields, ok := shared.ValidationFieldsOf(err); ok {
		return http.StatusBadRequest, &APIError{Code: "validation_error", Message: "request is invalid", Fields: fields}
	}
	for _, c := range errorClasses {
		if !c.match(err) {
			continue
		}
		msg := c.message
		if msg == "" {
			msg = rootMessage(err)
		}
		return c.status, &APIError{Code: c.code, Message: msg}
	}
	return http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "An unexpected error occurred"}
}

// rootMessage drops the "operation: " prefixes added while wrapping.
func rootMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
