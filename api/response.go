package api

import (
	"encoding/json"
	"net/http"
)

// Error is a generic error structure that is used to send error responses to the client.
type Error struct {
	Code    string `json:"code,required"`
	Message string `json:"message,required"`
	Details any    `json:"details,omitempty"`
}

// Response is a generic response structure that is used to send responses to the client.
type Response struct {
	Status string      `json:"status,required"`
	Data   interface{} `json:"data,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// NewResponse creates an empty response envelope.
func NewResponse() *Response {
	return &Response{}
}

// Error message
func (e *Error) Error() string {
	return e.Message
}

// Set data to response
func (rsp *Response) SetData(data interface{}) *Response {
	rsp.Data = data
	rsp.Error = nil

	return rsp
}

// Set error to response
func (rsp *Response) SetError(code string, message string, details ...any) *Response {
	rsp.Data = nil
	rsp.Error = &Error{
		Code:    code,
		Message: message,
	}
	if len(details) == 1 {
		rsp.Error.Details = details[0]
	} else if len(details) > 1 {
		rsp.Error.Details = details
	}

	return rsp
}

// Send success response to client
func (rsp *Response) Ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	rsp.Status = "ok"
	_ = json.NewEncoder(w).Encode(rsp)
}

// sendError writes an error response with the given status code, filling a
// default error when none was set.
func (rsp *Response) sendError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	rsp.Status = "error"
	if rsp.Error == nil {
		rsp.Error = &Error{
			Code:    code,
			Message: message,
		}
	}
	_ = json.NewEncoder(w).Encode(rsp)
}

// Send error response to client
func (rsp *Response) BadRequest(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusBadRequest, "bad_request", "Bad request")
}

// Send error response to client
func (rsp *Response) InternalServerError(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusInternalServerError, "internal_server_error", "Internal server error")
}

// Send error response to client
func (rsp *Response) NotFound(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusNotFound, "not_found", "Not found")
}

// Send error response to client
func (rsp *Response) Unauthorized(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
}

// Send error response to client
func (rsp *Response) Forbidden(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusForbidden, "forbidden", "Forbidden")
}

// Send error response to client
func (rsp *Response) MethodNotAllowed(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
