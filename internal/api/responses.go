// Package api provides HTTP handlers for the REST API endpoints.
package api

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is the standard success payload for operations that
// return no entity
type MessageResponse struct {
	Message string `json:"message"`
}
