package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"nesavent/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, code string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     code,
		Timestamp: time.Now(),
	}
}

// FromError converts a service error to its HTTP status and envelope.
func FromError(err error) (int, APIResponse) {
	return apperr.HTTPStatus(err), ErrorResponse(apperr.PublicMessage(err), apperr.CodeOf(err))
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, err error) {
	status, body := FromError(err)
	WriteJSON(w, status, body)
}
