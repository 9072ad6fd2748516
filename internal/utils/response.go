package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-boxoffice/internal/apperrors"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Details   interface{} `json:"details,omitempty"`
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

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps err to its HTTP status and writes the error envelope.
// Uncoded errors are reported as internal without their text.
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse(http.StatusText(status), "internal server error")
	resp.Code = string(apperrors.CodeOf(err))
	if coded, ok := apperrors.As(err); ok {
		resp.Error = coded.Message()
		resp.Details = coded.Details()
	}
	WriteJSON(w, status, resp)
}
