package http

import (
	"encoding/json"
	"net/http"

	"github.com/GertsDev/burgerverse-backend/internal/application"
)

type apiError struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type sessionResponse struct {
	Success     bool                    `json:"success"`
	User        *application.PublicUser `json:"user,omitempty"`
	AccessToken string                  `json:"accessToken"`
}

type userResponse struct {
	Success bool                   `json:"success"`
	User    application.PublicUser `json:"user"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess merges extra top-level fields next to success:true.
func writeSuccess(w http.ResponseWriter, statusCode int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, statusCode, body)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string, fields map[string]string) {
	writeJSON(w, statusCode, apiError{
		Code:    code,
		Message: message,
		Fields:  fields,
	})
}
