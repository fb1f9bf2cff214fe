package httptransport

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError omits the description for internal errors.
func writeError(w http.ResponseWriter, status int, code, description string) {
	if status >= http.StatusInternalServerError {
		description = ""
	}
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}
