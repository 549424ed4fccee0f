package middleware

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the uniform failure body the gateway returns for every
// rejected request.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Success: false, Message: message})
}
