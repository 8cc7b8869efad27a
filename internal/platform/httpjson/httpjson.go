// Package httpjson writes JSON responses and the {"error": msg} error body shared by every endpoint.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error response format.
type ErrorBody struct {
	Error string `json:"error"`
}

// Write encodes v as the response body with status.
func Write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": message} with status.
func Error(w http.ResponseWriter, status int, message string) {
	Write(w, status, ErrorBody{Error: message})
}

// Decode reads a JSON request body into v. Unknown fields are ignored.
func Decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
