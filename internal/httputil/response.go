// Package httputil holds the JSON response helpers shared by the API
// handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/banshee-data/area-monitor/internal/errs"
)

// errorStatus maps the domain sentinels onto HTTP status codes.
var errorStatus = []struct {
	target error
	status int
}{
	{errs.ErrValidation, http.StatusBadRequest},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrDuplicateID, http.StatusConflict},
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteJSONError writes {"error": msg}.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// WriteError answers with the status matching err. Errors outside the
// errs sentinels are logged and reported as a bare 500 so storage details
// never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			WriteJSONError(w, m.status, err.Error())
			return
		}
	}
	log.Printf("internal error: %v", err)
	InternalServerError(w, "internal error")
}
