// Package httpapi exposes §6.3's coordinator RPC surface over HTTP,
// the same chi-router/one-handler-struct-per-resource shape as the
// teacher's services/gateway router and handler packages, re-pointed
// at the coordinator instead of an LLM provider registry.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/RamXX/tminus/internal/tminuserrors"
)

// writeJSON mirrors the teacher's handler/providers.go helper of the
// same name.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a structured {code, message} body. The teacher's
// handler package calls a writeError helper of this shape throughout
// but never defines it; this is a from-scratch replacement, not a
// copy.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeErr maps err generically via tminuserrors.HTTPStatus rather
// than switching on error type per handler, so every handler shares
// one error-to-response path per §6.3's "400/404/500" contract.
func writeErr(w http.ResponseWriter, err error) {
	status := tminuserrors.HTTPStatus(err)
	code := "internal_error"
	message := err.Error()
	switch status {
	case http.StatusBadRequest:
		code = "validation_error"
	case http.StatusNotFound:
		code = "not_found"
	case http.StatusInternalServerError:
		code = "internal_error"
		message = "an internal error occurred"
	default:
		code = "error"
	}
	writeError(w, status, code, message)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
