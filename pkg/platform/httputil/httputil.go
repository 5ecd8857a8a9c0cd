// Package httputil centralizes JSON encoding and error translation for HTTP
// handlers so every endpoint speaks the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"rosterd/pkg/errcode"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded error into the JSON error envelope. Internal
// errors omit the description so backend detail never leaks to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := errcode.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != errcode.CodeInternal {
		var coded *errcode.Error
		if errors.As(err, &coded) && coded.Message != "" {
			body["error_description"] = coded.Message
		}
	}
	WriteJSON(w, errcode.HTTPStatus(code), body)
}

// Decode reads the request body into T, responding with invalid_argument on
// malformed input. The bool result reports whether the handler should
// proceed.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteError(w, errcode.New(errcode.CodeInvalidArgument, "malformed request body"))
		return v, false
	}
	return v, true
}
