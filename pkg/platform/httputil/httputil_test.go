package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterd/pkg/errcode"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteErrorInternalOmitsDescription(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errcode.New(errcode.CodeInternal, "db failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "internal", body["error"])
	assert.NotContains(t, body, "error_description")
}

func TestWriteErrorNotFoundIncludesDescription(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errcode.New(errcode.CodeNotFound, "no such record"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "no such record", body["error_description"])
}

func TestWriteErrorUncodedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decodeBody(t, w)["error"])
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","bogus":1}`))
	w := httptest.NewRecorder()

	_, ok := Decode[payload](w, r)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeValidBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	w := httptest.NewRecorder()

	v, ok := Decode[payload](w, r)
	require.True(t, ok)
	assert.Equal(t, "a", v.Name)
}
