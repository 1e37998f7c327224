package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
)

type sampleRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":1,"extra":true}`))
	var dest sampleRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","quantity":0}`))
	var dest sampleRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["quantity"])
}

func TestDecodeJSONBodyEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var dest sampleRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.Equal(t, "request body is required", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"abcdefghijklmnop","quantity":1}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 8)
	var dest sampleRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&big=9000", nil)

	v, err := ParseQueryInt(req, "limit", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(req, "missing", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = ParseQueryInt(req, "bad", 50, 1, 500)
	assert.Error(t, err)
	_, err = ParseQueryInt(req, "big", 50, 1, 500)
	assert.Error(t, err)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	got, err := PathUUID(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", id.String()), "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = PathUUID(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "nope"), "id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPathString(t *testing.T) {
	got, err := PathString(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "usn", "  1ab  "), "usn", 10)
	require.NoError(t, err)
	assert.Equal(t, "1ab", got)

	_, err = PathString(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "usn", "  "), "usn", 10)
	assert.Error(t, err)
}
