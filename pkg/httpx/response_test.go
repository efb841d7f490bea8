package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusCreated, map[string]int{"people_count": 7})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"people_count":7}`, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, errors.New("bad date"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Bad Request","message":"bad date"}`, rec.Body.String())
}

func TestRespondCached_NotModified(t *testing.T) {
	data := []int{1, 2, 3}

	first := httptest.NewRecorder()
	RespondCached(first, httptest.NewRequest(http.MethodGet, "/", nil), data)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	RespondCached(second, req, data)
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())

	req.Header.Set("If-None-Match", `"stale"`)
	third := httptest.NewRecorder()
	RespondCached(third, req, data)
	assert.Equal(t, http.StatusOK, third.Code)
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	body := `{"data":"` + strings.Repeat("x", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var v map[string]string
	err := DecodeJSON(rec, req, 16, &v)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	require.NoError(t, DecodeJSON(rec, req, 1024, &v))
	assert.Len(t, v["data"], 64)
}
