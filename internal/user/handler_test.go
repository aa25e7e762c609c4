package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	usernames []string
	users     []Summary

	lastQuery string
	lastLimit int
}

func (f *fakeDirectory) Search(_ context.Context, query string, limit int) ([]string, error) {
	f.lastQuery = query
	f.lastLimit = limit
	return f.usernames, nil
}

func (f *fakeDirectory) ByUsernames(_ context.Context, usernames []string) ([]Summary, error) {
	return f.users, nil
}

func doSearch(t *testing.T, handler *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.Search(rec, req)
	return rec
}

func TestSearchValidation(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeDirectory{})

	tests := []struct {
		name   string
		target string
	}{
		{name: "missing q", target: "/search"},
		{name: "too short", target: "/search?q=a"},
		{name: "too long", target: "/search?q=" + strings.Repeat("a", 51)},
		{name: "limit zero", target: "/search?q=alice&limit=0"},
		{name: "limit too high", target: "/search?q=alice&limit=21"},
		{name: "limit not a number", target: "/search?q=alice&limit=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doSearch(t, handler, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchNormalizesQueryAndDefaultsLimit(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{usernames: []string{"alice", "alicia"}}
	handler := NewHandler(directory)

	rec := doSearch(t, handler, "/search?q=%20ALiCe%20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", directory.lastQuery)
	assert.Equal(t, 10, directory.lastLimit)
	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "alice", body["query"])
}

func TestByUsernames(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{users: []Summary{{ID: "1", Username: "alice"}}}
	handler := NewHandler(directory)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ByUsernames(rec, req)
		return rec
	}

	rec := post(`{"usernames":["alice"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	users, ok := body["users"].([]any)
	require.True(t, ok)
	assert.Len(t, users, 1)

	// Empty list short-circuits without touching the store.
	rec = post(`{"usernames":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"usernames":"alice"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}
