package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-service/internal/observability"
)

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()

	store := newMemStore()
	service := newTestService(store)
	handler := NewHandler(service, observability.NewLogger(), CookieConfig{
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", handler.Register)
	mux.HandleFunc("POST /login", handler.Login)
	mux.HandleFunc("POST /refresh", handler.Refresh)
	mux.HandleFunc("POST /logout", handler.Logout)
	mux.HandleFunc("GET /verify", handler.Verify)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "refreshToken" {
			return cookie
		}
	}
	return nil
}

func doWithCookie(t *testing.T, method, url string, cookie *http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRegisterRefreshLogoutScenario(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	// Register alice: access token in the body, refresh token in a
	// hardened cookie.
	resp := postJSON(t, server.URL+"/register", `{"username":"alice","password":"Passw0rd1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))

	accessToken, _ := decodeBody(t, resp)["accessToken"].(string)
	require.NotEmpty(t, accessToken)

	r1 := refreshCookie(resp)
	require.NotNil(t, r1)
	assert.True(t, r1.HttpOnly)
	assert.True(t, r1.Secure)
	assert.Equal(t, http.SameSiteStrictMode, r1.SameSite)
	assert.Equal(t, "/", r1.Path)
	assert.Equal(t, 30*24*60*60, r1.MaxAge)
	assert.NotEmpty(t, r1.Value)

	// Refresh with R1 rotates the pair.
	resp = doWithCookie(t, http.MethodPost, server.URL+"/refresh", r1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	a2, _ := decodeBody(t, resp)["accessToken"].(string)
	require.NotEmpty(t, a2)
	r2 := refreshCookie(resp)
	require.NotNil(t, r2)
	require.NotEqual(t, r1.Value, r2.Value)

	// R1 was consumed by the rotation.
	resp = doWithCookie(t, http.MethodPost, server.URL+"/refresh", r1)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logout with R2 succeeds and clears the cookie.
	resp = doWithCookie(t, http.MethodPost, server.URL+"/logout", r2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["success"])

	cleared := refreshCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// R2 is gone too.
	resp = doWithCookie(t, http.MethodPost, server.URL+"/refresh", r2)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	// 7 characters: below the strength floor.
	resp := postJSON(t, server.URL+"/register", `{"username":"bob","password":"short1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password too weak", decodeBody(t, resp)["error"])

	resp = postJSON(t, server.URL+"/register", `{"username":"","password":"Passw0rd1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/register", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterDuplicateIsGeneric(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/register", `{"username":"carol","password":"Passw0rd1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/register", `{"username":"carol","password":"Another1pw"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "registration failed", decodeBody(t, resp)["error"])

	// The original credentials still log in.
	resp = postJSON(t, server.URL+"/login", `{"username":"carol","password":"Passw0rd1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/register", `{"username":"alice","password":"Passw0rd1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wrongPassword := postJSON(t, server.URL+"/login", `{"username":"alice","password":"WrongPass1"}`)
	unknownUser := postJSON(t, server.URL+"/login", `{"username":"mallory","password":"WrongPass1"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)
	assert.Equal(t, decodeBody(t, wrongPassword)["error"], decodeBody(t, unknownUser)["error"])
}

func TestRefreshAndLogoutRequireCookie(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/refresh", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/logout", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/register", `{"username":"alice","password":"Passw0rd1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _ := decodeBody(t, resp)["accessToken"].(string)
	require.NotEmpty(t, accessToken)

	get := func(authorization string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/verify", nil)
		require.NoError(t, err)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		r, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { r.Body.Close() })
		return r
	}

	resp = get("Bearer " + accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	payload, ok := body["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", payload["sub"])

	assert.Equal(t, http.StatusUnauthorized, get("").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("Basic "+accessToken).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+accessToken+"tampered").StatusCode)
}
