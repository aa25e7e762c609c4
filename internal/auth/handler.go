package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/observability"
)

const (
	maxJSONBodyBytes   = 1 << 20
	refreshCookieName  = "refreshToken"
	bearerSchemePrefix = "Bearer"
)

// CookieConfig controls the attributes of the refresh-token cookie. The
// cookie is always HttpOnly; Secure and SameSite come from deployment
// config, MaxAge from the refresh TTL.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
}

type Handler struct {
	service *Service
	logger  *observability.Logger
	cookie  CookieConfig
}

func NewHandler(service *Service, logger *observability.Logger, cookie CookieConfig) *Handler {
	return &Handler{service: service, logger: logger, cookie: cookie}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, "username and password are required")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password too weak")
		case errors.Is(err, ErrUsernameTaken):
			// Generic on purpose: a distinct message would confirm the
			// username exists.
			writeError(w, http.StatusBadRequest, "registration failed")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	h.respondWithTokens(w, pair)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, "username and password are required")
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid username or password")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	h.respondWithTokens(w, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusBadRequest, "refreshToken cookie missing")
		return
	}

	pair, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			h.logger.Info("refresh_rejected", map[string]any{"reason": err.Error()})
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	h.respondWithTokens(w, pair)
}

// Logout always reports success to the client, even when the token was
// already revoked or never existed, and always clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusBadRequest, "refreshToken cookie missing")
		return
	}

	if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization header missing or malformed")
		return
	}

	claims, err := h.service.Verify(token)
	if err != nil {
		h.logger.Info("verify_rejected", map[string]any{"reason": err.Error()})
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "payload": claims})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body credentialsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return credentialsRequest{}, false
	}

	body.Username = strings.TrimSpace(body.Username)
	return body, true
}

func (h *Handler) respondWithTokens(w http.ResponseWriter, pair TokenPair) {
	// Token responses must never be cached by proxies or browsers.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": pair.AccessToken})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.service.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerSchemePrefix) {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
