package user

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
)

const (
	maxJSONBodyBytes = 1 << 20

	minQueryLength = 2
	maxQueryLength = 50
	defaultLimit   = 10
	maxLimit       = 20
)

// Directory is the read-only lookup surface the handler needs;
// *Repository is the production implementation.
type Directory interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	ByUsernames(ctx context.Context, usernames []string) ([]Summary, error)
}

type Handler struct {
	directory Directory
}

func NewHandler(directory Directory) *Handler {
	return &Handler{directory: directory}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		writeError(w, http.StatusBadRequest, `query parameter "q" is required`)
		return
	}
	if len(query) < minQueryLength {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters long")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "query too long (max 50 characters)")
		return
	}

	limit := defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 20")
			return
		}
		limit = parsed
	}

	usernames, err := h.directory.Search(r.Context(), query, limit)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to search users")
		return
	}

	// Search results are not sensitive and change slowly; a short shared
	// cache takes load off repeated queries.
	w.Header().Set("Cache-Control", "public, max-age=30")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"usernames": usernames,
		"count":     len(usernames),
		"query":     query,
	})
}

type byUsernamesRequest struct {
	Usernames []string `json:"usernames"`
}

func (h *Handler) ByUsernames(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body byUsernamesRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "usernames array is required")
		return
	}
	if body.Usernames == nil {
		writeError(w, http.StatusBadRequest, "usernames array is required")
		return
	}

	if len(body.Usernames) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": []Summary{}})
		return
	}

	users, err := h.directory.ByUsernames(r.Context(), body.Usernames)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
