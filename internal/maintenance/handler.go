package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"cinema-auth/internal/auth"
	"cinema-auth/internal/observability"
	"cinema-auth/internal/session"
)

// CleanupHandler prunes expired in-memory auth state (attempt records
// and sessions). Meant to be hit by a scheduler with the cron secret.
type CleanupHandler struct {
	attempts   *auth.AttemptTracker
	sessions   *session.Store
	logger     *observability.Logger
	cronSecret string
}

func NewCleanupHandler(attempts *auth.AttemptTracker, sessions *session.Store, logger *observability.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		attempts:   attempts,
		sessions:   sessions,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	removedAttempts := h.attempts.Sweep()
	removedSessions := h.sessions.Sweep()

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"removed_attempts": removedAttempts,
		"removed_sessions": removedSessions,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int{
			"removed_attempts": removedAttempts,
			"removed_sessions": removedSessions,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
