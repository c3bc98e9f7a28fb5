package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"cinema-auth/internal/observability"
	"cinema-auth/internal/session"
)

const (
	maxFormBodyBytes = 1 << 20

	rememberCookieName = "customerId"
	rememberCookieAge  = 24 * time.Hour

	adminTokenTTL = time.Hour
)

type Handler struct {
	service   *Service
	sessions  *session.Store
	logger    *observability.Logger
	jwtSecret string
	// appPath scopes the remember-me cookie; "/" unless the app is
	// mounted under a prefix.
	appPath string
}

func NewHandler(service *Service, sessions *session.Store, logger *observability.Logger, jwtSecret, appPath string) *Handler {
	if appPath == "" {
		appPath = "/"
	}

	return &Handler{
		service:   service,
		sessions:  sessions,
		logger:    logger,
		jwtSecret: jwtSecret,
		appPath:   appPath,
	}
}

// LoginPage starts (or refreshes) a session and hands the form a fresh
// CSRF token.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFromRequest(r)
	if sess == nil {
		var err error
		sess, err = h.sessions.Create()
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to start session")
			return
		}
	}

	token := sess.RotateCSRF()

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.ID,
		Path:     h.appPath,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})

	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// LoginActions dispatches the POSTed form by its action parameter.
// Every action requires the session's CSRF token.
func (h *Handler) LoginActions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	sess := h.sessionFromRequest(r)
	submitted := r.PostFormValue("csrfToken")
	if sess == nil || sess.CSRFToken() == "" || sess.CSRFToken() != submitted {
		writeError(w, http.StatusForbidden, "request rejected")
		return
	}

	switch r.PostFormValue("action") {
	case "register":
		h.register(w, r)
	case "login":
		h.login(w, r, sess)
	case "recoverPassword":
		h.recoverPassword(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Register(r.Context(), RegisterInput{
		Fullname:    r.PostFormValue("fullname"),
		Username:    r.PostFormValue("username"),
		Password:    r.PostFormValue("password"),
		Email:       r.PostFormValue("email"),
		PhoneNumber: r.PostFormValue("phoneNumber"),
	})
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	result, err := h.service.Login(r.Context(), LoginInput{
		Username:   r.PostFormValue("username"),
		Password:   r.PostFormValue("password"),
		Code:       r.PostFormValue("code"),
		ClientAddr: observability.ClientIP(r),
	})
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	switch result.State {
	case StateSuccess:
		sess.SetCustomer(result.Customer.ID, result.Customer.Role)

		if r.PostFormValue("remember") == "on" {
			http.SetCookie(w, &http.Cookie{
				Name:     rememberCookieName,
				Value:    result.Customer.ID,
				Path:     h.appPath,
				MaxAge:   int(rememberCookieAge.Seconds()),
				HttpOnly: true,
			})
		}

		if result.AdminArea {
			token, err := IssueAdminToken(h.jwtSecret, result.Customer.ID, adminTokenTTL)
			if err != nil {
				sentry.CaptureException(err)
				writeError(w, http.StatusInternalServerError, "failed to login")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     adminCookieName,
				Value:    token,
				Path:     h.appPath,
				MaxAge:   int(adminTokenTTL.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			http.Redirect(w, r, "/admin/movies", http.StatusSeeOther)
			return
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)

	case StateMaxAttempts:
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"state":     StateMaxAttempts,
			"username":  result.Username,
			"ipAddress": result.ClientAddr,
		})

	case StateTooLong:
		writeJSON(w, http.StatusBadRequest, map[string]string{"state": StateTooLong})

	default:
		payload := map[string]any{"state": StateFail}
		if result.TryAgain >= 0 {
			payload["tryAgain"] = result.TryAgain
		}
		if result.CodeSent {
			payload["sendCode"] = true
		}
		writeJSON(w, http.StatusUnauthorized, payload)
	}
}

func (h *Handler) recoverPassword(w http.ResponseWriter, r *http.Request) {
	emailForgot := r.PostFormValue("emailForgot")
	state, err := h.service.RecoverPassword(r.Context(), emailForgot)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to recover password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"state":       state,
		"emailForgot": emailForgot,
	})
}

// Logout destroys the server-side session and expires the auth cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		h.sessions.Destroy(cookie.Value)
	}

	for _, name := range []string{session.CookieName, rememberCookieName, adminCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.appPath,
			MaxAge:   -1,
			HttpOnly: true,
		})
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) sessionFromRequest(r *http.Request) *session.Session {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil
	}

	sess, ok := h.sessions.Get(cookie.Value)
	if !ok {
		return nil
	}

	return sess
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
