package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminCookieName = "admin_token"

// IssueAdminToken creates the short-lived token that authorizes the
// admin area after a role-checked login.
func IssueAdminToken(jwtSecret, customerID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": customerID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": "admin",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign admin jwt: %w", err)
	}

	return encoded, nil
}

// AdminMiddleware guards admin routes. It accepts the admin token from
// the cookie set at login or from a Bearer header.
func AdminMiddleware(jwtSecret string, next http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := adminTokenFromRequest(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if tokenType, _ := claims["typ"].(string); tokenType != "admin" {
			writeError(w, http.StatusUnauthorized, "invalid token type")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func adminTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(adminCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
