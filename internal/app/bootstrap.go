package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cinema-auth/internal/auth"
	"cinema-auth/internal/customer"
	"cinema-auth/internal/db"
	"cinema-auth/internal/mailer"
	"cinema-auth/internal/maintenance"
	"cinema-auth/internal/movie"
	"cinema-auth/internal/observability"
	"cinema-auth/internal/session"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole application from environment configuration. It
// is shared by the server entrypoint and the serverless adapter.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	smtpConfigPath, err := mustEnv("SMTP_CONFIG_PATH")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Warn("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	smtpConfig, err := mailer.LoadConfig(smtpConfigPath)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	mailClient, err := mailer.NewClient(smtpConfig, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	customerRepo := customer.NewRepository(database)
	attempts := auth.NewAttemptTracker(envMinutesOrDefault("LOGIN_ATTEMPT_TTL_MINUTES", 15))
	sessions := session.NewStore(envHoursOrDefault("SESSION_TTL_HOURS", 24))

	authService := auth.NewService(customerRepo, mailClient, attempts, logger)
	authService.WithMaxAttempts(envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5))
	authHandler := auth.NewHandler(authService, sessions, logger, jwtSecret, envOrDefault("APP_PATH", "/"))

	movieRepo := movie.NewRepository(database)
	movieHandler := movie.NewHandler(movieRepo)

	cleanupHandler := maintenance.NewCleanupHandler(attempts, sessions, logger, os.Getenv("CRON_SECRET"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", authHandler.LoginPage)
	mux.HandleFunc("POST /login", authHandler.LoginActions)
	mux.HandleFunc("POST /logout", authHandler.Logout)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("GET /movies", movieHandler.ListMovies)
	mux.Handle("GET /admin/movies", auth.AdminMiddleware(jwtSecret, http.HandlerFunc(movieHandler.ListMovies)))
	mux.Handle("POST /admin/movies", auth.AdminMiddleware(jwtSecret, http.HandlerFunc(movieHandler.CreateMovie)))
	mux.Handle("PUT /admin/movies/{id}", auth.AdminMiddleware(jwtSecret, http.HandlerFunc(movieHandler.UpdateMovie)))
	mux.Handle("DELETE /admin/movies/{id}", auth.AdminMiddleware(jwtSecret, http.HandlerFunc(movieHandler.DeleteMovie)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			mailClient.Close()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
