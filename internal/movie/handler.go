package movie

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const maxJSONBodyBytes = 1 << 20

var allowedRatings = map[string]bool{
	"": true, "G": true, "PG": true, "PG-13": true, "R": true, "NC-17": true,
}

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list movies")
		return
	}

	writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.repo.Create(r.Context(), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create movie")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update movie")
		sentry.CaptureException(err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	err := h.repo.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete movie")
		sentry.CaptureException(err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseInput(w http.ResponseWriter, r *http.Request) (MovieInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input MovieInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return MovieInput{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Genre = strings.TrimSpace(input.Genre)
	input.Rating = strings.TrimSpace(input.Rating)
	input.PosterURL = strings.TrimSpace(input.PosterURL)

	if input.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return MovieInput{}, false
	}
	if !utf8.ValidString(input.Title) || len(input.Title) > 150 {
		writeError(w, http.StatusBadRequest, "title is invalid")
		return MovieInput{}, false
	}
	if !utf8.ValidString(input.Genre) || len(input.Genre) > 50 {
		writeError(w, http.StatusBadRequest, "genre is invalid")
		return MovieInput{}, false
	}
	if input.DurationMinutes <= 0 || input.DurationMinutes > 600 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be between 1 and 600")
		return MovieInput{}, false
	}
	if !allowedRatings[input.Rating] {
		writeError(w, http.StatusBadRequest, "rating is invalid")
		return MovieInput{}, false
	}
	if input.PriceCents < 0 {
		writeError(w, http.StatusBadRequest, "price_cents must be >= 0")
		return MovieInput{}, false
	}
	if input.PosterURL != "" {
		parsedURL, err := url.ParseRequestURI(input.PosterURL)
		if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
			writeError(w, http.StatusBadRequest, "poster_url must be a valid http(s) link")
			return MovieInput{}, false
		}
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
