package movie

import "time"

type Movie struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Genre           string    `json:"genre"`
	DurationMinutes int       `json:"duration_minutes"`
	Rating          string    `json:"rating"`
	PriceCents      int64     `json:"price_cents"`
	PosterURL       string    `json:"poster_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type MovieInput struct {
	Title           string `json:"title"`
	Genre           string `json:"genre"`
	DurationMinutes int    `json:"duration_minutes"`
	Rating          string `json:"rating"`
	PriceCents      int64  `json:"price_cents"`
	PosterURL       string `json:"poster_url"`
}
