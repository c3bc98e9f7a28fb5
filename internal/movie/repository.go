package movie

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Movie, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, genre, duration_minutes, rating, price_cents, poster_url, created_at, updated_at
		FROM movies
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := make([]Movie, 0)
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Genre, &m.DurationMinutes, &m.Rating, &m.PriceCents, &m.PosterURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}

	return movies, nil
}

func (r *Repository) Create(ctx context.Context, input MovieInput) (Movie, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Movie{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	m := Movie{
		ID:              id.String(),
		Title:           input.Title,
		Genre:           input.Genre,
		DurationMinutes: input.DurationMinutes,
		Rating:          input.Rating,
		PriceCents:      input.PriceCents,
		PosterURL:       input.PosterURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO movies (id, title, genre, duration_minutes, rating, price_cents, poster_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.Title, m.Genre, m.DurationMinutes, m.Rating, m.PriceCents, m.PosterURL, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return Movie{}, fmt.Errorf("insert movie: %w", err)
	}

	return m, nil
}

func (r *Repository) Update(ctx context.Context, id string, input MovieInput) (Movie, error) {
	var m Movie
	m.UpdatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE movies
		SET title = $2, genre = $3, duration_minutes = $4, rating = $5, price_cents = $6, poster_url = $7, updated_at = $8
		WHERE id = $1
		RETURNING id, title, genre, duration_minutes, rating, price_cents, poster_url, created_at, updated_at
	`, id, input.Title, input.Genre, input.DurationMinutes, input.Rating, input.PriceCents, input.PosterURL, m.UpdatedAt).
		Scan(&m.ID, &m.Title, &m.Genre, &m.DurationMinutes, &m.Rating, &m.PriceCents, &m.PosterURL, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Movie{}, err
		}
		return Movie{}, fmt.Errorf("update movie: %w", err)
	}

	return m, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
