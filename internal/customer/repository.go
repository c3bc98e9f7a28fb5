package customer

import (
	"context"
	"database/sql"
	"errors"
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

const customerColumns = `id, fullname, username, password_hash, email, phone_number, balance, role, created_at, updated_at`

func (r *Repository) GetByUsername(ctx context.Context, username string) (Customer, error) {
	return r.getOne(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE username = $1
	`, username)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Customer, error) {
	return r.getOne(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE email = $1
	`, email)
}

func (r *Repository) GetByID(ctx context.Context, id string) (Customer, error) {
	return r.getOne(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (Customer, error) {
	var c Customer
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID, &c.Fullname, &c.Username, &c.PasswordHash, &c.Email,
		&c.PhoneNumber, &c.Balance, &c.Role, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, err
		}
		return Customer{}, fmt.Errorf("query customer: %w", err)
	}

	return c, nil
}

func (r *Repository) Insert(ctx context.Context, input NewCustomer) (Customer, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Customer{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	role := input.Role
	if role == "" {
		role = RoleCustomer
	}

	now := time.Now().UTC()
	c := Customer{
		ID:           id.String(),
		Fullname:     input.Fullname,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		Email:        input.Email,
		PhoneNumber:  input.PhoneNumber,
		Balance:      0,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO customers (id, fullname, username, password_hash, email, phone_number, balance, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.Fullname, c.Username, c.PasswordHash, c.Email, c.PhoneNumber, c.Balance, c.Role, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return c, nil
}

func (r *Repository) Update(ctx context.Context, c Customer) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET fullname = $2, password_hash = $3, email = $4, phone_number = $5, balance = $6, role = $7, updated_at = $8
		WHERE id = $1
	`, c.ID, c.Fullname, c.PasswordHash, c.Email, c.PhoneNumber, c.Balance, c.Role, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
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
