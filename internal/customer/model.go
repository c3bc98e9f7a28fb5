package customer

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type Customer struct {
	ID           string    `json:"id"`
	Fullname     string    `json:"fullname"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phone_number"`
	Balance      int64     `json:"balance"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewCustomer carries the fields needed to create an account. The
// repository fills in id and timestamps.
type NewCustomer struct {
	Fullname     string
	Username     string
	PasswordHash string
	Email        string
	PhoneNumber  string
	Role         string
}
