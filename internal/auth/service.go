package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cinema-auth/internal/customer"
	"cinema-auth/internal/observability"
)

// Form outcome states, rendered as-is by the login form.
const (
	StateInvalidLength   = "InvalidLength"
	StateWeakPassword    = "WeakPassword"
	StateExistCustomer   = "existCustomer"
	StateRegisterSuccess = "register_success"
	StateTooLong         = "TooLong"
	StateFail            = "fail"
	StateMaxAttempts     = "maxAttempts"
	StateSuccess         = "success"
	StateEmailFound      = "emailFound"
	StateEmailNotFound   = "emailNotFound"
)

const (
	defaultMaxAttempts = 5
	maxFieldLength     = 30
	minFieldLength     = 8
	passwordSymbols    = "@#$%^&+="
)

// CustomerStore is the slice of the credential store the auth flows
// consume.
type CustomerStore interface {
	GetByUsername(ctx context.Context, username string) (customer.Customer, error)
	GetByEmail(ctx context.Context, email string) (customer.Customer, error)
	Insert(ctx context.Context, input customer.NewCustomer) (customer.Customer, error)
	Update(ctx context.Context, c customer.Customer) error
}

// Sender delivers a notification mail. Implementations may fail; the
// flows log such failures without changing their outcome.
type Sender interface {
	Send(to, subject, body string) error
}

type Service struct {
	store       CustomerStore
	mail        Sender
	attempts    *AttemptTracker
	logger      *observability.Logger
	maxAttempts int
}

func NewService(store CustomerStore, mail Sender, attempts *AttemptTracker, logger *observability.Logger) *Service {
	return &Service{
		store:       store,
		mail:        mail,
		attempts:    attempts,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
}

func (s *Service) WithMaxAttempts(maxAttempts int) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
}

type LoginInput struct {
	Username   string
	Password   string
	Code       string
	ClientAddr string
}

type LoginResult struct {
	State     string
	Customer  customer.Customer
	AdminArea bool
	// TryAgain is the number of attempts left before lockout; -1 when
	// the failure is not tracked (unknown username).
	TryAgain int
	CodeSent bool
	// Username and ClientAddr echo the inputs for the lockout page.
	Username   string
	ClientAddr string
}

// Login runs the credential check and lockout state machine for one
// submitted form. CSRF validation happens in the handler before any
// flow runs.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if utf8.RuneCountInString(in.Username) > maxFieldLength ||
		utf8.RuneCountInString(in.Password) > maxFieldLength {
		return LoginResult{State: StateTooLong}, nil
	}

	key := AttemptKey(in.Username, in.ClientAddr)
	attempt, tracked := s.attempts.Get(key)

	if tracked && attempt.Count >= s.maxAttempts {
		return LoginResult{
			State:      StateMaxAttempts,
			Username:   in.Username,
			ClientAddr: in.ClientAddr,
		}, nil
	}

	cust, err := s.store.GetByUsername(ctx, in.Username)
	known := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return LoginResult{}, fmt.Errorf("lookup customer: %w", err)
	}

	credentialsOK := known &&
		bcrypt.CompareHashAndPassword([]byte(cust.PasswordHash), []byte(in.Password)) == nil

	// Below the two-factor threshold the stored code is empty, so an
	// absent code parameter still matches.
	codeOK := !tracked || in.Code == attempt.Code

	if credentialsOK && codeOK {
		s.attempts.Clear(key)
		return LoginResult{
			State:     StateSuccess,
			Customer:  cust,
			AdminArea: cust.Role == customer.RoleAdmin,
		}, nil
	}

	result := LoginResult{State: StateFail, TryAgain: -1}

	// The counter only advances for usernames that exist; failures for
	// unknown usernames are never tracked.
	if known {
		updated := s.attempts.RecordFailure(key, in.Username, in.ClientAddr)
		result.TryAgain = s.maxAttempts - updated.Count

		if updated.Code != "" {
			result.CodeSent = true
			s.sendTwoFactorCode(cust, updated.Code)
		}
	}

	return result, nil
}

func (s *Service) sendTwoFactorCode(cust customer.Customer, code string) {
	subject := "Please check 2 factor authentication code for your NTV Cinema Account"
	body := "Hi " + cust.Fullname + ",\n\n" +
		"You have requested login with 2 factor.\n\n" +
		"Your username is " + cust.Username + ".\n\n" +
		"Your authentication key is: " + code + "\n\n"

	if err := s.mail.Send(cust.Email, subject, body); err != nil {
		s.logger.Error("two_factor_mail_failed", map[string]any{
			"username": cust.Username,
			"error":    err.Error(),
		})
	}
}

type RegisterInput struct {
	Fullname    string
	Username    string
	Password    string
	Email       string
	PhoneNumber string
}

// Register validates the submitted account, checks uniqueness of email
// and username, and inserts the new customer with zero balance.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	if fieldLengthInvalid(in.Fullname) || fieldLengthInvalid(in.Username) {
		return StateInvalidLength, nil
	}

	if !validPassword(in.Password) {
		return StateWeakPassword, nil
	}

	if _, err := s.store.GetByEmail(ctx, in.Email); err == nil {
		return StateExistCustomer, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("check email uniqueness: %w", err)
	}

	if _, err := s.store.GetByUsername(ctx, in.Username); err == nil {
		return StateExistCustomer, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("check username uniqueness: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.store.Insert(ctx, customer.NewCustomer{
		Fullname:     in.Fullname,
		Username:     in.Username,
		PasswordHash: string(hash),
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		Role:         customer.RoleCustomer,
	}); err != nil {
		return "", fmt.Errorf("insert customer: %w", err)
	}

	return StateRegisterSuccess, nil
}

// RecoverPassword replaces the account password with a fresh random one
// and mails it to the registered address. Only the bcrypt hash is
// stored.
func (s *Service) RecoverPassword(ctx context.Context, email string) (string, error) {
	cust, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return StateEmailNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer by email: %w", err)
	}

	newPassword := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash recovery password: %w", err)
	}

	cust.PasswordHash = string(hash)
	if err := s.store.Update(ctx, cust); err != nil {
		return "", fmt.Errorf("update customer password: %w", err)
	}

	subject := "Password Recovery for Your NTV Cinema Account"
	body := "Hi " + cust.Fullname + ",\n\n" +
		"You have requested to recover your password.\n\n" +
		"Your username is " + cust.Username + ".\n\n" +
		"Your new password is: " + newPassword + "\n\n" +
		"Please change this password after logging in for security purposes.\n\n"

	if err := s.mail.Send(cust.Email, subject, body); err != nil {
		s.logger.Error("recovery_mail_failed", map[string]any{
			"username": cust.Username,
			"error":    err.Error(),
		})
	}

	return StateEmailFound, nil
}

// validPassword enforces the registration password policy: at least one
// lowercase letter, one uppercase letter, one digit and one symbol from
// the fixed set, no whitespace, 8 to 30 characters.
// fieldLengthInvalid bounds a field to 8-30 characters, counting runes
// so multibyte names are not penalized.
func fieldLengthInvalid(field string) bool {
	count := utf8.RuneCountInString(field)
	return count < minFieldLength || count > maxFieldLength
}

func validPassword(password string) bool {
	if fieldLengthInvalid(password) {
		return false
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return false
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	return lower && upper && digit && symbol
}
