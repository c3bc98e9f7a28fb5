package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cinema-auth/internal/customer"
	"cinema-auth/internal/observability"
)

type mockStore struct {
	byUsername map[string]customer.Customer
	byEmail    map[string]customer.Customer
	inserted   []customer.NewCustomer
	updated    []customer.Customer
}

func newMockStore() *mockStore {
	return &mockStore{
		byUsername: make(map[string]customer.Customer),
		byEmail:    make(map[string]customer.Customer),
	}
}

func (m *mockStore) add(c customer.Customer) {
	m.byUsername[c.Username] = c
	m.byEmail[c.Email] = c
}

func (m *mockStore) GetByUsername(ctx context.Context, username string) (customer.Customer, error) {
	c, ok := m.byUsername[username]
	if !ok {
		return customer.Customer{}, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockStore) GetByEmail(ctx context.Context, email string) (customer.Customer, error) {
	c, ok := m.byEmail[email]
	if !ok {
		return customer.Customer{}, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockStore) Insert(ctx context.Context, input customer.NewCustomer) (customer.Customer, error) {
	m.inserted = append(m.inserted, input)
	c := customer.Customer{
		ID:           "c-1",
		Fullname:     input.Fullname,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		Email:        input.Email,
		PhoneNumber:  input.PhoneNumber,
		Role:         input.Role,
	}
	m.add(c)
	return c, nil
}

func (m *mockStore) Update(ctx context.Context, c customer.Customer) error {
	m.updated = append(m.updated, c)
	m.add(c)
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type mockSender struct {
	sent []sentMail
	err  error
}

func (m *mockSender) Send(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func newTestService(t *testing.T) (*Service, *mockStore, *mockSender, *AttemptTracker) {
	t.Helper()
	store := newMockStore()
	mail := &mockSender{}
	tracker := NewAttemptTracker(15 * time.Minute)
	service := NewService(store, mail, tracker, observability.NewLogger())
	return service, store, mail, tracker
}

func addBob(t *testing.T, store *mockStore) customer.Customer {
	t.Helper()
	bob := customer.Customer{
		ID:           "c-bob",
		Fullname:     "Bob Example",
		Username:     "bob12345",
		PasswordHash: hashFor(t, "Abcdef1@"),
		Email:        "bob@example.com",
		Role:         customer.RoleCustomer,
	}
	store.add(bob)
	return bob
}

func TestLoginFirstAttemptSuccess(t *testing.T) {
	service, store, _, tracker := newTestService(t)
	bob := addBob(t, store)

	result, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateSuccess {
		t.Fatalf("expected success, got %s", result.State)
	}
	if result.Customer.ID != bob.ID {
		t.Fatalf("expected customer %s, got %s", bob.ID, result.Customer.ID)
	}
	if result.AdminArea {
		t.Fatal("regular customer must not reach the admin area")
	}
	if tracker.Len() != 0 {
		t.Fatalf("expected no attempt records, got %d", tracker.Len())
	}
}

func TestLoginAdminRole(t *testing.T) {
	service, store, _, _ := newTestService(t)
	store.add(customer.Customer{
		ID:           "c-admin",
		Fullname:     "Admin Example",
		Username:     "cinemaboss",
		PasswordHash: hashFor(t, "Abcdef1@"),
		Email:        "admin@example.com",
		Role:         customer.RoleAdmin,
	})

	result, err := service.Login(context.Background(), LoginInput{
		Username:   "cinemaboss",
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateSuccess || !result.AdminArea {
		t.Fatalf("expected admin success, got state %s adminArea %v", result.State, result.AdminArea)
	}
}

func TestLoginTooLong(t *testing.T) {
	service, _, _, _ := newTestService(t)

	result, err := service.Login(context.Background(), LoginInput{
		Username:   strings.Repeat("a", 31),
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateTooLong {
		t.Fatalf("expected TooLong, got %s", result.State)
	}
}

func TestLoginLengthLimitCountsCharacters(t *testing.T) {
	service, _, _, _ := newTestService(t)

	// 30 characters but 60 bytes; must pass the length gate and fall
	// through to the normal unknown-username failure.
	username := strings.Repeat("é", 30)
	result, err := service.Login(context.Background(), LoginInput{
		Username:   username,
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State == StateTooLong {
		t.Fatal("30-character multibyte username must not be rejected as too long")
	}
	if result.State != StateFail {
		t.Fatalf("expected fail, got %s", result.State)
	}
}

func TestLoginUnknownUsernameIsNotTracked(t *testing.T) {
	service, _, mail, tracker := newTestService(t)

	result, err := service.Login(context.Background(), LoginInput{
		Username:   "nosuchuser",
		Password:   "whatever1@A",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateFail {
		t.Fatalf("expected fail, got %s", result.State)
	}
	if result.TryAgain != -1 {
		t.Fatalf("expected untracked failure, got tryAgain %d", result.TryAgain)
	}
	if tracker.Len() != 0 {
		t.Fatal("counter must not advance for unknown usernames")
	}
	if len(mail.sent) != 0 {
		t.Fatal("no mail for unknown usernames")
	}
}

func TestLoginThirdFailureSendsCode(t *testing.T) {
	service, store, mail, tracker := newTestService(t)
	bob := addBob(t, store)

	var result LoginResult
	var err error
	for i := 0; i < 3; i++ {
		result, err = service.Login(context.Background(), LoginInput{
			Username:   "bob12345",
			Password:   "wrong-password",
			ClientAddr: "1.2.3.4",
		})
		if err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", i+1, err)
		}
		if result.State != StateFail {
			t.Fatalf("expected fail on attempt %d, got %s", i+1, result.State)
		}
	}

	if !result.CodeSent {
		t.Fatal("expected sendCode flag on the third failure")
	}
	if result.TryAgain != 2 {
		t.Fatalf("expected 2 remaining attempts, got %d", result.TryAgain)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected exactly one mail, got %d", len(mail.sent))
	}
	if mail.sent[0].to != bob.Email {
		t.Fatalf("mail went to %s, want %s", mail.sent[0].to, bob.Email)
	}

	attempt, ok := tracker.Get(AttemptKey("bob12345", "1.2.3.4"))
	if !ok || attempt.Code == "" {
		t.Fatal("expected stored one-time code after third failure")
	}
	if !strings.Contains(mail.sent[0].body, attempt.Code) {
		t.Fatal("mail body must contain the one-time code")
	}
}

func TestLoginCodeRequiredAfterThreshold(t *testing.T) {
	service, store, _, tracker := newTestService(t)
	addBob(t, store)

	for i := 0; i < 3; i++ {
		if _, err := service.Login(context.Background(), LoginInput{
			Username:   "bob12345",
			Password:   "wrong-password",
			ClientAddr: "1.2.3.4",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Correct password without the emailed code still fails.
	result, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateFail {
		t.Fatalf("expected fail without code, got %s", result.State)
	}

	attempt, ok := tracker.Get(AttemptKey("bob12345", "1.2.3.4"))
	if !ok {
		t.Fatal("expected live attempt record")
	}

	result, err = service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		Code:       attempt.Code,
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateSuccess {
		t.Fatalf("expected success with code, got %s", result.State)
	}
	if tracker.Len() != 0 {
		t.Fatal("successful login must clear the attempt record")
	}
}

func TestLoginBelowThresholdAcceptsEmptyCode(t *testing.T) {
	service, store, _, _ := newTestService(t)
	addBob(t, store)

	if _, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "wrong-password",
		ClientAddr: "1.2.3.4",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateSuccess {
		t.Fatalf("expected success below threshold without code, got %s", result.State)
	}
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	service, store, _, tracker := newTestService(t)
	addBob(t, store)

	for i := 0; i < 5; i++ {
		result, err := service.Login(context.Background(), LoginInput{
			Username:   "bob12345",
			Password:   "wrong-password",
			ClientAddr: "1.2.3.4",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.State != StateFail {
			t.Fatalf("expected fail on attempt %d, got %s", i+1, result.State)
		}

		attempt, _ := tracker.Get(AttemptKey("bob12345", "1.2.3.4"))
		if attempt.Count != i+1 {
			t.Fatalf("expected count %d, got %d", i+1, attempt.Count)
		}
	}

	// Even the right password is refused once locked out.
	result, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		ClientAddr: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateMaxAttempts {
		t.Fatalf("expected lockout, got %s", result.State)
	}
	if result.Username != "bob12345" || result.ClientAddr != "1.2.3.4" {
		t.Fatalf("lockout must echo username and address, got %+v", result)
	}

	attempt, _ := tracker.Get(AttemptKey("bob12345", "1.2.3.4"))
	if attempt.Count != 5 {
		t.Fatalf("locked-out attempts must not advance the counter, got %d", attempt.Count)
	}
}

func TestLoginLockoutIsPerAddress(t *testing.T) {
	service, store, _, _ := newTestService(t)
	addBob(t, store)

	for i := 0; i < 5; i++ {
		if _, err := service.Login(context.Background(), LoginInput{
			Username:   "bob12345",
			Password:   "wrong-password",
			ClientAddr: "1.2.3.4",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := service.Login(context.Background(), LoginInput{
		Username:   "bob12345",
		Password:   "Abcdef1@",
		ClientAddr: "5.6.7.8",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateSuccess {
		t.Fatalf("lockout should be scoped to the failing address, got %s", result.State)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
		want  string
	}{
		{
			name: "short fullname",
			input: RegisterInput{
				Fullname: "Bob", Username: "bob12345",
				Password: "Abcdef1@", Email: "bob@example.com",
			},
			want: StateInvalidLength,
		},
		{
			name: "short username",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob",
				Password: "Abcdef1@", Email: "bob@example.com",
			},
			want: StateInvalidLength,
		},
		{
			name: "long username",
			input: RegisterInput{
				Fullname: "Bob Example", Username: strings.Repeat("b", 31),
				Password: "Abcdef1@", Email: "bob@example.com",
			},
			want: StateInvalidLength,
		},
		{
			name: "no uppercase",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob12345",
				Password: "alllowercase1@", Email: "bob@example.com",
			},
			want: StateWeakPassword,
		},
		{
			name: "no lowercase",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob12345",
				Password: "ALLUPPER1@", Email: "bob@example.com",
			},
			want: StateWeakPassword,
		},
		{
			name: "no symbol",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob12345",
				Password: "Abcdefg1", Email: "bob@example.com",
			},
			want: StateWeakPassword,
		},
		{
			name: "contains space",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob12345",
				Password: "Abcd ef1@", Email: "bob@example.com",
			},
			want: StateWeakPassword,
		},
		{
			name: "valid",
			input: RegisterInput{
				Fullname: "Bob Example", Username: "bob12345",
				Password: "Abcdef1@", Email: "bob@example.com",
			},
			want: StateRegisterSuccess,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			service, _, _, _ := newTestService(t)
			state, err := service.Register(context.Background(), test.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state != test.want {
				t.Fatalf("expected %s, got %s", test.want, state)
			}
		})
	}
}

func TestRegisterCountsCharactersNotBytes(t *testing.T) {
	service, _, _, _ := newTestService(t)

	// Every field sits inside the 8-30 character window while exceeding
	// 30 bytes (or the byte minimum) once encoded.
	state, err := service.Register(context.Background(), RegisterInput{
		Fullname: strings.Repeat("é", 30),
		Username: strings.Repeat("ü", 10),
		Password: "Abcdef1@" + strings.Repeat("é", 22),
		Email:    "accents@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateRegisterSuccess {
		t.Fatalf("expected register_success for multibyte fields, got %s", state)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	service, store, _, _ := newTestService(t)
	addBob(t, store)

	state, err := service.Register(context.Background(), RegisterInput{
		Fullname: "Other Person", Username: "othername1",
		Password: "Abcdef1@", Email: "bob@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateExistCustomer {
		t.Fatalf("expected existCustomer for duplicate email, got %s", state)
	}

	state, err = service.Register(context.Background(), RegisterInput{
		Fullname: "Other Person", Username: "bob12345",
		Password: "Abcdef1@", Email: "other@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateExistCustomer {
		t.Fatalf("expected existCustomer for duplicate username, got %s", state)
	}
}

func TestRegisterStoresHashedPassword(t *testing.T) {
	service, store, _, _ := newTestService(t)

	state, err := service.Register(context.Background(), RegisterInput{
		Fullname: "Bob Example", Username: "bob12345",
		Password: "Abcdef1@", Email: "bob@example.com", PhoneNumber: "555-0100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateRegisterSuccess {
		t.Fatalf("expected register_success, got %s", state)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(store.inserted))
	}

	inserted := store.inserted[0]
	if inserted.Role != customer.RoleCustomer {
		t.Fatalf("expected customer role, got %s", inserted.Role)
	}
	if inserted.PasswordHash == "Abcdef1@" {
		t.Fatal("password must not be stored in cleartext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(inserted.PasswordHash), []byte("Abcdef1@")); err != nil {
		t.Fatalf("stored hash does not match the password: %v", err)
	}
}

func TestRecoverPasswordUnknownEmail(t *testing.T) {
	service, store, mail, _ := newTestService(t)

	state, err := service.RecoverPassword(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateEmailNotFound {
		t.Fatalf("expected emailNotFound, got %s", state)
	}
	if len(mail.sent) != 0 {
		t.Fatal("no mail for unknown email")
	}
	if len(store.updated) != 0 {
		t.Fatal("no update for unknown email")
	}
}

func TestRecoverPasswordReplacesAndMails(t *testing.T) {
	service, store, mail, _ := newTestService(t)
	bob := addBob(t, store)

	state, err := service.RecoverPassword(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateEmailFound {
		t.Fatalf("expected emailFound, got %s", state)
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(store.updated))
	}
	if store.updated[0].PasswordHash == bob.PasswordHash {
		t.Fatal("expected a new password hash")
	}
	if len(mail.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mail.sent))
	}

	body := mail.sent[0].body
	marker := "Your new password is: "
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatal("mail body must contain the new password")
	}
	rest := body[idx+len(marker):]
	newPassword := rest[:strings.Index(rest, "\n")]
	if err := bcrypt.CompareHashAndPassword([]byte(store.updated[0].PasswordHash), []byte(newPassword)); err != nil {
		t.Fatalf("mailed password does not match the stored hash: %v", err)
	}
}

func TestRecoverPasswordMailFailureIsSwallowed(t *testing.T) {
	service, store, mail, _ := newTestService(t)
	addBob(t, store)
	mail.err = errors.New("smtp unreachable")

	state, err := service.RecoverPassword(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("mail failure must not surface: %v", err)
	}
	if state != StateEmailFound {
		t.Fatalf("expected emailFound despite mail failure, got %s", state)
	}
	if len(store.updated) != 1 {
		t.Fatal("password update must still happen")
	}
}
