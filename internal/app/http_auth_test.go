package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"sopdesk/api/internal/authpw"
	"sopdesk/api/internal/store"
)

// userStore is an in-memory authpw.UserStore so the signup/signin flow can
// run end to end without Postgres.
type userStore struct {
	mu     sync.Mutex
	users  map[string]store.User // by ID
	emails map[string]string     // email -> ID
	resets map[string]string     // token -> user ID
}

func newUserStore() *userStore {
	return &userStore{
		users:  make(map[string]store.User),
		emails: make(map[string]string),
		resets: make(map[string]string),
	}
}

func (u *userStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	id, ok := u.emails[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u.users[id], nil
}

func (u *userStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (u *userStore) CreateUser(_ context.Context, user store.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.ID] = user
	u.emails[user.Email] = user.ID
	return nil
}

func (u *userStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	u.users[userID] = user
	return nil
}

func (u *userStore) VerifyUserEmail(_ context.Context, token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for id, user := range u.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			u.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (u *userStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[userID]
	user.PasswordHash = passwordHash
	u.users[userID] = user
	return nil
}

func (u *userStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resets[token] = userID
	return nil
}

func (u *userStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	userID, ok := u.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (u *userStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.resets, token)
	return nil
}

func newAuthServer(t *testing.T) *HTTPServer {
	t.Helper()
	users := newUserStore()
	fs := &fakeStore{
		getUserByIDFn: users.GetUserByID,
	}
	svc := &Service{
		cfg:      testConfig(),
		store:    fs,
		sessions: fs,
		renderer: &fakeRenderer{},
		authpw:   authpw.NewService(users),
	}
	return NewHTTPServer(svc, "*")
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	server := newAuthServer(t)

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", `{"email":"dana@example.com","password":"hunter2hunter2","displayName":"Dana Ortiz"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var signup map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &signup); err != nil {
		t.Fatalf("parse signup response: %v", err)
	}
	verifyToken, _ := signup["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatal("expected dev verification token when SMTP not configured")
	}

	// Signing in before verification is rejected.
	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"email":"dana@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified signin: expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+verifyToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"email":"dana@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var signin map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &signin); err != nil {
		t.Fatalf("parse signin response: %v", err)
	}
	accessToken, _ := signin["accessToken"].(string)
	if accessToken == "" {
		t.Fatal("expected access token")
	}
	if signin["refreshToken"] == "" || signin["userName"] != "Dana Ortiz" {
		t.Fatalf("unexpected signin payload: %v", signin)
	}

	rr = doRequest(server, http.MethodGet, "/api/session", accessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("session: expected 200, got %d", rr.Code)
	}
	var session map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &session); err != nil {
		t.Fatalf("parse session response: %v", err)
	}
	if session["authenticated"] != true || session["userName"] != "Dana Ortiz" {
		t.Fatalf("unexpected session payload: %v", session)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	server := newAuthServer(t)

	body := `{"email":"dana@example.com","password":"hunter2hunter2","displayName":"Dana Ortiz"}`
	if rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("first signup: expected 201, got %d", rr.Code)
	}

	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("expected EMAIL_EXISTS, got %v", payload["code"])
	}
}

func TestPasswordResetFlow(t *testing.T) {
	server := newAuthServer(t)

	signupBody := `{"email":"dana@example.com","password":"hunter2hunter2","displayName":"Dana Ortiz"}`
	rr := doRequest(server, http.MethodPost, "/api/auth/signup", "", signupBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", rr.Code)
	}
	var signup map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &signup)
	verifyToken, _ := signup["devVerificationToken"].(string)
	doRequest(server, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+verifyToken+`"}`)

	rr = doRequest(server, http.MethodPost, "/api/auth/reset-password/request", "", `{"email":"dana@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request: expected 200, got %d", rr.Code)
	}
	var reset map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &reset); err != nil {
		t.Fatalf("parse reset response: %v", err)
	}
	resetToken, _ := reset["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected dev reset token when SMTP not configured")
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/reset-password", "", `{"token":"`+resetToken+`","newPassword":"correcthorsebattery"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"email":"dana@example.com","password":"correcthorsebattery"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin with new password: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/auth/signin", "", `{"email":"dana@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("signin with old password: expected 401, got %d", rr.Code)
	}
}

func TestUnknownEmailResetDoesNotLeak(t *testing.T) {
	server := newAuthServer(t)

	rr := doRequest(server, http.MethodPost, "/api/auth/reset-password/request", "", `{"email":"nobody@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown email, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if _, ok := payload["devResetToken"]; ok {
		t.Fatal("unknown email must not yield a reset token")
	}
}
