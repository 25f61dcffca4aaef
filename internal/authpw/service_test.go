package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"sopdesk/api/internal/store"
)

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users         map[string]store.User
	emailIndex    map[string]string // email -> userID
	verifications map[string]store.User
	resets        map[string]struct {
		userID    string
		expiresAt time.Time
		used      bool
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:         make(map[string]store.User),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]store.User),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if user, ok := m.users[userID]; ok {
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
		m.users[userID] = user
		m.verifications[token] = user
	}
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	if user, ok := m.verifications[token]; ok {
		user.IsEmailVerified = true
		m.users[user.ID] = user
		m.emailIndex[user.Email] = user.ID
		return nil
	}
	return errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID    string
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt, used: false}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("successful sign up", func(t *testing.T) {
		svc := NewService(newMockUserStore())
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "dana@example.com",
			Password:    "password123",
			DisplayName: "Dana",
		})
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if resp.UserID == "" {
			t.Error("expected user ID")
		}
		if resp.VerificationToken == "" {
			t.Error("expected verification token")
		}
		if !resp.RequiresEmailVerify {
			t.Error("expected RequiresEmailVerify")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc := NewService(newMockUserStore())
		req := SignUpRequest{Email: "dana@example.com", Password: "password123", DisplayName: "Dana"}
		if _, err := svc.SignUp(ctx, req); err != nil {
			t.Fatalf("first SignUp() error = %v", err)
		}
		if _, err := svc.SignUp(ctx, req); !errors.Is(err, ErrEmailExists) {
			t.Fatalf("expected ErrEmailExists, got %v", err)
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		svc := NewService(newMockUserStore())
		if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "A"}); err == nil {
			t.Fatal("expected error for short password")
		}
	})

	t.Run("normalizes email case", func(t *testing.T) {
		ms := newMockUserStore()
		svc := NewService(ms)
		if _, err := svc.SignUp(ctx, SignUpRequest{Email: "Dana@Example.COM", Password: "password123", DisplayName: "Dana"}); err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if _, ok := ms.emailIndex["dana@example.com"]; !ok {
			t.Error("expected email stored lowercased")
		}
	})
}

func TestSignInFlow(t *testing.T) {
	ctx := context.Background()
	ms := newMockUserStore()
	svc := NewService(ms)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "dana@example.com",
		Password:    "password123",
		DisplayName: "Dana",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("unverified account requires verify", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if !signIn.RequiresVerify {
			t.Error("expected RequiresVerify for unverified account")
		}
	})

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	t.Run("verified account signs in", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if signIn.RequiresVerify {
			t.Error("did not expect RequiresVerify after verification")
		}
		if signIn.User.Role != "author" {
			t.Errorf("expected default role author, got %q", signIn.User.Role)
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "wrong-password"}); err == nil {
			t.Fatal("expected error for wrong password")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	ms := newMockUserStore()
	svc := NewService(ms)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "dana@example.com",
		Password:    "password123",
		DisplayName: "Dana",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "dana@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected reset token for existing account")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "new-password-1"}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "dana@example.com", Password: "new-password-1"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}

	t.Run("unknown email does not leak", func(t *testing.T) {
		token, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
		if err != nil {
			t.Fatalf("RequestPasswordReset() error = %v", err)
		}
		if token != "" {
			t.Error("expected empty token for unknown email")
		}
	})
}
