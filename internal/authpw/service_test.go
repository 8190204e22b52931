package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"okrops/api/internal/store"
)

type mockProfileStore struct {
	profiles   map[string]store.Profile
	emailIndex map[string]string
	resets     map[string]struct {
		userID string
		used   bool
	}
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{
		profiles:   make(map[string]store.Profile),
		emailIndex: make(map[string]string),
		resets: make(map[string]struct {
			userID string
			used   bool
		}),
	}
}

func (m *mockProfileStore) GetProfileByEmail(ctx context.Context, email string) (store.Profile, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.profiles[id], nil
	}
	return store.Profile{}, errors.New("profile not found")
}

func (m *mockProfileStore) GetProfileByID(ctx context.Context, id string) (store.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return store.Profile{}, errors.New("profile not found")
}

func (m *mockProfileStore) CreateProfile(ctx context.Context, p store.Profile) error {
	m.profiles[p.ID] = p
	m.emailIndex[p.Email] = p.ID
	return nil
}

func (m *mockProfileStore) UpdateProfilePassword(ctx context.Context, userID, passwordHash string) error {
	p, ok := m.profiles[userID]
	if !ok {
		return errors.New("profile not found")
	}
	p.PasswordHash = passwordHash
	m.profiles[userID] = p
	return nil
}

func (m *mockProfileStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID string
		used   bool
	}{userID: userID}
	return nil
}

func (m *mockProfileStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	r, ok := m.resets[token]
	if !ok || r.used {
		return "", errors.New("invalid token")
	}
	return r.userID, nil
}

func (m *mockProfileStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if r, ok := m.resets[token]; ok {
		r.used = true
		m.resets[token] = r
	}
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newMockProfileStore())

	profile, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:    "Ana@Acme.dev",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if profile.Email != "ana@acme.dev" {
		t.Fatalf("expected lowercased email, got %q", profile.Email)
	}
	if profile.Role != "viewer" {
		t.Fatalf("expected viewer default role, got %q", profile.Role)
	}
	if profile.PasswordHash == "password123" {
		t.Fatal("password stored without hashing")
	}

	signedIn, err := svc.SignIn(context.Background(), "ana@acme.dev", "password123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signedIn.ID != profile.ID {
		t.Fatalf("expected profile %s, got %s", profile.ID, signedIn.ID)
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	svc := NewService(newMockProfileStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.dev", Password: "short"}); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMockProfileStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.dev", Password: "password123"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.dev", Password: "password123"}); err == nil {
		t.Fatal("expected duplicate email error")
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	svc := NewService(newMockProfileStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.dev", Password: "password123"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.dev", "wrong-password"); err == nil {
		t.Fatal("expected auth failure")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	mock := newMockProfileStore()
	svc := NewService(mock)

	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.dev", Password: "password123"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	token, err := svc.RequestPasswordReset(context.Background(), "a@b.dev")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if token == "" {
		t.Fatal("expected reset token for known email")
	}

	if err := svc.ResetPassword(context.Background(), token, "newpassword456"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.dev", "newpassword456"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.dev", "password123"); err == nil {
		t.Fatal("old password should no longer work")
	}

	// The token is single use.
	if err := svc.ResetPassword(context.Background(), token, "anotherpass789"); err == nil {
		t.Fatal("expected used token to be rejected")
	}
}

func TestRequestPasswordResetHidesUnknownEmail(t *testing.T) {
	svc := NewService(newMockProfileStore())
	token, err := svc.RequestPasswordReset(context.Background(), "nobody@b.dev")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not produce a token")
	}
}
