package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"expensetracker/internal/core"

	"golang.org/x/crypto/bcrypt"
)

func TestUserService_SignUpAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	svc := NewUserService(repo, bcrypt.MinCost)

	u, err := svc.SignUp(ctx, SignUpInput{Username: "mario", Name: "Mario", Password: "secret1", Gender: "male"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if u.PasswordHash == "secret1" || u.PasswordHash == "" {
		t.Fatalf("password not hashed")
	}
	if !strings.Contains(u.ProfilePicture, "/boy?username=mario") {
		t.Fatalf("unexpected profile picture %q", u.ProfilePicture)
	}

	got, err := svc.Authenticate(ctx, "mario", "secret1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated %s, want %s", got.ID, u.ID)
	}

	tests := []struct {
		name, username, password string
	}{
		{"wrong password", "mario", "secret2"},
		{"unknown user", "luigi", "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Authenticate(ctx, tt.username, tt.password); !errors.Is(err, core.ErrInvalidLogin) {
				t.Fatalf("expected ErrInvalidLogin, got %v", err)
			}
		})
	}
}

func TestUserService_SignUpRejects(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	svc := NewUserService(repo, bcrypt.MinCost)

	if _, err := svc.SignUp(ctx, SignUpInput{Username: "anna", Name: "Anna", Password: "secret1", Gender: "female"}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	tests := []struct {
		name    string
		in      SignUpInput
		wantErr error
	}{
		{"duplicate", SignUpInput{Username: "anna", Name: "Other", Password: "secret1", Gender: "female"}, core.ErrConflict},
		{"short password", SignUpInput{Username: "bea", Name: "Bea", Password: "123", Gender: "female"}, core.ErrWeakPassword},
		{"missing field", SignUpInput{Username: "cleo", Password: "secret1", Gender: "female"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.in)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfilePicture(t *testing.T) {
	if got := profilePicture("a b", "female"); got != "https://avatar.iran.liara.run/public/girl?username=a+b" {
		t.Fatalf("profilePicture = %q", got)
	}
}
