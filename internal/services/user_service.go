package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"expensetracker/internal/core"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// UserStore is the persistence UserService needs.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
}

type SignUpInput struct {
	Username string
	Name     string
	Password string
	Gender   string
}

type UserService struct {
	store      UserStore
	bcryptCost int
}

// NewUserService creates the service; a cost of 0 selects bcrypt.DefaultCost.
func NewUserService(store UserStore, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{store: store, bcryptCost: bcryptCost}
}

// SignUp registers a new user with a hashed password and a generated avatar.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (core.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	if in.Username == "" || in.Name == "" || in.Password == "" || in.Gender == "" {
		return core.User{}, core.ErrMissingField
	}
	if len(in.Password) < minPasswordLength {
		return core.User{}, core.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		Username:       in.Username,
		Name:           in.Name,
		PasswordHash:   string(hash),
		Gender:         in.Gender,
		ProfilePicture: profilePicture(in.Username, in.Gender),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	created, err := s.store.CreateUser(ctx, u)
	if errors.Is(err, core.ErrConflict) {
		return core.User{}, fmt.Errorf("user already exists: %w", core.ErrConflict)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords both
// yield core.ErrInvalidLogin.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return core.User{}, core.ErrMissingField
	}

	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidLogin
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.InfoContext(ctx, "Rejected login", "username", u.Username)
		return core.User{}, core.ErrInvalidLogin
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

func profilePicture(username, gender string) string {
	kind := "girl"
	if strings.EqualFold(gender, "male") {
		kind = "boy"
	}
	return "https://avatar.iran.liara.run/public/" + kind + "?username=" + url.QueryEscape(username)
}
