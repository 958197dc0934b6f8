// Package authpw provides email/password sign-up and sign-in for profiles.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/store"
	"ledgerboard/api/internal/util"
)

var (
	ErrMissingFields      = errors.New("email, password, and full name are required")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const minPasswordLength = 8

// Service provides email/password authentication
type Service struct {
	store ProfileStore
	cost  int
}

// ProfileStore defines the storage interface for auth
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	CreateProfile(ctx context.Context, profile store.Profile) error
}

// NewService creates a new auth service. cost <= 0 uses bcrypt.DefaultCost.
func NewService(profiles ProfileStore, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: profiles, cost: cost}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
	FullName string
}

// SignUp creates a profile with the default "user" role.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || req.Password == "" || fullName == "" {
		return store.Profile{}, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Profile{}, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return store.Profile{}, ErrWeakPassword
	}

	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return store.Profile{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile := store.Profile{
		ID:           util.NewID(""),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         string(rbac.RoleUser),
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Profile{}, ErrEmailTaken
		}
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn returns the profile when the password matches. Unknown, deleted and
// password-less profiles all report ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Profile, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.Profile{}, ErrMissingFields
	}

	profile, err := s.store.GetProfileByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Profile{}, ErrInvalidCredentials
		}
		return store.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}
	if profile.Deleted() || profile.PasswordHash == "" {
		return store.Profile{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}
