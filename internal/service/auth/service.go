// Package auth covers registration, login and the reserved anonymous identity.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/abstimmung-app/backend/internal/model/vote"
	"github.com/abstimmung-app/backend/internal/store"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords so a
// failed login never discloses which of the two it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles identity. Login is a single request/response exchange; no
// token is maintained afterwards.
type Service struct {
	store store.Store
	cost  int
}

// NewService creates the auth service. A cost below bcrypt's minimum falls
// back to the default cost.
func NewService(st store.Store, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: st, cost: bcryptCost}
}

// RegisterRequest carries the registration fields from the wire.
type RegisterRequest struct {
	Username  string
	Password  string
	Email     string
	ShownName string
	Anonymous bool
}

// Register creates a user. Anonymous registrations get throwaway random
// credentials so the handle never identifies the person behind it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (vote.User, error) {
	if req.Anonymous {
		req.Username = randomToken()
		req.Password = randomToken()
		req.Email = randomToken() + "@mail.de"
	}

	if req.Username == "" || req.Password == "" {
		return vote.User{}, errors.New("userName and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return vote.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := vote.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		ShownName:    req.ShownName,
		Anonymous:    req.Anonymous,
		PasswordHash: string(hash),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return vote.User{}, err
	}
	return user, nil
}

// Login verifies a username/password pair and returns the user id.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return user.ID, nil
}

// EnsureAnonymous resolves the reserved Anonymous user, creating it if absent.
// Its id is the ballot identity for anonymous surveys and is treated as
// read-only by the rest of the core.
func (s *Service) EnsureAnonymous(ctx context.Context) (vote.User, error) {
	user, err := s.store.UserByUsername(ctx, vote.AnonymousUsername)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return vote.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(randomToken()), s.cost)
	if err != nil {
		return vote.User{}, fmt.Errorf("hash password: %w", err)
	}

	user = vote.User{
		ID:           uuid.NewString(),
		Username:     vote.AnonymousUsername,
		Email:        "anonymous@email.de",
		ShownName:    vote.AnonymousUsername,
		Anonymous:    true,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return vote.User{}, err
	}
	return user, nil
}

func randomToken() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a uuid.
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
