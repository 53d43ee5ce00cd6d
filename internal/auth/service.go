package auth

import (
	"context"
	"errors"
	"time"
)

type Service struct {
	Users    UserStore
	Sessions *Sessions
	Tokens   *Tokens
	Now      func() time.Time
}

// SignInResult is returned by SignUp and SignIn.
type SignInResult struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"identity"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SignUp registers a customer and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password string) (SignInResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return SignInResult{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return SignInResult{}, err
	}
	u, err := s.Users.Create(ctx, email, hash, RoleCustomer)
	if err != nil {
		return SignInResult{}, err
	}
	return s.open(ctx, u)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return SignInResult{}, ErrInvalidCredentials
	}
	u, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return SignInResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return SignInResult{}, err
	}
	if err := CheckPassword(u.PasswordHash, password); err != nil {
		return SignInResult{}, err
	}
	return s.open(ctx, u)
}

func (s *Service) open(ctx context.Context, u User) (SignInResult, error) {
	id, err := s.Sessions.Open(ctx, Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return SignInResult{}, err
	}
	tok, exp, err := s.Tokens.Issue(id, s.now())
	if err != nil {
		_ = s.Sessions.Close(ctx, id.SessionID)
		return SignInResult{}, err
	}
	return SignInResult{Token: tok, ExpiresAt: exp, Identity: id}, nil
}

func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	return s.Sessions.Close(ctx, sessionID)
}

// Authenticate resolves a bearer token to a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claimed, err := s.Tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	id, err := s.Sessions.Touch(ctx, claimed.SessionID)
	if err != nil {
		return Identity{}, err
	}
	if id.UserID != claimed.UserID {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
