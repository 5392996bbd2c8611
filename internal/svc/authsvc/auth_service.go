package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	"github.com/mkrupp/feed/internal/repo/user"
	"github.com/mkrupp/feed/internal/util/ident"
)

// AuthService provides account registration and login.
type AuthService struct {
	users user.Repository
	creds *CredentialService
	now   Clock
	log   logging.Logger
}

// NewAuthService creates an AuthService storing accounts in users.
func NewAuthService(users user.Repository, creds *CredentialService) *AuthService {
	return &AuthService{
		users: users,
		creds: creds,
		now:   time.Now,
		log:   logging.GetLogger("svc.authsvc.auth_service"),
	}
}

// Signup registers a new account and returns its ID.
// The request is normalized and validated before anything is stored.
func (s *AuthService) Signup(ctx context.Context, req domain.SignupRequest) (_ string, err error) {
	req = req.Normalize()
	log := s.log.With(logging.Group("user", "email", req.Email))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "signup failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed up")
		}
	}()

	if err := req.Validate(); err != nil {
		return "", err
	}

	hash, err := s.creds.Hash(req.Password)
	if err != nil {
		return "", err
	}

	id, err := ident.New()
	if err != nil {
		return "", fmt.Errorf("new user id: %w", err)
	}

	//nolint:exhaustruct
	newUser := &domain.User{
		ID:           id,
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Status:       domain.DefaultUserStatus,
		CreatedAt:    s.now(),
	}

	if err := s.users.CreateUser(ctx, newUser); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	log = log.With(logging.Group("user", "id", id))

	return id, nil
}

// Login checks the credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (_ *domain.AuthToken, err error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	log := s.log.With(logging.Group("user", "email", email))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "login failed", "error", err)
		} else {
			log.DebugContext(ctx, "login successful")
		}
	}()

	account, ok, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) || (err == nil && !ok) {
		return nil, errors.Join(domain.ErrUnknownEmail, err)
	} else if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	match, err := s.creds.Verify(req.Password, account.PasswordHash)
	if err != nil {
		return nil, err
	} else if !match {
		return nil, domain.ErrWrongPassword
	}

	token, err := s.creds.IssueToken(ctx, account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	return token, nil
}
