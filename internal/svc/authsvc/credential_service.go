package authsvc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
)

const generatedSecretSize = 32

// ErrUnsupportedSigningMethod is returned for a signing method other than HS256 or PS256.
var ErrUnsupportedSigningMethod = errors.New("unsupported signing method")

// CredentialConfig contains configuration parameters for password hashing and session tokens.
type CredentialConfig struct {
	// SigningMethod is either "HS256" (shared secret) or "PS256" (RSA key file)
	SigningMethod string `env:"SIGNING_METHOD" default:"HS256"`

	// Secret is the HS256 signing secret. If empty a random secret is generated
	// and tokens do not survive a restart.
	Secret string `env:"SECRET" default:""`

	// SigningKeyFile is the path to the PS256 private key, created if missing
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/feedsvc.key"`

	// TokenDuration is the validity of issued tokens
	TokenDuration time.Duration `env:"TOKEN_DURATION" default:"1h"`

	// BcryptCost is the bcrypt work factor for password hashes
	BcryptCost int `env:"BCRYPT_COST" default:"12"`
}

// Clock returns the current time.
type Clock func() time.Time

// tokenClaims is the JWT payload of a session token.
type tokenClaims struct {
	jwt.RegisteredClaims

	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// CredentialService hashes passwords and issues and validates session tokens.
// Tokens are stateless: a token is valid iff its signature verifies and it has not expired.
type CredentialService struct {
	cfg       CredentialConfig
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	now       Clock
	log       logging.Logger
}

// NewCredentialService creates a CredentialService for the configured signing method.
func NewCredentialService(ctx context.Context, cfg CredentialConfig) (*CredentialService, error) {
	log := logging.GetLogger("svc.authsvc.credential_service")

	svc := &CredentialService{
		cfg: cfg,
		now: time.Now,
		log: log,
	}

	switch cfg.SigningMethod {
	case jwt.SigningMethodHS256.Alg():
		secret := []byte(cfg.Secret)
		if len(secret) == 0 {
			log.WarnContext(ctx, "no token secret configured, using a generated one")

			secret = make([]byte, generatedSecretSize)
			if _, err := rand.Read(secret); err != nil {
				return nil, fmt.Errorf("generate secret: %w", err)
			}
		}

		svc.method = jwt.SigningMethodHS256
		svc.signKey = secret
		svc.verifyKey = secret
	case jwt.SigningMethodPS256.Alg():
		signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("get private key: %w", err)
		}

		svc.method = jwt.SigningMethodPS256
		svc.signKey = signingKey
		svc.verifyKey = &signingKey.PublicKey
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSigningMethod, cfg.SigningMethod)
	}

	return svc, nil
}

// WithClock replaces the clock used to stamp and check tokens.
func (s *CredentialService) WithClock(now Clock) *CredentialService {
	s.now = now

	return s
}

// Hash returns the bcrypt hash of password.
func (s *CredentialService) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return hash, nil
}

// Verify reports whether password matches hash.
// A mismatch is not an error, a malformed hash is.
func (s *CredentialService) Verify(password string, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}

// IssueToken creates a signed session token for the given user.
func (s *CredentialService) IssueToken(ctx context.Context, userID, email string) (token *domain.AuthToken, err error) {
	now := s.now()
	expiry := now.Add(s.cfg.TokenDuration)

	log := s.log.With(logging.Group("token",
		"user_id", userID,
		"exp", expiry.UTC().Format(time.RFC3339),
		"iat", now.UTC().Format(time.RFC3339),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "issue token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token issued")
		}
	}()

	//nolint:exhaustruct
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.AuthToken{
		Token:     signed,
		UserID:    userID,
		Email:     email,
		ExpiresAt: expiry,
	}, nil
}

// ValidateToken verifies the signature and expiry of a session token.
// Returns ErrExpiredAuthToken for an expired token and ErrInvalidAuthToken for any other failure.
func (s *CredentialService) ValidateToken(ctx context.Context, tokenString string) (claims *domain.AuthClaims, err error) {
	log := s.log

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "validate token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token validated")
		}
	}()

	var parsed tokenClaims

	_, err = jwt.ParseWithClaims(tokenString, &parsed,
		func(*jwt.Token) (any, error) { return s.verifyKey, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.Join(domain.ErrExpiredAuthToken, err)
	case err != nil:
		return nil, errors.Join(domain.ErrInvalidAuthToken, err)
	case parsed.UserID == "":
		return nil, domain.ErrInvalidAuthToken
	}

	claims = &domain.AuthClaims{
		UserID:    parsed.UserID,
		Email:     parsed.Email,
		ExpiresAt: parsed.ExpiresAt.Time,
	}

	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}

	log = log.With(logging.Group("token",
		"user_id", claims.UserID,
		"exp", claims.ExpiresAt.UTC().Format(time.RFC3339),
	))

	return claims, nil
}
