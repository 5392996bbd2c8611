package authsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/feed/internal/domain"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
	"github.com/mkrupp/feed/internal/repo/user"

	. "github.com/mkrupp/feed/internal/svc/authsvc"
)

var errRepo = errors.New("repository error")

// failingUserRepository fails every lookup by email.
type failingUserRepository struct {
	user.Repository
}

func (failingUserRepository) GetUserByEmail(context.Context, string) (*domain.User, bool, error) {
	return nil, false, errRepo
}

func setupAuthService(t *testing.T) (*AuthService, *CredentialService, user.Repository) {
	t.Helper()

	now := issuedAt
	creds := newCredentialService(t, &now)
	users := user.NewMemoryUserRepository()

	return NewAuthService(users, creds), creds, users
}

func TestAuthService_Signup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, users := setupAuthService(t)

	id, err := svc.Signup(ctx, domain.SignupRequest{Email: " A@X.com ", Password: "secret123", Name: " Ann "})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, ok, err := users.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, "Ann", stored.Name)
	assert.Equal(t, domain.DefaultUserStatus, stored.Status)
	assert.NotEqual(t, []byte("secret123"), stored.PasswordHash)

	tests := []struct {
		name    string
		req     domain.SignupRequest
		wantErr error
	}{
		{
			name:    "duplicate email",
			req:     domain.SignupRequest{Email: "a@x.com", Password: "secret123", Name: "Ann"},
			wantErr: domain.ErrUserAlreadyExists,
		},
		{
			name:    "invalid email",
			req:     domain.SignupRequest{Email: "nope", Password: "secret123", Name: "Ann"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "short password",
			req:     domain.SignupRequest{Email: "b@x.com", Password: "abc", Name: "Bob"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "empty name",
			req:     domain.SignupRequest{Email: "c@x.com", Password: "secret123", Name: "  "},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Signup(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, creds, users := setupAuthService(t)

	id, err := svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "secret123", Name: "Ann"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		svc     *AuthService
		req     domain.LoginRequest
		wantErr error
	}{
		{name: "success", svc: svc, req: domain.LoginRequest{Email: "A@x.com", Password: "secret123"}},
		{name: "wrong password", svc: svc, req: domain.LoginRequest{Email: "a@x.com", Password: "wrong"}, wantErr: domain.ErrWrongPassword},
		{name: "unknown email", svc: svc, req: domain.LoginRequest{Email: "b@x.com", Password: "secret123"}, wantErr: domain.ErrUnknownEmail},
		{
			name:    "repository error",
			svc:     NewAuthService(failingUserRepository{Repository: users}, creds),
			req:     domain.LoginRequest{Email: "a@x.com", Password: "secret123"},
			wantErr: errRepo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := tt.svc.Login(ctx, tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, id, token.UserID)

			claims, err := creds.ValidateToken(ctx, token.Token)
			require.NoError(t, err)
			assert.Equal(t, id, claims.UserID)
			assert.Equal(t, "a@x.com", claims.Email)
		})
	}
}

func TestAuthService_PasswordKeptVerbatim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, _ := setupAuthService(t)

	_, err := svc.Signup(ctx, domain.SignupRequest{Email: "a@x.com", Password: "secret123 ", Name: "Ann"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "exact", password: "secret123 "},
		{name: "trimmed", password: "secret123", wantErr: domain.ErrWrongPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Login(ctx, domain.LoginRequest{Email: "a@x.com", Password: tt.password})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestHTTPTransport(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupAuthService(t)
	router := http_.NewRouter(http_.HTTPTransportConfig{CORSOrigins: []string{"*"}}, NewHTTPTransport(svc))

	do := func(method, path, body string) (int, map[string]any) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		return rec.Code, resp
	}

	code, resp := do(http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"secret123","name":"Ann"}`)
	require.Equal(t, http.StatusCreated, code)
	userID, _ := resp["userId"].(string)
	require.NotEmpty(t, userID)

	code, resp = do(http.MethodPut, "/auth/signup", `{"email":"a@x.com","password":"secret123","name":"Ann"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "E-Mail address already exists!", resp["message"])

	code, resp = do(http.MethodPost, "/auth/signup", `{"email":"bad","password":"x","name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Len(t, resp["data"], 3)

	code, _ = do(http.MethodPost, "/auth/signup", `{"email":`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, resp = do(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, userID, resp["userId"])
	assert.NotEmpty(t, resp["token"])

	code, resp = do(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Wrong password!", resp["message"])

	code, resp = do(http.MethodPost, "/auth/login", `{"email":"b@x.com","password":"secret123"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "A user with this email could not be found.", resp["message"])
}
