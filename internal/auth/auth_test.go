package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Anuj5504/cloudbox/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(testSecret)
	ctx := context.Background()

	valid := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user_123",
		"email": "a@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	id, err := v.Verify(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "user_123", id.UserID)
	assert.Equal(t, "a@example.com", id.Email)

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":      signToken(t, testSecret, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    signToken(t, testSecret, jwt.MapClaims{"sub": "u"}),
		"no subject":   signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, token)
			assert.Error(t, err)
		})
	}
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	args := m.Called(ctx, token)
	id, _ := args.Get(0).(*Identity)
	return id, args.Error(1)
}

func TestMiddleware(t *testing.T) {
	v := new(mockVerifier)
	v.On("Verify", mock.Anything, "good").Return(&Identity{UserID: "user_1", Email: "u@example.com"}, nil)
	v.On("Verify", mock.Anything, "bad").Return(nil, errors.New("expired"))

	e := echo.New()
	handler := Middleware(v, zap.NewNop())(func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	})

	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", "Bearer good", true},
		{"missing", "", false},
		{"wrong scheme", "Basic good", false},
		{"empty token", "Bearer ", false},
		{"rejected", "Bearer bad", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			err := handler(e.NewContext(req, rec))
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, "user_1", rec.Body.String())
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "got %v", err)
		})
	}
	v.AssertExpectations(t)
}
