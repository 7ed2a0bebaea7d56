package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	require.NotNil(t, tm)

	raw, meta, err := tm.GenerateToken("billing-backend")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, meta.ExpiresAt.Sub(meta.IssuedAt))

	parsed, err := tm.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "billing-backend", parsed.Subject)
	assert.Equal(t, meta.ExpiresAt.Unix(), parsed.ExpiresAt.Unix())
}

func TestParseRejects(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	other := NewTokenManager("other", 5)

	foreign, _, err := other.GenerateToken("svc")
	require.NoError(t, err)
	_, err = tm.ParseToken(foreign)
	assert.Error(t, err)

	expired := NewTokenManager("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.GenerateToken("svc")
	require.NoError(t, err)
	_, err = tm.ParseToken(stale)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken(" ")
	assert.Error(t, err)
}

func TestEmptySecretDisablesAuth(t *testing.T) {
	assert.Nil(t, NewTokenManager("", 5))
	assert.False(t, NewAuthMiddleware(nil).Enabled())
}

func newProtectedApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		derr := apperrors.ToDomainError(err)
		return c.Status(derr.HTTPStatus).SendString(derr.Code)
	}})
	app.Get("/p", m.Handle, func(c *fiber.Ctx) error {
		if p, ok := PrincipalFromContext(c); ok {
			return c.SendString(p.Token.Subject)
		}
		return c.SendString("anonymous")
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := newProtectedApp(NewAuthMiddleware(tm))
	raw, _, err := tm.GenerateToken("svc-a")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid", "Bearer " + raw, http.StatusOK, "svc-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.body, string(body))
		})
	}

	t.Run("disabled", func(t *testing.T) {
		resp, err := newProtectedApp(NewAuthMiddleware(nil)).Test(httptest.NewRequest(http.MethodGet, "/p", nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "anonymous", string(body))
	})
}
