package auth_test

import (
	"context"
	"fleet-hub/auth"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stdErrors "errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newGate(allowAnonymous bool, telemetry chan event.Event) *auth.Gate {
	return auth.NewGate(auth.GateConfig{
		Secret:         []byte(secret),
		Issuer:         "fleet-hub",
		Audience:       "fleet-clients",
		ClockSkew:      5 * time.Minute,
		AllowAnonymous: allowAnonymous,
	}, logs.GetLoggerFromLevel(slog.LevelDebug), telemetry)
}

func TestGate_Validate_ValidToken(t *testing.T) {
	req := require.New(t)
	telemetry := make(chan event.Event, 10)
	gate := newGate(false, telemetry)

	// Given a token minted by the gate itself
	token, err := gate.Issue("u-1", "alice", []string{"admin"}, time.Hour)
	req.NoError(err)

	// When it is validated
	principal, err := gate.Validate(context.Background(), token)

	// Then the principal carries the claims and a success is emitted
	req.NoError(err)
	req.Equal("alice", principal.Username)
	req.Equal("u-1", principal.UserID)
	req.True(principal.HasRole("admin"))
	req.False(principal.Anonymous)
	req.WithinDuration(time.Now().Add(time.Hour), principal.ExpiresAt, 2*time.Second)
	req.Equal(domain.UserGroup("alice"), principal.UserGroup())

	evt := <-telemetry
	req.Equal(event.AuthSucceededType, evt.Type)
}

func TestGate_Validate_ExpiredToken(t *testing.T) {
	req := require.New(t)
	telemetry := make(chan event.Event, 10)
	gate := newGate(false, telemetry)

	// Given a token expired well beyond the clock skew
	token, err := gate.Issue("u-1", "alice", nil, -10*time.Minute)
	req.NoError(err)

	// When it is validated
	_, err = gate.Validate(context.Background(), token)

	// Then it is rejected as expired
	req.Error(err)
	req.True(stdErrors.Is(err, errors.ErrTokenExpired))
	req.True(stdErrors.Is(err, errors.ErrAuthenticationFailure))
	evt := <-telemetry
	req.Equal(event.AuthFailedType, evt.Type)
}

func TestGate_Validate_WithinClockSkew(t *testing.T) {
	req := require.New(t)
	gate := newGate(false, nil)

	// Given a token expired one minute ago
	token, err := gate.Issue("u-1", "alice", nil, -time.Minute)
	req.NoError(err)

	// Then the five minute skew still accepts it
	_, err = gate.Validate(context.Background(), token)
	req.NoError(err)
}

func TestGate_Validate_Rejections(t *testing.T) {
	other := auth.NewGate(auth.GateConfig{
		Secret:    []byte("another-secret-another-secret-xx"),
		Issuer:    "fleet-hub",
		Audience:  "fleet-clients",
		ClockSkew: 5 * time.Minute,
	}, logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	wrongAudience := auth.NewGate(auth.GateConfig{
		Secret:    []byte(secret),
		Issuer:    "fleet-hub",
		Audience:  "someone-else",
		ClockSkew: 5 * time.Minute,
	}, logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	wrongIssuer := auth.NewGate(auth.GateConfig{
		Secret:    []byte(secret),
		Issuer:    "not-fleet-hub",
		Audience:  "fleet-clients",
		ClockSkew: 5 * time.Minute,
	}, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	badSignature, _ := other.Issue("u-1", "alice", nil, time.Hour)
	badAudience, _ := wrongAudience.Issue("u-1", "alice", nil, time.Hour)
	badIssuer, _ := wrongIssuer.Issue("u-1", "alice", nil, time.Hour)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"username": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"Malformed token", "not-a-jwt"},
		{"Wrong signing key", badSignature},
		{"Wrong audience", badAudience},
		{"Wrong issuer", badIssuer},
		{"Unsigned token", noneAlg},
	}

	gate := newGate(false, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := gate.Validate(context.Background(), tt.token)
			req.Error(err)
			req.True(stdErrors.Is(err, errors.ErrAuthenticationFailure))
		})
	}
}

func TestGate_Validate_UnusableUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
	}{
		{"Group delimiter in username", "corp:alice"},
		{"Whitespace only username", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			telemetry := make(chan event.Event, 10)
			gate := newGate(false, telemetry)

			// Given a correctly signed token whose username cannot name a user group
			token, err := gate.Issue("u-1", tt.username, nil, time.Hour)
			req.NoError(err)

			// When it is validated
			_, err = gate.Validate(context.Background(), token)

			// Then it is an authentication failure and no success was emitted
			req.ErrorIs(err, errors.ErrAuthenticationFailure)
			req.Len(telemetry, 1)
			evt := <-telemetry
			req.Equal(event.AuthFailedType, evt.Type)
		})
	}
}

func TestGate_Validate_MissingToken(t *testing.T) {
	req := require.New(t)

	// When anonymous access is disabled, an empty token is rejected
	_, err := newGate(false, nil).Validate(context.Background(), "")
	req.ErrorIs(err, errors.ErrTokenMissing)

	// When it is enabled, the anonymous principal is returned
	principal, err := newGate(true, nil).Validate(context.Background(), "  ")
	req.NoError(err)
	req.True(principal.Anonymous)
	req.Equal(domain.UserGroup(domain.AnonymousUsername), principal.UserGroup())
}

func TestBearerToken(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/hub", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.Equal("abc.def.ghi", auth.BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/hub?access_token=xyz", nil)
	req.Equal("xyz", auth.BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/hub", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	req.Empty(auth.BearerToken(r))
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate := newGate(false, nil)
	router := gin.New()
	router.POST("/admin", auth.RequireAuth(gate), auth.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	adminToken, _ := gate.Issue("u-1", "root", []string{"admin"}, time.Hour)
	userToken, _ := gate.Issue("u-2", "bob", []string{"viewer"}, time.Hour)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"No token", "", http.StatusUnauthorized},
		{"Not an admin", userToken, http.StatusForbidden},
		{"Admin", adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			router.ServeHTTP(w, r)
			req.Equal(tt.status, w.Code)
		})
	}
}
