package auth

import (
	"context"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stdErrors "errors"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

type GateConfig struct {
	Secret         []byte
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	AllowAnonymous bool
}

// Gate validates bearer tokens before any hub operation is permitted.
// It is safe for concurrent use.
type Gate struct {
	cfg           GateConfig
	log           *slog.Logger
	telemetryChan chan<- event.Event
	now           func() time.Time
}

func NewGate(cfg GateConfig, log *slog.Logger, telemetryChan chan<- event.Event) *Gate {
	return &Gate{cfg: cfg, log: log, telemetryChan: telemetryChan, now: time.Now}
}

// Validate parses and verifies signature, issuer, audience and expiry.
// An empty token resolves to the anonymous principal only when the gate allows it.
func (g *Gate) Validate(_ context.Context, tokenString string) (domain.Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		if g.cfg.AllowAnonymous {
			g.emit(event.AuthSucceededType, domain.AnonymousUsername, "anonymous")
			return domain.AnonymousPrincipal(), nil
		}
		g.emit(event.AuthFailedType, "", "missing token")
		return domain.Principal{}, errors.ErrTokenMissing
	}

	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return g.cfg.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.cfg.Issuer),
		jwt.WithAudience(g.cfg.Audience),
		jwt.WithLeeway(g.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		g.emit(event.AuthFailedType, claims.Username, err.Error())
		if stdErrors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, fmt.Errorf("%w: %v", errors.ErrTokenExpired, err)
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", errors.ErrAuthenticationFailure, err)
	}

	principal := domain.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Roles:    claims.Roles,
	}
	if principal.Username == "" {
		principal.Username = claims.Subject
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	if principal.Username == "" {
		g.emit(event.AuthFailedType, "", "no username claim")
		return domain.Principal{}, fmt.Errorf("%w: token carries no username", errors.ErrAuthenticationFailure)
	}
	if err := principal.UserGroup().Validate(); err != nil {
		g.emit(event.AuthFailedType, principal.Username, "unusable username")
		return domain.Principal{}, fmt.Errorf("%w: %v", errors.ErrAuthenticationFailure, err)
	}
	g.emit(event.AuthSucceededType, principal.Username, "")
	return principal, nil
}

// Issue creates a signed token accepted by this gate.
// Used by local tooling and tests; production tokens come from the identity service.
func (g *Gate) Issue(userID, username string, roles []string, ttl time.Duration) (string, error) {
	now := g.now()
	claims := &CustomClaims{
		UserID:   userID,
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    g.cfg.Issuer,
			Audience:  jwt.ClaimStrings{g.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.cfg.Secret)
}

func (g *Gate) emit(t event.Type, username, reason string) {
	if !event.Emit(g.telemetryChan, event.NewEvent(t, event.AuthOutcome{Username: username, Reason: reason})) {
		g.log.Debug("Observability telemetry event lost", "type", t)
	}
}
