// Package auth resolves the acting doctor or agent from an HMAC-signed
// bearer token. Token issuance lives outside this service; Issue exists
// for tooling and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

type Role string

const (
	RoleDoctor Role = "doctor"
	RoleAgent  Role = "agent"
)

var (
	ErrUnauthenticated = apperr.New(apperr.KindUnauthenticated, "unauthenticated", "missing or invalid bearer token")
	ErrRoleForbidden   = apperr.New(apperr.KindAuthorization, "role_forbidden", "role may not call this endpoint")
)

// Claims is the token payload: sub carries the actor id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type contextKey string

const actorKey contextKey = "actor"

type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Issue signs a token for actor valid for ttl.
func (r *Resolver) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve validates tokenString and returns the actor it names.
func (r *Resolver) Resolve(tokenString string) (Actor, error) {
	if len(r.secret) == 0 {
		return Actor{}, fmt.Errorf("%w: auth not configured", ErrUnauthenticated)
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrUnauthenticated)
	}
	switch claims.Role {
	case RoleDoctor, RoleAgent:
	default:
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return Actor{ID: id, Role: claims.Role}, nil
}

// Middleware requires a valid bearer token whose role is one of roles.
// Failures are reported through writeErr.
func Middleware(r *Resolver, writeErr func(http.ResponseWriter, error), roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			header := req.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeErr(w, fmt.Errorf("%w: missing authorization header", ErrUnauthenticated))
				return
			}

			actor, err := r.Resolve(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeErr(w, err)
				return
			}
			if !allowed(actor.Role, roles) {
				writeErr(w, ErrRoleForbidden)
				return
			}

			next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
		})
	}
}

func allowed(role Role, roles []Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the authenticated actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// IsUnauthenticated reports whether err came from token resolution.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
