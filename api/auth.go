/*
auth.go - Identity and authorization middleware

PURPOSE:
  Turns a bearer token into a leave.Actor and decides whether that actor's
  role may call the route. Identity comes from HS256 JWTs signed with the
  configured secret; route permissions are a casbin RBAC model where admin
  inherits every employee permission.

TOKEN CLAIMS:
  sub       user ID
  role      "admin" | "employee"
  position  "captain" | "first_officer" | ...

SEE ALSO:
  - server.go: where the middleware is mounted
  - cmd/server: "token" subcommand issues development tokens
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// TOKENS
// =============================================================================

// Claims are the JWT claims the API understands.
type Claims struct {
	Role     string `json:"role"`
	Position string `json:"position,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for actor that expires after ttl.
func IssueToken(secret []byte, actor leave.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role:     string(actor.Role),
		Position: string(actor.Position),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseToken validates the signature and expiry and returns the actor.
func parseToken(secret []byte, raw string) (leave.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return leave.Actor{}, err
	}

	if claims.Subject == "" {
		return leave.Actor{}, errors.New("token has no subject")
	}
	role := leave.Role(claims.Role)
	if role != leave.RoleAdmin && role != leave.RoleEmployee {
		return leave.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return leave.Actor{
		UserID:   claims.Subject,
		Role:     role,
		Position: leave.Position(claims.Position),
	}, nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type ctxKey struct{}

func withActor(ctx context.Context, a leave.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the authenticated actor stored by the auth middleware.
func ActorFrom(ctx context.Context) (leave.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(leave.Actor)
	return a, ok
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticate rejects requests without a valid bearer token.
func Authenticate(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || raw == "" {
				writeStatus(w, http.StatusUnauthorized, "Authentication required", codeUnauthorized)
				return
			}

			actor, err := parseToken(secret, raw)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "Token expired"
				}
				logger.Debug("token rejected", zap.Error(err))
				writeStatus(w, http.StatusUnauthorized, msg, codeUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

// rbacModel: a role may call a route when one of its (or an inherited
// role's) policies matches the path pattern and the method.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

var routePolicies = [][]string{
	{"employee", "/api/me", "GET"},
	{"employee", "/api/me/*", "GET"},
	{"employee", "/api/leave-requests", "POST"},
	{"employee", "/api/leave-requests/:id/cancel", "POST"},
	{"employee", "/api/capacity", "GET"},
	{"employee", "/api/holidays", "GET"},
	{"employee", "/api/calendar", "GET"},
	{"employee", "/api/settings", "GET"},
	{"admin", "/api/admin/*", "^(GET|POST|PUT|DELETE)$"},
}

// NewEnforcer builds the route enforcer with the built-in policies.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if _, err := e.AddPolicies(routePolicies); err != nil {
		return nil, fmt.Errorf("failed to add policies: %w", err)
	}
	if _, err := e.AddGroupingPolicy(string(leave.RoleAdmin), string(leave.RoleEmployee)); err != nil {
		return nil, fmt.Errorf("failed to add role inheritance: %w", err)
	}
	return e, nil
}

// Authorize checks the authenticated actor's role against the enforcer.
func Authorize(e *casbin.Enforcer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeStatus(w, http.StatusUnauthorized, "Authentication required", codeUnauthorized)
				return
			}

			allowed, err := e.Enforce(string(actor.Role), r.URL.Path, r.Method)
			if err != nil {
				logger.Error("authorization check failed", zap.Error(err))
				writeStatus(w, http.StatusInternalServerError, "Internal error", codeInternal)
				return
			}
			if !allowed {
				writeStatus(w, http.StatusForbidden, "You do not have permission to perform this action", codeForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
