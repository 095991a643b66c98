// Package auth verifies caller identity and gates access to owned
// resources. Token issuance lives outside this product; only the
// verification contract is consumed here.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/raido/internal/apperr"
)

// Roles form a closed two-value set.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is an authenticated caller.
type Actor struct {
	ID   string
	Role string
}

// Admin reports whether the actor carries the admin role.
func (a Actor) Admin() bool { return a.Role == RoleAdmin }

// TokenVerifier turns a bearer token into an Actor. Implementations
// wrap apperr.ErrUnauthorized for any token that does not verify.
type TokenVerifier interface {
	VerifyToken(token string) (Actor, error)
}

// Claims is the token payload the identity service issues: user id,
// email, and role on top of the registered set. Subject duplicates the
// user id for standard-compliant consumers.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for the given signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// VerifyToken parses and validates token. Any signing method other
// than HMAC is rejected before the signature is checked, so a token
// re-signed with alg=none never reaches validation.
func (v *JWTVerifier) VerifyToken(token string) (Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return Actor{}, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return Actor{}, fmt.Errorf("%w: token carries no subject", apperr.ErrUnauthorized)
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return Actor{}, fmt.Errorf("%w: unknown role %q", apperr.ErrUnauthorized, role)
	}
	return Actor{ID: id, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", apperr.ErrUnauthorized)
	}
	if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
		return "", fmt.Errorf("%w: malformed authorization header", apperr.ErrUnauthorized)
	}
	return header[len(prefix):], nil
}

type actorKey struct{}

// WithActor stores the verified actor on the request context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor the middleware placed on ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Guard decides what a verified actor may do.
type Guard struct{}

// RequireAuthenticated returns the actor from ctx or Unauthorized.
func (Guard) RequireAuthenticated(ctx context.Context) (Actor, error) {
	a, ok := ActorFrom(ctx)
	if !ok {
		return Actor{}, fmt.Errorf("%w: no verified actor", apperr.ErrUnauthorized)
	}
	return a, nil
}

// RequireOwnerOrAdmin gates access to a resource owned by ownerID.
// Admins may read anything but mutate nothing they do not own; write
// callers therefore pass write=true and get no role bypass.
func (Guard) RequireOwnerOrAdmin(actor Actor, ownerID string, write bool) error {
	if actor.ID == ownerID {
		return nil
	}
	if actor.Admin() && !write {
		return nil
	}
	return fmt.Errorf("%w: not the owner", apperr.ErrForbidden)
}
