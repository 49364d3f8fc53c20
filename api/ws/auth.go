package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carried by chat access tokens.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns an incoming request into a participant identity.
// With an empty secret it trusts the user_id and username query parameters,
// which is only meant for local development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Insecure() bool {
	return len(a.secret) == 0
}

func (a *Authenticator) Authenticate(r *http.Request) (port.Identity, error) {
	if a.Insecure() {
		return identityFromQuery(r)
	}

	raw := r.URL.Query().Get("token")
	if raw == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if raw == "" {
		return port.Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	return a.Parse(raw)
}

func (a *Authenticator) Parse(raw string) (port.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return port.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return port.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return port.Identity{ID: claims.Subject, Name: name}, nil
}

// Issue signs a token for id. Used by the CLI and tests.
func (a *Authenticator) Issue(id, name string, ttl time.Duration) (string, error) {
	if a.Insecure() {
		return "", errors.New("no jwt secret configured")
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func identityFromQuery(r *http.Request) (port.Identity, error) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("user_id"))
	name := strings.TrimSpace(q.Get("username"))
	if id == "" {
		id = name
	}
	if id == "" {
		return port.Identity{}, fmt.Errorf("%w: missing user_id or username", ErrUnauthenticated)
	}
	if name == "" {
		name = id
	}
	return port.Identity{ID: id, Name: name}, nil
}
