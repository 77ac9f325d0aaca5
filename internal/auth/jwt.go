package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

const issuer = "classhub"

// Claims is the authorization payload carried in a bearer token. The
// subject is the identity id; the role claim gates meeting privileges.
type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

// Verifier resolves HS256 bearer tokens to authenticated identities. The
// CRUD backend issues tokens at login with the same shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify implements interfaces.IdentityVerifier. Every failure mode
// (garbage token, wrong signing method, expiry, missing claims) collapses
// to ErrInvalidToken; callers have no use for the distinction.
func (v *Verifier) Verify(token string) (interfaces.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, interfaces.ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}
	if !types.IsValidID(claims.Subject) || !types.IsValidRole(claims.Role) {
		return interfaces.Identity{}, interfaces.ErrInvalidToken
	}
	return interfaces.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// Issue mints a token for an identity. Used by tests and local tooling;
// production tokens come from the auth backend.
func (v *Verifier) Issue(identityID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   identityID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
