package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew is the leeway allowed on exp and nbf.
const clockSkew = 30 * time.Second

// Claims are the identity-service token claims.
type Claims struct {
	jwt.RegisteredClaims
	Roles []Role `json:"roles"`
}

// Verifier validates HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses token and returns its principal. Unknown roles are ignored;
// a token with no known role is invalid.
func (v *Verifier) Verify(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	p := &Principal{Subject: claims.Subject}
	for _, r := range claims.Roles {
		if IsValidRole(r) {
			p.Roles = append(p.Roles, r)
		}
	}
	if len(p.Roles) == 0 {
		return nil, fmt.Errorf("%w: no recognised role", ErrTokenInvalid)
	}
	return p, nil
}

// Issue signs a token for subject. It backs development tooling and tests;
// production tokens come from the identity service.
func (v *Verifier) Issue(subject string, roles []Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
