package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const RoleAdmin = "admin"

type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens issued by the identity provider: HS256 against a shared secret,
// and RS256 against the provider's JWKS when one is configured.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	issuer string
	leeway time.Duration
}

type VerifierOption func(*Verifier)

// WithIssuer rejects tokens whose iss claim differs.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = iss }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithJWKS accepts RS256 tokens whose kid resolves through c.
func WithJWKS(c *JWKSClient) VerifierOption {
	return func(v *Verifier) { v.jwks = c }
}

// NewVerifier needs a secret, a JWKS client, or both. An empty secret disables HS256.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{secret: []byte(secret), leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.secret) == 0 && v.jwks == nil {
		return nil, errors.New("jwt secret or jwks url is required")
	}
	return v, nil
}

func (v *Verifier) methods() []string {
	var algs []string
	if len(v.secret) > 0 {
		algs = append(algs, jwt.SigningMethodHS256.Alg())
	}
	if v.jwks != nil {
		algs = append(algs, jwt.SigningMethodRS256.Alg())
	}
	return algs
}

// Verify validates signature, expiry and (when configured) issuer, and requires a subject.
func (v *Verifier) Verify(token string) (*Claims, error) {
	return v.VerifyContext(context.Background(), token)
}

// VerifyContext is Verify with ctx bounding any JWKS fetch.
func (v *Verifier) VerifyContext(ctx context.Context, token string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return v.secret, nil
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("rs256 token without kid")
		}
		return v.jwks.Get(ctx, kid)
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignHS256 issues a token for sub. Token issuance belongs to the identity provider; this exists
// for local tooling and tests.
func SignHS256(secret, sub, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
