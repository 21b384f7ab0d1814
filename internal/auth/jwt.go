package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoVerificationKey = errors.New("no key configured for token algorithm")

// AppClaims is the subset of identity provider access token claims the API
// relies on.
type AppClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret   []byte
	jwks     jwt.Keyfunc
	issuer   string
	audience string
}

type VerifierConfig struct {
	// Secret enables HS256 tokens. Leave empty in production.
	Secret string
	// JWKS resolves RS* and ES* keys, usually from NewJWKS.
	JWKS     jwt.Keyfunc
	Issuer   string
	Audience string
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	var secret []byte
	if cfg.Secret != "" {
		secret = []byte(cfg.Secret)
	}
	return &Verifier{
		secret:   secret,
		jwks:     cfg.JWKS,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
}

func (v *Verifier) Verify(tokenString string) (*AppClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "HS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, v.keyFunc, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		if claims.Email == "" {
			return nil, jwt.ErrTokenInvalidClaims
		}
		claims.Email = strings.ToLower(claims.Email)
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, ErrNoVerificationKey
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if v.jwks == nil {
			return nil, ErrNoVerificationKey
		}
		return v.jwks(token)
	default:
		return nil, jwt.ErrSignatureInvalid
	}
}

// GenerateJWT issues an HS256 token. The identity provider issues production
// tokens; this exists for local development and tests.
func GenerateJWT(email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &AppClaims{
		Email:         email,
		EmailVerified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "meet-backend",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// SecretMatches compares a presented shared secret in constant time. An empty
// expected secret never matches.
func SecretMatches(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
