package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Claims are the identity token claims the dashboard cares about.
type Claims struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// TokenVerifier validates an identity provider access token.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// JWTVerifier validates RS256 access tokens issued by the identity provider.
type JWTVerifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewJWKSVerifier builds a verifier that resolves signing keys from a JWKS
// endpoint. When jwksURL is empty it defaults to the issuer's well-known path.
func NewJWKSVerifier(issuer, audience, jwksURL string) (*JWTVerifier, error) {
	if jwksURL == "" {
		base := normalizeIssuer(issuer)
		if base == "" {
			return nil, errors.New("issuer must be set")
		}
		jwksURL = base + ".well-known/jwks.json"
	}

	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init JWKS keyfunc: %w", err)
	}
	return NewJWTVerifier(issuer, audience, k.Keyfunc)
}

// NewJWTVerifier builds a verifier around an arbitrary key lookup. The iss
// claim must equal issuer exactly.
func NewJWTVerifier(issuer, audience string, kf jwt.Keyfunc) (*JWTVerifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}

	return &JWTVerifier{
		keyfunc: kf,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithLeeway(defaultLeeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		),
	}, nil
}

// Verify parses and validates a token, returning its claims.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, mapClaims, v.keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		FirstName: readString(mapClaims, "given_name"),
		LastName:  readString(mapClaims, "family_name"),
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
