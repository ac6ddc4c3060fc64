package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim used when none is configured
const DefaultIssuer = "billnote"

// Verifier validates HS256 bearer tokens whose subject is the user id
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. The secret must not be empty.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses and validates a token string
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return Identity{UserID: sub}, nil
}

// VerifyHeader validates an "Authorization: Bearer <token>" header value
func (v *Verifier) VerifyHeader(header string) (Identity, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return Identity{}, err
	}
	return v.Verify(token)
}

// Sign issues a token for userID valid for ttl
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	if userID == "" || ttl <= 0 {
		return "", errors.New("user id and a positive ttl are required")
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Issuer:    v.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseBearer extracts the token from a bearer Authorization header
func ParseBearer(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization header", ErrUnauthorized)
	}
	return parts[1], nil
}
