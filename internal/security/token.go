package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "lims-admin"

// Claims are the API bearer token claims.
type Claims struct {
	UserID       uint64 `json:"uid"`
	UserType     string `json:"utype"`
	TokenVersion int    `json:"ver"` // Must match users.token_version.
	jwt.RegisteredClaims
}

// TokenSubject identifies the user a token is issued to.
type TokenSubject struct {
	UserID       uint64
	UserType     string
	TokenVersion int
}

// IssueToken signs an HS256 bearer token for a user.
func IssueToken(secret string, subject TokenSubject, expiry time.Duration, now time.Time) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("security: empty jwt secret")
	}
	expiresAt := now.Add(expiry)
	claims := Claims{
		UserID:       subject.UserID,
		UserType:     subject.UserType,
		TokenVersion: subject.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(subject.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("security: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken validates a bearer token and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, errors.New("security: empty jwt secret")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("security: parse token: %w", err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("security: invalid token")
	}
	return claims, nil
}
