package utils

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsBcryptHash reports whether s looks like a bcrypt hash
func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// CheckPassphrase compares an entered admin key with the configured one.
// The configured value may be plain text or a bcrypt hash.
func CheckPassphrase(input, configured string) bool {
	if IsBcryptHash(configured) {
		return CheckPasswordHash(input, configured)
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(configured)) == 1
}

// GenerateRelayToken issues a token that lets clientID connect to the relay
func GenerateRelayToken(clientID, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("relay secret is not configured")
	}

	claims := jwt.MapClaims{
		"sub":  clientID,
		"type": "relay",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ValidateRelayToken checks a relay token and returns the client id it was issued for
func ValidateRelayToken(tokenString, secret string) (string, error) {
	claims, err := ValidateToken(tokenString, secret)
	if err != nil {
		return "", err
	}
	if claims["type"] != "relay" {
		return "", errors.New("not a relay token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("relay token has no subject")
	}
	return sub, nil
}
