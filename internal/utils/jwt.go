package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs claims with an expiry of ttl from now. The identity
// provider issues real tokens; this is used for local development and tests.
func GenerateToken(secret string, claims jwt.MapClaims, ttl time.Duration) (string, error) {
	signed := jwt.MapClaims{}
	for k, v := range claims {
		signed[k] = v
	}
	now := time.Now()
	signed["iat"] = jwt.NewNumericDate(now)
	signed["exp"] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signed)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns its claims as issued. Claim shapes
// vary between identity provider versions, so no struct is imposed here.
func ParseToken(secret, tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// ClaimString returns the first non-empty string among keys.
func ClaimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
