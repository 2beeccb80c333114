package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenTTL = 12 * time.Hour

// AccessClaims represents access claims.
type AccessClaims struct {
	UserID     string `json:"uid"`
	TelegramID int64  `json:"tgid"`
	IsAdmin    bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// SignAccessToken signs access token.
func SignAccessToken(secret string, userID string, telegramID int64, isAdmin bool) (string, error) {
	now := time.Now()
	subject := "user"
	if isAdmin {
		subject = "admin"
	}
	claims := AccessClaims{
		UserID:     userID,
		TelegramID: telegramID,
		IsAdmin:    isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken parses access token.
func ParseAccessToken(secret string, tokenString string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
