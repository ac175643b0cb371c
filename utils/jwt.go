package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamdesk/config"
	"teamdesk/models"
)

// Token kinds carried in the claims
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

type Claims struct {
	UserID       uint   `json:"user_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	Kind         string `json:"kind"`
	jwt.RegisteredClaims
}

func GenerateJWTToken(user *models.User) (string, string, error) {
	now := time.Now()
	accessToken, err := signToken(user, AccessToken, now, ttl(config.AppConfig.AccessTokenTTL, 15*time.Minute))
	if err != nil {
		return "", "", err
	}
	refreshToken, err := signToken(user, RefreshToken, now, ttl(config.AppConfig.RefreshTokenTTL, 7*24*time.Hour))
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func signToken(user *models.User, kind string, now time.Time, lifetime time.Duration) (string, error) {
	claims := &Claims{
		UserID:       user.ID,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Kind:         kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// RefreshTokens exchanges a refresh token for a new pair. The user must still
// be active and the token version must match.
func RefreshTokens(refreshToken string, load func(id uint) (*models.User, error)) (string, string, error) {
	claims, err := ParseJWTToken(refreshToken)
	if err != nil {
		return "", "", err
	}
	if claims.Kind != RefreshToken {
		return "", "", errors.New("not a refresh token")
	}

	user, err := load(claims.UserID)
	if err != nil {
		return "", "", errors.New("user not found")
	}
	if !user.IsActive() || user.TokenVersion != claims.TokenVersion {
		return "", "", errors.New("refresh token revoked")
	}
	return GenerateJWTToken(user)
}

func ttl(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
