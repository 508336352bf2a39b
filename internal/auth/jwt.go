package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/repledger/backend/internal/models"
)

const issuer = "repledger"

type Claims struct {
	Identity string `json:"identity,omitempty"`
	Wallet   string `json:"wallet"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Session() models.Session {
	return models.Session{Identity: c.Identity, Wallet: c.Wallet, Role: c.Role}
}

// GenerateJWT signs a session token. A non-positive expiration means 24h.
func GenerateJWT(secret string, sess models.Session, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	subject := sess.Identity
	if subject == "" {
		subject = sess.Wallet
	}
	now := time.Now()
	claims := Claims{
		Identity: sess.Identity,
		Wallet:   sess.Wallet,
		Role:     sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(secret string, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Wallet == "" || claims.Role == "" {
		return nil, fmt.Errorf("token carries no session")
	}
	return claims, nil
}
