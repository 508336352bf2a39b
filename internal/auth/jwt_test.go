package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/repledger/backend/internal/models"
)

const testSecret = "test-secret"

func TestJWT_SessionRoundTrip(t *testing.T) {
	sessions := []models.Session{
		{Identity: "alice@example.org", Wallet: "0:alice", Role: models.RoleMember},
		{Wallet: "0:org1", Role: models.RoleOrganizer},
	}

	for _, sess := range sessions {
		t.Run(sess.Role, func(t *testing.T) {
			token, err := GenerateJWT(testSecret, sess, time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			claims, err := ParseJWT(testSecret, token)
			if err != nil {
				t.Fatalf("ParseJWT: %v", err)
			}
			if got := claims.Session(); got != sess {
				t.Errorf("Session() = %+v, want %+v", got, sess)
			}
		})
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	sess := models.Session{Wallet: "0:org1", Role: models.RoleOrganizer}

	// GenerateJWT treats a non-positive expiration as the default, so build one by hand.
	past := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Wallet: sess.Wallet,
		Role:   sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expired, _ := past.SignedString([]byte(testSecret))

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Wallet:           sess.Wallet,
		Role:             sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	foreignToken, _ := foreign.SignedString([]byte(testSecret))

	empty := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}})
	emptyToken, _ := empty.SignedString([]byte(testSecret))

	good, _ := GenerateJWT(testSecret, sess, time.Hour)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other-secret", good},
		{"expired", testSecret, expired},
		{"foreign issuer", testSecret, foreignToken},
		{"no session", testSecret, emptyToken},
		{"garbage", testSecret, "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("ParseJWT() accepted the token")
			}
		})
	}
}
