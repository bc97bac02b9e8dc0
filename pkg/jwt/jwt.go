package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mbeoliero/jobchat/pkg/errcode"
)

const issuer = "jobchat"

// Claims identifies the chat user behind a request or push connection.
// Portal tokens are converted into the same shape with External set.
type Claims struct {
	UserId     string `json:"user_id"`
	PlatformId int    `json:"platform_id"`
	Role       string `json:"role,omitempty"`
	External   bool   `json:"-"`
	jwt.RegisteredClaims
}

// SessionId returns the token id, unique per login
func (c *Claims) SessionId() string {
	return c.ID
}

// Owns reports a mismatch between the token and the user id a client
// claims to act as
func (c *Claims) Owns(userId string) error {
	if userId != "" && userId != c.UserId {
		return errcode.ErrTokenMismatch
	}
	return nil
}

// GenerateToken issues a chat token valid for ttl
func GenerateToken(userId, role string, platformId int, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId:     userId,
		PlatformId: platformId,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userId,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a chat token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserId == "" {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}
