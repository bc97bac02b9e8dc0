package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/jwt"
	"github.com/mbeoliero/jobchat/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
	// PlatformIdKey is the context key for platform Id
	PlatformIdKey = "platform_id"
	// TokenKey is the context key for the raw bearer token
	TokenKey = "token"
)

// TokenVerifier validates bearer tokens. Native tokens and portal tokens
// are both accepted when the verifier is configured for it.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// JWTAuth is the JWT authentication middleware
func JWTAuth(verifier TokenVerifier) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.Abort(ctx, c, errcode.ErrTokenMissing)
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Abort(ctx, c, errcode.ErrTokenInvalid)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := verifier.ValidateToken(ctx, tokenString)
		if err != nil {
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		// Store user info in context
		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)
		c.Set(TokenKey, tokenString)

		c.Next(ctx)
	}
}

// PublisherAuth guards server-to-server endpoints with a shared token sent
// as a bearer credential. An empty token disables the endpoints.
func PublisherAuth(token string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if token == "" {
			response.Abort(ctx, c, errcode.ErrForbidden)
			return
		}

		authHeader := string(c.GetHeader(AuthorizationHeader))
		presented := strings.TrimPrefix(authHeader, BearerPrefix)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			response.Abort(ctx, c, errcode.ErrUnauthorized)
			return
		}

		c.Next(ctx)
	}
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) string {
	if v, ok := c.Get(UserIdKey); ok {
		return v.(string)
	}
	return ""
}

// GetPlatformId gets platform Id from context
func GetPlatformId(c *app.RequestContext) int {
	if v, ok := c.Get(PlatformIdKey); ok {
		return v.(int)
	}
	return 0
}

// GetToken gets the raw bearer token from context
func GetToken(c *app.RequestContext) string {
	if v, ok := c.Get(TokenKey); ok {
		return v.(string)
	}
	return ""
}
