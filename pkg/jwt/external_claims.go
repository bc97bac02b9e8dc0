package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/identity"
)

// ExternalClaims represents claims issued by the job portal's auth layer.
// The portal token carries a numeric account id and a role, converted to the
// chat user id via identity.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"` // "jobseeker", "employer", "admin". Falls back to configured default.
	jwt.RegisteredClaims
}

// ParseExternalToken parses a portal JWT and converts it to chat Claims.
//
// Parameters:
//   - tokenString: the raw JWT token from the portal
//   - secret: the signing secret of the portal
//   - defaultRole: fallback role when the token doesn't carry one
//   - defaultPlatformId: platform ID to assign to the converted claims
func ParseExternalToken(tokenString, secret, defaultRole string, defaultPlatformId int) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	role := identity.RoleType(extClaims.Role)
	if extClaims.Role == "" {
		role = identity.RoleType(defaultRole)
	}

	actor := identity.Actor{Id: extClaims.UserId, Role: role}
	chatUserId, err := actor.ToChatUserId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		UserId:           chatUserId,
		PlatformId:       defaultPlatformId,
		Role:             string(role),
		External:         true,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
