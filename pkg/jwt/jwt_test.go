package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/pkg/errcode"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("js__1", "jobseeker", 5, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "js__1", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)
	assert.Equal(t, "jobseeker", claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
	assert.NotEmpty(t, claims.SessionId())
	assert.False(t, claims.External)
}

func TestTokensAreDistinctPerLogin(t *testing.T) {
	a, err := GenerateToken("js__1", "jobseeker", 5, "secret", time.Hour)
	require.NoError(t, err)
	b, err := GenerateToken("js__1", "jobseeker", 5, "secret", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("js__1", "jobseeker", 5, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("js__1", "jobseeker", 5, "secret", -time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.Error(t, err)
}

func TestClaimsOwns(t *testing.T) {
	token, err := GenerateToken("js__1", "jobseeker", 5, "secret", time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)

	assert.NoError(t, claims.Owns(""))
	assert.NoError(t, claims.Owns("js__1"))
	assert.ErrorIs(t, claims.Owns("js__2"), errcode.ErrTokenMismatch)
}

func TestParseExternalToken(t *testing.T) {
	ext := ExternalClaims{
		UserId: 99,
		Role:   "employer",
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, ext).SignedString([]byte("portal"))
	require.NoError(t, err)

	claims, err := ParseExternalToken(signed, "portal", "jobseeker", 5)
	require.NoError(t, err)
	assert.Equal(t, "em__99", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)
	assert.Equal(t, "employer", claims.Role)
	assert.True(t, claims.External)

	ext.Role = ""
	signed, err = gojwt.NewWithClaims(gojwt.SigningMethodHS256, ext).SignedString([]byte("portal"))
	require.NoError(t, err)

	claims, err = ParseExternalToken(signed, "portal", "jobseeker", 5)
	require.NoError(t, err)
	assert.Equal(t, "js__99", claims.UserId)
}
