package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	token, err := Generate("651e3cafd27a1c0a1c000001", "secret", 0)
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)

	claims := token.Verify("secret")
	require.NotNil(t, claims)
	assert.Equal(t, "651e3cafd27a1c0a1c000001", claims.UserID)

	exp := claims.ExpiresAt.Time
	assert.WithinDuration(t, time.Now().UTC().Add(DefaultTokenTTL), exp, time.Minute)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Generate("user", "secret", 0)
	require.NoError(t, err)
	assert.Nil(t, token.Verify("other"))
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := Generate("user", "secret", -time.Minute)
	require.NoError(t, err)
	assert.Nil(t, token.Verify("secret"))
}

func TestVerifyToleratesAbsence(t *testing.T) {
	assert.Nil(t, (&AuthToken{}).Verify("secret"))
	var none *AuthToken
	assert.Nil(t, none.Verify("secret"))
}

func TestTokenFromHeader(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, TokenFromHeader(h).AccessToken)

	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, TokenFromHeader(h).AccessToken)

	h.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", TokenFromHeader(h).AccessToken)
}
