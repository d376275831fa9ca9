package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePasswordHashFormat(t *testing.T) {
	hash := GeneratePasswordHash("hunter2")

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 3)
	assert.Equal(t, "pbkdf2:sha256:50000", parts[0])
	assert.Len(t, parts[1], 16) // 8 random bytes, hex encoded
	assert.Len(t, parts[2], 64) // sha256 digest, hex encoded
}

func TestCheckPasswordHash(t *testing.T) {
	hash := GeneratePasswordHash("hunter2")

	assert.True(t, CheckPasswordHash(hash, "hunter2"))
	assert.False(t, CheckPasswordHash(hash, "HUNTER2"))
	assert.False(t, CheckPasswordHash(hash, ""))
}

func TestCheckPasswordHashSalting(t *testing.T) {
	// same password, fresh salt, different hash
	a := GeneratePasswordHash("hunter2")
	b := GeneratePasswordHash("hunter2")
	assert.NotEqual(t, a, b)
	assert.True(t, CheckPasswordHash(a, "hunter2"))
	assert.True(t, CheckPasswordHash(b, "hunter2"))
}

func TestCheckPasswordHashHonorsStoredIterations(t *testing.T) {
	// a hash minted with a non-default iteration count still verifies
	hash := "pbkdf2:sha256:1000$" + "0011223344556677" + "$"
	digest := deriveKey("hunter2", "0011223344556677", 1000)
	assert.True(t, CheckPasswordHash(hash+digest, "hunter2"))
	assert.False(t, CheckPasswordHash(hash+digest, "other"))
}

func TestCheckPasswordHashRejectsGarbage(t *testing.T) {
	assert.False(t, CheckPasswordHash("", "hunter2"))
	assert.False(t, CheckPasswordHash("not-a-hash", "hunter2"))
	assert.False(t, CheckPasswordHash("md5:deadbeef$00$11", "hunter2"))
	assert.False(t, CheckPasswordHash("pbkdf2:sha256:notanumber$00$11", "hunter2"))
}
