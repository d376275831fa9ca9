/*Package auth provides the authentication primitives: password
hashing, bearer tokens and the password-reset flow, plus the IsAuth
feature that attaches the corresponding handlers to a root model.
*/
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashPrefix        = "pbkdf2:sha256"
	defaultIterations = 50000
	saltBytes         = 8
	keyBytes          = sha256.Size
)

// Key derivation is CPU bound; the pool keeps concurrent requests from
// starving the event loop with hashing work.
var hashPool = make(chan struct{}, runtime.GOMAXPROCS(0))

func deriveKey(password, salt string, iterations int) string {
	hashPool <- struct{}{}
	defer func() { <-hashPool }()
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), iterations, keyBytes, sha256.New))
}

// GeneratePasswordHash hashes a password into the stored form
// "pbkdf2:sha256:<iterations>$<hex salt>$<hex digest>" with a fresh
// random salt.
func GeneratePasswordHash(password string) string {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("auth: no entropy for password salt: %v", err))
	}
	salt := hex.EncodeToString(raw)
	return fmt.Sprintf("%s:%d$%s$%s", hashPrefix, defaultIterations, salt, deriveKey(password, salt, defaultIterations))
}

// CheckPasswordHash verifies a password against a stored hash,
// recomputing with the stored salt and iteration count and comparing in
// constant time.
func CheckPasswordHash(hashed, password string) bool {
	parts := strings.Split(hashed, "$")
	if len(parts) != 3 {
		return false
	}
	method := strings.Split(parts[0], ":")
	if len(method) != 3 || method[0]+":"+method[1] != hashPrefix {
		return false
	}
	iterations, err := strconv.Atoi(method[2])
	if err != nil || iterations <= 0 {
		return false
	}
	recomputed := fmt.Sprintf("%s:%d$%s$%s", hashPrefix, iterations, parts[1], deriveKey(password, parts[1], iterations))
	return subtle.ConstantTimeCompare([]byte(recomputed), []byte(hashed)) == 1
}

// Secure hashes a password unless it is already in stored form, so
// models can accept both on input.
func Secure(password string) string {
	if strings.HasPrefix(password, hashPrefix+":") {
		return password
	}
	return GeneratePasswordHash(password)
}
