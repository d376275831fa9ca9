package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/tree"
)

// DefaultTokenTTL is the bearer token lifetime.
const DefaultTokenTTL = 30 * time.Minute

// Claims is the bearer token payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthToken is a bearer token as it travels over the wire.
type AuthToken struct {
	AccessToken string `json:"access_token"`
}

// Generate signs a token for the given user id with HS256. A zero ttl
// means the default of 30 minutes.
func Generate(userID, secret string, ttl time.Duration) (*AuthToken, error) {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &AuthToken{AccessToken: signed}, nil
}

// TokenFromHeader extracts the bearer token from the Authorization
// header, tolerating its absence: the returned token is then empty and
// verifies to nothing.
func TokenFromHeader(h http.Header) *AuthToken {
	value := h.Get("Authorization")
	token, found := strings.CutPrefix(value, "Bearer ")
	if !found {
		return &AuthToken{}
	}
	return &AuthToken{AccessToken: token}
}

// Verify decodes the token. It returns the claims, or nil on a missing
// token, a bad signature or expiry.
func (t *AuthToken) Verify(secret string) *Claims {
	if t == nil || t.AccessToken == "" {
		return nil
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(t.AccessToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil
	}
	return claims
}

// Actor resolves the user the token identifies. A missing or invalid
// token resolves to no actor, not an error; permission rules decide
// whether that is acceptable.
func (t *AuthToken) Actor(ctx context.Context, store core.Store, secret, userType string) (tree.Node, error) {
	claims := t.Verify(secret)
	if claims == nil {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, nil
	}
	return store.GetOne(ctx, userType, core.Query{ID: id})
}
