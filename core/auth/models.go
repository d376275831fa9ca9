package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/tree"
)

// ResetTokenTTL is the store-level expiry of password-reset tokens.
const ResetTokenTTL = 1800 * time.Second

// Credentialed is a user node the auth flow can verify and identify.
type Credentialed interface {
	tree.Node
	PasswordHash() string
}

// Auth is the credential pair exchanged for a bearer token.
type Auth struct {
	Email    tree.Email    `json:"email"`
	Password tree.Password `json:"password"`
}

// Authorize verifies the credentials against the stored user and signs
// a token. It returns nil when the email is unknown or the password
// does not match.
func (a *Auth) Authorize(ctx context.Context, b core.Backend) (*AuthToken, error) {
	user, err := b.Store().GetOne(ctx, b.UserType(), core.Query{Filter: map[string]any{"email": string(a.Email)}})
	if err != nil {
		return nil, err
	}
	cred, ok := user.(Credentialed)
	if !ok || user == nil {
		return nil, nil
	}
	if !CheckPasswordHash(cred.PasswordHash(), string(a.Password)) {
		return nil, nil
	}
	return Generate(user.Tree().ID.Hex(), b.Secret(), 0)
}

// ForgotPasswordRequest starts a password recovery.
type ForgotPasswordRequest struct {
	Email tree.Email `json:"email"`
}

// ResetPassword completes a recovery with the emailed code.
type ResetPassword struct {
	Code     string        `json:"code" schema:"format=uuid"`
	Password tree.Password `json:"password"`
}

// PasswordResetToken is the stored recovery token. It lives under the
// root path; its existence enforces one active request per email, and
// the store expires it after ResetTokenTTL via the created_at index.
type PasswordResetToken struct {
	tree.Base
	Email     tree.Email `json:"email" bson:"email"`
	Code      string     `json:"code" bson:"code" schema:"format=uuid"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}

// NewPasswordResetToken mints a token for the given email.
func NewPasswordResetToken(email tree.Email) *PasswordResetToken {
	t := &PasswordResetToken{
		Email:     email,
		Code:      uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	t.Path = "/"
	t.Type = "PasswordResetToken"
	return t
}

// SlugFields names the slug source of a reset token.
func (t *PasswordResetToken) SlugFields() []string { return []string{"email"} }

// SlugSource derives the token slug from the email.
func (t *PasswordResetToken) SlugSource(patch map[string]any) string {
	if v, ok := patch["email"].(string); ok {
		return v
	}
	return string(t.Email)
}
