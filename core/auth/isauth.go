package auth

import (
	"context"
	"net/http"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/introspect"
	"github.com/yrest-dev/yrest/core/registry"
)

// RegisterModels registers the wire models of the auth flow.
func RegisterModels(reg *registry.Registry) {
	reg.MustRegister(&Auth{})
	reg.MustRegister(&AuthToken{})
	reg.MustRegister(&ForgotPasswordRequest{})
	reg.MustRegister(&ResetPassword{})
	reg.MustRegister(&PasswordResetToken{})
}

// RegisterIsAuth attaches the IsAuth feature handlers to a type,
// normally the root model: the token exchange and the password
// recovery pair.
func RegisterIsAuth(set *introspect.Set, typeName string) *introspect.Set {
	set.Handle(typeName, "auth", &introspect.Handler{
		Func:        authHandler,
		Description: "Authorizes email and password",
		Consumes:    "Auth",
		Produces:    []string{"AuthToken"},
	})
	set.Handle(typeName, "forgot_password", &introspect.Handler{
		Func:        forgotPasswordHandler,
		Description: "Sends a password recovery mail to the specified mail",
		Consumes:    "ForgotPasswordRequest",
		Produces:    []string{"Ok"},
		CanCrash:    introspect.Crashes(core.KindNotFound, core.KindAlreadyRequested),
	})
	set.Handle(typeName, "reset_password", &introspect.Handler{
		Func:        resetPasswordHandler,
		Description: "Resets the password of the user the recovery code belongs to",
		Consumes:    "ResetPassword",
		Produces:    []string{"Ok"},
		CanCrash:    introspect.Crashes(core.KindNotFound),
	})
	return set
}

func authHandler(ctx context.Context, call *introspect.Call) (any, error) {
	consume := call.Consume.(*Auth)
	token, err := consume.Authorize(ctx, call.App)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return core.NewErrorMessage("The authentication has failed", http.StatusUnauthorized), nil
	}
	return token, nil
}

func forgotPasswordHandler(ctx context.Context, call *introspect.Call) (any, error) {
	consume := call.Consume.(*ForgotPasswordRequest)
	store := call.App.Store()

	user, err := store.GetOne(ctx, call.App.UserType(), core.Query{Filter: map[string]any{"email": string(consume.Email)}})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.Errorf(core.KindNotFound, "Unregistered email")
	}

	prev, err := store.GetOne(ctx, "PasswordResetToken", core.Query{Filter: map[string]any{"email": string(consume.Email)}})
	if err != nil {
		return nil, err
	}
	if prev != nil {
		return nil, core.Errorf(core.KindAlreadyRequested, "Already requested")
	}

	token := NewPasswordResetToken(consume.Email)
	if err := store.Create(ctx, token); err != nil {
		return nil, err
	}

	if err := call.App.Notify(ctx, call.Request, "forgot_password", map[string]any{
		"actor": user,
		"token": token,
	}); err != nil {
		return nil, err
	}
	return core.NewOk(), nil
}

// resetPasswordHandler consumes the recovery code: it rehashes the
// user's password and deletes the token, so the code is single use.
func resetPasswordHandler(ctx context.Context, call *introspect.Call) (any, error) {
	consume := call.Consume.(*ResetPassword)
	store := call.App.Store()

	token, err := store.GetOne(ctx, "PasswordResetToken", core.Query{Filter: map[string]any{"code": consume.Code}})
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, core.Errorf(core.KindNotFound, "Unknown recovery code")
	}
	reset := token.(*PasswordResetToken)

	user, err := store.GetOne(ctx, call.App.UserType(), core.Query{Filter: map[string]any{"email": string(reset.Email)}})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.Errorf(core.KindNotFound, "Unregistered email")
	}

	if err := store.Update(ctx, user, map[string]any{"password": GeneratePasswordHash(string(consume.Password))}); err != nil {
		return nil, err
	}
	if err := store.Delete(ctx, token); err != nil {
		return nil, err
	}
	return core.NewOk(), nil
}
