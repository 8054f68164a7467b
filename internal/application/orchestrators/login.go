package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/domain/credentials"
	"cardrec/internal/domain/view"
)

// BackendForLogin defines the backend calls needed by Login.
type BackendForLogin interface {
	Login(ctx context.Context, jar http.CookieJar, email, password string) (view.User, error)
	CategoryFetcher
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Backend BackendForLogin
}

// ExecuteLogin submits the login form.
// PRE: Phase is anonymous
// POST: authenticated with categories fetched, or still anonymous/login with an error
// INVARIANT: invalid input never reaches the backend
func ExecuteLogin(ctx context.Context, st *view.State, input LoginInput, deps LoginDeps) error {
	if st.Phase != view.PhaseAnonymous {
		return view.ErrInvalidTransition
	}

	form := credentials.Login{Email: input.Email, Password: input.Password}
	form.Normalize()
	if err := form.Validate(); err != nil {
		_ = st.LoginFailed(form.Email, err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := deps.Backend.Login(ctx, jarFor(st), form.Email, form.Password)
	if err != nil {
		slog.Info("auth_event", "event", "login_failed", "email", form.Email, "error", err)
		_ = st.LoginFailed(form.Email, backend.UserMessage(err, MsgLoginFailed))
		return err
	}
	if user.Email == "" {
		user.Email = form.Email
	}

	slog.Info("auth_event", "event", "login_success", "user_id", user.ID, "email", user.Email)
	enterAuthenticated(ctx, st, user, deps.Backend)
	return nil
}

// ExecuteToggleAuthView switches an anonymous view between login and register.
// PRE: Phase is anonymous; v is "login" or "register"
// POST: AuthView is v, form messages cleared
func ExecuteToggleAuthView(st *view.State, v string) error {
	return st.ShowAuthView(view.AuthView(v))
}

// BackendForLogout defines the backend call needed by Logout.
type BackendForLogout interface {
	Logout(ctx context.Context, jar http.CookieJar) error
}

// LogoutDeps holds dependencies for Logout.
type LogoutDeps struct {
	Backend BackendForLogout
}

// ExecuteLogout ends the session. The backend call is best-effort: the view
// returns to anonymous/login even when it fails.
// POST: user, categories, selection, recommendation and backend cookies cleared
func ExecuteLogout(ctx context.Context, st *view.State, deps LogoutDeps) error {
	if len(st.BackendCookies) > 0 || st.IsAuthenticated() {
		if err := deps.Backend.Logout(ctx, jarFor(st)); err != nil {
			slog.Warn("auth_event", "event", "logout_backend_failed", "view_id", st.ID, "error", err)
		}
	}
	if st.User != nil {
		slog.Info("auth_event", "event", "logout", "user_id", st.User.ID)
	}
	st.Logout()
	return nil
}
