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

// BackendForRegister defines the backend call needed by Register.
type BackendForRegister interface {
	Register(ctx context.Context, jar http.CookieJar, username, email, password string) error
}

// RegisterInput carries input for the register orchestrator.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterDeps holds dependencies for Register.
type RegisterDeps struct {
	Backend BackendForRegister
}

// ExecuteRegister submits the registration form. Success does not log in.
// PRE: Phase is anonymous
// POST: anonymous/login with a success notice, or anonymous/register with an error
func ExecuteRegister(ctx context.Context, st *view.State, input RegisterInput, deps RegisterDeps) error {
	if st.Phase != view.PhaseAnonymous {
		return view.ErrInvalidTransition
	}

	form := credentials.Register{Username: input.Username, Email: input.Email, Password: input.Password}
	form.Normalize()
	if err := form.Validate(); err != nil {
		_ = st.RegisterFailed(form.Username, form.Email, err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := deps.Backend.Register(ctx, jarFor(st), form.Username, form.Email, form.Password); err != nil {
		slog.Info("auth_event", "event", "register_failed", "email", form.Email, "error", err)
		_ = st.RegisterFailed(form.Username, form.Email, backend.UserMessage(err, MsgRegisterFailed))
		return err
	}

	slog.Info("auth_event", "event", "register_success", "email", form.Email)
	return st.Registered(form.Email)
}
