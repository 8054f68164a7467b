package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/domain/view"
)

// Messages shown when a backend call fails without an error message of its own.
const (
	MsgStatusFailed     = "Could not reach the server. Is the backend server running?"
	MsgLoginFailed      = "Failed to log in. Is the backend server running?"
	MsgRegisterFailed   = "Failed to register. Is the backend server running?"
	MsgCategoriesFailed = "Failed to load categories. Is the backend server running?"
	MsgRecommendFailed  = "Failed to fetch recommendation. Is the backend server running?"
	MsgRecommendLost    = "The last recommendation request did not finish. Please try again."
	MsgNothingToEmail   = "Find a card first, then email the recommendation."
	MsgEmailFailed      = "Could not send the email. Please try again later."
)

// Errors returned when an action stops before completing. The user-facing
// message is already in the view state when one of these comes back.
var (
	ErrInvalidInput   = errors.New("invalid form input")
	ErrNothingToEmail = errors.New("no recommendation to email")
	// ErrViewSuperseded is returned by a ViewSaver when another request changed
	// the session after this view was loaded.
	ErrViewSuperseded = errors.New("view superseded by a newer session")
)

// CategoryFetcher is the backend call run when a session becomes authenticated.
type CategoryFetcher interface {
	Categories(ctx context.Context, jar http.CookieJar) ([]string, error)
}

// ViewSaver persists a view mid-action.
type ViewSaver interface {
	Save(ctx context.Context, s view.State) error
}

// jarFor relays backend cookies through the view's cookie map.
func jarFor(st *view.State) http.CookieJar {
	return backend.Jar(st.Cookies())
}

// enterAuthenticated authenticates st and runs the category fetch exactly once
// per entry into the authenticated phase.
func enterAuthenticated(ctx context.Context, st *view.State, user view.User, categories CategoryFetcher) {
	if st.Authenticate(user) {
		// A failed fetch leaves its message on the view; the login itself stands.
		if err := ExecuteLoadCategories(ctx, st, LoadCategoriesDeps{Backend: categories}); err != nil {
			slog.Debug("categories_after_login_failed", "view_id", st.ID, "error", err)
		}
	}
}
