package orchestrators

import (
	"context"
	"log/slog"
	"net/http"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/domain/view"
)

// BackendForCheckSession defines the backend calls needed by CheckSession.
type BackendForCheckSession interface {
	Status(ctx context.Context, jar http.CookieJar) (backend.Status, error)
	CategoryFetcher
}

// CheckSessionDeps holds dependencies for CheckSession.
type CheckSessionDeps struct {
	Backend BackendForCheckSession
}

// ExecuteCheckSession resolves a view that is still checking its session.
// PRE: none; views past checking-session are left untouched
// POST: Phase is anonymous (login view) or authenticated with categories fetched
func ExecuteCheckSession(ctx context.Context, st *view.State, deps CheckSessionDeps) error {
	if st.Phase != view.PhaseChecking {
		return nil
	}

	status, err := deps.Backend.Status(ctx, jarFor(st))
	if err != nil {
		slog.Warn("session_check_failed", "view_id", st.ID, "error", err)
		st.ResolveAnonymous(backend.UserMessage(err, MsgStatusFailed))
		return err
	}
	if !status.LoggedIn || status.User == nil {
		st.ResolveAnonymous("")
		return nil
	}

	slog.Info("auth_event", "event", "session_restored", "user_id", status.User.ID)
	enterAuthenticated(ctx, st, *status.User, deps.Backend)
	return nil
}

// LoadCategoriesDeps holds dependencies for LoadCategories.
type LoadCategoriesDeps struct {
	Backend CategoryFetcher
}

// ExecuteLoadCategories fetches the category list for an authenticated view.
// PRE: Phase is authenticated
// POST: Categories set, or empty with an error message on failure
func ExecuteLoadCategories(ctx context.Context, st *view.State, deps LoadCategoriesDeps) error {
	if !st.IsAuthenticated() {
		return view.ErrInvalidTransition
	}
	categories, err := deps.Backend.Categories(ctx, jarFor(st))
	if err != nil {
		slog.Warn("categories_failed", "view_id", st.ID, "error", err)
		st.CategoriesFailed(backend.UserMessage(err, MsgCategoriesFailed))
		return err
	}
	return st.SetCategories(categories)
}
