package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/adapters/http/middleware"
	viewStore "cardrec/internal/adapters/storage/view"
	"cardrec/internal/application/orchestrators"
	"cardrec/internal/domain/view"
)

var errNoViewID = errors.New("request has no view id")

// saveTimeout bounds a view save. Saves run detached from the request so a
// browser that disconnects mid-action still gets its final state written.
const saveTimeout = 5 * time.Second

// staleLoadingAfter is how long Loading may stay set before it counts as left
// behind by a request that never finished (set by NewMux).
var staleLoadingAfter = backend.DefaultTimeout + saveTimeout

// saveMu makes the stale-copy check and the write in saveView one step.
var saveMu sync.Mutex

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// loadView returns the caller's view. A browser without a stored view gets a
// fresh one in checking-session; it is only stored once saveView runs.
func loadView(r *http.Request) (view.State, error) {
	id, ok := middleware.ViewIDFromContext(r.Context())
	if !ok {
		return view.State{}, errNoViewID
	}
	st, err := views.Get(r.Context(), id)
	if errors.Is(err, viewStore.ErrNotFound) {
		return view.New(id, timeNow()), nil
	}
	if err != nil {
		return view.State{}, err
	}
	if st.ExpireLoading(timeNow(), staleLoadingAfter, orchestrators.MsgRecommendLost) {
		slog.Warn("stale_loading_cleared", "view_id", st.ID)
	}
	return st, nil
}

// saveView records activity and persists st, which was loaded under
// generation base. If another request has since changed the session, st is
// replaced by the stored view, nothing is written and ErrViewSuperseded is
// returned.
func saveView(ctx context.Context, st *view.State, base string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	saveMu.Lock()
	defer saveMu.Unlock()
	stored, err := views.Get(ctx, st.ID)
	switch {
	case err == nil && st.StaleAgainst(stored, base):
		slog.Info("view_superseded", "view_id", st.ID, "phase", stored.Phase)
		*st = stored
		return orchestrators.ErrViewSuperseded
	case err != nil && !errors.Is(err, viewStore.ErrNotFound):
		return err
	}
	st.Touch(timeNow())
	return views.Save(ctx, *st)
}

// viewSaver saves a view mid-action with the same check as the final save.
type viewSaver struct {
	base string
}

func (v viewSaver) Save(ctx context.Context, st view.State) error {
	return saveView(ctx, &st, v.base)
}

// persist runs the final save of an action or page load. A superseded view
// is not an error: st already holds the newer stored state.
func persist(ctx context.Context, st *view.State, base string) error {
	if err := saveView(ctx, st, base); err != nil && !errors.Is(err, orchestrators.ErrViewSuperseded) {
		return err
	}
	return nil
}

// resolveSession runs the status check for a view that has not had one yet.
func resolveSession(ctx context.Context, st *view.State) {
	_ = orchestrators.ExecuteCheckSession(ctx, st, orchestrators.CheckSessionDeps{Backend: backendAPI})
}

// runAction loads the caller's view, resolves its session, applies fn, saves
// the view and redirects back to the shell (POST/redirect/GET). Errors from fn
// have already been turned into messages on the view, so they only get logged.
// fn gets a saver for writes it needs before it returns.
func runAction(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, st *view.State, save orchestrators.ViewSaver) error) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	st, err := loadView(r)
	if err != nil {
		internalError(w, err)
		return
	}
	base := st.Generation
	resolveSession(ctx, &st)

	if err := fn(ctx, &st, viewSaver{base: base}); err != nil {
		if errors.Is(err, view.ErrInvalidTransition) || errors.Is(err, orchestrators.ErrViewSuperseded) {
			slog.Debug("action_ignored", "action", action, "view_id", st.ID, "phase", st.Phase)
		} else {
			slog.Debug("action_failed", "action", action, "view_id", st.ID, "error", err)
		}
	}

	if err := persist(ctx, &st, base); err != nil {
		internalError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleShell renders the page for the caller's current view.
func handleShell(w http.ResponseWriter, r *http.Request) {
	st, ok := currentView(w, r)
	if !ok {
		return
	}
	renderShell(w, r, &st)
}

// handleViewJSON returns the caller's view as JSON. Backend cookies are never included.
func handleViewJSON(w http.ResponseWriter, r *http.Request) {
	st, ok := currentView(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Error("view_encode_failed", "view_id", st.ID, "error", err)
	}
}

// currentView loads, resolves and saves the caller's view for a GET.
func currentView(w http.ResponseWriter, r *http.Request) (view.State, bool) {
	ctx := r.Context()
	st, err := loadView(r)
	if err != nil {
		internalError(w, err)
		return view.State{}, false
	}
	base := st.Generation
	resolveSession(ctx, &st)
	if err := persist(ctx, &st, base); err != nil {
		internalError(w, err)
		return view.State{}, false
	}
	return st, true
}

// handleLogin submits the login form.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "login", func(ctx context.Context, st *view.State, _ orchestrators.ViewSaver) error {
		input := orchestrators.LoginInput{
			Email:    r.PostFormValue("Email"),
			Password: r.PostFormValue("Password"),
		}
		return orchestrators.ExecuteLogin(ctx, st, input, orchestrators.LoginDeps{Backend: backendAPI})
	})
}

// handleRegister submits the registration form.
func handleRegister(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "register", func(ctx context.Context, st *view.State, _ orchestrators.ViewSaver) error {
		input := orchestrators.RegisterInput{
			Username: r.PostFormValue("Username"),
			Email:    r.PostFormValue("Email"),
			Password: r.PostFormValue("Password"),
		}
		return orchestrators.ExecuteRegister(ctx, st, input, orchestrators.RegisterDeps{Backend: backendAPI})
	})
}

// handleAuthView toggles between the login and register forms.
func handleAuthView(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "auth_view", func(_ context.Context, st *view.State, _ orchestrators.ViewSaver) error {
		return orchestrators.ExecuteToggleAuthView(st, r.PostFormValue("view"))
	})
}

// handleLogout ends the session.
func handleLogout(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "logout", func(ctx context.Context, st *view.State, _ orchestrators.ViewSaver) error {
		return orchestrators.ExecuteLogout(ctx, st, orchestrators.LogoutDeps{Backend: backendAPI})
	})
}

// handleRecommend runs "Find My Card" for the posted category.
func handleRecommend(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "recommend", func(ctx context.Context, st *view.State, save orchestrators.ViewSaver) error {
		deps := orchestrators.RecommendDeps{Backend: backendAPI, Views: save, Now: timeNow}
		return orchestrators.ExecuteRecommend(ctx, st, orchestrators.RecommendInput{Category: r.PostFormValue("category")}, deps)
	})
}

// handleEmailRecommendation emails the current recommendation to the user.
func handleEmailRecommendation(w http.ResponseWriter, r *http.Request) {
	runAction(w, r, "recommend_email", func(ctx context.Context, st *view.State, _ orchestrators.ViewSaver) error {
		return orchestrators.ExecuteEmailRecommendation(ctx, st, orchestrators.EmailRecommendationDeps{Sender: emailSender})
	})
}

// handleHealth reports liveness.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handlePerf returns a timing snapshot. ?minutes= selects the window (default 15).
func handlePerf(w http.ResponseWriter, r *http.Request) {
	minutes := 15
	if v, err := strconv.Atoi(r.URL.Query().Get("minutes")); err == nil && v > 0 {
		minutes = v
	}
	snap := perfCollector.Snapshot(timeNow().Add(-time.Duration(minutes)*time.Minute), 20)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		slog.Error("perf_encode_failed", "error", err)
	}
}
