package view

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"cardrec/internal/domain/card"
)

// Phase is the session part of the shell state.
type Phase string

// Phase constants
const (
	PhaseChecking      Phase = "checking-session"
	PhaseAnonymous     Phase = "anonymous"
	PhaseAuthenticated Phase = "authenticated"
)

// AuthView selects which form an anonymous visitor sees.
type AuthView string

// AuthView constants
const (
	AuthLogin    AuthView = "login"
	AuthRegister AuthView = "register"
)

// User-visible messages set by the state machine itself.
const (
	MsgSelectCategory = "Please select a category."
	MsgRegistered     = "Registration successful! Please log in."
)

// Domain errors
var (
	ErrInvalidTransition = errors.New("invalid view transition")
	ErrNoCategory        = errors.New("no category selected")
	ErrUnknownAuthView   = errors.New("auth view must be login or register")
)

// User is the authenticated account as reported by the backend.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// LoginForm is the state of the login form between submissions.
type LoginForm struct {
	Email  string `json:"email"`
	Error  string `json:"error,omitempty"`
	Notice string `json:"notice,omitempty"`
}

// RegisterForm is the state of the registration form between submissions.
type RegisterForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Error    string `json:"error,omitempty"`
}

// State is the client-side state of one browser: the session, the data
// fetched for it, and what each form shows. Only the shell mutates it.
type State struct {
	ID       string   `json:"id"`
	Phase    Phase    `json:"phase"`
	AuthView AuthView `json:"auth_view"`
	User     *User    `json:"user,omitempty"`

	// Generation changes on every session transition (check resolved, login,
	// logout). A copy loaded under an older generation must not be saved back.
	Generation string `json:"generation"`

	Categories       []string             `json:"categories"`
	SelectedCategory string               `json:"selected_category"`
	Recommendation   *card.Recommendation `json:"recommendation,omitempty"`
	Loading          bool                 `json:"loading"`
	LoadingSince     time.Time            `json:"loading_since"`
	Error            string               `json:"error,omitempty"`
	Notice           string               `json:"notice,omitempty"`

	Login    LoginForm    `json:"login"`
	Register RegisterForm `json:"register"`

	// BackendCookies holds the backend's session cookies for this browser.
	BackendCookies map[string]string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh state waiting for its first session check.
// PRE: id is non-empty
// POST: Phase is checking-session, nothing fetched yet
func New(id string, now time.Time) State {
	return State{
		ID:        id,
		Phase:     PhaseChecking,
		AuthView:  AuthLogin,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without sharing memory with a store.
func (s State) Clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Categories = slices.Clone(s.Categories)
	out.Recommendation = s.Recommendation.Clone()
	out.BackendCookies = maps.Clone(s.BackendCookies)
	return out
}

// IsAuthenticated reports whether the session is authenticated.
func (s *State) IsAuthenticated() bool {
	return s.Phase == PhaseAuthenticated
}

// Cookies returns the backend cookie map, creating it on first use.
func (s *State) Cookies() map[string]string {
	if s.BackendCookies == nil {
		s.BackendCookies = make(map[string]string)
	}
	return s.BackendCookies
}

// Authenticate moves the session into authenticated for user.
// It returns true only when this call entered the authenticated phase; callers
// use that signal to run the one category fetch that follows a login.
// PRE: user is non-nil
// POST: Phase is authenticated, forms are cleared
func (s *State) Authenticate(user User) bool {
	entered := s.Phase != PhaseAuthenticated
	if entered {
		s.Generation = uuid.NewString()
	}
	s.Phase = PhaseAuthenticated
	s.User = &user
	s.Login = LoginForm{}
	s.Register = RegisterForm{}
	if entered {
		s.Error = ""
		s.Notice = ""
	}
	return entered
}

// ResolveAnonymous ends the session check in the anonymous login view.
// msg, when non-empty, is shown on the login form.
// POST: Phase is anonymous, AuthView is login
func (s *State) ResolveAnonymous(msg string) {
	s.clearSession()
	s.Login.Error = msg
}

// ShowAuthView switches between the login and register forms.
// PRE: Phase is anonymous
// POST: AuthView is v; form messages are cleared
func (s *State) ShowAuthView(v AuthView) error {
	if v != AuthLogin && v != AuthRegister {
		return ErrUnknownAuthView
	}
	if s.Phase != PhaseAnonymous {
		return ErrInvalidTransition
	}
	s.AuthView = v
	s.Login.Error = ""
	s.Login.Notice = ""
	s.Register.Error = ""
	return nil
}

// LoginFailed keeps the login view and shows msg.
// PRE: Phase is anonymous
func (s *State) LoginFailed(email, msg string) error {
	if s.Phase != PhaseAnonymous {
		return ErrInvalidTransition
	}
	s.AuthView = AuthLogin
	s.Login.Email = email
	s.Login.Error = msg
	s.Login.Notice = ""
	return nil
}

// Registered moves to the login view with a success notice. It does not authenticate.
// PRE: Phase is anonymous
// POST: AuthView is login, login email prefilled
func (s *State) Registered(email string) error {
	if s.Phase != PhaseAnonymous {
		return ErrInvalidTransition
	}
	s.AuthView = AuthLogin
	s.Register = RegisterForm{}
	s.Login = LoginForm{Email: email, Notice: MsgRegistered}
	return nil
}

// RegisterFailed keeps the register view and shows msg.
// PRE: Phase is anonymous
func (s *State) RegisterFailed(username, email, msg string) error {
	if s.Phase != PhaseAnonymous {
		return ErrInvalidTransition
	}
	s.AuthView = AuthRegister
	s.Register = RegisterForm{Username: username, Email: email, Error: msg}
	return nil
}

// Logout returns to the anonymous login view from any phase, dropping
// everything fetched for the previous session.
// POST: user, categories, selection, recommendation, messages and cookies cleared
func (s *State) Logout() {
	s.clearSession()
}

func (s *State) clearSession() {
	s.Generation = uuid.NewString()
	s.Phase = PhaseAnonymous
	s.AuthView = AuthLogin
	s.User = nil
	s.Categories = nil
	s.SelectedCategory = ""
	s.Recommendation = nil
	s.Loading = false
	s.LoadingSince = time.Time{}
	s.Error = ""
	s.Notice = ""
	s.Login = LoginForm{}
	s.Register = RegisterForm{}
	s.BackendCookies = nil
}

// SetCategories stores the fetched category list.
// PRE: Phase is authenticated
// POST: a selection no longer in the list is dropped
func (s *State) SetCategories(categories []string) error {
	if s.Phase != PhaseAuthenticated {
		return ErrInvalidTransition
	}
	s.Categories = slices.Clone(categories)
	if s.SelectedCategory != "" && !slices.Contains(s.Categories, s.SelectedCategory) {
		s.SelectedCategory = ""
	}
	return nil
}

// CategoriesFailed shows msg next to the category picker and leaves the list empty.
func (s *State) CategoriesFailed(msg string) {
	s.Categories = nil
	s.SelectedCategory = ""
	s.Error = msg
}

// Select records the category picked in the form. Values outside the
// category list count as no selection.
// PRE: Phase is authenticated
func (s *State) Select(category string) error {
	if s.Phase != PhaseAuthenticated {
		return ErrInvalidTransition
	}
	category = strings.TrimSpace(category)
	if !slices.Contains(s.Categories, category) {
		category = ""
	}
	s.SelectedCategory = category
	return nil
}

// StartRecommendation prepares a recommendation request for the selected category.
// Without a selection it sets the validation message and returns ErrNoCategory;
// no request must be made in that case.
// PRE: Phase is authenticated
// POST: on success Loading is set from now and the previous result and error are cleared
func (s *State) StartRecommendation(now time.Time) (string, error) {
	if s.Phase != PhaseAuthenticated {
		return "", ErrInvalidTransition
	}
	s.Notice = ""
	if s.SelectedCategory == "" {
		s.Error = MsgSelectCategory
		return "", ErrNoCategory
	}
	s.Loading = true
	s.LoadingSince = now
	s.Error = ""
	s.Recommendation = nil
	return s.SelectedCategory, nil
}

// FinishRecommendation stores the outcome of a recommendation request.
// Exactly one of rec and msg is expected to be set.
// POST: Loading is false
func (s *State) FinishRecommendation(rec *card.Recommendation, msg string) {
	s.Loading = false
	s.LoadingSince = time.Time{}
	if msg != "" {
		s.Error = msg
		s.Recommendation = nil
		return
	}
	s.Recommendation = rec
}

// ExpireLoading clears a Loading flag set more than maxAge ago, which can only
// be left behind by a request that never finished. It reports whether it did.
// POST: Loading is false or LoadingSince is within maxAge of now
func (s *State) ExpireLoading(now time.Time, maxAge time.Duration, msg string) bool {
	if !s.Loading || now.Sub(s.LoadingSince) <= maxAge {
		return false
	}
	s.Loading = false
	s.LoadingSince = time.Time{}
	s.Error = msg
	return true
}

// StaleAgainst reports whether stored, the copy currently persisted, belongs
// to a session that started after this copy was loaded under generation base.
// Saving this copy would then undo that transition.
func (s *State) StaleAgainst(stored State, base string) bool {
	return stored.Generation != base && stored.Generation != s.Generation
}

// Touch records activity for idle expiry.
func (s *State) Touch(now time.Time) {
	s.UpdatedAt = now
}

// Expired reports whether the state has been idle longer than ttl.
// INVARIANT: State fields are not mutated
func (s *State) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}
