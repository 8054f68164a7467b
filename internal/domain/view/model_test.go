package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardrec/internal/domain/card"
)

func authenticated(t *testing.T) State {
	t.Helper()
	s := New("v1", time.Now())
	require.True(t, s.Authenticate(User{ID: 7, Email: "a@b.co"}))
	require.NoError(t, s.SetCategories([]string{"travel", "dining"}))
	return s
}

func TestNew_StartsChecking(t *testing.T) {
	s := New("v1", time.Now())
	assert.Equal(t, PhaseChecking, s.Phase)
	assert.Equal(t, AuthLogin, s.AuthView)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Categories)
}

func TestAuthenticate_ReportsEntryOnce(t *testing.T) {
	s := New("v1", time.Now())
	s.ResolveAnonymous("")

	assert.True(t, s.Authenticate(User{ID: 1}), "first authenticate enters the phase")
	assert.False(t, s.Authenticate(User{ID: 1}), "second authenticate is not a transition")
	assert.Equal(t, PhaseAuthenticated, s.Phase)
}

func TestShowAuthView_TogglesOnlyWhenAnonymous(t *testing.T) {
	s := New("v1", time.Now())
	assert.ErrorIs(t, s.ShowAuthView(AuthRegister), ErrInvalidTransition)

	s.ResolveAnonymous("")
	s.Login.Error = "old"
	require.NoError(t, s.ShowAuthView(AuthRegister))
	assert.Equal(t, AuthRegister, s.AuthView)
	assert.Empty(t, s.Login.Error)

	require.NoError(t, s.ShowAuthView(AuthLogin))
	assert.Equal(t, AuthLogin, s.AuthView)

	assert.ErrorIs(t, s.ShowAuthView("admin"), ErrUnknownAuthView)
}

func TestLoginFailed_StaysAnonymous(t *testing.T) {
	s := New("v1", time.Now())
	s.ResolveAnonymous("")
	require.NoError(t, s.LoginFailed("a@b.co", "Invalid email or password"))

	assert.Equal(t, PhaseAnonymous, s.Phase)
	assert.Equal(t, AuthLogin, s.AuthView)
	assert.Equal(t, "Invalid email or password", s.Login.Error)
	assert.Equal(t, "a@b.co", s.Login.Email)
}

func TestRegistered_GoesToLoginWithNotice(t *testing.T) {
	s := New("v1", time.Now())
	s.ResolveAnonymous("")
	require.NoError(t, s.ShowAuthView(AuthRegister))
	require.NoError(t, s.Registered("new@b.co"))

	assert.Equal(t, PhaseAnonymous, s.Phase, "registration must not authenticate")
	assert.Equal(t, AuthLogin, s.AuthView)
	assert.Equal(t, MsgRegistered, s.Login.Notice)
	assert.Equal(t, "new@b.co", s.Login.Email)
	assert.Nil(t, s.User)
}

func TestRegisterFailed_KeepsInput(t *testing.T) {
	s := New("v1", time.Now())
	s.ResolveAnonymous("")
	require.NoError(t, s.RegisterFailed("sam", "sam@b.co", "Email address already in use"))
	assert.Equal(t, AuthRegister, s.AuthView)
	assert.Equal(t, RegisterForm{Username: "sam", Email: "sam@b.co", Error: "Email address already in use"}, s.Register)
}

func TestLogout_ClearsEverythingFromAnyPhase(t *testing.T) {
	s := authenticated(t)
	require.NoError(t, s.Select("dining"))
	s.Recommendation = &card.Recommendation{BestCard: &card.Card{ID: 1}}
	s.Loading = true
	s.Error = "boom"
	s.Cookies()["session"] = "abc"

	s.Logout()

	assert.Equal(t, PhaseAnonymous, s.Phase)
	assert.Equal(t, AuthLogin, s.AuthView)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Categories)
	assert.Empty(t, s.SelectedCategory)
	assert.Nil(t, s.Recommendation)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Error)
	assert.Empty(t, s.BackendCookies)

	fresh := New("v2", time.Now())
	fresh.Logout()
	assert.Equal(t, PhaseAnonymous, fresh.Phase)
}

func TestSelect_UnknownCategoryIsNoSelection(t *testing.T) {
	s := authenticated(t)
	require.NoError(t, s.Select(" dining "))
	assert.Equal(t, "dining", s.SelectedCategory)

	require.NoError(t, s.Select("casinos"))
	assert.Empty(t, s.SelectedCategory)

	anon := New("v2", time.Now())
	assert.ErrorIs(t, anon.Select("dining"), ErrInvalidTransition)
}

func TestStartRecommendation_WithoutCategory(t *testing.T) {
	s := authenticated(t)
	s.Recommendation = &card.Recommendation{BestCard: &card.Card{ID: 1}}

	_, err := s.StartRecommendation(time.Now())
	assert.ErrorIs(t, err, ErrNoCategory)
	assert.Equal(t, MsgSelectCategory, s.Error)
	assert.False(t, s.Loading)
}

func TestStartAndFinishRecommendation(t *testing.T) {
	s := authenticated(t)
	require.NoError(t, s.Select("dining"))
	s.Recommendation = &card.Recommendation{BestCard: &card.Card{ID: 9}}
	s.Error = "stale"

	started := time.Now()
	category, err := s.StartRecommendation(started)
	require.NoError(t, err)
	assert.Equal(t, "dining", category)
	assert.True(t, s.Loading)
	assert.Equal(t, started, s.LoadingSince)
	assert.Nil(t, s.Recommendation, "previous result is cleared at the start of a request")
	assert.Empty(t, s.Error)

	rec := &card.Recommendation{BestCard: &card.Card{ID: 1, Name: "X"}}
	s.FinishRecommendation(rec, "")
	assert.False(t, s.Loading)
	assert.True(t, s.LoadingSince.IsZero())
	assert.Equal(t, rec, s.Recommendation)

	_, err = s.StartRecommendation(time.Now())
	require.NoError(t, err)
	s.FinishRecommendation(nil, "backend down")
	assert.False(t, s.Loading)
	assert.Nil(t, s.Recommendation)
	assert.Equal(t, "backend down", s.Error)
}

func TestSetCategories_DropsStaleSelection(t *testing.T) {
	s := authenticated(t)
	require.NoError(t, s.Select("travel"))
	require.NoError(t, s.SetCategories([]string{"dining"}))
	assert.Empty(t, s.SelectedCategory)

	anon := New("v2", time.Now())
	assert.ErrorIs(t, anon.SetCategories([]string{"x"}), ErrInvalidTransition)
}

func TestClone_IsDeep(t *testing.T) {
	s := authenticated(t)
	s.Cookies()["session"] = "abc"
	cp := s.Clone()
	cp.Categories[0] = "changed"
	cp.User.Email = "changed"
	cp.BackendCookies["session"] = "changed"

	assert.Equal(t, "travel", s.Categories[0])
	assert.Equal(t, "a@b.co", s.User.Email)
	assert.Equal(t, "abc", s.BackendCookies["session"])
}

func TestExpired(t *testing.T) {
	now := time.Now()
	s := New("v1", now.Add(-2*time.Hour))
	assert.True(t, s.Expired(now, time.Hour))
	assert.False(t, s.Expired(now, 3*time.Hour))
	assert.False(t, s.Expired(now, 0), "zero ttl disables expiry")
}

func TestExpireLoading(t *testing.T) {
	now := time.Now()
	s := authenticated(t)
	require.NoError(t, s.Select("dining"))
	_, err := s.StartRecommendation(now.Add(-time.Minute))
	require.NoError(t, err)

	assert.False(t, s.ExpireLoading(now, 2*time.Minute, "interrupted"), "a request still within its deadline keeps loading")
	assert.True(t, s.Loading)

	assert.True(t, s.ExpireLoading(now, 30*time.Second, "interrupted"))
	assert.False(t, s.Loading)
	assert.True(t, s.LoadingSince.IsZero())
	assert.Equal(t, "interrupted", s.Error)

	assert.False(t, s.ExpireLoading(now, 0, "again"), "nothing to expire once cleared")
}

func TestGeneration_ChangesOnSessionTransitions(t *testing.T) {
	s := New("v1", time.Now())
	assert.Empty(t, s.Generation)

	s.ResolveAnonymous("")
	anon := s.Generation
	assert.NotEmpty(t, anon)

	s.Authenticate(User{ID: 1})
	authed := s.Generation
	assert.NotEqual(t, anon, authed)

	s.Authenticate(User{ID: 1})
	assert.Equal(t, authed, s.Generation, "re-authenticating the same session keeps the generation")

	require.NoError(t, s.SetCategories([]string{"dining"}))
	require.NoError(t, s.Select("dining"))
	_, err := s.StartRecommendation(time.Now())
	require.NoError(t, err)
	assert.Equal(t, authed, s.Generation, "recommendations stay within the session")

	s.Logout()
	assert.NotEqual(t, authed, s.Generation)
}

func TestStaleAgainst(t *testing.T) {
	loaded := authenticated(t)
	base := loaded.Generation

	stored := loaded.Clone()
	assert.False(t, loaded.StaleAgainst(stored, base), "nothing changed in between")

	stored.Logout()
	assert.True(t, loaded.StaleAgainst(stored, base), "a logout saved meanwhile wins")

	// A copy that made its own transition and saved it mid-action is not stale.
	mine := loaded.Clone()
	mine.Logout()
	assert.False(t, mine.StaleAgainst(mine.Clone(), base))
}
