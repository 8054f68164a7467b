package web

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// fakeAPI emulates the recommendation backend: accounts, a cookie session,
// categories and canned recommendations.
type fakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]fakeUser // by email
	sessions map[string]string   // token -> email
	calls    map[string]int      // path -> count
	down     bool

	// onRecommend runs inside POST /api/recommend before the answer is written.
	onRecommend func()
}

type fakeUser struct {
	ID       int64
	Username string
	Password string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		users:    map[string]fakeUser{"ana@example.com": {ID: 1, Username: "ana", Password: "hunter2"}},
		sessions: map[string]string{},
		calls:    map[string]int{},
	}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) callCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[path]
}

func (a *fakeAPI) setDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

func (a *fakeAPI) sessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *fakeAPI) currentEmail(r *http.Request) (string, bool) {
	ck, err := r.Cookie("session")
	if err != nil {
		return "", false
	}
	email, ok := a.sessions[ck.Value]
	return email, ok
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.calls[r.URL.Path]++
	if a.down {
		a.mu.Unlock()
		reply(w, http.StatusServiceUnavailable, map[string]string{})
		return
	}
	var body map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case "/api/status":
		defer a.mu.Unlock()
		email, ok := a.currentEmail(r)
		if !ok {
			reply(w, http.StatusOK, map[string]any{"logged_in": false})
			return
		}
		u := a.users[email]
		reply(w, http.StatusOK, map[string]any{"logged_in": true, "user": map[string]any{"id": u.ID, "email": email, "username": u.Username}})

	case "/api/register":
		defer a.mu.Unlock()
		if _, exists := a.users[body["email"]]; exists {
			reply(w, http.StatusBadRequest, map[string]string{"error": "Email address already in use"})
			return
		}
		a.users[body["email"]] = fakeUser{ID: int64(len(a.users) + 1), Username: body["username"], Password: body["password"]}
		reply(w, http.StatusCreated, map[string]string{"success": "User registered successfully"})

	case "/api/login":
		defer a.mu.Unlock()
		u, ok := a.users[body["email"]]
		if !ok || u.Password != body["password"] {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
			return
		}
		token := "tok" + strconv.Itoa(len(a.sessions)+1) + strconv.FormatInt(u.ID, 10)
		a.sessions[token] = body["email"]
		http.SetCookie(w, &http.Cookie{Name: "session", Value: token, Path: "/", HttpOnly: true})
		reply(w, http.StatusOK, map[string]any{"success": "Logged in successfully", "user": map[string]any{"id": u.ID, "email": body["email"], "username": u.Username}})

	case "/api/logout":
		defer a.mu.Unlock()
		if ck, err := r.Cookie("session"); err == nil {
			delete(a.sessions, ck.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
		reply(w, http.StatusOK, map[string]string{"success": "Logged out"})

	case "/api/categories":
		defer a.mu.Unlock()
		reply(w, http.StatusOK, []string{"dining", "travel", "travel-owned", "gas"})

	case "/api/recommend":
		_, ok := a.currentEmail(r)
		hook := a.onRecommend
		a.mu.Unlock()
		if !ok {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "Please log in first"})
			return
		}
		if hook != nil {
			hook()
		}
		switch body["category"] {
		case "dining":
			reply(w, http.StatusOK, map[string]any{
				"best_card": map[string]any{"id": 10, "name": "X", "issuer": "Bank", "annual_fee": 95,
					"benefits": "**Lounge** access", "reward_rate_for_category": 0.05, "img_url": "https://cards.example/x.png"},
				"eligible_cards": []map[string]any{
					{"id": 11, "name": "Y", "issuer": "Other Bank", "annual_fee": 0, "is_owned": true, "reward_rate_for_category": 0.03},
				},
				"best_owned_card": map[string]any{"id": 11, "name": "Y", "issuer": "Other Bank", "is_owned": true, "reward_rate_for_category": 0.03},
			})
		case "travel":
			reply(w, http.StatusOK, map[string]any{
				"best_card":      map[string]any{"id": 1, "name": "X", "reward_rate_for_category": 0.05},
				"eligible_cards": []any{},
			})
		case "travel-owned":
			reply(w, http.StatusOK, map[string]any{
				"best_card":       nil,
				"eligible_cards":  []any{},
				"best_owned_card": map[string]any{"id": 11, "name": "Y", "is_owned": true, "reward_rate_for_category": 0.02},
			})
		default:
			reply(w, http.StatusOK, map[string]string{"error": "No recommendations available for the '" + body["category"] + "' category."})
		}

	default:
		a.mu.Unlock()
		http.NotFound(w, r)
	}
}
