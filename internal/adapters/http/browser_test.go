//go:build browser

package web

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	_ "modernc.org/sqlite"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/adapters/http/perf"
	"cardrec/internal/adapters/storage"
	viewStore "cardrec/internal/adapters/storage/view"
	"cardrec/internal/config"
)

// browserApp holds the running server and Playwright handles.
type browserApp struct {
	BaseURL string
	API     *fakeAPI
	Browser playwright.Browser
}

// newBrowserApp starts the full mux on a free port with a temp SQLite view store.
func newBrowserApp(t *testing.T) *browserApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "views.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db, dbPath); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	api := newFakeAPI(t)
	client, err := backend.New(backend.Config{BaseURL: api.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Security.RateBurst = 200
	collector := perf.NewCollector(1000)

	ctx, cancel := context.WithCancel(context.Background())
	mux := NewMux(ctx, Deps{
		Views:     viewStore.NewSQLiteStore(storage.NewTimedDB(db, collector, 0), cfg.Store.ViewTTL),
		Backend:   client,
		Sender:    &recordingSender{},
		Collector: collector,
		Keys:      testKeys(),
		Config:    cfg,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()
	baseURL := fmt.Sprintf("http://%s", listener.Addr())

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		cancel()
		db.Close()
	})

	return &browserApp{BaseURL: baseURL, API: api, Browser: browser}
}

func (a *browserApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

func mustText(t *testing.T, page playwright.Page) string {
	t.Helper()
	html, err := page.Content()
	if err != nil {
		t.Fatalf("failed to read page: %v", err)
	}
	return html
}

// TestBrowser_RegisterLoginRecommendLogout walks the whole user journey.
func TestBrowser_RegisterLoginRecommendLogout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	app := newBrowserApp(t)
	page := app.newPage(t)

	if _, err := page.Goto(app.BaseURL + "/"); err != nil {
		t.Fatalf("failed to open shell: %v", err)
	}

	// Register, which lands back on login with a notice.
	if err := page.Locator("#login form.switch button").Click(); err != nil {
		t.Fatalf("failed to switch to register: %v", err)
	}
	page.Locator("input[name=Username]").Fill("sam")
	page.Locator("#register input[name=Email]").Fill("sam@example.com")
	page.Locator("#register input[name=Password]").Fill("s3cret!")
	if err := page.Locator("#register button[type=submit]").First().Click(); err != nil {
		t.Fatalf("failed to submit register: %v", err)
	}
	if err := page.Locator("text=Registration successful! Please log in.").WaitFor(); err != nil {
		t.Fatalf("registration notice not shown: %v", err)
	}

	// The email is prefilled; log in.
	page.Locator("#login input[name=Password]").Fill("s3cret!")
	if err := page.Locator("#login form[action='/login'] button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to submit login: %v", err)
	}
	if err := page.Locator("text=Find My Card").WaitFor(); err != nil {
		t.Fatalf("recommender not shown after login: %v", err)
	}

	// No category selected.
	page.Locator("text=Find My Card").Click()
	if err := page.Locator("text=Please select a category.").WaitFor(); err != nil {
		t.Fatalf("validation message not shown: %v", err)
	}

	if _, err := page.Locator("select[name=category]").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("dining"),
	}); err != nil {
		t.Fatalf("failed to select category: %v", err)
	}
	page.Locator("text=Find My Card").Click()
	if err := page.Locator("text=Best Option").WaitFor(); err != nil {
		t.Fatalf("best card not shown: %v", err)
	}
	html := mustText(t, page)
	for _, want := range []string{"5%", "$95", "You Own This Card", "Your Best Owned Card"} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}

	if err := page.Locator("text=Log Out").Click(); err != nil {
		t.Fatalf("failed to log out: %v", err)
	}
	if err := page.Locator("form[action='/login']").WaitFor(); err != nil {
		t.Fatalf("login form not shown after logout: %v", err)
	}
	if strings.Contains(mustText(t, page), "Best Option") {
		t.Error("recommendation still visible after logout")
	}
}
