package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const viewIDContextKey contextKey = "view_id"

// ViewCookieName names the cookie that carries the signed view ID.
const ViewCookieName = "cardrec_view"

// ViewCookie signs and encrypts the view ID stored in the browser.
type ViewCookie struct {
	codec  *securecookie.SecureCookie
	secure bool
	maxAge time.Duration
}

// NewViewCookie returns a codec for the view cookie.
// PRE: hashKey is 32 or 64 bytes, blockKey is 16, 24 or 32 bytes
// POST: cookies live for maxAge; secure marks them HTTPS-only
func NewViewCookie(hashKey, blockKey []byte, secure bool, maxAge time.Duration) *ViewCookie {
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge.Seconds()))
	return &ViewCookie{codec: codec, secure: secure, maxAge: maxAge}
}

// Decode returns the view ID carried by r, if its cookie is present and valid.
func (vc *ViewCookie) Decode(r *http.Request) (string, bool) {
	ck, err := r.Cookie(ViewCookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	var id string
	if err := vc.codec.Decode(ViewCookieName, ck.Value, &id); err != nil {
		slog.Debug("view_cookie_rejected", "error", err)
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// Write sets the cookie for id on w.
func (vc *ViewCookie) Write(w http.ResponseWriter, id string) error {
	encoded, err := vc.codec.Encode(ViewCookieName, id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ViewCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(vc.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   vc.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// View returns middleware that puts the browser's view ID in the request context,
// issuing a fresh ID and cookie when the request carries none or a tampered one.
// INVARIANT: every request reaching next has a view ID in its context
func View(vc *ViewCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := vc.Decode(r)
			if !ok {
				id = uuid.NewString()
				if err := vc.Write(w, id); err != nil {
					slog.Error("view_cookie_failed", "error", err)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithViewID(r.Context(), id)))
		})
	}
}

// ContextWithViewID returns a context carrying id.
func ContextWithViewID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, viewIDContextKey, id)
}

// ViewIDFromContext returns the view ID set by View.
func ViewIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(viewIDContextKey).(string)
	return id, ok && id != ""
}
