package backend

import (
	"net/http"
	"net/url"
)

// Jar is an http.CookieJar over one browser's stored backend cookies.
// The backend is a single origin, so cookies are kept by name only.
// PRE: the map is non-nil
type Jar map[string]string

var _ http.CookieJar = Jar(nil)

// SetCookies records cookies from a backend response. Expired or empty
// cookies delete the stored value.
func (j Jar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.MaxAge < 0 || c.Value == "" {
			delete(j, c.Name)
			continue
		}
		j[c.Name] = c.Value
	}
}

// Cookies returns every stored cookie.
func (j Jar) Cookies(_ *url.URL) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(j))
	for name, value := range j {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}
