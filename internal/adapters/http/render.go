package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"

	"cardrec/internal/adapters/markdown"
	"cardrec/internal/domain/card"
	"cardrec/internal/domain/view"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// pageTemplates are parsed together into the shell page; card.html is parsed
// on its own so renderCard can be called from Go and from templates.
var pageTemplates = []string{
	"templates/layout.html",
	"templates/shell.html",
	"templates/login.html",
	"templates/register.html",
	"templates/recommender.html",
}

var cardTemplate = template.Must(template.New("card.html").Funcs(template.FuncMap{
	"markdown": markdown.Render,
}).ParseFS(templateFS, "templates/card.html"))

type cardData struct {
	Card *card.Card
	Best bool
}

// renderCard renders one card. A nil card renders nothing.
func renderCard(c *card.Card, best bool) template.HTML {
	if c == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := cardTemplate.ExecuteTemplate(&buf, "card", cardData{Card: c, Best: best}); err != nil {
		slog.Error("card_render_failed", "card_id", c.ID, "error", err)
		return ""
	}
	return template.HTML(buf.String())
}

// shellPage is the data behind the shell page.
type shellPage struct {
	View     *view.State
	Checking bool
	Register bool
}

func renderShell(w http.ResponseWriter, r *http.Request, st *view.State) {
	funcMap := template.FuncMap{
		"csrfField":  func() template.HTML { return csrf.TemplateField(r) },
		"renderCard": renderCard,
		"renderOther": func(c card.Card) template.HTML {
			return renderCard(&c, false)
		},
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, pageTemplates...)
	if err != nil {
		internalError(w, err)
		return
	}

	page := shellPage{
		View:     st,
		Checking: st.Phase == view.PhaseChecking,
		Register: st.Phase == view.PhaseAnonymous && st.AuthView == view.AuthRegister,
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// staticHandler serves the embedded stylesheet and script under /static/.
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
