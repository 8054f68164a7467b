package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"cardrec/internal/adapters/markdown"
	"cardrec/internal/domain/card"
	"cardrec/internal/domain/view"
)

// ErrEmptyRecommendation is returned when there is no best card to send.
var ErrEmptyRecommendation = errors.New("recommendation has no best card")

var recommendationTmpl = template.Must(template.New("recommendation").Funcs(template.FuncMap{
	"markdown": markdown.Render,
}).Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hi {{if .User.Username}}{{.User.Username}}{{else}}{{.User.Email}}{{end}},</p>
<p>Here is your card recommendation{{if .Rec.Category}} for <strong>{{.Rec.Category}}</strong>{{end}}.</p>
{{with .Rec.BestCard}}
<h2>Best Option: {{.Name}}</h2>
<p>{{.Issuer}} &middot; Annual fee {{.AnnualFeeLabel}} &middot; {{.RewardPercent}} back</p>
{{markdown .BenefitsSummary}}
{{end}}
{{if .Rec.ShowBestOwned}}{{with .Rec.BestOwnedCard}}
<h3>Your Best Owned Card: {{.Name}}</h3>
<p>{{.RewardPercent}} back</p>
{{end}}{{end}}
{{if .Rec.HasOthers}}
<h3>Other eligible cards</h3>
<ul>
{{range .Rec.EligibleCards}}<li>{{.Name}} ({{.Issuer}}): {{.RewardPercent}}, {{.AnnualFeeLabel}} annual fee{{if .IsOwned}}, you own this card{{end}}</li>
{{end}}</ul>
{{end}}
</body></html>`))

// RecommendationEmail builds the email that sends rec to user.
// PRE: user.Email is non-empty
// POST: Returns a request addressed to user.Email
func RecommendationEmail(user view.User, rec *card.Recommendation) (SendRequest, error) {
	if rec == nil || rec.BestCard == nil {
		return SendRequest{}, ErrEmptyRecommendation
	}
	if user.Email == "" {
		return SendRequest{}, ErrNoRecipient
	}

	var buf bytes.Buffer
	data := struct {
		User view.User
		Rec  *card.Recommendation
	}{user, rec}
	if err := recommendationTmpl.Execute(&buf, data); err != nil {
		return SendRequest{}, fmt.Errorf("render recommendation email: %w", err)
	}

	subject := "Your card recommendation"
	if rec.Category != "" {
		subject = fmt.Sprintf("Your card recommendation for %s", rec.Category)
	}
	return SendRequest{
		To:      []string{user.Email},
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}
