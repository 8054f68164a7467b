package card

import (
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Card is a card record as returned by the recommendation backend.
// The client never mutates it, only renders it.
type Card struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	Issuer                string  `json:"issuer"`
	BenefitsSummary       string  `json:"benefits_summary"`
	AnnualFee             float64 `json:"annual_fee"`
	ImgURL                string  `json:"img_url"`
	IsOwned               bool    `json:"is_owned"`
	RewardRateForCategory float64 `json:"reward_rate_for_category"`
}

// UnmarshalJSON decodes a card, accepting "benefits" when "benefits_summary" is absent.
func (c *Card) UnmarshalJSON(data []byte) error {
	type plain Card
	var wire struct {
		plain
		Benefits string `json:"benefits"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Card(wire.plain)
	if c.BenefitsSummary == "" {
		c.BenefitsSummary = wire.Benefits
	}
	return nil
}

// RewardPercent formats the category reward rate as a percentage, e.g. 0.05 -> "5%".
// Rounded to two decimals so float noise (0.07*100) never reaches the page.
// INVARIANT: Card fields are not mutated
func (c Card) RewardPercent() string {
	pct := math.Round(c.RewardRateForCategory*10000) / 100
	return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}

// AnnualFeeLabel formats the annual fee in dollars, e.g. 95 -> "$95".
// INVARIANT: Card fields are not mutated
func (c Card) AnnualFeeLabel() string {
	fee := math.Round(c.AnnualFee*100) / 100
	return "$" + strconv.FormatFloat(fee, 'f', -1, 64)
}

// Recommendation is the backend's answer for one category.
// It is replaced wholesale on each request.
type Recommendation struct {
	Category      string `json:"category"`
	BestCard      *Card  `json:"best_card"`
	EligibleCards []Card `json:"eligible_cards"`
	BestOwnedCard *Card  `json:"best_owned_card,omitempty"`
}

// HasOthers reports whether there are eligible cards besides the best one.
func (r *Recommendation) HasOthers() bool {
	return r != nil && len(r.EligibleCards) > 0
}

// ShowBestOwned reports whether the best owned card deserves its own section,
// which is only the case when it differs from the overall best card.
func (r *Recommendation) ShowBestOwned() bool {
	if r == nil || r.BestOwnedCard == nil {
		return false
	}
	return r.BestCard == nil || r.BestCard.ID != r.BestOwnedCard.ID
}

// Clone returns a deep copy of the recommendation.
func (r *Recommendation) Clone() *Recommendation {
	if r == nil {
		return nil
	}
	out := &Recommendation{Category: r.Category}
	if r.BestCard != nil {
		best := *r.BestCard
		out.BestCard = &best
	}
	if r.BestOwnedCard != nil {
		owned := *r.BestOwnedCard
		out.BestOwnedCard = &owned
	}
	if r.EligibleCards != nil {
		out.EligibleCards = append([]Card(nil), r.EligibleCards...)
	}
	return out
}
