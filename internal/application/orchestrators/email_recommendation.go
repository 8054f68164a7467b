package orchestrators

import (
	"context"
	"fmt"
	"log/slog"

	emailAdapter "cardrec/internal/adapters/email"
	"cardrec/internal/domain/view"
)

// EmailRecommendationDeps holds dependencies for EmailRecommendation.
type EmailRecommendationDeps struct {
	Sender emailAdapter.Sender
}

// ExecuteEmailRecommendation sends the current recommendation to the account's address.
// PRE: Phase is authenticated
// POST: Notice set on success; Error set otherwise
func ExecuteEmailRecommendation(ctx context.Context, st *view.State, deps EmailRecommendationDeps) error {
	if !st.IsAuthenticated() || st.User == nil {
		return view.ErrInvalidTransition
	}
	st.Notice = ""
	if st.Recommendation == nil || st.Recommendation.BestCard == nil {
		st.Error = MsgNothingToEmail
		return ErrNothingToEmail
	}

	req, err := emailAdapter.RecommendationEmail(*st.User, st.Recommendation)
	if err != nil {
		st.Error = MsgEmailFailed
		return fmt.Errorf("build recommendation email: %w", err)
	}
	res, err := deps.Sender.Send(ctx, req)
	if err != nil {
		slog.Error("recommendation_email_failed", "user_id", st.User.ID, "error", err)
		st.Error = MsgEmailFailed
		return err
	}

	slog.Info("recommendation_emailed", "user_id", st.User.ID, "message_id", res.MessageID)
	st.Error = ""
	st.Notice = "Recommendation sent to " + st.User.Email + "."
	return nil
}
