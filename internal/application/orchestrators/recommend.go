package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cardrec/internal/adapters/backend"
	"cardrec/internal/domain/card"
	"cardrec/internal/domain/view"
)

// BackendForRecommend defines the backend call needed by Recommend.
type BackendForRecommend interface {
	Recommend(ctx context.Context, jar http.CookieJar, category string) (*card.Recommendation, error)
}

// RecommendInput carries the category chosen in the form.
type RecommendInput struct {
	Category string
}

// RecommendDeps holds dependencies for Recommend.
type RecommendDeps struct {
	Backend BackendForRecommend
	Views   ViewSaver
	Now     func() time.Time
}

// ExecuteRecommend runs "Find My Card" for the chosen category.
// The view is saved with Loading set before the backend is called so other
// renders of the same browser show the request in flight.
// PRE: Phase is authenticated
// If that save reports ErrViewSuperseded the session changed meanwhile and no
// request is made.
// POST: Loading is false; Recommendation or Error is set
// INVARIANT: no backend call is made without a valid category
func ExecuteRecommend(ctx context.Context, st *view.State, input RecommendInput, deps RecommendDeps) error {
	if err := st.Select(input.Category); err != nil {
		return err
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	category, err := st.StartRecommendation(now())
	if err != nil {
		return err
	}

	st.Touch(now())
	if deps.Views != nil {
		if err := deps.Views.Save(ctx, *st); err != nil {
			if errors.Is(err, ErrViewSuperseded) {
				return err
			}
			slog.Warn("view_save_failed", "view_id", st.ID, "stage", "recommend_loading", "error", err)
		}
	}

	rec, err := deps.Backend.Recommend(ctx, jarFor(st), category)
	if err != nil {
		slog.Info("recommend_failed", "view_id", st.ID, "category", category, "error", err)
		st.FinishRecommendation(nil, backend.UserMessage(err, MsgRecommendFailed))
		return err
	}
	var bestID int64
	if rec.BestCard != nil {
		bestID = rec.BestCard.ID
	}
	slog.Info("recommend_done", "view_id", st.ID, "category", category, "best_card_id", bestID)
	st.FinishRecommendation(rec, "")
	return nil
}
