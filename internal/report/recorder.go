package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flavorwise/internal/core"
)

// Recommender computes migration recommendations.
type Recommender interface {
	Recommend(ctx context.Context, accounts []core.CloudAccount) ([]core.MigrationRecommendation, error)
}

// Recorder runs a Recommender and saves every successful run as a Report.
// A failed save is logged; the recommendations are still returned.
type Recorder struct {
	next  Recommender
	store Store
	now   func() time.Time
}

// NewRecorder wraps next so its results are saved to store.
func NewRecorder(next Recommender, store Store) *Recorder {
	return &Recorder{next: next, store: store, now: time.Now}
}

// Recommend implements Recommender.
func (r *Recorder) Recommend(ctx context.Context, accounts []core.CloudAccount) ([]core.MigrationRecommendation, error) {
	rep, err := r.Run(ctx, accounts)
	if err != nil {
		return nil, err
	}
	return rep.Recommendations, nil
}

// Run computes recommendations for accounts and returns the saved report.
func (r *Recorder) Run(ctx context.Context, accounts []core.CloudAccount) (*Report, error) {
	recs, err := r.next.Recommend(ctx, accounts)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []core.MigrationRecommendation{}
	}

	rep := &Report{
		ID:              uuid.NewString(),
		CreatedAt:       r.now().Unix(),
		Accounts:        accounts,
		Recommendations: recs,
	}
	var total float64
	for _, rec := range recs {
		total += rec.Saving
		if rep.Currency == "" {
			rep.Currency = rec.Currency
		}
	}
	rep.TotalSaving = core.Round3(total)

	if err := r.store.Create(ctx, rep); err != nil {
		slog.Warn("failed to save savings report", "report_id", rep.ID, "error", err)
	}
	return rep, nil
}
