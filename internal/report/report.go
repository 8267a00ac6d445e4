// Package report persists the outcome of migration savings runs so they can
// be listed and fetched after the run completes.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"flavorwise/internal/core"
)

// ErrNotFound indicates a requested report was not found.
var ErrNotFound = errors.New("report not found")

// Report is one savings run: the accounts it covered and the ranked
// recommendations it produced.
type Report struct {
	ID              string                         `json:"id"`
	CreatedAt       int64                          `json:"created_at"`
	Accounts        []core.CloudAccount            `json:"accounts"`
	Recommendations []core.MigrationRecommendation `json:"recommendations"`
	TotalSaving     float64                        `json:"total_saving"`
	Currency        string                         `json:"currency,omitempty"`
}

// Store defines persistence operations for savings reports.
type Store interface {
	Create(ctx context.Context, report *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	// List returns reports newest first. after is the id of the last report
	// of the previous page.
	List(ctx context.Context, limit int, after string) ([]*Report, error)
	Close() error
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func serializeReport(report *Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report is nil")
	}
	if report.ID == "" {
		return nil, fmt.Errorf("report id is empty")
	}
	b, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

func deserializeReport(raw []byte) (*Report, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty report payload")
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

func cloneReport(src *Report) (*Report, error) {
	b, err := serializeReport(src)
	if err != nil {
		return nil, err
	}
	return deserializeReport(b)
}
