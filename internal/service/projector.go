package service

import (
	"context"
	"fmt"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/schedule"
)

// maxProjectionDays bounds a single projection query.
const maxProjectionDays = 366 * 10

// Projector answers "what is expected to happen" queries across series.
type Projector struct {
	Series       *repository.SeriesRepo
	Exceptions   *repository.ExceptionRepo
	Transactions *repository.TransactionRepo
}

func checkRange(from, to date.Date) error {
	if from.IsZero() || to.IsZero() {
		return invalid("from and to are required")
	}
	if to.Before(from) {
		return invalid("range end %s is before start %s", to, from)
	}
	if date.NewRange(from, to).Days() > maxProjectionDays {
		return invalid("range %s..%s exceeds %d days", from, to, maxProjectionDays)
	}
	return nil
}

// Instances projects every active series (optionally only those touching
// accountID) over [from, to], sorted by effective date. Skipped occurrences
// are omitted.
func (p *Projector) Instances(ctx context.Context, from, to date.Date, accountID string) ([]schedule.Instance, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	series, err := p.Series.ListActive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	overlay, err := p.Exceptions.Overlay(ctx, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	realized, err := p.Transactions.Realized(ctx, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("load realized: %w", err)
	}
	var out []schedule.Instance
	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, schedule.Project(s, overlay, realized, from, to)...)
	}
	schedule.SortInstances(out)
	return out, nil
}

// SeriesInstances projects one series over [from, to], keeping skipped
// occurrences flagged so they can be shown and restored.
func (p *Projector) SeriesInstances(ctx context.Context, seriesID string, from, to date.Date) ([]schedule.Instance, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	s, err := p.Series.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, notFound("series", seriesID)
	}
	overlay, err := p.Exceptions.Overlay(ctx, seriesID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	realized, err := p.Transactions.Realized(ctx, seriesID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load realized: %w", err)
	}
	return schedule.Expand(*s, overlay, realized, from, to), nil
}
