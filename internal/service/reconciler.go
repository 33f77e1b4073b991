package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/schedule"
)

// shiftMargin widens the projection used for candidate search so that
// occurrences moved by a Modified exception are still found.
const shiftMargin = 31

// Reconciler matches imported bank transactions to expected occurrences.
type Reconciler struct {
	DB           *sql.DB
	Realizer     *Realizer
	Transactions *repository.TransactionRepo
	Matches      *repository.MatchRepo
	Patterns     *repository.ImportPatternRepo
	Thresholds   matching.Thresholds
}

// AnalyzeResult is the outcome of analyzing one imported transaction.
type AnalyzeResult struct {
	ImportedTxID string               `json:"imported_tx_id"`
	Status       matching.Status      `json:"status"`
	Level        matching.Level       `json:"level"`
	Score        float64              `json:"score"`
	Match        *repository.Match    `json:"match,omitempty"`
	Best         *matching.Evaluation `json:"-"`
	Considered   int                  `json:"considered"`
	Existing     bool                 `json:"existing"`
}

// AnalyzeBatchResult accumulates per-item outcomes.
type AnalyzeBatchResult struct {
	Results []AnalyzeResult
	Errors  []error
}

func (r *Reconciler) thresholds() matching.Thresholds {
	if r.Thresholds == (matching.Thresholds{}) {
		return matching.DefaultThresholds
	}
	return r.Thresholds
}

func (r *Reconciler) bind(tx *sql.Tx) (repos, *repository.MatchRepo) {
	return r.Realizer.bind(tx), r.Matches.WithTx(tx)
}

func toImported(t repository.Transaction) matching.Imported {
	return matching.Imported{ID: t.ID, AccountID: t.AccountID, Date: t.Date, Amount: t.Amount, Description: t.Description}
}

// Analyze scores an imported transaction against pending occurrences of all
// active series. A High confidence match is recorded as Matched and the
// imported row adopted as the occurrence's realization; a Medium one is
// queued as Pending for review. Low confidence results are not stored.
func (r *Reconciler) Analyze(ctx context.Context, importedTxID string, profile matching.Profile) (AnalyzeResult, error) {
	res := AnalyzeResult{ImportedTxID: importedTxID, Status: matching.StatusMissing, Level: matching.LevelLow}
	imported, err := r.Transactions.Get(ctx, importedTxID)
	if err != nil {
		return res, err
	}
	if imported == nil {
		return res, notFound("transaction", importedTxID)
	}
	if imported.Source != repository.SourceImport {
		return res, invalid("transaction %s is not an imported transaction", importedTxID)
	}
	if existing, err := r.Matches.ActiveForImport(ctx, importedTxID); err != nil {
		return res, err
	} else if existing != nil {
		return existingResult(res, existing), nil
	}
	if imported.IsRecurring() {
		res.Status, res.Level, res.Existing = matching.StatusMatched, matching.LevelHigh, true
		return res, nil
	}

	candidates, err := r.candidates(ctx, *imported, profile)
	if err != nil {
		return res, err
	}
	found := matching.FindBestMatch(toImported(*imported), candidates, profile, r.thresholds())
	res.Status, res.Level, res.Considered, res.Best = found.Status, found.Level, found.Considered, found.Best
	if found.Best != nil {
		res.Score = found.Best.Score
	}
	log := logger.FromContext(ctx).With("imported_tx_id", importedTxID, "profile", profile.Name)
	if found.Best == nil || found.Status == matching.StatusMissing {
		log.Debug("no match", "considered", found.Considered, "qualified", found.Qualified, "score", res.Score)
		return res, nil
	}

	inst := found.Best.Candidate.Instance
	m := repository.Match{
		ID:             uuid.NewString(),
		ImportedTxID:   importedTxID,
		SeriesID:       inst.SeriesID,
		InstanceDate:   inst.ScheduledDate,
		Score:          found.Best.Score,
		Level:          found.Level,
		Status:         found.Status,
		AmountVariance: found.Best.AmountVariance,
		DateOffsetDays: found.Best.DateOffsetDays,
		Source:         matching.SourceAuto,
	}
	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		rp, matches := r.bind(tx)
		if err := matches.Add(ctx, m); err != nil {
			return fmt.Errorf("record match: %w", err)
		}
		if m.Status != matching.StatusMatched {
			return nil
		}
		_, _, err := r.Realizer.adoptIn(ctx, rp, *imported, m.SeriesID, m.InstanceDate)
		return err
	})
	if err != nil {
		return res, conflict(err)
	}
	res.Match = &m
	log.Info("match recorded", "series_id", m.SeriesID, "instance_date", m.InstanceDate.String(),
		"status", m.Status, "score", fmt.Sprintf("%.3f", m.Score))
	return res, nil
}

func existingResult(res AnalyzeResult, m *repository.Match) AnalyzeResult {
	res.Status, res.Level, res.Score, res.Match, res.Existing = m.Status, m.Level, m.Score, m, true
	return res
}

// candidates lists the occurrences an imported transaction may match: not
// realized, not claimed by another imported transaction, not rejected for
// this one, with an effective date inside the profile's date window.
func (r *Reconciler) candidates(ctx context.Context, imported repository.Transaction, profile matching.Profile) ([]matching.Candidate, error) {
	window := date.Around(imported.Date, profile.MaxDateDays)
	wide := date.Around(imported.Date, profile.MaxDateDays+shiftMargin)

	series, err := r.Realizer.Series.ListActive(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	overlay, err := r.Realizer.Exceptions.Overlay(ctx, "", wide.From, wide.To)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	realized, err := r.Transactions.Realized(ctx, "", wide.From, wide.To)
	if err != nil {
		return nil, fmt.Errorf("load realized: %w", err)
	}
	claimed, err := r.Matches.Claimed(ctx, wide.From, wide.To)
	if err != nil {
		return nil, fmt.Errorf("load claimed: %w", err)
	}
	rejected, err := r.Matches.Rejected(ctx, imported.ID)
	if err != nil {
		return nil, fmt.Errorf("load rejected: %w", err)
	}

	var out []matching.Candidate
	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, inst := range schedule.Project(s, overlay, realized, wide.From, wide.To) {
			if inst.IsGenerated || !window.Contains(inst.Date) {
				continue
			}
			if holder, ok := claimed[inst.Key()]; ok && holder != imported.ID {
				continue
			}
			if rejected[inst.Key()] {
				continue
			}
			out = append(out, matching.Candidate{Instance: inst, Series: s})
		}
	}
	return out, nil
}

// AnalyzeBatch analyzes each id in turn. With no ids it analyzes every
// imported transaction that is not yet reconciled.
func (r *Reconciler) AnalyzeBatch(ctx context.Context, ids []string, profile matching.Profile) (AnalyzeBatchResult, error) {
	var out AnalyzeBatchResult
	if len(ids) == 0 {
		pending, err := r.Transactions.ListUnreconciledImports(ctx)
		if err != nil {
			return out, err
		}
		for _, t := range pending {
			ids = append(ids, t.ID)
		}
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.Analyze(ctx, id, profile)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("analyze %s: %w", id, err))
			continue
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// Confirm promotes a Pending match to Matched and adopts the imported row.
func (r *Reconciler) Confirm(ctx context.Context, matchID string) (repository.Match, error) {
	m, err := r.pendingMatch(ctx, matchID)
	if err != nil {
		return repository.Match{}, err
	}
	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		rp, matches := r.bind(tx)
		imported, err := rp.transactions.Get(ctx, m.ImportedTxID)
		if err != nil {
			return err
		}
		if imported == nil {
			return notFound("transaction", m.ImportedTxID)
		}
		if err := matches.UpdateStatus(ctx, m.ID, matching.StatusMatched); err != nil {
			return err
		}
		_, _, err = r.Realizer.adoptIn(ctx, rp, *imported, m.SeriesID, m.InstanceDate)
		return err
	})
	if err != nil {
		return repository.Match{}, conflict(err)
	}
	m.Status = matching.StatusMatched
	logger.FromContext(ctx).Info("match confirmed", "match_id", m.ID, "series_id", m.SeriesID)
	return m, nil
}

// Reject marks a Pending match as skipped; the pair is not proposed again.
func (r *Reconciler) Reject(ctx context.Context, matchID string) error {
	m, err := r.pendingMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := r.Matches.Reject(ctx, m.ID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("match rejected", "match_id", m.ID, "series_id", m.SeriesID)
	return nil
}

func (r *Reconciler) pendingMatch(ctx context.Context, matchID string) (repository.Match, error) {
	m, err := r.Matches.Get(ctx, matchID)
	if err != nil {
		return repository.Match{}, err
	}
	if m == nil {
		return repository.Match{}, notFound("match", matchID)
	}
	if m.Status != matching.StatusPending || m.Rejected {
		return repository.Match{}, invalid("match %s is %s, not pending", matchID, m.Status)
	}
	return *m, nil
}

// CreateManualLink records a user-chosen link between an imported row and an
// occurrence, at full confidence, and adopts the imported row. An open
// Pending match of the imported row is rejected in favour of the new link.
func (r *Reconciler) CreateManualLink(ctx context.Context, importedTxID, seriesID string, on date.Date) (repository.Match, error) {
	var m repository.Match
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		rp, matches := r.bind(tx)
		imported, err := rp.transactions.Get(ctx, importedTxID)
		if err != nil {
			return err
		}
		if imported == nil {
			return notFound("transaction", importedTxID)
		}
		if imported.Source != repository.SourceImport {
			return invalid("transaction %s is not an imported transaction", importedTxID)
		}
		active, err := matches.ActiveForImport(ctx, importedTxID)
		if err != nil {
			return err
		}
		if active != nil {
			if active.Status == matching.StatusMatched {
				return invalid("transaction %s is already linked by match %s", importedTxID, active.ID)
			}
			if err := matches.Reject(ctx, active.ID); err != nil {
				return err
			}
		}
		_, inst, err := r.Realizer.adoptIn(ctx, rp, *imported, seriesID, on)
		if err != nil {
			return err
		}
		variance := imported.Amount.Decimal().Abs().Sub(inst.Amount.Decimal().Abs())
		m = repository.Match{
			ID:             uuid.NewString(),
			ImportedTxID:   importedTxID,
			SeriesID:       seriesID,
			InstanceDate:   on,
			Score:          1,
			Level:          matching.LevelHigh,
			Status:         matching.StatusMatched,
			AmountVariance: variance,
			DateOffsetDays: max(inst.Date.DaysUntil(imported.Date), imported.Date.DaysUntil(inst.Date)),
			Source:         matching.SourceManual,
		}
		return matches.Add(ctx, m)
	})
	if err != nil {
		return repository.Match{}, conflict(err)
	}
	logger.FromContext(ctx).Info("manual link created", "match_id", m.ID, "series_id", seriesID, "instance_date", on.String())
	return m, nil
}

// Unlink removes a match. A Matched link also releases the adopted imported
// row, so the occurrence becomes pending again.
func (r *Reconciler) Unlink(ctx context.Context, matchID string) error {
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		rp, matches := r.bind(tx)
		m, err := matches.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return notFound("match", matchID)
		}
		if m.Status == matching.StatusMatched && !m.Rejected {
			if err := r.Realizer.releaseIn(ctx, rp, m.ImportedTxID); err != nil {
				return err
			}
		}
		return matches.Delete(ctx, m.ID)
	})
	if err != nil {
		return conflict(err)
	}
	logger.FromContext(ctx).Info("match unlinked", "match_id", matchID)
	return nil
}

// LearnPattern records description as a bank-statement text of the series.
// It reports whether the pattern was new.
func (r *Reconciler) LearnPattern(ctx context.Context, seriesID, description string) (bool, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return false, invalid("pattern must not be empty")
	}
	s, err := r.Realizer.Series.Get(ctx, seriesID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, notFound("series", seriesID)
	}
	added, err := r.Patterns.Add(ctx, repository.ImportPattern{ID: uuid.NewString(), SeriesID: seriesID, Pattern: description})
	if err != nil {
		return false, err
	}
	if added {
		logger.FromContext(ctx).Info("import pattern learned", "series_id", seriesID, "pattern", description)
	}
	return added, nil
}

// ListMatches lists matches with the given status; empty lists all.
func (r *Reconciler) ListMatches(ctx context.Context, status matching.Status) ([]repository.Match, error) {
	return r.Matches.ListByStatus(ctx, status)
}
