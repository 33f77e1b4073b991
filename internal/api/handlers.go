package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

// seriesView adds the serializable pattern to a series.
type seriesView struct {
	schedule.Series
	Pattern recurrence.Spec `json:"pattern"`
}

func viewSeries(s schedule.Series) seriesView {
	return seriesView{Series: s, Pattern: s.Pattern.Spec()}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Accounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []repository.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings.Load(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in repository.Settings
	if !decode(w, r, &in) {
		return
	}
	if in.PastDueLookbackDays < 0 {
		badRequest(w, r, "past_due_lookback_days must not be negative")
		return
	}
	if err := s.svc.Settings.Save(r.Context(), in); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	series, err := s.svc.Series.List(r.Context(), repository.SeriesFilters{
		ActiveOnly: q.Get("active") == "true" || q.Get("active") == "1",
		AccountID:  q.Get("account"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]seriesView, 0, len(series))
	for _, sr := range series {
		out = append(out, viewSeries(sr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSeriesInput
	if !decode(w, r, &in) {
		return
	}
	created, err := s.svc.Series.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSeries(created))
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	sr, err := s.svc.Series.Get(r.Context(), chi.URLParam(r, "seriesID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSeries(sr))
}

func (s *Server) handleDeactivateSeries(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Series.Deactivate(r.Context(), chi.URLParam(r, "seriesID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rangeParams reads the from/to query parameters.
func rangeParams(w http.ResponseWriter, r *http.Request) (date.Date, date.Date, bool) {
	q := r.URL.Query()
	from, ok := dateParam(w, r, "from", q.Get("from"))
	if !ok {
		return date.Date{}, date.Date{}, false
	}
	to, ok := dateParam(w, r, "to", q.Get("to"))
	if !ok {
		return date.Date{}, date.Date{}, false
	}
	return from, to, true
}

func (s *Server) handleSeriesInstances(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	instances, err := s.svc.Projector.SeriesInstances(r.Context(), chi.URLParam(r, "seriesID"), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if instances == nil {
		instances = []schedule.Instance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeParams(w, r)
	if !ok {
		return
	}
	instances, err := s.svc.Projector.Instances(r.Context(), from, to, r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if instances == nil {
		instances = []schedule.Instance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	on, ok := dateParam(w, r, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	if err := s.svc.Exceptions.Skip(r.Context(), chi.URLParam(r, "seriesID"), on); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	on, ok := dateParam(w, r, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var o service.Overrides
	if !decode(w, r, &o) {
		return
	}
	if err := s.svc.Exceptions.Modify(r.Context(), chi.URLParam(r, "seriesID"), on, o); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearException(w http.ResponseWriter, r *http.Request) {
	on, ok := dateParam(w, r, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	if err := s.svc.Exceptions.Clear(r.Context(), chi.URLParam(r, "seriesID"), on); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSkipNext(w http.ResponseWriter, r *http.Request) {
	skipped, err := s.svc.Exceptions.SkipNext(r.Context(), chi.URLParam(r, "seriesID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]date.Date{"skipped": skipped})
}

func (s *Server) handleLearnPattern(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Pattern string `json:"pattern"`
	}
	if !decode(w, r, &in) {
		return
	}
	added, err := s.svc.Reconciler.LearnPattern(r.Context(), chi.URLParam(r, "seriesID"), in.Pattern)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (s *Server) handleRealize(w http.ResponseWriter, r *http.Request) {
	var req service.RealizeRequest
	if !decode(w, r, &req) {
		return
	}
	rz, err := s.svc.Realizer.Realize(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rz)
}

type batchResponse[T any] struct {
	Results []T      `json:"results"`
	Errors  []string `json:"errors"`
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func (s *Server) handleRealizeBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []service.RealizeRequest
	if !decode(w, r, &reqs) {
		return
	}
	res, err := s.svc.Realizer.RealizeBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := batchResponse[service.Realization]{Results: res.Realized, Errors: errorStrings(res.Errors)}
	if out.Results == nil {
		out.Results = []service.Realization{}
	}
	writeJSON(w, http.StatusOK, out)
}

type autoRealizeResponse struct {
	Enabled         bool                  `json:"enabled"`
	From            *date.Date            `json:"from,omitempty"`
	To              *date.Date            `json:"to,omitempty"`
	Realized        []service.Realization `json:"realized"`
	AlreadyRealized int                   `json:"already_realized"`
	AwaitingReview  int                   `json:"awaiting_review"`
	Skipped         int                   `json:"skipped"`
	Errors          []string              `json:"errors"`
}

// handleAutoRealize runs the catch-up with the stored settings. A today
// query parameter overrides the clock.
func (s *Server) handleAutoRealize(w http.ResponseWriter, r *http.Request) {
	today := date.FromTime(s.opts.Now().In(s.opts.Location))
	if raw := r.URL.Query().Get("today"); raw != "" {
		var ok bool
		if today, ok = dateParam(w, r, "today", raw); !ok {
			return
		}
	}
	settings, err := s.svc.Settings.Load(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.AutoRealizer.RunIfEnabled(r.Context(), today, settings, r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := autoRealizeResponse{
		Enabled:         res.Enabled,
		Realized:        res.Realized,
		AlreadyRealized: res.AlreadyRealized,
		AwaitingReview:  res.AwaitingReview,
		Skipped:         res.Skipped,
		Errors:          errorStrings(res.Errors),
	}
	if res.Enabled && !res.Window.Empty() {
		out.From, out.To = &res.Window.From, &res.Window.To
	}
	if out.Realized == nil {
		out.Realized = []service.Realization{}
	}
	writeJSON(w, http.StatusOK, out)
}

type importResponse struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	IDs      []string `json:"ids"`
	Errors   []string `json:"errors"`
}

// handleImport ingests a CSV request body into ?account= in ?currency=.
// ?format=anz selects the headerless ANZ layout.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account, currency := q.Get("account"), q.Get("currency")
	body := io.LimitReader(r.Body, maxBody)

	var (
		res service.IngestResult
		err error
	)
	switch strings.ToLower(q.Get("format")) {
	case "", "csv":
		res, err = s.svc.Ingest.ImportCSV(r.Context(), body, account, currency)
	case "anz":
		res, err = s.svc.Ingest.ImportANZSimple(r.Context(), body, account, currency)
	default:
		badRequest(w, r, "unknown format %q", q.Get("format"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := importResponse{Imported: res.Imported, Skipped: res.Skipped, IDs: res.IDs, Errors: errorStrings(res.Errors)}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) (matching.Profile, bool) {
	p, err := s.opts.Profile(r.URL.Query().Get("profile"))
	if err != nil {
		badRequest(w, r, "%v", err)
		return matching.Profile{}, false
	}
	return p, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profile(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Reconciler.Analyze(r.Context(), chi.URLParam(r, "txID"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAnalyzeBatch analyzes the ids in the body, or every unreconciled
// import when the body is empty.
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profile(w, r)
	if !ok {
		return
	}
	var in struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength != 0 && !decode(w, r, &in) {
		return
	}
	res, err := s.svc.Reconciler.AnalyzeBatch(r.Context(), in.IDs, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := batchResponse[service.AnalyzeResult]{Results: res.Results, Errors: errorStrings(res.Errors)}
	if out.Results == nil {
		out.Results = []service.AnalyzeResult{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	status := matching.Status(r.URL.Query().Get("status"))
	switch status {
	case "", matching.StatusMatched, matching.StatusPending, matching.StatusSkipped:
	default:
		badRequest(w, r, "unknown status %q", status)
		return
	}
	matches, err := s.svc.Reconciler.ListMatches(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []repository.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

type linkRequest struct {
	ImportedTxID string    `json:"imported_tx_id"`
	SeriesID     string    `json:"series_id"`
	Date         date.Date `json:"date"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var in linkRequest
	if !decode(w, r, &in) {
		return
	}
	if in.ImportedTxID == "" || in.SeriesID == "" || in.Date.IsZero() {
		badRequest(w, r, "imported_tx_id, series_id and date are required")
		return
	}
	m, err := s.svc.Reconciler.CreateManualLink(r.Context(), in.ImportedTxID, in.SeriesID, in.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Reconciler.Confirm(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reconciler.Reject(r.Context(), chi.URLParam(r, "matchID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reconciler.Unlink(r.Context(), chi.URLParam(r, "matchID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
