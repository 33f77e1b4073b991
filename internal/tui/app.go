// Package tui is the interactive review screen for recurring items: upcoming
// occurrences, the pending match queue and the catch-up settings.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

// upcomingDays is how far ahead the dashboard projects.
const upcomingDays = 30

// App ties together views.
type App struct {
	ctx      context.Context
	services *service.Services
	profile  matching.Profile
	today    date.Date

	state     appState
	modal     modalState
	upcoming  []schedule.Instance
	pending   []pendingView
	settings  repository.Settings
	series    map[string]schedule.Series
	recCursor int
	status    string

	// import flow
	importPath  string
	importAcct  string
	currency    string
	lastImport  *service.IngestResult
	lastAnalyze *service.AnalyzeBatchResult
}

// Options configure the App.
type Options struct {
	Profile  matching.Profile
	Location *time.Location
	Today    date.Date
	Currency string
	Account  string
}

type appState string

const (
	viewDashboard appState = "dashboard"
	viewReconcile appState = "reconcile"
	viewImport    appState = "import"
	viewSettings  appState = "settings"
)

type modalState string

const (
	modalNone         modalState = ""
	modalConfirmReset modalState = "confirmReset"
)

// New builds the review App.
func New(ctx context.Context, svc *service.Services, opts Options) *App {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Today.IsZero() {
		opts.Today = date.Today(opts.Location)
	}
	if opts.Profile.Name == "" {
		opts.Profile = matching.Moderate
	}
	if opts.Account == "" {
		opts.Account = "Checking"
	}
	return &App{
		ctx:        ctx,
		services:   svc,
		profile:    opts.Profile,
		today:      opts.Today,
		state:      viewDashboard,
		series:     map[string]schedule.Series{},
		importAcct: opts.Account,
		currency:   opts.Currency,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadUpcoming(), a.loadPending(), a.loadSettings())
}

func (a *App) loadUpcoming() tea.Cmd {
	return func() tea.Msg {
		list, err := a.services.Projector.Instances(a.ctx, a.today, a.today.Add(upcomingDays), "")
		if err != nil {
			return errMsg{err}
		}
		return upcomingMsg(list)
	}
}

func (a *App) loadPending() tea.Cmd {
	return func() tea.Msg {
		matches, err := a.services.Reconciler.ListMatches(a.ctx, matching.StatusPending)
		if err != nil {
			return errMsg{err}
		}
		views := make([]pendingView, 0, len(matches))
		for _, m := range matches {
			pv := pendingView{Match: m}
			pv.Imported, _ = a.services.Reconciler.Transactions.Get(a.ctx, m.ImportedTxID)
			if s, err := a.services.Series.Get(a.ctx, m.SeriesID); err == nil {
				pv.Series = &s
			}
			instances, err := a.services.Projector.SeriesInstances(a.ctx, m.SeriesID, m.InstanceDate, m.InstanceDate)
			if err == nil && len(instances) == 1 {
				pv.Expected = &instances[0]
			}
			views = append(views, pv)
		}
		return pendingMsg(views)
	}
}

func (a *App) loadSettings() tea.Cmd {
	return func() tea.Msg {
		s, err := a.services.Settings.Load(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return settingsMsg(s)
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if a.modal != modalNone {
			return a.handleModalKey(m)
		}
		if a.state == viewImport {
			return a.handleImportKey(m)
		}
		if a.state == viewSettings {
			return a.handleSettingsKey(m)
		}
		switch m.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "d":
			a.state = viewDashboard
		case "r":
			a.state = viewReconcile
		case "i":
			a.state = viewImport
			a.status = ""
		case "p":
			a.state = viewSettings
			a.status = ""
		case "up", "k":
			if a.state == viewReconcile && a.recCursor > 0 {
				a.recCursor--
			}
		case "down", "j":
			if a.state == viewReconcile && a.recCursor < len(a.pending)-1 {
				a.recCursor++
			}
		case "s":
			if a.state == viewReconcile {
				a.status = "analyzing..."
				return a, a.analyzeCmd()
			}
		case "y":
			if a.state == viewReconcile && len(a.pending) > 0 {
				return a, a.decisionCmd(a.pending[a.recCursor].Match.ID, true)
			}
		case "n":
			if a.state == viewReconcile && len(a.pending) > 0 {
				return a, a.decisionCmd(a.pending[a.recCursor].Match.ID, false)
			}
		case "l":
			if a.state == viewReconcile && len(a.pending) > 0 {
				pv := a.pending[a.recCursor]
				if pv.Imported != nil {
					return a, a.learnCmd(pv.Match.SeriesID, pv.Imported.Description)
				}
			}
		}
	case upcomingMsg:
		a.upcoming = []schedule.Instance(m)
		a.rememberSeries()
	case pendingMsg:
		a.pending = []pendingView(m)
		if a.recCursor >= len(a.pending) {
			a.recCursor = 0
		}
	case settingsMsg:
		a.settings = repository.Settings(m)
	case statusMsg:
		a.status = string(m)
	case errMsg:
		a.status = "error: " + m.Error()
	case changedMsg:
		a.status = string(m)
		return a, tea.Batch(a.loadUpcoming(), a.loadPending(), a.loadSettings())
	case analyzeDoneMsg:
		a.lastAnalyze = &m.Result
		a.status = analyzeSummary(m.Result)
		return a, a.loadPending()
	case ingestDoneMsg:
		a.lastImport = &m.Result
		summary := fmt.Sprintf("imported %d, skipped %d", m.Result.Imported, m.Result.Skipped)
		if len(m.Result.Errors) > 0 {
			summary += fmt.Sprintf(", errors %d (see import view)", len(m.Result.Errors))
		}
		a.status = summary
		a.state = viewReconcile
		return a, a.analyzeCmd()
	}
	return a, nil
}

// rememberSeries loads descriptions for series shown on the dashboard.
func (a *App) rememberSeries() {
	for _, inst := range a.upcoming {
		if _, ok := a.series[inst.SeriesID]; ok {
			continue
		}
		if s, err := a.services.Series.Get(a.ctx, inst.SeriesID); err == nil {
			a.series[inst.SeriesID] = s
		}
	}
}

func (a *App) View() string {
	var body string
	switch a.state {
	case viewReconcile:
		body = a.renderReconcile()
	case viewImport:
		body = a.renderImport()
	case viewSettings:
		body = a.renderSettings()
	default:
		body = a.renderDashboard()
	}
	if a.modal != modalNone {
		body += "\n\n" + a.renderModal()
	}
	return body
}

// commands
func (a *App) analyzeCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.services.Reconciler.AnalyzeBatch(a.ctx, nil, a.profile)
		if err != nil {
			return errMsg{err}
		}
		return analyzeDoneMsg{Result: res}
	}
}

func (a *App) decisionCmd(matchID string, confirm bool) tea.Cmd {
	return func() tea.Msg {
		if confirm {
			if _, err := a.services.Reconciler.Confirm(a.ctx, matchID); err != nil {
				return errMsg{err}
			}
			return changedMsg("confirmed")
		}
		if err := a.services.Reconciler.Reject(a.ctx, matchID); err != nil {
			return errMsg{err}
		}
		return changedMsg("rejected")
	}
}

func (a *App) learnCmd(seriesID, description string) tea.Cmd {
	return func() tea.Msg {
		added, err := a.services.Reconciler.LearnPattern(a.ctx, seriesID, description)
		if err != nil {
			return errMsg{err}
		}
		if !added {
			return statusMsg("pattern already known")
		}
		return statusMsg(fmt.Sprintf("learned %q", description))
	}
}

func (a *App) saveSettingsCmd(s repository.Settings) tea.Cmd {
	return func() tea.Msg {
		if err := a.services.Settings.Save(a.ctx, s); err != nil {
			return errMsg{err}
		}
		return changedMsg("settings saved")
	}
}

func (a *App) autoRealizeCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.services.AutoRealizer.RunIfEnabled(a.ctx, a.today, a.settings, "")
		if err != nil {
			return errMsg{err}
		}
		if !res.Enabled {
			return statusMsg("auto-realize is disabled")
		}
		return changedMsg(fmt.Sprintf("auto-realized %d, skipped %d, errors %d", len(res.Realized), res.Skipped, len(res.Errors)))
	}
}

func (a *App) resetCmd() tea.Cmd {
	return func() tea.Msg {
		cleared, err := a.services.Maintenance.Reset(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		var rows int64
		for _, c := range cleared {
			rows += c.Rows
		}
		return changedMsg(fmt.Sprintf("database reset, %d rows removed", rows))
	}
}

func (a *App) ingestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		res, err := importFile(a.ctx, a.services.Ingest, path, a.importAcct, a.currency)
		if err != nil {
			return errMsg{err}
		}
		return ingestDoneMsg{Result: res}
	}
}

func (a *App) handleImportKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.Type {
	case tea.KeyEsc:
		a.state = viewDashboard
		return a, nil
	case tea.KeyEnter:
		path := strings.TrimSpace(a.importPath)
		if path == "" {
			a.status = "enter a CSV path"
			return a, nil
		}
		a.status = "importing..."
		return a, a.ingestCmd(path)
	case tea.KeyBackspace:
		if len(a.importPath) > 0 {
			a.importPath = a.importPath[:len(a.importPath)-1]
		}
		return a, nil
	case tea.KeyCtrlC:
		return a, tea.Quit
	case tea.KeyRunes, tea.KeySpace:
		a.importPath += m.String()
	}
	return a, nil
}

func (a *App) handleSettingsKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "esc", "d":
		a.state = viewDashboard
	case "a":
		s := a.settings
		s.AutoRealizePastDueItems = !s.AutoRealizePastDueItems
		return a, a.saveSettingsCmd(s)
	case "+", "=":
		s := a.settings
		s.PastDueLookbackDays++
		return a, a.saveSettingsCmd(s)
	case "-":
		if a.settings.PastDueLookbackDays > 0 {
			s := a.settings
			s.PastDueLookbackDays--
			return a, a.saveSettingsCmd(s)
		}
	case "c":
		a.status = "catching up..."
		return a, a.autoRealizeCmd()
	case "x":
		a.modal = modalConfirmReset
	}
	return a, nil
}

func (a *App) handleModalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.modal {
	case modalConfirmReset:
		switch m.String() {
		case "y":
			a.modal = modalNone
			return a, a.resetCmd()
		case "n", "esc":
			a.modal = modalNone
		}
	}
	return a, nil
}

// messages
type upcomingMsg []schedule.Instance

type pendingMsg []pendingView

type settingsMsg repository.Settings

type statusMsg string

// changedMsg reports a write; every view is reloaded after it.
type changedMsg string

type errMsg struct{ error }

type ingestDoneMsg struct {
	Result service.IngestResult
}

type analyzeDoneMsg struct {
	Result service.AnalyzeBatchResult
}

// pendingView enriches a pending match with both sides of the pair.
type pendingView struct {
	Match    repository.Match
	Imported *repository.Transaction
	Series   *schedule.Series
	Expected *schedule.Instance
}

// styles
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	levelStyle = map[matching.Level]lipgloss.Style{
		matching.LevelHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		matching.LevelMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		matching.LevelLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func analyzeSummary(res service.AnalyzeBatchResult) string {
	counts := map[matching.Status]int{}
	for _, r := range res.Results {
		counts[r.Status]++
	}
	s := fmt.Sprintf("matched %d, pending %d, unmatched %d", counts[matching.StatusMatched], counts[matching.StatusPending], counts[matching.StatusMissing])
	if len(res.Errors) > 0 {
		s += fmt.Sprintf(", errors %d", len(res.Errors))
	}
	return s
}

func (a *App) renderImport() string {
	title := titleStyle.Render("Import CSV")
	body := fmt.Sprintf("CSV path: %s\nAccount: %s\nType a path (date,description,amount) and press Enter to import and analyze.\n[enter] Import  [esc] Back", a.importPath, a.importAcct)
	if a.lastImport != nil {
		body += fmt.Sprintf("\nLast import: %d imported, %d skipped, %d errors", a.lastImport.Imported, a.lastImport.Skipped, len(a.lastImport.Errors))
		if len(a.lastImport.Errors) > 0 {
			body += "\nFirst error: " + a.lastImport.Errors[0].Error()
			if len(a.lastImport.Errors) > 1 {
				body += fmt.Sprintf(" (+%d more)", len(a.lastImport.Errors)-1)
			}
		}
	}
	if a.status != "" {
		body += "\n" + a.status
	}
	return fmt.Sprintf("%s\n%s", title, body)
}

func (a *App) renderDashboard() string {
	title := titleStyle.Render(fmt.Sprintf("Upcoming %s to %s", a.today, a.today.Add(upcomingDays)))
	out := title + "\n"
	if len(a.upcoming) == 0 {
		out += dimStyle.Render("  nothing scheduled") + "\n"
	}
	for _, inst := range a.upcoming {
		desc := inst.Description
		marker := " "
		switch {
		case inst.IsGenerated:
			marker = "✓"
		case inst.IsModified:
			marker = "*"
		}
		if s, ok := a.series[inst.SeriesID]; ok && s.IsTransfer() {
			desc += fmt.Sprintf(" (%s → %s)", s.AccountID, s.ToAccountID)
		}
		out += fmt.Sprintf("%s %s  %-40s %14s\n", marker, inst.Date, desc, inst.Amount)
	}
	out += fmt.Sprintf("Pending review: %d\n", len(a.pending))
	out += "[r] Review matches  [i] Import CSV  [p] Settings  [q] Quit"
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderReconcile() string {
	title := titleStyle.Render("Review Queue")
	if len(a.pending) == 0 {
		out := fmt.Sprintf("%s\nNo pending matches.\n[s] Analyze imports  [d] Dashboard  [i] Import CSV  [q] Quit", title)
		if a.status != "" {
			out += "\n" + a.status
		}
		return out
	}
	pv := a.pending[a.recCursor]
	impDesc, impAmt, impDate := "<missing>", "", ""
	if pv.Imported != nil {
		impDesc, impAmt, impDate = pv.Imported.Description, pv.Imported.Amount.String(), pv.Imported.Date.String()
	}
	expDesc, expAmt, expDate := "<missing>", "", pv.Match.InstanceDate.String()
	if pv.Expected != nil {
		expDesc, expAmt, expDate = pv.Expected.Description, pv.Expected.Amount.String(), pv.Expected.Date.String()
	} else if pv.Series != nil {
		expDesc = pv.Series.Description
	}
	level := levelStyle[pv.Match.Level].Render(string(pv.Match.Level))
	out := fmt.Sprintf("%s\nMatch %d of %d  Score: %.2f (%s)  Offset: %dd  Variance: %s\n", title, a.recCursor+1, len(a.pending), pv.Match.Score, level, pv.Match.DateOffsetDays, pv.Match.AmountVariance.String())
	out += fmt.Sprintf("Bank:     %s  %-40s %14s\n", impDate, impDesc, impAmt)
	out += fmt.Sprintf("Expected: %s  %-40s %14s\n", expDate, expDesc, expAmt)
	out += "[y] Confirm  [n] Reject  [l] Learn bank text  [s] Analyze imports  [d] Dashboard  [q] Quit"
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderSettings() string {
	title := titleStyle.Render("Settings")
	auto := "off"
	if a.settings.AutoRealizePastDueItems {
		auto = "on"
	}
	out := title + "\n"
	out += fmt.Sprintf("Auto-realize past due items: %s\n", auto)
	out += fmt.Sprintf("Look-back days: %d\n", a.settings.PastDueLookbackDays)
	out += fmt.Sprintf("Tolerance profile: %s\n", a.profile.Name)
	out += "[a] Toggle auto-realize  [+/-] Look-back  [c] Catch up now\n"
	out += "\n[x] Reset database (clears everything)\n"
	out += "[d] Dashboard  [q] Quit"
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalConfirmReset:
		return titleStyle.Render("Reset database?") + "\nThis will delete all data.\n[y] Yes  [n] No"
	default:
		return ""
	}
}
