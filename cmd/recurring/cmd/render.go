package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printTable writes rows as a bordered table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t)
}

func describePattern(p recurrence.Pattern) string {
	s := p.Spec()
	var b strings.Builder
	if s.Interval > 1 {
		fmt.Fprintf(&b, "every %d × ", s.Interval)
	}
	b.WriteString(s.Frequency.String())
	if s.DayOfWeek != nil {
		fmt.Fprintf(&b, " on %s", s.DayOfWeek.String()[:3])
	}
	if s.DayOfMonth > 0 {
		fmt.Fprintf(&b, " day %d", s.DayOfMonth)
	}
	if s.MonthOfYear > 0 {
		fmt.Fprintf(&b, " of %s", s.MonthOfYear.String()[:3])
	}
	return b.String()
}

func seriesRow(s schedule.Series) []string {
	active := "yes"
	if !s.IsActive {
		active = "no"
	}
	accounts := s.AccountID
	if s.IsTransfer() {
		accounts += " → " + s.ToAccountID
	}
	return []string{s.ID, s.Description, s.Amount.String(), describePattern(s.Pattern), s.NextOccurrence.String(), accounts, active}
}

var seriesHeaders = []string{"ID", "Description", "Amount", "Pattern", "Next", "Accounts", "Active"}
