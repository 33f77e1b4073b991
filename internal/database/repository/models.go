package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/money"
)

// Account represents an account row.
type Account struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	AccountType string    `json:"account_type"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction sources.
const (
	SourceManual    = "manual"
	SourceRecurring = "recurring"
	SourceImport    = "import"
)

// Leg tags which side of a transfer a row is.
type Leg string

const (
	LegSingle      Leg = "single"
	LegSource      Leg = "source"
	LegDestination Leg = "destination"
)

// Transaction represents a ledger row. Rows created from a series, or
// imported rows adopted by one, carry the series id and the original
// scheduled date of the occurrence.
type Transaction struct {
	ID                    string       `json:"id"`
	AccountID             string       `json:"account_id"`
	ExternalID            *string      `json:"external_id,omitempty"`
	Date                  date.Date    `json:"date"`
	Amount                money.Amount `json:"amount"`
	Description           string       `json:"description"`
	Source                string       `json:"source"`
	SourceHash            *string      `json:"-"`
	RecurringSeriesID     *string      `json:"recurring_series_id,omitempty"`
	RecurringInstanceDate *date.Date   `json:"recurring_instance_date,omitempty"`
	Leg                   Leg          `json:"leg"`
	TransferID            *string      `json:"transfer_id,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// IsRecurring reports whether the row is tied to a series occurrence.
func (t Transaction) IsRecurring() bool {
	return t.RecurringSeriesID != nil && t.RecurringInstanceDate != nil
}

// Match is a reconciliation decision between an imported transaction and a
// series occurrence.
type Match struct {
	ID             string          `json:"id"`
	ImportedTxID   string          `json:"imported_tx_id"`
	SeriesID       string          `json:"series_id"`
	InstanceDate   date.Date       `json:"instance_date"`
	Score          float64         `json:"score"`
	Level          matching.Level  `json:"level"`
	Status         matching.Status `json:"status"`
	AmountVariance decimal.Decimal `json:"amount_variance"`
	DateOffsetDays int             `json:"date_offset_days"`
	Source         matching.Source `json:"source"`
	Rejected       bool            `json:"rejected"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ImportPattern is a learned bank-statement text for a series.
type ImportPattern struct {
	ID        string    `json:"id"`
	SeriesID  string    `json:"series_id"`
	Pattern   string    `json:"pattern"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings are the engine's persisted user preferences.
type Settings struct {
	AutoRealizePastDueItems bool `json:"auto_realize_past_due_items"`
	PastDueLookbackDays     int  `json:"past_due_lookback_days"`
}

// DefaultSettings are used for keys missing from the settings table.
var DefaultSettings = Settings{AutoRealizePastDueItems: false, PastDueLookbackDays: 30}
