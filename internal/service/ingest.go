package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/money"
)

// IngestService handles bank CSV imports. Imported rows are the input of
// reconciliation.
type IngestService struct {
	Transactions *repository.TransactionRepo
	Accounts     *repository.AccountRepo

	accountCache map[string]repository.Account
}

type IngestResult struct {
	Imported int
	Skipped  int
	IDs      []string
	Errors   []error
}

// row is one parsed statement line.
type row struct {
	on          date.Date
	amount      money.Amount
	description string
	externalID  string
}

// ImportCSV ingests rows of date (YYYY-MM-DD), description, amount and an
// optional external_id into the named account. A header row is ignored.
func (s *IngestService) ImportCSV(ctx context.Context, r io.Reader, accountName, currency string) (IngestResult, error) {
	return s.ingest(ctx, r, accountName, currency, func(rec []string) (row, error) {
		if len(rec) < 3 {
			return row{}, fmt.Errorf("expected at least 3 columns (date, description, amount)")
		}
		on, err := date.Parse(strings.TrimSpace(rec[0]))
		if err != nil {
			return row{}, fmt.Errorf("date: %w", err)
		}
		amount, err := money.Parse(rec[2], currency)
		if err != nil {
			return row{}, fmt.Errorf("amount: %w", err)
		}
		out := row{on: on, amount: amount, description: strings.TrimSpace(rec[1])}
		if len(rec) > 3 {
			out.externalID = strings.TrimSpace(rec[3])
		}
		return out, nil
	})
}

// ImportANZSimple ingests ANZ export with no headers: date, amount, description.
func (s *IngestService) ImportANZSimple(ctx context.Context, r io.Reader, accountName, currency string) (IngestResult, error) {
	if strings.TrimSpace(accountName) == "" {
		accountName = "ANZ"
	}
	return s.ingest(ctx, r, accountName, currency, func(rec []string) (row, error) {
		if len(rec) < 3 {
			return row{}, fmt.Errorf("expected 3 columns (date, amount, description)")
		}
		on, err := parseANZDate(rec[0])
		if err != nil {
			return row{}, fmt.Errorf("date: %w", err)
		}
		amount, err := money.Parse(rec[1], currency)
		if err != nil {
			return row{}, fmt.Errorf("amount: %w", err)
		}
		return row{on: on, amount: amount, description: strings.TrimSpace(rec[2])}, nil
	})
}

func (s *IngestService) ingest(ctx context.Context, r io.Reader, accountName, currency string, parse func([]string) (row, error)) (IngestResult, error) {
	res := IngestResult{}
	if strings.TrimSpace(currency) == "" {
		return res, invalid("currency required")
	}
	acct, err := s.accountForName(ctx, accountName, currency)
	if err != nil {
		return res, err
	}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		parsed, err := parse(rec)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d %w", line, err))
			continue
		}
		t := repository.Transaction{
			ID:          uuid.NewString(),
			AccountID:   acct.ID,
			ExternalID:  nullableStr(parsed.externalID),
			Date:        parsed.on,
			Amount:      parsed.amount,
			Description: parsed.description,
			Source:      repository.SourceImport,
			SourceHash:  hashSource(acct.ID, parsed.on.String(), parsed.amount.Decimal().String(), parsed.description, parsed.externalID),
		}
		if err := s.Transactions.Insert(ctx, t); err != nil {
			// skip duplicates on unique constraint
			if isUniqueViolation(err) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
			continue
		}
		res.Imported++
		res.IDs = append(res.IDs, t.ID)
	}
	logger.FromContext(ctx).Info("import complete",
		"account", acct.Name, "imported", res.Imported, "skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date")
}

func nullableStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func hashSource(parts ...string) *string {
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	h := fmt.Sprintf("%x", sum[:])
	return &h
}

func parseANZDate(s string) (date.Date, error) {
	layout := "2/01/2006" // day/month/year (supports single-digit day)
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return date.Date{}, err
	}
	return date.FromTime(t), nil
}

func (s *IngestService) accountForName(ctx context.Context, name, currency string) (repository.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Account{}, invalid("account name required")
	}
	if s.accountCache == nil {
		s.accountCache = make(map[string]repository.Account)
	}
	if acct, ok := s.accountCache[name]; ok {
		return acct, nil
	}
	acct, err := ensureAccount(ctx, s.Accounts, name, currency)
	if err != nil {
		return repository.Account{}, err
	}
	s.accountCache[name] = acct
	return acct, nil
}

func deterministicAccountID(name string) string {
	key := strings.ToLower(strings.TrimSpace(filepath.Base(name)))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
