package tui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/service"
)

// importFile ingests a statement file, choosing the layout from its first
// row: ISO dates or a "date" header mean the generic CSV, anything else is
// treated as an ANZ export.
func importFile(ctx context.Context, ingest *service.IngestService, path, account, currency string) (service.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.IngestResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	if isGenericCSV(data) {
		return ingest.ImportCSV(ctx, bytes.NewReader(data), account, currency)
	}
	return ingest.ImportANZSimple(ctx, bytes.NewReader(data), account, currency)
}

func isGenericCSV(data []byte) bool {
	r := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err != nil || len(rec) == 0 {
		return true
	}
	first := strings.TrimSpace(rec[0])
	if strings.EqualFold(first, "date") {
		return true
	}
	_, err = date.Parse(first)
	return err == nil
}
