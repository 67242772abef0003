package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/veranemoloko/index-mirror/internal/domain"
	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
)

var ledgerHeader = []string{"name", "url", "ext", "progress", "final_file"}

// writeLedger encodes records as CSV. In-progress records are written as
// missing: a claim only lives as long as the process holding it.
func writeLedger(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		status, finalFile := rec.Status, rec.FinalFile
		if status == domain.StatusInProgress {
			status, finalFile = domain.StatusMissing, ""
		}
		if err := cw.Write([]string{rec.Name, rec.URL, rec.Ext, status.String(), finalFile}); err != nil {
			return fmt.Errorf("write record %s: %w", rec.URL, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// readLedger decodes a ledger file, applying crash recovery to every
// in-progress row. An empty input is an empty ledger.
func readLedger(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(ledgerHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", errpkg.ErrLedgerCorrupt, err)
	}
	if !slices.Equal(header, ledgerHeader) {
		return nil, fmt.Errorf("%w: unexpected header %v", errpkg.ErrLedgerCorrupt, header)
	}

	var records []domain.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errpkg.ErrLedgerCorrupt, err)
		}

		status, err := domain.ParseRecordStatus(row[3])
		if err != nil {
			line, _ := cr.FieldPos(3)
			return nil, fmt.Errorf("%w: line %d: %v", errpkg.ErrLedgerCorrupt, line, err)
		}

		rec := domain.Record{
			Name:      row[0],
			URL:       row[1],
			Ext:       row[2],
			Status:    status,
			FinalFile: row[4],
		}
		if rec.Status == domain.StatusInProgress {
			rec.Status = domain.StatusMissing
			rec.FinalFile = ""
		}
		records = append(records, rec)
	}

	return records, nil
}
