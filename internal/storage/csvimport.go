package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportOptions controls ImportCSV.
type ImportOptions struct {
	HasHeader bool
	// Timezone is recorded as the creation timezone of imported rows.
	Timezone string
}

type ImportReport struct {
	Imported int
	Skipped  int
	Errors   []string
}

// ImportCSV loads rows of the form
//
//	timestamp, factory area, inspection section, violation type, image url, resolved
//
// into st, assigning a fresh ID per row. Short or blank rows are skipped.
func ImportCSV(ctx context.Context, st ViolationStore, r io.Reader, opt ImportOptions) (ImportReport, error) {
	var rep ImportReport
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	tz := loadLocation(opt.Timezone).String()
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return rep, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && opt.HasHeader {
			continue
		}
		if len(rec) < 6 || strings.TrimSpace(rec[0]) == "" {
			rep.Skipped++
			continue
		}
		resolved, err := ParseResolved(rec[5])
		if err != nil {
			rep.Skipped++
			rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		v := Violation{
			ID:                NewID(),
			Timestamp:         strings.TrimSpace(rec[0]),
			CreationTimezone:  tz,
			FactoryArea:       strings.TrimSpace(rec[1]),
			InspectionSection: strings.TrimSpace(rec[2]),
			ViolationType:     strings.TrimSpace(rec[3]),
			ImageURL:          strings.TrimSpace(rec[4]),
			Resolved:          resolved,
		}
		if _, err := st.InsertViolation(ctx, v); err != nil {
			return rep, fmt.Errorf("csv line %d: %w", line, err)
		}
		rep.Imported++
	}
	return rep, nil
}
