// Package report exports reconciliation results to Excel workbooks for
// operations review.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

const (
	summarySheet = "Summary"
	driftSheet   = "Drift"
	changesSheet = "Transitions"
)

// WriteVerifyReport writes a two-sheet workbook: run totals plus the
// per-shipment drift list.
func WriteVerifyReport(path string, rep *domain.VerifyReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName(f.GetSheetName(0), summarySheet)

	rows := [][]any{
		{"Metric", "Value"},
		{"Checked", rep.Checked},
		{"Matching", rep.Matching},
		{"Drifted", rep.Drifted},
		{"Errors", rep.Errors},
	}
	for _, state := range sortedKeys(rep.ByState) {
		rows = append(rows, []any{"State " + state, rep.ByState[state]})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(driftSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", driftSheet, err)
	}
	driftRows := [][]any{{"Shipment ID", "Booking Number", "Stored State", "Derived State"}}
	for _, d := range rep.Drift {
		driftRows = append(driftRows, []any{d.ShipmentID, d.BookingNumber, d.StoredState, d.DerivedState})
	}
	if err := writeRows(f, driftSheet, driftRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// WriteBackfillReport writes run totals plus the applied state transitions.
func WriteBackfillReport(path string, rep *domain.BackfillReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName(f.GetSheetName(0), summarySheet)

	rows := [][]any{
		{"Metric", "Value"},
		{"Scanned", rep.Scanned},
		{"Linked", rep.Linked},
		{"Created", rep.Created},
		{"Candidates", rep.Candidates},
		{"Skipped", rep.Skipped},
		{"Errors", rep.Errors},
		{"Updated", rep.Updated},
		{"Last Email ID", rep.LastEmailID},
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(changesSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", changesSheet, err)
	}
	changeRows := [][]any{{"Shipment ID", "Booking Number", "Old State", "New State"}}
	for _, tr := range rep.Transitions {
		changeRows = append(changeRows, []any{tr.ShipmentID, tr.BookingNumber, tr.OldState, tr.NewState})
	}
	if err := writeRows(f, changesSheet, changeRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d on %s: %w", i+1, sheet, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
