// Package xlsx renders case search results as an Excel workbook.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	SheetName   = "Cases"
)

var header = []any{
	"ID", "Title", "Citation", "Court", "Date", "Jurisdiction", "Case Type",
	"Precedent Value", "Summary", "Key Points", "Tags",
}

// WriteCases writes one row per case under a bold header row.
func WriteCases(w io.Writer, cases []domain.CaseSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, c := range cases {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			c.ID,
			c.Title,
			c.Citation,
			c.Court,
			c.Date.Format("2006-01-02"),
			c.Jurisdiction,
			c.CaseType,
			c.PrecedentValue,
			c.Summary,
			strings.Join(c.KeyPoints, "; "),
			strings.Join(c.Tags, ", "),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write case %s: %w", c.ID, err)
		}
	}

	if err := f.SetColWidth(SheetName, "B", "B", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "I", "I", 80); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
