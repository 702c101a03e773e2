// Package audit exports monthly reservation reports for the merchant.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"seatrelay/internal/store"
)

var reportColumns = []string{"Thread", "Status", "Start", "Duration (min)", "Party size", "Timezone"}

// Exporter writes one .xlsx report per calendar month.
type Exporter struct {
	db     *store.DB
	outDir string
	logger *zerolog.Logger
}

// NewExporter creates an exporter writing into outDir.
func NewExporter(db *store.DB, outDir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, outDir: outDir, logger: logger}
}

// ExportMonth writes all reservations starting in the given month (local to
// loc) and returns the report path.
func (e *Exporter) ExportMonth(ctx context.Context, year int, month time.Month, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	reservations, err := e.db.ListBetween(ctx, from.Unix(), to.Unix())
	if err != nil {
		return "", fmt.Errorf("list reservations: %w", err)
	}

	sheet := from.Format("2006-01")
	file := excelize.NewFile()
	defer file.Close()
	file.SetSheetName("Sheet1", sheet)

	if err := writeHeader(file, sheet); err != nil {
		return "", err
	}
	for i := range reservations {
		if err := writeRow(file, sheet, i+2, &reservations[i], loc); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(e.outDir, fmt.Sprintf("reservations_%s.xlsx", sheet))
	if err := file.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	if e.logger != nil {
		e.logger.Info().Str("path", path).Int("reservations", len(reservations)).Msg("monthly report exported")
	}
	return path, nil
}

func writeHeader(file *excelize.File, sheet string) error {
	for i, col := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(reportColumns), 1)
		_ = file.SetCellStyle(sheet, startCell, endCell, style)
	}
	return nil
}

func writeRow(file *excelize.File, sheet string, row int, r *store.Reservation, loc *time.Location) error {
	start := time.Unix(r.Time, 0).In(loc)
	durationMin := int64(0)
	if r.Duration != nil {
		durationMin = *r.Duration / 60
	}
	values := []any{
		r.ThreadRootID,
		string(r.Status),
		start.Format("2006-01-02 15:04"),
		durationMin,
		r.PartySize,
		r.TZID,
	}
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}
