package dashboard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for unknown export formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

var exportHeaders = []string{"Business ID", "Name", "Website", "Address", "Niche", "Search Date", "Scraped", "Outreach Sent"}

// ContentType returns the MIME type of an export format
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Export writes the businesses on the user's dashboard that pass f to w
func (s *Service) Export(ctx context.Context, w io.Writer, userID int, f Filter, format string) (int, error) {
	if format != FormatCSV && format != FormatXLSX {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	entries, err := s.ListBusinesses(ctx, userID, f)
	if err != nil {
		return 0, err
	}

	if format == FormatXLSX {
		err = writeExcel(w, entries)
	} else {
		err = writeCSV(w, entries)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info("dashboard exported", "user_id", userID, "format", format, "rows", len(entries))
	return len(entries), nil
}

func record(e Entry) []string {
	return []string{
		e.BusinessID,
		e.Name,
		deref(e.Website),
		deref(e.Address),
		deref(e.Niche),
		e.SearchDate.UTC().Format(time.RFC3339),
		yesNo(e.Scraped),
		yesNo(e.OutreachSent),
	}
}

func writeCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeaders); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		if err := writer.Write(record(e)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeExcel(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Businesses"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, e := range entries {
		for colIdx, value := range record(e) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	f.SetColWidth(sheetName, "A", lastCol, 20)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
