// Package export renders bookings as spreadsheet workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"carma/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"Booking ID", "Car", "Pickup", "Return", "Location", "Total (USD)",
	"Status", "Account", "Code Source", "Tx Hash", "Created At", "Rented At",
}

// BuildWorkbook lays bookings out one per row under a title and a header row.
// The caller owns the returned file and must close it.
func BuildWorkbook(bookings []*models.Booking, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Bookings as of %s", generatedAt.UTC().Format("2006-01-02 15:04 MST")))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	rentedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
	})
	localStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
	})

	for i, b := range bookings {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &[]interface{}{
			b.ID,
			b.CarName,
			b.PickupDate,
			b.ReturnDate,
			b.Location,
			b.TotalPrice,
			b.Status,
			b.Account,
			b.CodeSource,
			b.TxHash,
			b.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			formatOptional(b.RentedAt),
		}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}

		statusCell, _ := excelize.CoordinatesToCellName(7, row)
		if b.Status == models.StatusRented {
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, rentedStyle)
		}
		if b.CodeSource == models.CodeSourceLocal {
			sourceCell, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(sheetName, sourceCell, sourceCell, localStyle)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	_ = f.SetColWidth(sheetName, "B", "G", 18)
	_ = f.SetColWidth(sheetName, "H", "H", 54)
	_ = f.SetColWidth(sheetName, "I", "I", 12)
	_ = f.SetColWidth(sheetName, "J", "J", 66)
	_ = f.SetColWidth(sheetName, "K", "L", 20)

	return f, nil
}

// WriteBookings streams the workbook as xlsx.
func WriteBookings(w io.Writer, bookings []*models.Booking, generatedAt time.Time) error {
	f, err := BuildWorkbook(bookings, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteTo(w)
	return err
}

// SaveBookings writes the workbook into dir and returns its path.
func SaveBookings(dir string, bookings []*models.Booking, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := BuildWorkbook(bookings, generatedAt)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, Filename(generatedAt))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// Filename is the download name for an export taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("bookings_%s.xlsx", t.UTC().Format("20060102_150405"))
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
