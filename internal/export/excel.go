package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bronizone/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Bookings"

// ExcelExporter пишет выгрузку броней в xlsx файлы в заданной директории.
type ExcelExporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExcelExporter(dir string, logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{dir: dir, logger: logger}
}

// ExportBookings создает Excel файл с бронями и возвращает путь к нему.
func (e *ExcelExporter) ExportBookings(bookings []models.Booking, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Reference", "User ID", "Zone", "Address",
		"Start", "End", "Status", "Cancellation Reason", "Created At",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", lastHeader, headerStyle)

	for i, b := range bookings {
		row := i + 2
		reason := ""
		if b.CancellationReason != nil {
			reason = *b.CancellationReason
		}
		values := []interface{}{
			b.ID,
			b.Reference,
			b.UserID,
			b.ZoneName,
			b.ZoneAddress,
			b.StartTime.Format("02.01.2006 15:04"),
			b.EndTime.Format("02.01.2006 15:04"),
			b.Status,
			reason,
			b.CreatedAt.Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "B", 38)
	_ = f.SetColWidth(bookingsSheet, "C", "C", 12)
	_ = f.SetColWidth(bookingsSheet, "D", "E", 25)
	_ = f.SetColWidth(bookingsSheet, "F", "G", 18)
	_ = f.SetColWidth(bookingsSheet, "H", "H", 12)
	_ = f.SetColWidth(bookingsSheet, "I", "I", 30)
	_ = f.SetColWidth(bookingsSheet, "J", "J", 18)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_export_%s.xlsx", generatedAt.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("Excel file created")
	return filePath, nil
}
