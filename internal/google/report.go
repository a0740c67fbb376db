package google

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"bronizone/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	reportSheet    = "Bookings"
	statusColumn   = "H"
	timeFormat     = "2006-01-02 15:04:05"
	firstDataRow   = 2
	idColumnRange  = reportSheet + "!A:A"
	headerRowRange = reportSheet + "!A1:I1"
)

// ReportService ведёт лист отчёта по броням в Google Sheets. Номер строки
// каждой брони кэшируется по reference, чтобы не сканировать лист на каждый
// апдейт.
type ReportService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewReportService(ctx context.Context, credentialsFile, spreadsheetID string) (*ReportService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &ReportService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}, nil
}

// TestConnection проверяет доступ к таблице
func (s *ReportService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, headerRowRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

func bookingRow(b *models.Booking) []interface{} {
	reason := ""
	if b.CancellationReason != nil {
		reason = *b.CancellationReason
	}
	return []interface{}{
		b.ID,
		b.Reference,
		b.UserID,
		b.ZoneName,
		b.ZoneAddress,
		b.StartTime.Format(timeFormat),
		b.EndTime.Format(timeFormat),
		b.Status,
		reason,
	}
}

// UpsertBooking обновляет строку брони или добавляет новую в конец листа.
func (s *ReportService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	row, ok := s.cachedRow(booking.ID)
	if !ok {
		var err error
		row, ok, err = s.findRow(ctx, booking.ID)
		if err != nil {
			return err
		}
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{bookingRow(booking)}}

	if ok {
		rangeData := fmt.Sprintf("%s!A%d:I%d", reportSheet, row, row)
		_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, reportSheet+"!A:I", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		if appended := parseRowFromRange(resp.Updates.UpdatedRange); appended > 0 {
			s.cacheMu.Lock()
			s.rowCache[booking.ID] = appended
			s.cacheMu.Unlock()
		}
	}
	return nil
}

// UpdateBookingStatus меняет только колонку статуса существующей строки.
func (s *ReportService) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	row, ok := s.cachedRow(bookingID)
	if !ok {
		var err error
		row, ok, err = s.findRow(ctx, bookingID)
		if err != nil {
			return err
		}
	}
	if !ok {
		return fmt.Errorf("booking %d not found in report", bookingID)
	}

	rangeData := fmt.Sprintf("%s!%s%d", reportSheet, statusColumn, row)
	valueRange := &sheets.ValueRange{Values: [][]interface{}{{status}}}
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *ReportService) cachedRow(bookingID int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

// findRow сканирует колонку ID и попутно прогревает кэш строк.
func (s *ReportService) findRow(ctx context.Context, bookingID int64) (int, bool, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, idColumnRange).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read report id column: %v", err)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int, len(resp.Values))

	found := 0
	for i, row := range resp.Values {
		if i+1 < firstDataRow || len(row) == 0 {
			continue
		}
		raw, ok := row[0].(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		s.rowCache[id] = i + 1
		if id == bookingID {
			found = i + 1
		}
	}
	return found, found > 0, nil
}

// parseRowFromRange извлекает номер строки из A1-диапазона вида Bookings!A5:I5.
func parseRowFromRange(a1 string) int {
	row := 0
	for i := len(a1) - 1; i >= 0; i-- {
		c := a1[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if n, err := strconv.Atoi(a1[i+1:]); err == nil {
			row = n
		}
		break
	}
	return row
}
