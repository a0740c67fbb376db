package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"bronizone/internal/models"

	"github.com/google/uuid"
)

func bookingColumns(alias string) string {
	cols := []string{"id", "reference", "user_id", "slot_id", "zone_name",
		"COALESCE(zone_address, '')", "start_time", "end_time", "status",
		"cancellation_reason", "created_at", "updated_at"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		if alias != "" {
			out += alias + "."
		}
		out += c
	}
	return out
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var reason sql.NullString
	err := row.Scan(&b.ID, &b.Reference, &b.UserID, &b.SlotID, &b.ZoneName, &b.ZoneAddress,
		&b.StartTime, &b.EndTime, &b.Status, &reason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		b.CancellationReason = &reason.String
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return db.getBooking(ctx, db, id)
}

func (db *DB) getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns("")+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// HasUserConflict проверяет, пересекается ли [start, end) с активными бронями
// пользователя. excludeBookingID исключает бронь при продлении; 0 — ничего.
func (db *DB) HasUserConflict(ctx context.Context, userID int64, start, end time.Time, excludeBookingID int64) (bool, error) {
	return db.hasUserConflict(ctx, db, userID, start, end, excludeBookingID)
}

func (db *DB) hasUserConflict(ctx context.Context, q querier, userID int64, start, end time.Time, excludeBookingID int64) (bool, error) {
	// Стандартное пересечение полуоткрытых интервалов
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings
         WHERE user_id = ? AND status = ? AND start_time < ? AND end_time > ? AND id != ?`,
		userID, models.StatusActive, end.UTC(), start.UTC(), excludeBookingID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check user conflicts: %w", err)
	}
	return count > 0, nil
}

// CheckZoneCapacity решает, влезает ли кандидат [start, end) в зону.
// Загруженность кусочно-постоянна и меняется только на концах интервалов,
// поэтому достаточно проверить критические точки внутри окна кандидата.
func (db *DB) CheckZoneCapacity(ctx context.Context, zoneID int64, start, end time.Time) (bool, error) {
	return db.checkZoneCapacity(ctx, db, zoneID, start, end)
}

type interval struct {
	start time.Time
	end   time.Time
}

func (db *DB) checkZoneCapacity(ctx context.Context, q querier, zoneID int64, start, end time.Time) (bool, error) {
	start = start.UTC()
	end = end.UTC()

	var capacity int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM places WHERE zone_id = ? AND is_active = 1`, zoneID,
	).Scan(&capacity)
	if err != nil {
		return false, fmt.Errorf("failed to count active places: %w", err)
	}
	if capacity == 0 {
		return false, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT b.start_time, b.end_time
         FROM bookings b
         JOIN slots s ON s.id = b.slot_id
         JOIN places p ON p.id = s.place_id
         WHERE p.zone_id = ? AND b.status = ? AND b.start_time < ? AND b.end_time > ?`,
		zoneID, models.StatusActive, end, start)
	if err != nil {
		return false, fmt.Errorf("failed to load overlapping bookings: %w", err)
	}
	defer rows.Close()

	var overlapping []interval
	for rows.Next() {
		var iv interval
		if err := rows.Scan(&iv.start, &iv.end); err != nil {
			return false, fmt.Errorf("failed to scan booking interval: %w", err)
		}
		iv.start = iv.start.UTC()
		iv.end = iv.end.UTC()
		overlapping = append(overlapping, iv)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate booking intervals: %w", err)
	}

	// Критические точки: границы кандидата и всех пересекающихся броней.
	// Проверять только собственные границы кандидата недостаточно: чужой
	// start внутри окна может локально поднять загруженность.
	points := []time.Time{start, end}
	for _, iv := range overlapping {
		points = append(points, iv.start, iv.end)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	var prev time.Time
	for i, t := range points {
		if i > 0 && t.Equal(prev) {
			continue
		}
		prev = t
		if t.Before(start) || !t.Before(end) {
			continue
		}
		// кандидат активен в каждой точке своего окна
		occupied := 1
		for _, iv := range overlapping {
			if !iv.start.After(t) && iv.end.After(t) {
				occupied++
			}
		}
		if occupied > capacity {
			return false, nil
		}
	}
	return true, nil
}

// CreateBookingBySlot бронирует существующий слот: проверки доступности,
// дубликата, конфликта и вместимости плюс запись выполняются одной транзакцией.
func (db *DB) CreateBookingBySlot(ctx context.Context, userID, slotID int64) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var slot models.Slot
	var zoneName, zoneAddress string
	err = tx.QueryRowContext(ctx,
		`SELECT s.id, s.place_id, s.start_time, s.end_time, s.is_available, z.name, COALESCE(z.address, '')
         FROM slots s
         JOIN places p ON p.id = s.place_id
         JOIN zones z ON z.id = p.zone_id
         WHERE s.id = ?`, slotID,
	).Scan(&slot.ID, &slot.PlaceID, &slot.StartTime, &slot.EndTime, &slot.IsAvailable, &zoneName, &zoneAddress)
	if err == sql.ErrNoRows {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}
	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()

	if !slot.IsAvailable {
		return nil, ErrSlotUnavailable
	}

	var dup int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE user_id = ? AND slot_id = ? AND status = ?`,
		userID, slotID, models.StatusActive,
	).Scan(&dup)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate booking: %w", err)
	}
	if dup > 0 {
		return nil, ErrDuplicateBooking
	}

	conflict, err := db.hasUserConflict(ctx, tx, userID, slot.StartTime, slot.EndTime, 0)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrUserTimeConflict
	}

	var zoneID int64
	err = tx.QueryRowContext(ctx, `SELECT zone_id FROM places WHERE id = ?`, slot.PlaceID).Scan(&zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}
	fits, err := db.checkZoneCapacity(ctx, tx, zoneID, slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, err
	}
	if !fits {
		return nil, ErrZoneCapacityExceeded
	}

	result, err := tx.ExecContext(ctx, `UPDATE slots SET is_available = 0 WHERE id = ? AND is_available = 1`, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to take slot: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrSlotUnavailable
	}

	booking, err := db.insertBookingTx(ctx, tx, userID, slotID, zoneName, zoneAddress, slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return booking, nil
}

func (db *DB) insertBookingTx(ctx context.Context, tx *sql.Tx, userID, slotID int64, zoneName, zoneAddress string, start, end time.Time) (*models.Booking, error) {
	now := db.clock.Now().UTC()
	booking := &models.Booking{
		Reference:   uuid.NewString(),
		UserID:      userID,
		SlotID:      slotID,
		ZoneName:    zoneName,
		ZoneAddress: zoneAddress,
		StartTime:   start,
		EndTime:     end,
		Status:      models.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (reference, user_id, slot_id, zone_name, zone_address, start_time, end_time, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.Reference, userID, slotID, zoneName, zoneAddress, start, end, booking.Status, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	return booking, nil
}

// CreateBookingByRange бронирует первый подходящий по имени активный place
// зоны под интервал [start, end). Гонка на уникальности слота лечится одним
// молчаливым повтором, после чего трактуется как занятость.
func (db *DB) CreateBookingByRange(ctx context.Context, userID, zoneID int64, start, end time.Time) (*models.Booking, error) {
	booking, err := db.createBookingByRangeOnce(ctx, userID, zoneID, start, end)
	if err != nil && isUniqueViolation(err) {
		db.logger.Warn().Int64("zone_id", zoneID).Msg("slot insert race, retrying once")
		booking, err = db.createBookingByRangeOnce(ctx, userID, zoneID, start, end)
		if err != nil && isUniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
	}
	return booking, err
}

func (db *DB) createBookingByRangeOnce(ctx context.Context, userID, zoneID int64, start, end time.Time) (*models.Booking, error) {
	start = start.UTC()
	end = end.UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var zoneName, zoneAddress string
	var zoneActive bool
	err = tx.QueryRowContext(ctx,
		`SELECT name, COALESCE(address, ''), is_active FROM zones WHERE id = ?`, zoneID,
	).Scan(&zoneName, &zoneAddress, &zoneActive)
	if err == sql.ErrNoRows || (err == nil && !zoneActive) {
		return nil, ErrZoneInactive
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load zone: %w", err)
	}

	conflict, err := db.hasUserConflict(ctx, tx, userID, start, end, 0)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrUserTimeConflict
	}

	fits, err := db.checkZoneCapacity(ctx, tx, zoneID, start, end)
	if err != nil {
		return nil, err
	}
	if !fits {
		return nil, ErrZoneCapacityExceeded
	}

	places, err := db.activePlaces(ctx, tx, zoneID)
	if err != nil {
		return nil, err
	}

	for _, place := range places {
		slotID, err := db.acquireSlotTx(ctx, tx, place.ID, start, end)
		if err == ErrSlotUnavailable {
			continue // место занято, пробуем следующее
		}
		if err != nil {
			return nil, err
		}

		booking, err := db.insertBookingTx(ctx, tx, userID, slotID, zoneName, zoneAddress, start, end)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit booking: %w", err)
		}
		return booking, nil
	}

	return nil, ErrNoAvailablePlace
}

// ExtendBooking продлевает активную бронь на extendBy, создавая отдельную
// цепную бронь ровно на окно продления [end, end+extendBy). Исходная бронь
// не меняется. Суммарная длительность от исходного start ограничена maxTotal.
func (db *DB) ExtendBooking(ctx context.Context, userID, bookingID int64, extendBy, maxTotal time.Duration) (*models.Booking, error) {
	booking, err := db.extendBookingOnce(ctx, userID, bookingID, extendBy, maxTotal)
	if err != nil && isUniqueViolation(err) {
		db.logger.Warn().Int64("booking_id", bookingID).Msg("extension slot race, retrying once")
		booking, err = db.extendBookingOnce(ctx, userID, bookingID, extendBy, maxTotal)
		if err != nil && isUniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
	}
	return booking, err
}

func (db *DB) extendBookingOnce(ctx context.Context, userID, bookingID int64, extendBy, maxTotal time.Duration) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := db.getBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, ErrNotOwner
	}
	if booking.Status != models.StatusActive {
		return nil, ErrBookingNotActive
	}

	newEnd := booking.EndTime.Add(extendBy)
	if newEnd.Sub(booking.StartTime) > maxTotal {
		return nil, ErrDurationTooLong
	}

	// Конфликт проверяем только по окну продления, исключая саму бронь
	conflict, err := db.hasUserConflict(ctx, tx, userID, booking.EndTime, newEnd, bookingID)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrUserTimeConflict
	}

	// Зону резолвим явно по цепочке slot -> place -> zone
	var placeID, zoneID int64
	var zoneName, zoneAddress string
	var zoneActive bool
	err = tx.QueryRowContext(ctx,
		`SELECT s.place_id, z.id, z.name, COALESCE(z.address, ''), z.is_active
         FROM slots s
         JOIN places p ON p.id = s.place_id
         JOIN zones z ON z.id = p.zone_id
         WHERE s.id = ?`, booking.SlotID,
	).Scan(&placeID, &zoneID, &zoneName, &zoneAddress, &zoneActive)
	if err == sql.ErrNoRows || (err == nil && !zoneActive) {
		return nil, ErrZoneInactive
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}

	fits, err := db.checkZoneCapacity(ctx, tx, zoneID, booking.EndTime, newEnd)
	if err != nil {
		return nil, err
	}
	if !fits {
		return nil, ErrZoneCapacityExceeded
	}

	// Слот продления ищем только на месте исходной брони
	slotID, err := db.acquireSlotTx(ctx, tx, placeID, booking.EndTime, newEnd)
	if err != nil {
		return nil, err
	}

	extension, err := db.insertBookingTx(ctx, tx, userID, slotID, zoneName, zoneAddress, booking.EndTime, newEnd)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit extension: %w", err)
	}
	return extension, nil
}

// CancelBooking отменяет бронь и возвращает слот в доступные. Повторная
// отмена неактивной брони — no-op: бронь возвращается как есть.
func (db *DB) CancelBooking(ctx context.Context, userID, bookingID int64, isAdmin bool, reason string) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := db.getBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.UserID != userID {
		return nil, ErrNotOwner
	}
	if booking.Status != models.StatusActive {
		return booking, nil
	}

	now := db.clock.Now().UTC()
	var reasonArg any
	if reason != "" {
		reasonArg = reason
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?`,
		models.StatusCancelled, reasonArg, now, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE slots SET is_available = 1 WHERE id = ?`, booking.SlotID)
	if err != nil {
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	booking.Status = models.StatusCancelled
	if reason != "" {
		booking.CancellationReason = &reason
	}
	booking.UpdatedAt = now
	return booking, nil
}

// GetBookingsByDateRange возвращает все брони, начинающиеся в [start, end).
func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns("")+` FROM bookings
         WHERE start_time >= ? AND start_time < ?
         ORDER BY start_time, id`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	return collectBookings(rows)
}

// GetBookingHistory возвращает брони пользователя, свежие первыми.
// Фильтры по дате применяются к началу слота, как в выдаче расписания.
func (db *DB) GetBookingHistory(ctx context.Context, userID int64, filters models.BookingHistoryFilters) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns("b") + `
              FROM bookings b
              JOIN slots s ON s.id = b.slot_id
              JOIN places p ON p.id = s.place_id
              JOIN zones z ON z.id = p.zone_id
              WHERE b.user_id = ?`
	args := []any{userID}

	if filters.Status != "" {
		query += ` AND b.status = ?`
		args = append(args, filters.Status)
	}
	if filters.ZoneID != 0 {
		query += ` AND z.id = ?`
		args = append(args, filters.ZoneID)
	}
	if !filters.DateFrom.IsZero() {
		query += ` AND s.start_time >= ?`
		args = append(args, filters.DateFrom.UTC())
	}
	if !filters.DateTo.IsZero() {
		query += ` AND s.start_time <= ?`
		args = append(args, filters.DateTo.UTC())
	}
	query += ` ORDER BY b.created_at DESC, b.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking history: %w", err)
	}
	return collectBookings(rows)
}
