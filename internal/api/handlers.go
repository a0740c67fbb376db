package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"bronizone/internal/models"
)

const dateFormat = "2006-01-02"

// splitPath возвращает сегменты пути после prefix.
func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func (s *HTTPServer) isAdmin(r *http.Request) bool {
	client, ok := ClientFromContext(r.Context())
	return clientIsAdmin(client, ok)
}

// GET /api/v1/zones
func (s *HTTPServer) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	zones, err := s.bookings.ListZones(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

// GET /api/v1/zones/{id}/schedule?date=YYYY-MM-DD
func (s *HTTPServer) handleZoneSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/zones/")
	if len(parts) != 2 || parts[1] != "schedule" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	zoneID, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid zone id")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse(dateFormat, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	schedule, err := s.bookings.GetZoneSchedule(r.Context(), zoneID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zone_id": zoneID, "date": dateStr, "schedule": schedule})
}

// GET  /api/v1/bookings?user_id=...&status=...&zone_id=...&from=...&to=...
// POST /api/v1/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleBookingHistory(w, r)
	case http.MethodPost:
		s.handleCreateBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleBookingHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(r.URL.Query().Get("user_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var filters models.BookingHistoryFilters
	filters.Status = strings.TrimSpace(r.URL.Query().Get("status"))
	if raw := r.URL.Query().Get("zone_id"); raw != "" {
		zoneID, ok := parseID(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid zone_id")
			return
		}
		filters.ZoneID = zoneID
	}
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{
		{"from", &filters.DateFrom},
		{"to", &filters.DateTo},
	} {
		raw := strings.TrimSpace(r.URL.Query().Get(q.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+q.name+" format; expected YYYY-MM-DD")
			return
		}
		*q.dst = t
	}

	bookings, err := s.bookings.GetBookingHistory(r.Context(), userID, filters)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64  `json:"user_id"`
		SlotID int64  `json:"slot_id"`
		ZoneID int64  `json:"zone_id"`
		Start  string `json:"start"`
		End    string `json:"end"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	// Два режима: бронь готового слота либо интервала в зоне
	if body.SlotID > 0 {
		booking, err := s.bookings.CreateBookingBySlot(r.Context(), body.UserID, body.SlotID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, booking)
		return
	}

	if body.ZoneID <= 0 || body.Start == "" || body.End == "" {
		writeError(w, http.StatusBadRequest, "either slot_id or zone_id with start and end is required")
		return
	}
	start, err := time.Parse(time.RFC3339, body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC3339")
		return
	}

	booking, err := s.bookings.CreateBookingByRange(r.Context(), body.UserID, body.ZoneID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// POST /api/v1/bookings/{id}/extend
// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleBookingSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/bookings/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bookingID, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch parts[1] {
	case "extend":
		s.handleExtendBooking(w, r, bookingID)
	case "cancel":
		s.handleCancelBooking(w, r, bookingID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleExtendBooking(w http.ResponseWriter, r *http.Request, bookingID int64) {
	var body struct {
		UserID        int64 `json:"user_id"`
		ExtendMinutes int   `json:"extend_minutes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	extension, err := s.bookings.ExtendBooking(r.Context(), body.UserID, bookingID,
		time.Duration(body.ExtendMinutes)*time.Minute)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, extension)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, bookingID int64) {
	var body struct {
		UserID int64  `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	booking, err := s.bookings.CancelBooking(r.Context(), body.UserID, bookingID, s.isAdmin(r), body.Reason)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// POST /api/v1/admin/zones
func (s *HTTPServer) handleAdminZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Name        string `json:"name"`
		Address     string `json:"address"`
		PlacesCount int    `json:"places_count"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	zone, err := s.zones.CreateZone(r.Context(), body.Name, body.Address, body.PlacesCount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

// PUT    /api/v1/admin/zones/{id}
// DELETE /api/v1/admin/zones/{id}
// POST   /api/v1/admin/zones/{id}/close
func (s *HTTPServer) handleAdminZoneSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/admin/zones/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zoneID, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid zone id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		s.handleUpdateZone(w, r, zoneID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteZone(w, r, zoneID)
	case len(parts) == 2 && parts[1] == "close" && r.Method == http.MethodPost:
		s.handleCloseZone(w, r, zoneID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleUpdateZone(w http.ResponseWriter, r *http.Request, zoneID int64) {
	var body models.ZoneUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	zone, err := s.zones.UpdateZone(r.Context(), zoneID, body)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (s *HTTPServer) handleDeleteZone(w http.ResponseWriter, r *http.Request, zoneID int64) {
	if err := s.zones.DeleteZone(r.Context(), zoneID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *HTTPServer) handleCloseZone(w http.ResponseWriter, r *http.Request, zoneID int64) {
	var body struct {
		Reason string `json:"reason"`
		From   string `json:"from"`
		To     string `json:"to"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	from, err := time.Parse(time.RFC3339, body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339")
		return
	}

	cancelled, err := s.zones.CloseZone(r.Context(), zoneID, body.Reason, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zone_id":            zoneID,
		"cancelled_bookings": cancelled,
	})
}

// GET /api/v1/admin/stats/zones
func (s *HTTPServer) handleZoneStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.zones.GetZonesStatistics(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": stats})
}

// GET /api/v1/admin/stats/global
func (s *HTTPServer) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.zones.GetGlobalStatistics(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// POST /api/v1/admin/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	from, err := time.Parse(dateFormat, body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dateFormat, body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}

	bookings, err := s.db.GetBookingsByDateRange(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	filePath, err := s.exporter.ExportBookings(bookings, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": filePath, "bookings": len(bookings)})
}

// GET /api/v1/admin/sync/failed
func (s *HTTPServer) handleFailedSyncTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tasks, err := s.db.GetFailedSyncTasks(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}
