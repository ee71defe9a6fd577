package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/diskmanager"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/plate"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// BlacklistRequest is the body of POST /api/v1/blacklist.
type BlacklistRequest struct {
	Text        string `json:"text" validate:"required,max=32"`
	Reason      string `json:"reason" validate:"max=256"`
	DangerLevel string `json:"danger_level" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL low medium high critical"`
	Notes       string `json:"notes" validate:"max=1024"`
}

// limitParam parses the limit query parameter, clamped to maxLimit.
func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.Newf("limit must be a positive integer").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return min(n, maxLimit), nil
}

// plateParam returns the normalized :plate path parameter.
func plateParam(c echo.Context) (string, error) {
	text := plate.Normalize(c.Param("plate"))
	if text == "" {
		return "", errors.Newf("plate is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return text, nil
}

func (s *Server) searchPlates(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	results, err := s.store.SearchIdentities(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return s.HandleError(c, err, "Search failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) getPlate(c echo.Context) error {
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	ident, err := s.store.GetIdentity(c.Request().Context(), text)
	if err != nil {
		return s.HandleError(c, err, "Plate lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, ident)
}

func (s *Server) getVariants(c echo.Context) error {
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	variants, err := s.store.Variants(c.Request().Context(), text)
	if err != nil {
		return s.HandleError(c, err, "Variant lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, variants)
}

func (s *Server) getDetections(c echo.Context) error {
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	limit, err := limitParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	detections, err := s.store.Detections(c.Request().Context(), text, limit)
	if err != nil {
		return s.HandleError(c, err, "Detection lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, detections)
}

func (s *Server) getGroupedDetections(c echo.Context) error {
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	limit, err := limitParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	groups, err := s.store.GroupedDetections(c.Request().Context(), text, limit)
	if err != nil {
		return s.HandleError(c, err, "Detection lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, groups)
}

// getPlateImage serves the latest standalone image of a plate.
func (s *Server) getPlateImage(c echo.Context) error {
	if s.images == nil {
		return s.HandleError(c, nil, "Image storage is disabled", http.StatusNotFound)
	}
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	ident, err := s.store.GetIdentity(c.Request().Context(), text)
	if err != nil {
		return s.HandleError(c, err, "Plate lookup failed", statusFor(err))
	}
	if ident.LastImageRef == "" {
		return s.HandleError(c, nil, "No image stored for plate", http.StatusNotFound)
	}
	path, err := s.images.Path(ident.LastImageRef)
	if err != nil {
		return s.HandleError(c, err, "Invalid image reference", http.StatusInternalServerError)
	}
	return c.File(path)
}

func (s *Server) listBlacklist(c echo.Context) error {
	entries, err := s.store.Blacklist(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Blacklist lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) addBlacklist(c echo.Context) error {
	var req BlacklistRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "Invalid request body", http.StatusBadRequest)
	}
	if err := c.Validate(&req); err != nil {
		return s.HandleError(c, err, "Invalid blacklist entry", http.StatusBadRequest)
	}

	entry := datastore.BlacklistEntry{
		Text:        req.Text,
		Reason:      req.Reason,
		DangerLevel: req.DangerLevel,
		Notes:       req.Notes,
	}
	if err := s.store.AddBlacklistEntry(c.Request().Context(), entry); err != nil {
		code := statusFor(err)
		if errors.Is(err, datastore.ErrEmptyText) {
			code = http.StatusBadRequest
		}
		return s.HandleError(c, err, "Failed to add blacklist entry", code)
	}
	s.invalidateBlacklist()

	entry.Text = plate.Normalize(req.Text)
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) removeBlacklist(c echo.Context) error {
	text, err := plateParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid plate", http.StatusBadRequest)
	}
	if err := s.store.RemoveBlacklistEntry(c.Request().Context(), text); err != nil {
		return s.HandleError(c, err, "Failed to remove blacklist entry", statusFor(err))
	}
	s.invalidateBlacklist()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) invalidateBlacklist() {
	if s.blacklist != nil {
		s.blacklist.Invalidate()
	}
}

func (s *Server) recentAlerts(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return s.HandleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	alerts, err := s.store.RecentAlerts(c.Request().Context(), limit)
	if err != nil {
		return s.HandleError(c, err, "Alert lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, alerts)
}

// dateParam parses ?date=YYYY-MM-DD in local time, returning def when absent.
func dateParam(c echo.Context, def time.Time) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return def, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return time.Time{}, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("date", raw).
			Build()
	}
	return day, nil
}

func (s *Server) dailyStats(c echo.Context) error {
	day, err := dateParam(c, time.Now())
	if err != nil {
		return s.HandleError(c, err, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
	}
	stats, err := s.store.DailyStatistics(c.Request().Context(), day)
	if err != nil {
		return s.HandleError(c, err, "Statistics lookup failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) recentPlates(c echo.Context) error {
	if s.pipeline == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, s.pipeline.Recent())
}

func (s *Server) pipelineStats(c echo.Context) error {
	if s.pipeline == nil {
		return s.HandleError(c, nil, "Pipeline is not running", http.StatusServiceUnavailable)
	}
	return c.JSON(http.StatusOK, s.pipeline.Stats())
}

func (s *Server) requestCleanup(c echo.Context) error {
	if s.pipeline == nil {
		return s.HandleError(c, nil, "Pipeline is not running", http.StatusServiceUnavailable)
	}
	if !s.pipeline.RequestCleanup() {
		return s.HandleError(c, nil, "Maintenance queue is full", http.StatusTooManyRequests)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// requestReport queues the daily digest notification, for yesterday unless
// ?date= names another day.
func (s *Server) requestReport(c echo.Context) error {
	if s.pipeline == nil {
		return s.HandleError(c, nil, "Pipeline is not running", http.StatusServiceUnavailable)
	}
	day, err := dateParam(c, time.Now().AddDate(0, 0, -1))
	if err != nil {
		return s.HandleError(c, err, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
	}
	if !s.pipeline.RequestReport(day) {
		return s.HandleError(c, nil, "Statistics queue is full", http.StatusTooManyRequests)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued", "date": day.Format(time.DateOnly)})
}

// SystemInfo describes the host resources used by platewatch.
type SystemInfo struct {
	Uptime    string                    `json:"uptime"`
	ImageDisk *diskmanager.DiskSpaceInfo `json:"image_disk,omitempty"`
}

func (s *Server) systemInfo(c echo.Context) error {
	info := SystemInfo{Uptime: time.Since(s.startTime).Round(time.Second).String()}
	if s.images != nil {
		usage, err := s.images.Usage()
		if err != nil {
			return s.HandleError(c, err, "Disk usage unavailable", http.StatusInternalServerError)
		}
		info.ImageDisk = &usage
	}
	return c.JSON(http.StatusOK, info)
}
