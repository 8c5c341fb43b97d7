// ABOUTME: Read and rebuild handlers for imports, records, and daily summaries.
// ABOUTME: Lists come back as {"count","results"} envelopes.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/ingest"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
)

var timeNow = time.Now

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler serves the vitals API for a single user.
type Handler struct {
	ingest    *ingest.Service
	store     storage.Store
	builder   *summary.Builder
	user      string
	maxUpload int64
	log       *log.Logger
}

// NewHandler builds a Handler. maxUploadBytes bounds the multipart body.
func NewHandler(svc *ingest.Service, store storage.Store, builder *summary.Builder, maxUploadBytes int64, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		ingest:    svc,
		store:     store,
		builder:   builder,
		user:      svc.UserID(),
		maxUpload: maxUploadBytes,
		log:       logger,
	}
}

type listResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Count: len(items), Results: items}
}

// Sources lists the registered adapters.
func (h *Handler) Sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.ingest.Registry().Sources()})
}

// ListImports returns recent import batches.
func (h *Handler) ListImports(c *gin.Context) {
	limit, httpErr := parseLimit(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	batches, err := h.store.ListBatches(c.Request.Context(), h.user, limit)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, newList(batches))
}

// GetImport returns one batch by id.
func (h *Handler) GetImport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		abortWithError(c, badRequest("batch_id must be a UUID", err))
		return
	}
	batch, err := h.store.GetBatch(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && batch.UserID != h.user) {
		abortWithError(c, notFound("import batch not found"))
		return
	}
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ListHealthRecords lists metric records. Accepts metric_type, source,
// date, start_date, end_date, and limit.
func (h *Handler) ListHealthRecords(c *gin.Context) {
	f, httpErr := h.parseFilter(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	records, err := h.store.ListMetrics(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, newList(records))
}

// HealthRecordSummary returns per metric type counts and ranges.
func (h *Handler) HealthRecordSummary(c *gin.Context) {
	stats, err := h.store.MetricStats(c.Request.Context(), h.user)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	if stats == nil {
		stats = []storage.MetricStat{}
	}
	c.JSON(http.StatusOK, stats)
}

// ListSleepLogs lists sleep sessions.
func (h *Handler) ListSleepLogs(c *gin.Context) {
	f, httpErr := h.parseFilter(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	sessions, err := h.store.ListSleep(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, newList(sessions))
}

// ListNutritionLogs lists daily nutrition entries.
func (h *Handler) ListNutritionLogs(c *gin.Context) {
	f, httpErr := h.parseFilter(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	days, err := h.store.ListNutrition(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, newList(days))
}

// ListDailySummaries lists stored summaries in a date window.
func (h *Handler) ListDailySummaries(c *gin.Context) {
	f, httpErr := h.parseFilter(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	summaries, err := h.store.ListSummaries(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, newList(summaries))
}

// GetDailySummary returns the stored summary for one date.
func (h *Handler) GetDailySummary(c *gin.Context) {
	date, err := civil.ParseDate(c.Param("date"))
	if err != nil {
		abortWithError(c, badRequest("date must be YYYY-MM-DD", err))
		return
	}
	s, err := h.store.GetSummary(c.Request.Context(), h.user, date)
	if errors.Is(err, storage.ErrNotFound) {
		abortWithError(c, notFound("no summary for "+date.String()))
		return
	}
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, s)
}

type rebuildRequest struct {
	Date      string `json:"date"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	All       bool   `json:"all"`
}

// RebuildDailySummaries recomputes one date, a range, or every date with data.
func (h *Handler) RebuildDailySummaries(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest("invalid JSON body", err))
		return
	}
	ctx := c.Request.Context()

	switch {
	case req.All:
		n, err := h.builder.RebuildAll(ctx, h.user)
		if err != nil {
			abortWithError(c, internal(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"rebuilt": n})
	case req.Date != "":
		date, err := civil.ParseDate(req.Date)
		if err != nil {
			abortWithError(c, badRequest("date must be YYYY-MM-DD", err))
			return
		}
		s, err := h.builder.Rebuild(ctx, date, h.user)
		if err != nil {
			abortWithError(c, internal(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"rebuilt": 1, "summaries": []*models.DailySummary{s}})
	case req.StartDate != "" && req.EndDate != "":
		from, err1 := civil.ParseDate(req.StartDate)
		to, err2 := civil.ParseDate(req.EndDate)
		if err := errors.Join(err1, err2); err != nil {
			abortWithError(c, badRequest("start_date and end_date must be YYYY-MM-DD", err))
			return
		}
		if to.Before(from) {
			abortWithError(c, badRequest("end_date is before start_date", nil))
			return
		}
		summaries, err := h.builder.RebuildRange(ctx, from, to, h.user)
		if err != nil {
			abortWithError(c, internal(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"rebuilt": len(summaries), "summaries": summaries})
	default:
		abortWithError(c, badRequest("provide date, start_date and end_date, or all", nil))
	}
}

// Averages returns field means between start_date and end_date.
func (h *Handler) Averages(c *gin.Context) {
	from, to, httpErr := requiredWindow(c)
	if httpErr != nil {
		abortWithError(c, httpErr)
		return
	}
	avg, err := h.builder.Averages(c.Request.Context(), h.user, from, to)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, avg)
}

// WeeklyReport returns the report for the week containing week_start, or
// the current week.
func (h *Handler) WeeklyReport(c *gin.Context) {
	start := civil.DateOf(timeNow())
	if raw := c.Query("week_start"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			abortWithError(c, badRequest("week_start must be YYYY-MM-DD", err))
			return
		}
		start = d
	}
	report, err := h.builder.WeeklyReport(c.Request.Context(), h.user, summary.MondayOf(start))
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) parseFilter(c *gin.Context) (storage.Filter, *HTTPError) {
	f := storage.Filter{UserID: h.user}

	limit, httpErr := parseLimit(c)
	if httpErr != nil {
		return f, httpErr
	}
	f.Limit = limit

	if mt := c.Query("metric_type"); mt != "" {
		if !models.IsValidMetricType(mt) {
			return f, badRequest("unknown metric_type "+strconv.Quote(mt), nil)
		}
		f.MetricType = models.MetricType(mt)
	}
	if src := c.Query("source"); src != "" {
		if !models.IsValidSource(src) {
			return f, badRequest("unknown source "+strconv.Quote(src), nil)
		}
		f.Source = models.Source(src)
	}

	if raw := c.Query("date"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return f, badRequest("date must be YYYY-MM-DD", err)
		}
		return f.OnDate(d), nil
	}
	for param, dst := range map[string]*civil.Date{"start_date": &f.From, "end_date": &f.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		d, err := civil.ParseDate(raw)
		if err != nil {
			return f, badRequest(param+" must be YYYY-MM-DD", err)
		}
		*dst = d
	}
	return f, nil
}

func parseLimit(c *gin.Context) (int, *HTTPError) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badRequest("limit must be a positive integer", err)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func requiredWindow(c *gin.Context) (civil.Date, civil.Date, *HTTPError) {
	from, err1 := civil.ParseDate(c.Query("start_date"))
	to, err2 := civil.ParseDate(c.Query("end_date"))
	if err := errors.Join(err1, err2); err != nil {
		return civil.Date{}, civil.Date{}, badRequest("start_date and end_date are required as YYYY-MM-DD", err)
	}
	if to.Before(from) {
		return civil.Date{}, civil.Date{}, badRequest("end_date is before start_date", nil)
	}
	return from, to, nil
}
