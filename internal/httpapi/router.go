// ABOUTME: Route table for the vitals HTTP API and the server constructor.
// ABOUTME: Everything lives under /api/v1.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/vitals/internal/config"
)

// NewRouter wires the handlers into a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = 32 << 20
	router.Use(
		gin.Recovery(),
		requestLogger(h.log),
		errorHandlingMiddleware(h.log),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/ingest/upload", h.Upload)
		api.GET("/ingest/sources", h.Sources)

		api.GET("/imports", h.ListImports)
		api.GET("/imports/:batch_id", h.GetImport)

		api.GET("/health-records", h.ListHealthRecords)
		api.GET("/health-records/summary", h.HealthRecordSummary)
		api.GET("/sleep-logs", h.ListSleepLogs)
		api.GET("/nutrition-logs", h.ListNutritionLogs)

		api.GET("/daily-summaries", h.ListDailySummaries)
		api.GET("/daily-summaries/:date", h.GetDailySummary)
		api.POST("/daily-summaries/rebuild", h.RebuildDailySummaries)

		api.GET("/reports/averages", h.Averages)
		api.GET("/reports/weekly", h.WeeklyReport)
	}
	return router
}

// NewServer returns an http.Server for the router using cfg's address and
// timeouts.
func NewServer(cfg config.HTTPConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        NewRouter(h),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
