package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/cache"
	"github.com/JustJay7/ecourts-capture/internal/captcha"
	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/extractor"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	store  *database.Store
	cache  cache.Cache
	runs   *scraper.Manager
	logger *logger.Logger
	cfg    *config.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(store *database.Store, cache cache.Cache, runs *scraper.Manager, logger *logger.Logger, cfg *config.Config) *Handlers {
	return &Handlers{
		store:  store,
		cache:  cache,
		runs:   runs,
		logger: logger,
		cfg:    cfg,
	}
}

type startRunRequest struct {
	Date     string `json:"date"`
	Filter   string `json:"filter"`
	Category string `json:"category"`
	Resume   bool   `json:"resume"`
}

// StartRun launches a cause-list run in the background
func (h *Handlers) StartRun(c *gin.Context) {
	var req startRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request: " + err.Error(),
			})
			return
		}
	}

	category, err := scraper.ParseCategory(req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	opts := scraper.Options{Category: category, Resume: req.Resume}

	upcoming, err := parseFilter(req.Filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	opts.UpcomingOnly = upcoming

	if req.Date != "" {
		date, err := h.parseDate(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		opts.Date = date
	}

	status, err := h.runs.Start(opts)
	if errors.Is(err, scraper.ErrRunActive) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   err.Error(),
			"run":     h.runs.Status(),
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to start run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.logger.Info("Run started from API", "run", status.ID, "date", status.Date, "client_ip", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"run":     status,
	})
}

// GetRun reports the active or last finished run
func (h *Handlers) GetRun(c *gin.Context) {
	status := h.runs.Status()
	if status.ID == "" {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": scraper.ErrNoActiveRun.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"run":     status,
	})
}

// CancelRun stops the active run between cases
func (h *Handlers) CancelRun(c *gin.Context) {
	if err := h.runs.Cancel(); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Run will stop after the current case",
	})
}

// GetCaptcha returns the pending CAPTCHA image
func (h *Handlers) GetCaptcha(c *gin.Context) {
	ch, ok := h.runs.Operator().Pending()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "CAPTCHA not found",
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Captcha-Attempt", strconv.Itoa(ch.Attempt))
	c.Data(http.StatusOK, "image/png", ch.Image)
}

// SolveCaptcha delivers the operator's CAPTCHA answer to the waiting run
func (h *Handlers) SolveCaptcha(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request",
		})
		return
	}

	err := h.runs.Operator().Submit(req.Text)
	switch {
	case errors.Is(err, captcha.ErrEmptyAnswer):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, captcha.ErrNoChallenge):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "CAPTCHA answer submitted",
	})
}

// ListCasesAPI returns stored cases, optionally only those heard today or tomorrow
func (h *Handlers) ListCasesAPI(c *gin.Context) {
	upcoming, err := parseFilter(c.DefaultQuery("filter", "all"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	f := database.Filter{Upcoming: upcoming, Location: h.cfg.Location()}
	if raw := c.Query("scrape_date"); raw != "" {
		if f.ScrapeDate = extractor.NormalizeDate(raw); f.ScrapeDate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("invalid scrape_date %q", raw)})
			return
		}
	}

	cases, err := h.store.ListByDateFilter(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("Failed to list cases", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cases,
		"count":   len(cases),
	})
}

// GetCaseByCNR returns one case, served from the cache when possible
func (h *Handlers) GetCaseByCNR(c *gin.Context) {
	cnr := strings.ToUpper(strings.TrimSpace(c.Param("cnr")))

	if cached, found := h.cache.Get(cnr); found {
		h.logger.Debug("Cache hit", "cnr", cnr)
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"data":      cached,
			"fromCache": true,
		})
		return
	}

	rec, err := h.store.FindByCNR(c.Request.Context(), cnr)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Case not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load case", "cnr", cnr, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.cache.Set(rec.CNR, rec)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      rec,
		"fromCache": false,
	})
}

// GetCasePDF streams a stored PDF. Without kind the merged document is
// preferred and the page capture served when no merge exists.
func (h *Handlers) GetCasePDF(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid case ID"})
		return
	}

	kinds := []database.PDFKind{database.KindMerged, database.KindMain}
	switch c.Query("kind") {
	case "":
	case "merged":
		kinds = kinds[:1]
	case "main":
		kinds = kinds[1:]
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "kind must be main or merged"})
		return
	}

	for _, kind := range kinds {
		name, data, err := h.store.GetPDF(c.Request.Context(), uint(id), kind)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			h.logger.Error("Failed to load PDF", "case_id", id, "kind", kind, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, "application/pdf", data)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "PDF not found"})
}

// StatsAPI reports store and cache counters
func (h *Handlers) StatsAPI(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"store":   stats,
		"cache":   h.cache.Stats(),
	})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbHealthy := false
	if sqlDB, err := h.store.DB().DB(); err == nil {
		dbHealthy = sqlDB.PingContext(c.Request.Context()) == nil
	}

	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"database": dbHealthy,
		"run":      h.runs.Status().Running,
		"time":     time.Now().Unix(),
	})
}

// Helper functions

func parseFilter(filter string) (bool, error) {
	switch filter {
	case "", "all":
		return false, nil
	case "upcoming":
		return true, nil
	}
	return false, fmt.Errorf("filter must be all or upcoming, got %q", filter)
}

func (h *Handlers) parseDate(raw string) (time.Time, error) {
	canonical := extractor.NormalizeDate(raw)
	if canonical == "" {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return time.ParseInLocation(database.DateLayout, canonical, h.cfg.Location())
}
