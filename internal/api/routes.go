package api

import (
	"github.com/JustJay7/ecourts-capture/internal/cache"
	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, store *database.Store, cache cache.Cache, runs *scraper.Manager, logger *logger.Logger, cfg *config.Config) {
	h := NewHandlers(store, cache, runs, logger, cfg)

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/stats", h.StatsAPI)

		// Run control
		api.POST("/runs", h.StartRun)
		api.GET("/runs/current", h.GetRun)
		api.DELETE("/runs/current", h.CancelRun)

		// CAPTCHA supply
		api.GET("/runs/current/captcha", h.GetCaptcha)
		api.POST("/runs/current/captcha", h.SolveCaptcha)

		// Case endpoints
		api.GET("/cases", h.ListCasesAPI)
		api.GET("/cases/cnr/:cnr", h.GetCaseByCNR)
		api.GET("/cases/:id/pdf", h.GetCasePDF)
	}
}
