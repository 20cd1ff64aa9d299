package main

import (
	"github.com/JustJay7/ecourts-capture/internal/cache"
	"github.com/JustJay7/ecourts-capture/internal/captcha"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/JustJay7/ecourts-capture/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the operator API",
		Long: `Start the HTTP API used to launch runs, answer CAPTCHAs and browse
captured cases. CAPTCHAs are answered through the API unless
TWOCAPTCHA_API_KEY is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			var solver captcha.Solver
			if a.cfg.TwoCaptchaKey != "" {
				solver = captcha.NewTwoCaptcha(a.cfg.TwoCaptchaKey, "")
			}

			cacheService := cache.NewCache(a.cfg.CacheSize, a.cfg.CacheTTL)
			runs := scraper.NewManager(a.cfg, a.log, a.store, a.sessionFactory(), solver)
			runs.OnCaseSaved = cacheService.Invalidate

			srv := server.New(a.cfg, a.store, cacheService, runs, a.log)

			a.log.Info("Starting eCourts capture API",
				"host", a.cfg.Host,
				"port", a.cfg.Port,
				"court", a.cfg.CourtName,
			)
			return srv.Run()
		},
	}
}
