package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voltrack/internal/api"
	"voltrack/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch volumes and serve the HTTP API",
	Long: `Run the volume manager continuously: refresh detection on an interval,
publish changes to websocket clients and notification services, and serve
the action API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		dispatcher := notify.NewDispatcher(a.bus, nil, cfg.Notifications)
		dispatcher.Start()
		defer dispatcher.Stop()

		hub := api.NewHub()
		hub.Attach(a.bus)

		proxies, err := cfg.TrustedProxyPrefixes()
		if err != nil {
			return err
		}
		srv := api.NewServer(api.Options{
			Addr:           cfg.Listen,
			Env:            a.env,
			Registry:       a.registry,
			Hub:            hub,
			Sync:           a.sync,
			RateLimit:      cfg.RateLimit,
			TrustedProxies: proxies,
		})

		log.Info().
			Str("device", a.manager.DeviceID().String()).
			Str("library", a.library.Name).
			Int("volumes", len(a.manager.GetAllVolumes())).
			Int("notification_services", dispatcher.Services()).
			Dur("interval", cfg.RefreshInterval).
			Msg("voltrack serving")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.manager.Run(gctx, cfg.RefreshInterval)
			return nil
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
		err = g.Wait()
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}
