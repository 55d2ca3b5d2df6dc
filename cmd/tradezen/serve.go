package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/veritasvoid/TradeZen/internal/api"
	"github.com/veritasvoid/TradeZen/internal/session"
	"go.uber.org/zap"
)

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal API to the view layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			consent := session.NewConsentBroker()
			a, err := newApp(*configDir, consent.Consent)
			if err != nil {
				return err
			}
			defer a.close()

			server := api.NewServer(&a.cfg.Server, a.session, consent, a.workbook, a.settings, a.log)
			server.Start()

			// A cached credential signs in without user interaction.
			if token, _ := a.state.Token(); token != "" {
				go func() {
					ctx := context.Background()
					if err := a.signIn(ctx); err != nil {
						a.log.Warn("Could not resume session", zap.Error(err))
						return
					}
					if err := a.settings.Load(ctx); err != nil {
						a.log.Warn("Settings not loaded, using local copy", zap.Error(err))
					}
				}()
			}

			sigchan := make(chan os.Signal, 1)
			signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
			<-sigchan
			a.log.Info("Shutdown signal received, gracefully shutting down...")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(ctx)
		},
	}
}
