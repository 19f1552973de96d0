package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thetanil/basicforms/internal/server"
	"github.com/thetanil/basicforms/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "run",
	Short:   "Run the HTTP server",
	Long: `Run the HTTP server.

Forms are served at /forms/{form_id}, the JSON API under /api and the
client script and stylesheet under /static. The server stops gracefully
on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if serveAddr != "" {
			a.cfg.Server.Addr = serveAddr
		}

		providers, err := telemetry.Init(ctx, a.cfg.Telemetry, "basicforms", version, nil)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Options{
			Addr:            a.cfg.Server.Addr,
			ReadTimeout:     a.cfg.Server.ReadTimeout,
			WriteTimeout:    a.cfg.Server.WriteTimeout,
			IdleTimeout:     a.cfg.Server.IdleTimeout,
			ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			SubmitLabel:     a.cfg.Render.SubmitLabel,
			ScriptTimeout:   a.cfg.Hooks.Timeout,
			ScriptMaxSteps:  a.cfg.Hooks.MaxSteps,
		}, a.forms, a.submissions, a.hooks, a.logger)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			return providers.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}
