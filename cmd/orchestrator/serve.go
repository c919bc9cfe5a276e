package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polzovatel/browser-orchestrator/internal/httpapi"
)

func buildServeCmd() *cobra.Command {
	var (
		addr        string
		showBrowser bool
		enableCORS  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP surface over a long-lived orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger()
			configPath, _ := cmd.Flags().GetString("config")
			sessionDB, _ := cmd.Flags().GetString("session-db")
			credDir, _ := cmd.Flags().GetString("credential-dir")

			// serve fields requests across many domains through one
			// shared context, so storage-state persistence (scoped to a
			// single domain) is disabled here; it is run-only.
			eng, err := buildEngine(ctx, log, configPath, showBrowser, sessionDB, credDir, "")
			if err != nil {
				fatal("build engine: %v", err)
			}
			defer eng.Close()

			router := httpapi.NewRouter(eng.Orchestrator, httpapi.Config{
				Logger:     log,
				EnableCORS: enableCORS,
				Gatherer:   eng.Registry,
			})

			srv := &http.Server{Addr: addr, Handler: router}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			cyan.Printf("🚀 serving on %s\n", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fatal("serve: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().BoolVar(&showBrowser, "show-browser", false, "Run with a visible browser window")
	cmd.Flags().BoolVar(&enableCORS, "cors", false, "Enable permissive CORS for the HTTP surface")

	return cmd
}
