// Package serve runs the reconciler as a standalone JSON-over-HTTP
// service.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/billrecon/internal/config"
	"fintrack/billrecon/internal/container"
	"fintrack/billrecon/internal/httpapi"
	"fintrack/billrecon/internal/logging"

	"github.com/spf13/cobra"
)

var addr string

// Cmd is the serve command.
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciler over HTTP",
	Long: `Starts an HTTP server exposing POST /reconcile, which accepts a
transaction as JSON and returns the reconciliation result. Safe for
concurrent callers.`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides serve.addr from config)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Serve.Addr = addr
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(c.Reconciler(), c.Logger())
	server := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           handler.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		c.Logger().WithField("addr", cfg.Serve.Addr).Info("Reconciliation service listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.Logger().Info("Shutting down", logging.Field{Key: "reason", Value: "signal"})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
