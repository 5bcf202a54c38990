package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/observability"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
	"github.com/iksnae/bob-the-lawyer/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP and WebSocket service",
	Long: `Serve discussions over HTTP and WebSocket on the local machine.

Routes:
  GET  /healthz                              service health
  GET  /metrics                              Prometheus metrics
  POST /v1/generate                          model service endpoint
  GET  /v1/discussions                       list discussions
  POST /v1/discussions                       create a discussion
  GET  /v1/discussions/{id}                  read a discussion
  DELETE /v1/discussions/{id}                delete a discussion
  POST /v1/discussions/{id}/messages         ask a question
  POST /v1/discussions/{id}/attachments      upload documents (multipart "file")
  GET  /v1/discussions/{id}/ws               interactive chat

POST /v1/generate speaks the model service protocol, so one bob instance can
act as the remote reply endpoint of another.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The observer is registered before the metrics exist because the
		// namespace comes from the config openApp loads.
		var metrics *observability.Metrics
		observe := reply.WithObserver(func(res reply.Result) { metrics.ObserveReply(res) })

		a, err := openApp(ctx, true, observe)
		if err != nil {
			return err
		}
		defer a.Close()
		metrics = observability.NewMetrics(a.cfg.MetricsNamespace)
		a.warnMockFallback(cmd.ErrOrStderr())
		if serveAddr != "" {
			a.cfg.BindAddr = serveAddr
		}

		return serve(ctx, cmd, a, metrics)
	},
}

func serve(ctx context.Context, cmd *cobra.Command, a *app, metrics *observability.Metrics) error {
	ln, err := net.Listen("tcp", a.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.BindAddr, err)
	}

	srv := &http.Server{
		Handler:           server.New(a.cfg, a.chat, a.replies, metrics).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Serving on http://%s (backend: %s)", ln.Addr(), a.replies.BackendName()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	internal.LogInfo("Shutting down (timeout %s)", a.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	internal.PrintInfo(cmd.OutOrStdout(), "Server stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:7860)")
}
