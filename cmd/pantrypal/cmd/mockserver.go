package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/internal/apitest"
	"github.com/jmcleod/pantrypal/internal/logging"
)

func newMockServerCmd(a *app) *cobra.Command {
	var (
		port         int
		demoUser     string
		demoPassword string
	)
	cmd := &cobra.Command{
		Use:         "mock-server",
		Short:       "Run an in-memory recipe API for local development",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSession: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := apitest.New(apitest.WithLogger(a.logger))
			if demoUser != "" {
				backend.AddUser(demoUser, demoUser+"@example.com", demoPassword)
			}

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			server := &http.Server{
				Handler:           newMockServerHandler(backend, a.logger, prometheus.NewRegistry()),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			done := make(chan error, 1)
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("server failed: %w", err)
					return
				}
				done <- nil
			}()

			printBanner(a.out, "mock recipe API")
			fmt.Fprintf(a.out, "Listening on %s\n", ln.Addr())
			if demoUser != "" {
				fmt.Fprintf(a.out, "Demo account: %s\n", demoUser)
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			shutdown := func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("server shutdown failed: %w", err)
				}
				return nil
			}
			select {
			case sig := <-quit:
				fmt.Fprintf(a.out, "\nReceived %s, shutting down...\n", sig)
				return shutdown()
			case <-cmd.Context().Done():
				return shutdown()
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to listen on")
	cmd.Flags().StringVar(&demoUser, "demo-user", "", "Create this account at startup")
	cmd.Flags().StringVar(&demoPassword, "demo-password", "pantrypal", "Password for --demo-user")
	return cmd
}

// newMockServerHandler wraps the backend with request logging and a
// Prometheus endpoint at /metrics.
func newMockServerHandler(backend *apitest.Server, logger *slog.Logger, reg *prometheus.Registry) http.Handler {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pantrypal",
		Subsystem: "mock",
		Name:      "requests_total",
		Help:      "Requests served by the mock API, by method and status.",
	}, []string{"method", "status"})
	reg.MustRegister(requests)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, req)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			requests.WithLabelValues(req.Method, fmt.Sprint(status)).Inc()
			logger.Info("request",
				"request_id", middleware.GetReqID(req.Context()),
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"headers", logging.Redact(req.Header),
			)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", backend.Handler())
	return r
}
