package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the responder HTTP listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return fmt.Errorf("build app: %w", err)
		}
		defer a.db.Close()
		return runServer(a)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "port to run the HTTP server")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

// runServer listens on cfg.HTTPPort until an OS signal arrives, then drains
// in-flight requests before returning, mirroring wardle-concierge-old's
// server.RunServer shutdown sequence.
func runServer(a *app) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	addr := fmt.Sprintf(":%d", a.cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      dispatchAdapter(a.handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", addr).Msg("starting responder HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case sig := <-sigs:
		a.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("error during server shutdown")
	}
	return g.Wait()
}

// dispatchAdapter wraps Handler.Dispatch, which is written against the
// Lambda proxy-integration Request/Response shape spec §6 assumes, behind a
// standard net/http.Handler so the same dispatch logic serves both a direct
// listener and (unchanged) a Lambda deployment.
func dispatchAdapter(h *httpapi.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}

		resp := h.Dispatch(r.Context(), httpapi.Request{
			Path:    r.URL.Path,
			Headers: headers,
			Body:    string(body),
		})

		w.WriteHeader(resp.StatusCode)
		io.WriteString(w, resp.Body)
	}
}
