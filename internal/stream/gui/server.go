package gui

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pgresults/pkg/logger"
)

const shutdownTimeout = 3 * time.Second

// NewMux returns the HTTP handler of the display surface (/api/... and
// /metrics).
func NewMux(provider SessionProvider) http.Handler {
	h := &handlers{provider: provider, panels: newPanels()}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", h.handleAPIQuery)
	mux.HandleFunc("/api/sessions", h.handleAPISessions)
	mux.HandleFunc("/api/sessions/events", h.handleAPISessionsEvents)
	mux.HandleFunc("/api/sessions/restore", h.handleAPISessionsRestore)
	mux.HandleFunc("/api/sessions/close", h.handleAPISessionsClose)
	mux.HandleFunc("/api/sessions/activate", h.handleAPISessionsActivate)
	mux.HandleFunc("/api/sessions/export", h.handleAPISessionsExport)
	mux.HandleFunc("/api/sessions/preview", h.handleAPISessionsPreview)
	mux.HandleFunc("/api/config", handleAPIConfigGet)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartGUIServer starts an HTTP server for the display surface.
func StartGUIServer(provider SessionProvider, host string, port int) (stop func(), err error) {
	if port <= 0 {
		return func() {}, nil
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("GUI listen: %w", err)
	}
	httpServer := &http.Server{Handler: NewMux(provider), ReadHeaderTimeout: 10 * time.Second}
	var once sync.Once
	stop = func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
			_ = listener.Close()
		})
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("[GUI] Server error: %v", err)
		}
	}()
	logger.Info("pgresults GUI available at http://%s", addr)
	return stop, nil
}
