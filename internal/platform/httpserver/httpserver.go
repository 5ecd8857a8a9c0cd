// Package httpserver builds HTTP servers with this project's defaults.
package httpserver

import (
	"net/http"
	"time"

	"rosterd/internal/platform/config"
)

// New builds an HTTP server from server config. Watch endpoints stream, so
// WriteTimeout applies only when configured above zero.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}
