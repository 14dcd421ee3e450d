// Package httpserver configures the verifyd HTTP server. Submission and
// download bodies stream large video files, so no overall read or write
// deadline is set; the header timeout guards the pre-body phase and the
// submit handler caps body size itself.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server for the given listen address.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
