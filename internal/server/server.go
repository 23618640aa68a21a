package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/loykin/archivist/internal/archiver"
	"github.com/loykin/archivist/internal/config"
	tlsutil "github.com/loykin/archivist/internal/tls"
)

const defaultShutdownTimeout = 10 * time.Second

// NewServer builds an http.Server for repo from cfg. TLS is configured when
// cfg.TLS is enabled. The server is not started; see Run.
func NewServer(cfg config.ServerConfig, repo *archiver.Repository, opts ...RouterOption) (*http.Server, error) {
	r := NewRouter(repo, cfg.BasePath, opts...)
	tlsCfg, err := tlsutil.SetupTLS(cfg.TLS)
	if err != nil {
		return nil, err
	}
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// Run serves srv until ctx is cancelled, then shuts it down within
// shutdownTimeout. A clean shutdown returns nil.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			// certificates come from TLSConfig
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errCh
}
