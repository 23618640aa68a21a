package archivist

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/archivist/internal/archiver"
	cfg "github.com/loykin/archivist/internal/config"
	"github.com/loykin/archivist/internal/history"
	hfactory "github.com/loykin/archivist/internal/history/factory"
	"github.com/loykin/archivist/internal/metrics"
	iapi "github.com/loykin/archivist/internal/server"
	"github.com/loykin/archivist/internal/store"
	"github.com/loykin/archivist/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Archiver = store.Archiver

type Repository = archiver.Repository

type Option = archiver.Option

type RepositoryError = archiver.RepositoryError

type (
	Shape      = archiver.Shape
	Column     = archiver.Column
	ColumnType = archiver.ColumnType
	Kind       = archiver.Kind
	Tuple      = archiver.Tuple
)

type Config = cfg.Config

type StoreConfig = store.Config

type HistoryEvent = history.Event

type HistorySink = history.Sink

const (
	KindScalar    = archiver.KindScalar
	KindComposite = archiver.KindComposite
	TypeInteger   = archiver.TypeInteger
	TypeText      = archiver.TypeText
)

var (
	ErrInvalidArgument = archiver.ErrInvalidArgument
	ErrSchemaMismatch  = archiver.ErrSchemaMismatch
	ErrInvalidHost     = archiver.ErrInvalidHost
	ArchiverShape      = archiver.ArchiverShape
)

var (
	WithLogger = archiver.WithLogger
	WithSink   = archiver.WithSink
)

// Open connects to the store named by dsn, creates the archiver schema when
// missing and returns a repository over it.
func Open(ctx context.Context, dsn string, opts ...Option) (*Repository, error) {
	return OpenConfig(ctx, store.Config{DSN: dsn}, opts...)
}

// OpenConfig is Open for a structured store configuration.
func OpenConfig(ctx context.Context, sc StoreConfig, opts ...Option) (*Repository, error) {
	s, err := factory.NewFromConfig(sc)
	if err != nil {
		return nil, err
	}
	repo := archiver.New(s, opts...)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func ToResponse(a *Archiver, shape Shape) (Tuple, error) { return archiver.ToResponse(a, shape) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySinks builds one sink per DSN and fans events out to all of them.
func NewHistorySinks(dsns []string) (history.Multi, error) {
	return hfactory.NewSinksFromDSNs(dsns)
}

// NewHTTPServer builds the archiver API server described by sc. Start it with
// RunHTTPServer.
func NewHTTPServer(sc cfg.ServerConfig, repo *Repository, opts ...iapi.RouterOption) (*http.Server, error) {
	return iapi.NewServer(sc, repo, opts...)
}

// RunHTTPServer serves srv until ctx is done.
func RunHTTPServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	return iapi.Run(ctx, srv, shutdownTimeout)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns a server exposing /metrics on addr using the
// default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
