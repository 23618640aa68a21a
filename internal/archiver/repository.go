package archiver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/archivist/internal/history"
	"github.com/loykin/archivist/internal/metrics"
	"github.com/loykin/archivist/internal/store"
)

// Repository owns the translation between archiver records and the
// archiver table. Each call maps to exactly one store statement.
// It holds no state of its own beyond its collaborators and is safe for
// concurrent use when the store is.
type Repository struct {
	store  store.Store
	logger *slog.Logger
	sink   history.Sink
}

type Option func(*Repository)

// WithLogger sets the logger used for operation failures and sink errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSink sends registration and removal events to s.
func WithSink(s history.Sink) Option {
	return func(r *Repository) { r.sink = s }
}

func New(s store.Store, opts ...Option) *Repository {
	r := &Repository{store: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EnsureSchema creates the archiver table and its sequence when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return r.store.EnsureSchema(ctx)
}

// Get returns the archiver registered under nodeID, or nil when there is none.
// The returned record is a snapshot owned by the caller.
func (r *Repository) Get(ctx context.Context, nodeID int64) (*store.Archiver, error) {
	start := time.Now()
	a, err := r.store.Get(ctx, nodeID)
	metrics.ObserveOperation("get", start, err)
	if err != nil {
		r.logger.Error("archiver lookup failed", "node_id", nodeID, "error", err)
		return nil, &RepositoryError{Op: OpSelect, Err: err}
	}
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// Add registers an archiver and returns its allocated identifier.
// An empty nodeName is stored as "archiver_<nodeid>".
func (r *Repository) Add(ctx context.Context, nodeName, nodeHost string) (int64, error) {
	start := time.Now()
	if err := validateHost(nodeHost); err != nil {
		metrics.ObserveOperation("add", start, err)
		return 0, &RepositoryError{Op: OpInsert, Err: err}
	}
	var name *string
	if nodeName != "" {
		name = &nodeName
	}
	nodeID, err := r.store.Add(ctx, name, nodeHost)
	metrics.ObserveOperation("add", start, err)
	if err != nil {
		r.logger.Error("archiver registration failed", "node_name", nodeName, "node_host", nodeHost, "error", err)
		return 0, &RepositoryError{Op: OpInsert, Err: err}
	}

	if name == nil {
		nodeName = store.DefaultNodeName(nodeID)
	}
	r.logger.Info("archiver registered", "node_id", nodeID, "node_name", nodeName, "node_host", nodeHost)
	r.emit(ctx, history.Event{
		Type:       history.EventRegistered,
		OccurredAt: time.Now().UTC(),
		Archiver:   store.Archiver{NodeID: nodeID, NodeName: nodeName, NodeHost: nodeHost},
	})
	return nodeID, nil
}

// Remove deletes the row for a.NodeID. Removing an archiver that is already
// gone succeeds.
func (r *Repository) Remove(ctx context.Context, a *store.Archiver) error {
	if a == nil {
		return fmt.Errorf("%w: the given archiver must not be nil", ErrInvalidArgument)
	}
	start := time.Now()
	n, err := r.store.Remove(ctx, a.NodeID)
	metrics.ObserveOperation("remove", start, err)
	if err != nil {
		r.logger.Error("archiver removal failed", "node_id", a.NodeID, "error", err)
		return &RepositoryError{Op: OpDelete, Err: err}
	}
	if n == 0 {
		r.logger.Debug("archiver already removed", "node_id", a.NodeID)
		return nil
	}
	r.logger.Info("archiver removed", "node_id", a.NodeID, "node_name", a.NodeName)
	r.emit(ctx, history.Event{
		Type:       history.EventRemoved,
		OccurredAt: time.Now().UTC(),
		Archiver:   *a,
	})
	return nil
}

// List returns up to limit archivers ordered by identifier.
func (r *Repository) List(ctx context.Context, limit int) ([]store.Archiver, error) {
	start := time.Now()
	out, err := r.store.List(ctx, limit)
	metrics.ObserveOperation("list", start, err)
	if err != nil {
		r.logger.Error("archiver listing failed", "error", err)
		return nil, &RepositoryError{Op: OpSelect, Err: err}
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error { return r.store.Ping(ctx) }

func (r *Repository) Close() error { return r.store.Close() }

func (r *Repository) emit(ctx context.Context, e history.Event) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Send(ctx, e); err != nil {
		for _, name := range history.FailedSinks(err, fmt.Sprintf("%T", r.sink)) {
			metrics.IncHistorySendError(name)
		}
		r.logger.Warn("history send failed", "event", e.Type, "node_id", e.Archiver.NodeID, "error", err)
	}
}

func validateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return ErrInvalidHost
	}
	if strings.ContainsRune(host, 0) {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidHost)
	}
	return nil
}
