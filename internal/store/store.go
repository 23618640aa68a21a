package store

import (
	"context"
	"errors"
	"fmt"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// ErrNoRowReturned reports an insert that completed without returning the
// allocated identifier. Every backend treats it as an invariant violation.
var ErrNoRowReturned = errors.New("insert returned no row")

// Archiver is one archiver node known to the monitor.
// NodeID is allocated by the store's identifier sequence and never reused.
// NodeName is unique by convention only; NodeHost is always set.
type Archiver struct {
	NodeID   int64  `json:"node_id"`
	NodeName string `json:"node_name"`
	NodeHost string `json:"node_host"`
}

// DefaultNodeName is the name stored for an archiver registered without one.
func DefaultNodeName(nodeID int64) string {
	return fmt.Sprintf("archiver_%d", nodeID)
}

// Store is the persistence interface for the archiver table.
// Every method opens its own session against the backing database and
// releases it before returning, on success and on error.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// Get returns nil, nil when no row matches nodeID.
	Get(ctx context.Context, nodeID int64) (*Archiver, error)
	// Add allocates an identifier and inserts the row in one statement.
	// A nil nodeName stores DefaultNodeName(<allocated id>).
	Add(ctx context.Context, nodeName *string, nodeHost string) (int64, error)
	// Remove returns the number of deleted rows; zero is not an error.
	Remove(ctx context.Context, nodeID int64) (int64, error)
	List(ctx context.Context, limit int) ([]Archiver, error)
	Ping(ctx context.Context) error
	Close() error
}
