package archiver

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/archivist/internal/store"
)

// Kind classifies a declared result shape.
type Kind int

const (
	KindScalar Kind = iota
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ColumnType is the logical type of one column in a shape.
type ColumnType string

const (
	TypeInteger ColumnType = "bigint"
	TypeText    ColumnType = "text"
)

// Column names one field of a composite shape.
type Column struct {
	Name string
	Type ColumnType
}

// Shape describes the result type a caller expects back.
// A composite shape with no columns accepts the archiver tuple as is.
type Shape struct {
	Kind    Kind
	Columns []Column
}

// ArchiverShape is the row type an archiver is exposed as.
var ArchiverShape = Shape{
	Kind: KindComposite,
	Columns: []Column{
		{Name: "nodeid", Type: TypeInteger},
		{Name: "nodename", Type: TypeText},
		{Name: "nodehost", Type: TypeText},
	},
}

var tupleTypes = [3]ColumnType{TypeInteger, TypeText, TypeText}

// Tuple is the caller-facing form of an archiver: (nodeid, nodename,
// nodehost) in that order. No field is ever null.
type Tuple struct {
	NodeID   int64
	NodeName string
	NodeHost string
}

// Values returns the fields in tuple order.
func (t Tuple) Values() []any {
	return []any{t.NodeID, t.NodeName, t.NodeHost}
}

// MarshalJSON encodes the tuple as a three element array.
func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Values())
}

// Record maps the tuple onto the column names of shape. Shapes without
// columns use ArchiverShape names.
func (t Tuple) Record(shape Shape) map[string]any {
	cols := shape.Columns
	if len(cols) != len(tupleTypes) {
		cols = ArchiverShape.Columns
	}
	vals := t.Values()
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[c.Name] = vals[i]
	}
	return out
}

// ToResponse converts a into the tuple declared by shape.
func ToResponse(a *store.Archiver, shape Shape) (Tuple, error) {
	if a == nil {
		return Tuple{}, fmt.Errorf("%w: the given archiver must not be nil", ErrInvalidArgument)
	}
	if shape.Kind != KindComposite {
		return Tuple{}, fmt.Errorf("%w: return type must be a row type, got %s", ErrSchemaMismatch, shape.Kind)
	}
	if len(shape.Columns) > 0 {
		if len(shape.Columns) != len(tupleTypes) {
			return Tuple{}, fmt.Errorf("%w: expected %d columns, got %d", ErrSchemaMismatch, len(tupleTypes), len(shape.Columns))
		}
		for i, c := range shape.Columns {
			if c.Type != tupleTypes[i] {
				return Tuple{}, fmt.Errorf("%w: column %d (%s) must be %s, got %s", ErrSchemaMismatch, i+1, c.Name, tupleTypes[i], c.Type)
			}
		}
	}
	return Tuple{NodeID: a.NodeID, NodeName: a.NodeName, NodeHost: a.NodeHost}, nil
}
