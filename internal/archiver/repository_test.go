package archiver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/archivist/internal/history"
	"github.com/loykin/archivist/internal/metrics"
	"github.com/loykin/archivist/internal/store"
	sq "github.com/loykin/archivist/internal/store/sqlite"
)

func newTestRepo(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	db, err := sq.New(":memory:", store.PoolOptions{})
	require.NoError(t, err)
	r := New(db, opts...)
	require.NoError(t, r.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

// failingStore fails every statement with err.
type failingStore struct{ err error }

func (f failingStore) EnsureSchema(context.Context) error                 { return f.err }
func (f failingStore) Get(context.Context, int64) (*store.Archiver, error) { return nil, f.err }
func (f failingStore) Add(context.Context, *string, string) (int64, error) { return 0, f.err }
func (f failingStore) Remove(context.Context, int64) (int64, error)        { return 0, f.err }
func (f failingStore) List(context.Context, int) ([]store.Archiver, error) { return nil, f.err }
func (f failingStore) Ping(context.Context) error                         { return f.err }
func (f failingStore) Close() error                                       { return nil }

func TestGetNotFound(t *testing.T) {
	r := newTestRepo(t)
	a, err := r.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestAddThenGet(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	id, err := r.Add(ctx, "arch-east", "10.0.0.5:5432")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	a, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, store.Archiver{NodeID: 1, NodeName: "arch-east", NodeHost: "10.0.0.5:5432"}, *a)
}

func TestAddGeneratesName(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Add(ctx, "first", "h1")
	require.NoError(t, err)
	id, err := r.Add(ctx, "", "10.0.0.6:5432")
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	a, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "archiver_2", a.NodeName)
	assert.Equal(t, "10.0.0.6:5432", a.NodeHost)
}

func TestAddRejectsInvalidHost(t *testing.T) {
	r := newTestRepo(t)
	for _, host := range []string{"", "   ", "db\x00:5432"} {
		_, err := r.Add(context.Background(), "x", host)
		require.Error(t, err, "host %q", host)

		var re *RepositoryError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, OpInsert, re.Op)
		assert.ErrorIs(t, err, ErrInvalidHost)
	}

	all, err := r.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected hosts must not create rows")
}

func TestRemove(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	id, err := r.Add(ctx, "", "10.0.0.7:5432")
	require.NoError(t, err)
	a, err := r.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, a))
	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	// removing again is not an error
	assert.NoError(t, r.Remove(ctx, a))
	// neither is removing an identifier that never existed
	assert.NoError(t, r.Remove(ctx, &store.Archiver{NodeID: 999}))
}

func TestRemoveNil(t *testing.T) {
	r := newTestRepo(t)
	err := r.Remove(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, IsRepositoryError(err))
}

func TestIdentifiersNeverReused(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Add(ctx, "", "h1")
	require.NoError(t, err)
	id2, err := r.Add(ctx, "", "h2")
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, &store.Archiver{NodeID: id2}))

	id3, err := r.Add(ctx, "", "h3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, id3)
}

func TestGetReturnsCopy(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id, err := r.Add(ctx, "orig", "h")
	require.NoError(t, err)

	a, err := r.Get(ctx, id)
	require.NoError(t, err)
	a.NodeName = "mutated"

	b, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "orig", b.NodeName)
}

func TestStoreFailuresWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	r := New(failingStore{err: boom})
	ctx := context.Background()

	_, err := r.Get(ctx, 1)
	assertRepoErr(t, err, OpSelect, boom)

	_, err = r.Add(ctx, "", "h")
	assertRepoErr(t, err, OpInsert, boom)

	err = r.Remove(ctx, &store.Archiver{NodeID: 1})
	assertRepoErr(t, err, OpDelete, boom)

	_, err = r.List(ctx, 10)
	assertRepoErr(t, err, OpSelect, boom)
}

func TestAddNoRowReturned(t *testing.T) {
	r := New(failingStore{err: store.ErrNoRowReturned})
	_, err := r.Add(context.Background(), "", "h")
	assertRepoErr(t, err, OpInsert, store.ErrNoRowReturned)
	assert.Contains(t, err.Error(), "could not insert into archiver")
}

func assertRepoErr(t *testing.T, err error, op string, cause error) {
	t.Helper()
	require.Error(t, err)
	var re *RepositoryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, op, re.Op)
	assert.ErrorIs(t, err, cause)
}

func TestHistoryEvents(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRepo(t, WithSink(sink))
	ctx := context.Background()

	id, err := r.Add(ctx, "", "10.9.0.1:5432")
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, &store.Archiver{NodeID: id, NodeName: "archiver_1", NodeHost: "10.9.0.1:5432"}))
	// a no-op removal emits nothing
	require.NoError(t, r.Remove(ctx, &store.Archiver{NodeID: id}))

	require.Len(t, sink.events, 2)
	assert.Equal(t, history.EventRegistered, sink.events[0].Type)
	assert.Equal(t, store.Archiver{NodeID: id, NodeName: "archiver_1", NodeHost: "10.9.0.1:5432"}, sink.events[0].Archiver)
	assert.False(t, sink.events[0].OccurredAt.IsZero())
	assert.Equal(t, history.EventRemoved, sink.events[1].Type)
	assert.Equal(t, id, sink.events[1].Archiver.NodeID)
}

func TestSinkErrorsDoNotFailOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := &recordingSink{err: errors.New("sink down")}
	r := newTestRepo(t, WithSink(sink), WithLogger(logger))

	id, err := r.Add(context.Background(), "n", "h")
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Contains(t, buf.String(), "history send failed")
	assert.Contains(t, buf.String(), "sink down")
}

// sendErrors reads archivist_repository_history_send_errors_total for sink.
func sendErrors(t *testing.T, sink string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "archivist_repository_history_send_errors_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "sink" && l.GetValue() == sink {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSinkErrorsCountedPerSink(t *testing.T) {
	require.NoError(t, metrics.Register(prometheus.DefaultRegisterer))

	healthy := &recordingSink{}
	broken := &recordingSink{err: errors.New("sink down")}
	r := newTestRepo(t, WithSink(history.Multi{healthy, broken}))

	label := "*archiver.recordingSink"
	before := sendErrors(t, label)
	multiBefore := sendErrors(t, "history.Multi")

	_, err := r.Add(context.Background(), "n", "10.0.0.1:5432")
	require.NoError(t, err)

	assert.Equal(t, before+1, sendErrors(t, label))
	assert.Equal(t, multiBefore, sendErrors(t, "history.Multi"))
	assert.Len(t, healthy.events, 1)
}

func TestListAndPing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, h := range []string{"a", "b", "c"} {
		_, err := r.Add(ctx, "", h)
		require.NoError(t, err)
	}
	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].NodeHost, all[1].NodeHost, all[2].NodeHost})

	two, err := r.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	assert.NoError(t, r.Ping(ctx))
}
