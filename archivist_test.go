package archivist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryFacadeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(ctx, filepath.Join(t.TempDir(), "facade.db"))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	id, err := repo.Add(ctx, "", "10.9.0.1:5432")
	require.NoError(t, err)

	a, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, a)

	tup, err := ToResponse(a, ArchiverShape)
	require.NoError(t, err)
	assert.Equal(t, Tuple{NodeID: id, NodeName: "archiver_" + itoa(id), NodeHost: "10.9.0.1:5432"}, tup)

	require.NoError(t, repo.Remove(ctx, a))
	a, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestFacadeErrors(t *testing.T) {
	_, err := ToResponse(nil, ArchiverShape)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = ToResponse(&Archiver{NodeID: 1, NodeName: "a", NodeHost: "h"}, Shape{Kind: KindScalar})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()
	_, err = repo.Add(context.Background(), "x", "")
	var re *RepositoryError
	require.ErrorAs(t, err, &re)
	assert.True(t, errors.Is(err, ErrInvalidHost))
}

func TestOpenEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestLoadConfigFacade(t *testing.T) {
	p := filepath.Join(t.TempDir(), "archivist.toml")
	data := `
[store]
dsn = "sqlite://` + filepath.Join(t.TempDir(), "cfg.db") + `"

[server]
listen = "127.0.0.1:0"
base_path = "/v1"
`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	c, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "/v1", c.Server.BasePath)

	repo, err := OpenConfig(context.Background(), c.Store)
	require.NoError(t, err)
	_ = repo.Close()
}

func TestMetricsHelpers(t *testing.T) {
	require.NoError(t, RegisterMetricsDefault())

	ctx := context.Background()
	repo, err := Open(ctx, filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()
	_, err = repo.Add(ctx, "m", "10.9.0.2:5432")
	require.NoError(t, err)

	srv := NewMetricsServer("127.0.0.1:0")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "archivist_repository_operations_total"))
}

func TestNewHistorySinksRejectsUnknownScheme(t *testing.T) {
	_, err := NewHistorySinks([]string{"kafka://broker:9092"})
	assert.Error(t, err)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
