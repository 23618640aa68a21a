package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/archivist/internal/history"
	"github.com/loykin/archivist/internal/store"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		gotBody   []byte
		gotPath   string
		gotMethod string
		gotCT     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "archivers")
	e := history.Event{
		Type:       history.EventRegistered,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Archiver:   store.Archiver{NodeID: 5, NodeName: "archiver_5", NodeHost: "10.0.0.5:5432"},
	}
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/archivers/_doc", gotPath)
	assert.Equal(t, "application/json", gotCT)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	assert.Equal(t, "registered", doc["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["occurred_at"])
	arch, ok := doc["archiver"].(map[string]any)
	require.True(t, ok, "archiver missing in %v", doc)
	assert.Equal(t, float64(5), arch["node_id"])
	assert.Equal(t, "archiver_5", arch["node_name"])
	assert.Equal(t, "10.0.0.5:5432", arch["node_host"])
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventRemoved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch sink status 400")
}

func TestOpenSearchSink_BasicAuthAndDefaultIndex(t *testing.T) {
	var user, pass, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		path = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL, "", WithBasicAuth("admin", "secret"))
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventRegistered}))
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "/"+DefaultIndex+"/_doc", path)
}
