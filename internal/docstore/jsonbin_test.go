package docstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinServer struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	puts    int
	headers http.Header
}

func (f *fakeBinServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = r.Header.Clone()
	if r.Header.Get("X-Master-Key") != "key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid X-Master-Key"}`))
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/b/")
	switch r.Method {
	case http.MethodGet:
		id := strings.TrimSuffix(path, "/latest")
		record, ok := f.records[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Bin not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"record":` + string(record) + `,"metadata":{"id":"` + id + `","private":true}}`))
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.records[path] = body
		f.puts++
		_, _ = w.Write([]byte(`{"record":` + string(body) + `,"metadata":{"parentId":"` + path + `","private":true}}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newBinServer(t *testing.T) (*fakeBinServer, *JSONBin) {
	t.Helper()
	fake := &fakeBinServer{records: map[string]json.RawMessage{"users": json.RawMessage(`{"users":[]}`)}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, NewJSONBin(JSONBinConfig{BaseURL: srv.URL + "/b/", APIKey: "key", Client: srv.Client()})
}

func TestJSONBinFetch(t *testing.T) {
	_, bin := newBinServer(t)

	doc, err := bin.Fetch(context.Background(), "users")
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[]}`, string(doc.Record))
	assert.Equal(t, contentRevision(json.RawMessage(`{"users": []}`)), doc.Revision)
}

func TestJSONBinPutSendsHeaders(t *testing.T) {
	fake, bin := newBinServer(t)

	doc, err := bin.Put(context.Background(), "users", json.RawMessage(`{"users":[{"id":"u1"}]}`), AnyRevision)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[{"id":"u1"}]}`, string(doc.Record))
	assert.Equal(t, "false", fake.headers.Get("X-Bin-Versioning"))
	assert.Equal(t, "application/json", fake.headers.Get("Content-Type"))
}

func TestJSONBinConditionalPut(t *testing.T) {
	fake, bin := newBinServer(t)
	current, err := bin.Fetch(context.Background(), "users")
	require.NoError(t, err)

	_, err = bin.Put(context.Background(), "users", json.RawMessage(`{"users":[{"id":"a"}]}`), current.Revision)
	require.NoError(t, err)

	_, err = bin.Put(context.Background(), "users", json.RawMessage(`{"users":[{"id":"b"}]}`), current.Revision)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, fake.puts)
}

func TestJSONBinErrorStatus(t *testing.T) {
	_, bin := newBinServer(t)

	_, err := bin.Fetch(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Bin not found")
}

func TestJSONBinBadKey(t *testing.T) {
	fake, _ := newBinServer(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()
	bin := NewJSONBin(JSONBinConfig{BaseURL: srv.URL + "/b", APIKey: "wrong"})

	_, err := bin.Put(context.Background(), "users", json.RawMessage(`{}`), AnyRevision)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
