package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/3leaps/lakemap/internal/errors"
	"github.com/3leaps/lakemap/pkg/backend"
	"github.com/3leaps/lakemap/pkg/backend/backendtest"
	"github.com/3leaps/lakemap/pkg/classify"
	"github.com/3leaps/lakemap/pkg/provider"
	"github.com/3leaps/lakemap/pkg/session"
	"github.com/3leaps/lakemap/pkg/summary"
	"github.com/3leaps/lakemap/pkg/tree"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router  http.Handler
	store   *session.MemoryStore
	backend *backendtest.Backend
	opened  []backend.Target
}

func newAPIFixture(t *testing.T, cfg APIConfig) *apiFixture {
	t.Helper()
	f := &apiFixture{
		store: session.NewMemoryStore(time.Hour, nil),
		backend: backendtest.New().
			Add("gold-lake", "sales/orders/part-0.parquet", "sales/readme.md", "hr/_delta_log/000.json").
			Add("bronze-raw", "dump/a.csv").
			Add("archive", "old/x.parquet"),
	}
	if cfg.Open == nil {
		cfg.Open = func(ctx context.Context, target backend.Target) (backend.StorageBackend, error) {
			f.opened = append(f.opened, target)
			return f.backend, nil
		}
	}
	api := NewAPI(f.store, cfg)
	r := chi.NewRouter()
	r.Route("/api/v1", api.Routes)
	f.router = r
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) connect(t *testing.T, req ConnectRequest) ConnectionResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/connections", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ConnectionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPError {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestConnect(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})

	resp := f.connect(t, ConnectRequest{Name: "lake", Provider: "file", BaseDir: "/srv/lake"})
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "lake", resp.Name)
	assert.Equal(t, "file", resp.Provider)
	assert.True(t, resp.IsConnected)
	assert.False(t, resp.LastConnected.IsZero())

	require.Len(t, f.opened, 1)
	assert.Equal(t, provider.ProviderFile, f.opened[0].Provider)
	assert.Equal(t, "/srv/lake", f.opened[0].BaseDir)

	rec := f.do(t, http.MethodGet, "/api/v1/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ConnectionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, resp.ID, list[0].ID)
}

func TestConnect_Validation(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})

	tests := []struct {
		name string
		body any
	}{
		{"missing name", ConnectRequest{Provider: "s3"}},
		{"unknown provider", ConnectRequest{Name: "x", Provider: "gcs"}},
		{"unknown field", map[string]any{"name": "x", "bogus": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/connections", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apperrors.CodeBadRequest, decodeError(t, rec).Code)
		})
	}
	assert.Empty(t, f.opened)
}

func TestConnect_BackendFailures(t *testing.T) {
	t.Run("auth failure is 401", func(t *testing.T) {
		f := newAPIFixture(t, APIConfig{})
		f.backend.FailListContainers(&provider.ProviderError{Op: "ListBuckets", Err: provider.ErrAccessDenied})

		rec := f.do(t, http.MethodPost, "/api/v1/connections", ConnectRequest{Name: "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperrors.CodeUnauthorized, decodeError(t, rec).Code)

		list, err := f.store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("open failure is 503", func(t *testing.T) {
		f := newAPIFixture(t, APIConfig{Open: func(context.Context, backend.Target) (backend.StorageBackend, error) {
			return nil, errors.New("dial tcp: connection refused")
		}})
		rec := f.do(t, http.MethodPost, "/api/v1/connections", ConnectRequest{Name: "x"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestDisconnect(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake"})

	rec := f.do(t, http.MethodDelete, "/api/v1/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/containers", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Code)
}

func TestTree(t *testing.T) {
	f := newAPIFixture(t, APIConfig{Tree: tree.Config{IDs: tree.IDsStable}})
	conn := f.connect(t, ConnectRequest{Name: "lake", ContainerFilter: []string{"gold-lake", "bronze-raw"}})

	rec := f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var root tree.Node
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
	assert.Equal(t, tree.RootID, root.ID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "gold-lake", root.Children[0].Name)
	assert.Equal(t, classify.ContainerGold, root.Children[0].ContainerType)
	assert.Equal(t, tree.StableID(tree.KindContainer, "gold-lake"), root.Children[0].ID)
	assert.Equal(t, []classify.Format{classify.FormatDelta, classify.FormatParquet}, root.Metadata.Formats)
}

func TestTree_QueryParameters(t *testing.T) {
	f := newAPIFixture(t, APIConfig{Tree: tree.Config{Depth: 5}})
	conn := f.connect(t, ConnectRequest{Name: "lake", ContainerFilter: []string{"gold-lake", "bronze-raw"}})
	base := "/api/v1/connections/" + conn.ID + "/tree"

	t.Run("containers narrows the filter", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, base+"?containers=GOLD-LAKE,archive", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var root tree.Node
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
		require.Len(t, root.Children, 1)
		assert.Equal(t, "gold-lake", root.Children[0].Name)
	})

	t.Run("containers outside the filter give an empty root", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, base+"?containers=archive", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var root tree.Node
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
		assert.Empty(t, root.Children)
	})

	t.Run("blank containers are ignored", func(t *testing.T) {
		for _, q := range []string{"?containers=,", "?containers=%20", "?containers=%20,%20"} {
			rec := f.do(t, http.MethodGet, base+q, nil)
			require.Equal(t, http.StatusOK, rec.Code, q)
			var root tree.Node
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
			assert.Len(t, root.Children, 2, q)
		}
	})

	t.Run("depth limits traversal", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, base+"?depth=1&containers=gold-lake", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var root tree.Node
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
		sales := root.Children[0].Child("sales")
		require.NotNil(t, sales)
		assert.Empty(t, sales.Children)
		assert.Equal(t, tree.ReasonDepth, sales.Status.Reason)
		assert.True(t, sales.Metadata.HasDatasetFiles)
	})

	t.Run("invalid depth", func(t *testing.T) {
		for _, q := range []string{"?depth=0", "?depth=-2", "?depth=deep"} {
			rec := f.do(t, http.MethodGet, base+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})
}

func TestTree_AuthFailure(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake"})
	f.backend.FailOn("gold-lake", "sales/", &provider.ProviderError{Op: "List", Err: provider.ErrAccessDenied})

	rec := f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/tree", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTree_TimeoutReturnsPartialTree(t *testing.T) {
	f := newAPIFixture(t, APIConfig{Timeout: 20 * time.Millisecond})
	conn := f.connect(t, ConnectRequest{Name: "lake"})
	f.backend.OnList(func(c backendtest.Call) {
		if c.Prefix != "" {
			time.Sleep(50 * time.Millisecond)
		}
	})

	rec := f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var root tree.Node
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&root))
	assert.False(t, root.Complete())
}

func TestContainers(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake", ContainerFilter: []string{"gold-lake"}})

	rec := f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/containers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []summary.Container
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "gold-lake", out[0].Name)
	assert.Equal(t, classify.ContainerGold, out[0].Type)
	assert.Equal(t, 2, out[0].FolderCount)
	assert.True(t, out[0].HasDatasetFiles)
}

func TestFolders(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake", ContainerFilter: []string{"gold-lake"}})
	base := "/api/v1/connections/" + conn.ID + "/containers/"

	rec := f.do(t, http.MethodGet, base+"gold-lake/folders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var folders []summary.Folder
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&folders))
	require.Len(t, folders, 2)
	assert.Equal(t, "sales", folders[0].Name)
	assert.Equal(t, []classify.Format{classify.FormatParquet}, folders[0].DatasetFormats)
	assert.Equal(t, "hr", folders[1].Name)

	rec = f.do(t, http.MethodGet, base+"archive/folders", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFolder(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake"})
	base := "/api/v1/connections/" + conn.ID + "/containers/gold-lake/folder"

	rec := f.do(t, http.MethodGet, base+"?path=/sales/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var folder summary.Folder
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&folder))
	assert.Equal(t, "sales", folder.Name)
	assert.Equal(t, "gold-lake", folder.ContainerName)
	assert.Equal(t, 2, folder.FolderCount)
	assert.Equal(t, 2, folder.EntryCount)
	assert.True(t, folder.HasDatasetFiles)

	rec = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasets(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake"})
	base := "/api/v1/connections/" + conn.ID + "/datasets"

	get := func(q string) []summary.Dataset {
		rec := f.do(t, http.MethodGet, base+q, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []summary.Dataset
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		return out
	}

	assert.Len(t, get(""), 3)
	assert.Len(t, get("?container=gold-lake"), 2)

	inFolder := get("?container=gold-lake&folder=sales")
	require.Len(t, inFolder, 1)
	assert.Equal(t, "part-0", inFolder[0].Name)
	assert.Equal(t, classify.FormatParquet, inFolder[0].Format)

	assert.NotNil(t, get("?container=bronze-raw"))

	rec := f.do(t, http.MethodGet, base+"?folder=sales", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasets_FilteredContainerIsHidden(t *testing.T) {
	f := newAPIFixture(t, APIConfig{})
	conn := f.connect(t, ConnectRequest{Name: "lake", ContainerFilter: []string{"gold-lake"}})

	rec := f.do(t, http.MethodGet, "/api/v1/connections/"+conn.ID+"/datasets?container=archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNarrowFilter(t *testing.T) {
	assert.Equal(t, []string{"a", "B"}, narrowFilter(nil, []string{"a", "B"}))
	assert.Equal(t, []string{"A"}, narrowFilter([]string{"a", "c"}, []string{"A", "b"}))
	assert.Empty(t, narrowFilter([]string{"a"}, []string{"z"}))
	assert.Nil(t, cleanFilter([]string{" ", ""}))
}
