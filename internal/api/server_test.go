package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/metrics"
	"github.com/pagelens/pagelens/internal/pipeline"
	storagememory "github.com/pagelens/pagelens/internal/storage/memory"
	"github.com/pagelens/pagelens/internal/store"
	storememory "github.com/pagelens/pagelens/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type stubRunner struct {
	result pipeline.Result
	err    error

	called bool
	got    pipeline.Request
}

func (s *stubRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	s.called = true
	s.got = req
	return s.result, s.err
}

type serverFixture struct {
	server    *Server
	runner    *stubRunner
	taskStore *storememory.TaskStore
	blobStore *storagememory.BlobStore
}

func newTestServer(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()

	registry, err := extract.NewProviderRegistry([]extract.ProviderConfig{
		{Name: "openai-main", Kind: extract.ProviderKindOpenAI, Model: "gpt-4o-mini", Default: true},
		{Name: "ollama-local", Kind: extract.ProviderKindOllama, Model: "llama3.2"},
	})
	require.NoError(t, err)
	catalog, err := extract.NewPromptCatalog([]extract.Mode{
		{Name: "content_summary", Template: "Summarize:\n\n{content}"},
		{Name: "key_points", Template: "Key points:\n\n{content}"},
	})
	require.NoError(t, err)

	fixture := &serverFixture{
		runner:    &stubRunner{},
		taskStore: storememory.NewTaskStore(),
		blobStore: storagememory.NewBlobStore(),
	}
	fixture.server = NewServer(
		fixture.runner,
		fixture.taskStore,
		fixture.blobStore,
		registry,
		catalog,
		cfg,
		zap.NewNop(),
	)
	return fixture
}

func successResult() pipeline.Result {
	outcomes, _ := extract.Aggregate([]extract.Outcome{
		{Mode: "content_summary", Provider: "openai-main", Status: extract.StatusSuccess, Result: "S1", Attempts: 1},
		{Mode: "key_points", Provider: "openai-main", Status: extract.StatusFailure, Error: "rejected", Attempts: 1},
	})
	return pipeline.Result{
		Task: store.Task{
			ID:       "task-1",
			URL:      "https://example.com",
			Provider: "openai-main",
			Status:   store.TaskCompleted,
		},
		Outcomes: outcomes,
		Artifacts: []store.Artifact{
			{ID: "art-1", TaskID: "task-1", Mode: "content_summary", Status: "success", BlobPath: "tasks/task-1/content_summary.json"},
			{ID: "art-2", TaskID: "task-1", Mode: "key_points", Status: "failure", Error: "rejected"},
		},
	}
}

func doRequest(t *testing.T, fixture *serverFixture, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	fixture.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCrawlEndpoint(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.result = successResult()

	rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl",
		`{"url":"https://example.com","modes":["content_summary","key_points"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TaskID      string                     `json:"task_id"`
		Status      string                     `json:"status"`
		Provider    string                     `json:"provider"`
		Results     map[string]json.RawMessage `json:"results"`
		FailedModes []string                   `json:"failed_modes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "task-1", resp.TaskID)
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, "openai-main", resp.Provider)
	require.Len(t, resp.Results, 2)
	require.Equal(t, []string{"key_points"}, resp.FailedModes)

	require.Equal(t, "https://example.com", fixture.runner.got.URL)
	require.Equal(t, []string{"content_summary", "key_points"}, fixture.runner.got.Modes)
}

func TestCrawlQueryVariant(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.result = successResult()

	rec := doRequest(t, fixture, http.MethodGet,
		"/v1/crawl?url=https%3A%2F%2Fexample.com&modes=content_summary,%20key_points&provider=ollama-local", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://example.com", fixture.runner.got.URL)
	require.Equal(t, []string{"content_summary", "key_points"}, fixture.runner.got.Modes)
	require.Equal(t, "ollama-local", fixture.runner.got.Provider)
}

func TestCrawlEmptyModesSelectWholeCatalog(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.result = successResult()

	rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"content_summary", "key_points"}, fixture.runner.got.Modes)
}

func TestCrawlValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "invalid JSON"},
		{"missing url", `{"modes":["content_summary"]}`, "url is required"},
		{"bad scheme", `{"url":"ftp://example.com"}`, "invalid url"},
		{"unknown mode", `{"url":"https://example.com","modes":["nope"]}`, "nope"},
		{"unknown provider", `{"url":"https://example.com","provider":"bedrock"}`, "bedrock"},
		{"unknown content source", `{"url":"https://example.com","content_source":"fit_html"}`, "content source"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newTestServer(t, config.Config{})
			rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want)
			require.False(t, fixture.runner.called, "runner must not run on invalid input")
		})
	}
}

func TestCrawlSaveFlag(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.result = successResult()

	rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, fixture.runner.got.Save, "save defaults on")

	rec = doRequest(t, fixture, http.MethodPost, "/v1/crawl", `{"url":"https://example.com","save":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, fixture.runner.got.Save)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/crawl?url=https%3A%2F%2Fexample.com&save=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, fixture.runner.got.Save)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/crawl?url=https%3A%2F%2Fexample.com&save=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid save value")
}

func TestCrawlContentSourcePassthrough(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.result = successResult()

	rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl",
		`{"url":"https://example.com","content_source":"raw_html"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pipeline.ContentSourceRaw, fixture.runner.got.ContentSource)
}

func TestCrawlRunnerFailure(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	fixture.runner.err = errors.New("fetch page: dns lookup failed")

	rec := doRequest(t, fixture, http.MethodPost, "/v1/crawl", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "dns lookup failed")
}

func TestListProviders(t *testing.T) {
	fixture := newTestServer(t, config.Config{})

	rec := doRequest(t, fixture, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Providers []providerInfo `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 2)
	require.Equal(t, "openai-main", resp.Providers[0].Name)
	require.True(t, resp.Providers[0].Default)
	require.False(t, resp.Providers[1].Default)
}

func TestListModes(t *testing.T) {
	fixture := newTestServer(t, config.Config{})

	rec := doRequest(t, fixture, http.MethodGet, "/v1/modes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Modes []string `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"content_summary", "key_points"}, resp.Modes)
}

func TestHistoryAndTaskLookup(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"task-a", "task-b", "task-c"} {
		require.NoError(t, fixture.taskStore.CreateTask(ctx, store.Task{
			ID:        id,
			URL:       "https://example.com/" + id,
			Status:    store.TaskCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, fixture.taskStore.RecordArtifact(ctx, store.Artifact{
		ID: "art-c", TaskID: "task-c", Mode: "content_summary", Status: "success",
	}))

	rec := doRequest(t, fixture, http.MethodGet, "/v1/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tasks []historyItem `json:"tasks"`
		Limit int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Limit)
	require.Len(t, resp.Tasks, 2)
	require.Equal(t, "task-c", resp.Tasks[0].ID, "newest first")
	require.Equal(t, 1, resp.Tasks[0].ArtifactCount)
	require.Equal(t, 0, resp.Tasks[1].ArtifactCount)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/tasks/task-a/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://example.com/task-a")

	rec = doRequest(t, fixture, http.MethodGet, "/v1/tasks/missing/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArtifactsAndPreview(t *testing.T) {
	fixture := newTestServer(t, config.Config{})
	ctx := context.Background()

	require.NoError(t, fixture.taskStore.CreateTask(ctx, store.Task{
		ID: "task-1", URL: "https://example.com", Status: store.TaskCompleted, CreatedAt: time.Now(),
	}))

	_, err := fixture.blobStore.PutObject(ctx, "tasks/task-1/content_summary.json", "application/json",
		strings.NewReader(`{"mode":"content_summary","result":"S1"}`))
	require.NoError(t, err)

	require.NoError(t, fixture.taskStore.RecordArtifact(ctx, store.Artifact{
		ID: "art-1", TaskID: "task-1", Mode: "content_summary", Status: "success",
		BlobPath: "tasks/task-1/content_summary.json",
	}))
	require.NoError(t, fixture.taskStore.RecordArtifact(ctx, store.Artifact{
		ID: "art-2", TaskID: "task-1", Mode: "key_points", Status: "failure", Error: "rejected",
	}))

	rec := doRequest(t, fixture, http.MethodGet, "/v1/tasks/task-1/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Artifacts []store.Artifact `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Artifacts, 2)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/tasks/missing/artifacts", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/artifacts/art-1/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `"result":"S1"`)

	// Failed artifact has no blob behind it.
	rec = doRequest(t, fixture, http.MethodGet, "/v1/artifacts/art-2/preview", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	// The stored page markdown previews as markdown, not JSON.
	_, err = fixture.blobStore.PutObject(ctx, "tasks/task-1/page.md", "text/markdown",
		strings.NewReader("# Hi"))
	require.NoError(t, err)
	require.NoError(t, fixture.taskStore.RecordArtifact(ctx, store.Artifact{
		ID: "art-3", TaskID: "task-1", Mode: "markdown", Status: "success",
		BlobPath: "tasks/task-1/page.md",
	}))
	rec = doRequest(t, fixture, http.MethodGet, "/v1/artifacts/art-3/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	require.Equal(t, "# Hi", rec.Body.String())

	rec = doRequest(t, fixture, http.MethodGet, "/v1/artifacts/missing/preview", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	fixture := newTestServer(t, cfg)

	rec := doRequest(t, fixture, http.MethodGet, "/v1/modes", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/modes", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	fixture.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, fixture, http.MethodGet, "/v1/modes?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	fixture := newTestServer(t, config.Config{})

	rec := doRequest(t, fixture, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, fixture, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}

func TestRequestIDHeader(t *testing.T) {
	fixture := newTestServer(t, config.Config{})

	rec := doRequest(t, fixture, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestIndexServesUI(t *testing.T) {
	fixture := newTestServer(t, config.Config{})

	rec := doRequest(t, fixture, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "task history")
}
