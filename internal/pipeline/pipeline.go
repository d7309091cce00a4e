// Package pipeline runs the crawl-convert-extract-persist flow for one URL.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/fetcher"
	"github.com/pagelens/pagelens/internal/metrics"
	"github.com/pagelens/pagelens/internal/publisher"
	"github.com/pagelens/pagelens/internal/storage"
	"github.com/pagelens/pagelens/internal/store"
)

// Config controls Pipeline behavior.
type Config struct {
	BlobPrefix  string
	ContentType string
	Topic       string
}

// Synthetic artifact kinds stored alongside the per-mode results.
const (
	markdownArtifact = "markdown"
	resultsArtifact  = "results"
)

// Content sources select what the prompts are rendered against.
const (
	ContentSourceCleaned = "cleaned_html"
	ContentSourceRaw     = "raw_html"
)

// Request describes one crawl-and-extract run.
type Request struct {
	URL           string
	Modes         []string
	Provider      string
	ContentSource string
	Save          bool
}

// IDGenerator mints task and artifact identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// HTMLConverter turns fetched HTML into prompt-ready text.
type HTMLConverter interface {
	Convert(html string) (string, error)
}

// Result is the response of one pipeline run.
type Result struct {
	Task      store.Task
	Markdown  string
	Outcomes  extract.AggregatedResult
	Artifacts []store.Artifact
}

// Pipeline wires the fetcher, converter, engine and persistence together.
type Pipeline struct {
	fetcher   fetcher.Fetcher
	headless  fetcher.Fetcher
	converter HTMLConverter
	builder   *extract.Builder
	engine    *extract.Engine
	taskStore store.TaskStore
	blobStore storage.BlobStore
	publisher publisher.Publisher
	ids       IDGenerator
	clock     extract.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Pipeline. The headless fetcher is optional and used as a
// fallback when the plain fetch fails.
func New(
	pageFetcher fetcher.Fetcher,
	headlessFetcher fetcher.Fetcher,
	converter HTMLConverter,
	builder *extract.Builder,
	engine *extract.Engine,
	taskStore store.TaskStore,
	blobStore storage.BlobStore,
	pub publisher.Publisher,
	ids IDGenerator,
	clock extract.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:   pageFetcher,
		headless:  headlessFetcher,
		converter: converter,
		builder:   builder,
		engine:    engine,
		taskStore: taskStore,
		blobStore: blobStore,
		publisher: pub,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run crawls the URL, extracts the requested modes and persists the results.
// Individual mode failures are recorded in the result; only fetch, convert
// and build problems fail the whole task.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if req.ContentSource == "" {
		req.ContentSource = ContentSourceCleaned
	}

	taskID, err := p.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("mint task id: %w", err)
	}

	task := store.Task{
		ID:            taskID,
		URL:           req.URL,
		ContentSource: req.ContentSource,
		Provider:      req.Provider,
		Modes:         req.Modes,
		Status:        store.TaskRunning,
		CreatedAt:     p.clock.Now(),
	}
	if err := p.taskStore.CreateTask(ctx, task); err != nil {
		return Result{}, fmt.Errorf("create task: %w", err)
	}

	metrics.IncActiveExtractions()
	defer metrics.DecActiveExtractions()

	result, runErr := p.execute(ctx, taskID, req)
	if runErr != nil {
		p.failTask(ctx, taskID, runErr)
		metrics.ObserveTask(string(store.TaskFailed))
		return Result{}, runErr
	}

	if err := p.taskStore.FinishTask(ctx, taskID, store.TaskCompleted, "", p.clock.Now()); err != nil {
		p.logger.Error("finish task failed", zap.String("task_id", taskID), zap.Error(err))
	}
	metrics.ObserveTask(string(store.TaskCompleted))

	task.Status = store.TaskCompleted
	task.Provider = result.Task.Provider
	result.Task = task

	p.publishResult(ctx, result)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, taskID string, req Request) (Result, error) {
	page, err := p.fetch(ctx, req.URL)
	if err != nil {
		metrics.ObserveCrawl(req.URL, "failure", 0)
		return Result{}, fmt.Errorf("fetch page: %w", err)
	}
	metrics.ObserveCrawl(req.URL, "success", len(page.HTML))
	p.logger.Debug("page fetched",
		zap.String("task_id", taskID),
		zap.String("url", req.URL),
		zap.Int("status", page.StatusCode),
		zap.Bool("headless", page.UsedHeadless),
	)

	content, err := p.renderContent(req.ContentSource, page.HTML)
	if err != nil {
		return Result{}, fmt.Errorf("convert page: %w", err)
	}

	requests, err := p.builder.Build(content, req.Modes, req.Provider)
	if err != nil {
		return Result{}, fmt.Errorf("build requests: %w", err)
	}

	outcomes := p.engine.Run(ctx, requests)
	for _, outcome := range outcomes {
		metrics.ObserveExtraction(outcome.Mode, outcome.Provider, string(outcome.Status), outcome.Attempts, outcome.Latency)
	}

	aggregated, err := extract.Aggregate(outcomes)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate outcomes: %w", err)
	}

	var artifacts []store.Artifact
	if req.Save {
		artifacts = p.persistArtifacts(ctx, taskID, content, aggregated)
	}

	return Result{
		Task:      store.Task{Provider: requests[0].Provider.Name},
		Markdown:  content,
		Outcomes:  aggregated,
		Artifacts: artifacts,
	}, nil
}

// renderContent picks what the prompts see: markdown converted from the page
// (cleaned_html) or the fetched HTML as-is (raw_html).
func (p *Pipeline) renderContent(contentSource string, html []byte) (string, error) {
	switch contentSource {
	case ContentSourceRaw:
		return string(html), nil
	case ContentSourceCleaned:
		return p.converter.Convert(string(html))
	default:
		return "", fmt.Errorf("unknown content source %q", contentSource)
	}
}

// fetch tries the plain fetcher first and falls back to headless rendering
// when one is configured.
func (p *Pipeline) fetch(ctx context.Context, url string) (fetcher.Page, error) {
	page, err := p.fetcher.Fetch(ctx, url)
	if err == nil {
		return page, nil
	}
	if p.headless == nil {
		return fetcher.Page{}, err
	}
	p.logger.Warn("plain fetch failed, retrying headless", zap.String("url", url), zap.Error(err))
	page, headlessErr := p.headless.Fetch(ctx, url)
	if headlessErr != nil {
		return fetcher.Page{}, fmt.Errorf("headless fetch: %w (plain fetch: %v)", headlessErr, err)
	}
	return page, nil
}

// persistArtifacts uploads the page markdown, one document per successful
// mode and the complete aggregated results, recording an artifact row for
// each. Persistence problems are logged; they never fail the extraction.
func (p *Pipeline) persistArtifacts(ctx context.Context, taskID, markdown string, aggregated extract.AggregatedResult) []store.Artifact {
	artifacts := make([]store.Artifact, 0, aggregated.Len()+2)

	if artifact, ok := p.uploadArtifact(ctx, taskID, markdownArtifact, "page.md", "text/markdown; charset=utf-8", []byte(markdown), nil); ok {
		artifacts = append(artifacts, artifact)
	}

	for _, mode := range aggregated.Modes() {
		outcome, _ := aggregated.Outcome(mode)
		if !outcome.Succeeded() {
			if artifact, ok := p.recordFailure(ctx, taskID, outcome); ok {
				artifacts = append(artifacts, artifact)
			}
			continue
		}
		payload, err := json.Marshal(outcome)
		if err != nil {
			p.logger.Error("marshal outcome failed", zap.String("task_id", taskID), zap.String("mode", mode), zap.Error(err))
			continue
		}
		if artifact, ok := p.uploadArtifact(ctx, taskID, mode, mode+".json", p.cfg.ContentType, payload, &outcome); ok {
			artifacts = append(artifacts, artifact)
		}
	}

	if payload, err := json.Marshal(aggregated); err != nil {
		p.logger.Error("marshal aggregated results failed", zap.String("task_id", taskID), zap.Error(err))
	} else if artifact, ok := p.uploadArtifact(ctx, taskID, resultsArtifact, "results.json", p.cfg.ContentType, payload, nil); ok {
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

// uploadArtifact writes payload to blob storage and records the artifact
// row. On any failure the artifact is logged and dropped from the response.
func (p *Pipeline) uploadArtifact(ctx context.Context, taskID, mode, filename, contentType string, payload []byte, outcome *extract.Outcome) (store.Artifact, bool) {
	artifactID, err := p.ids.NewID()
	if err != nil {
		p.logger.Error("mint artifact id failed", zap.String("task_id", taskID), zap.Error(err))
		return store.Artifact{}, false
	}
	path := p.buildBlobPath(taskID, filename)
	uri, err := p.blobStore.PutObject(ctx, path, contentType, strings.NewReader(string(payload)))
	if err != nil {
		p.logger.Error("artifact upload failed", zap.String("task_id", taskID), zap.String("path", path), zap.Error(err))
		return store.Artifact{}, false
	}
	artifact := store.Artifact{
		ID:        artifactID,
		TaskID:    taskID,
		Mode:      mode,
		Status:    string(extract.StatusSuccess),
		BlobPath:  path,
		BlobURI:   uri,
		CreatedAt: p.clock.Now(),
	}
	if outcome != nil {
		artifact.Provider = outcome.Provider
		artifact.Attempts = outcome.Attempts
		artifact.LatencyMs = outcome.LatencyMs
	}
	if err := p.taskStore.RecordArtifact(ctx, artifact); err != nil {
		p.logger.Error("record artifact failed", zap.String("task_id", taskID), zap.String("mode", mode), zap.Error(err))
		return store.Artifact{}, false
	}
	return artifact, true
}

// recordFailure stores a metadata-only row for a failed mode so history
// names what went wrong.
func (p *Pipeline) recordFailure(ctx context.Context, taskID string, outcome extract.Outcome) (store.Artifact, bool) {
	artifactID, err := p.ids.NewID()
	if err != nil {
		p.logger.Error("mint artifact id failed", zap.String("task_id", taskID), zap.Error(err))
		return store.Artifact{}, false
	}
	artifact := store.Artifact{
		ID:        artifactID,
		TaskID:    taskID,
		Mode:      outcome.Mode,
		Provider:  outcome.Provider,
		Status:    string(outcome.Status),
		Error:     outcome.Error,
		Attempts:  outcome.Attempts,
		LatencyMs: outcome.LatencyMs,
		CreatedAt: p.clock.Now(),
	}
	if err := p.taskStore.RecordArtifact(ctx, artifact); err != nil {
		p.logger.Error("record artifact failed", zap.String("task_id", taskID), zap.String("mode", outcome.Mode), zap.Error(err))
		return store.Artifact{}, false
	}
	return artifact, true
}

func (p *Pipeline) buildBlobPath(taskID, filename string) string {
	prefix := strings.Trim(p.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", taskID, filename)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, taskID, filename)
}

func (p *Pipeline) failTask(ctx context.Context, taskID string, runErr error) {
	if err := p.taskStore.FinishTask(ctx, taskID, store.TaskFailed, runErr.Error(), p.clock.Now()); err != nil {
		p.logger.Error("fail task status update", zap.String("task_id", taskID), zap.Error(err))
	}
}

func (p *Pipeline) publishResult(ctx context.Context, result Result) {
	if p.cfg.Topic == "" || p.publisher == nil {
		return
	}
	event := publisher.Event{
		TaskID:      result.Task.ID,
		URL:         result.Task.URL,
		Status:      string(result.Task.Status),
		Modes:       result.Outcomes.Modes(),
		FailedModes: result.Outcomes.Failed(),
		FinishedAt:  p.clock.Now(),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		p.logger.Error("publish task result failed", zap.String("task_id", result.Task.ID), zap.Error(err))
		return
	}
	p.logger.Info("task published",
		zap.String("task_id", result.Task.ID),
		zap.String("url", result.Task.URL),
		zap.Strings("failed_modes", result.Outcomes.Failed()),
	)
}
