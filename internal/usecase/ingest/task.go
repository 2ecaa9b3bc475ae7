// Package ingest turns a submitted url into a stored bookmark and an indexed search record.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/bookmark"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	"github.com/kailas-cloud/bookmarkd/internal/idgen"
	"github.com/kailas-cloud/bookmarkd/internal/logger"
)

// State is a step of the ingestion state machine.
type State string

// Ingestion states in execution order. StateFailed is reachable from any step.
const (
	StateReceived      State = "received"
	StateValidating    State = "validating"
	StateDeduplicating State = "deduplicating"
	StateFetching      State = "fetching"
	StateExtracting    State = "extracting"
	StatePersisting    State = "persisting"
	StateIndexing      State = "indexing"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Extraction modes.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Result messages for completed jobs.
const (
	MessageIndexed   = "bookmark indexed"
	MessageDuplicate = "duplicate, skipped"
)

// Job is one ingestion request.
type Job struct {
	ID  string `json:"job_id"`
	URL string `json:"url"`
}

// Result describes how a job ended.
type Result struct {
	State    State
	Message  string
	URL      string
	RecordID string
}

// Duplicate reports whether the job was skipped because the bookmark exists.
func (r Result) Duplicate() bool {
	return r.State == StateCompleted && r.Message == MessageDuplicate
}

// Config selects how page content is extracted.
type Config struct {
	Format string // json (default) or markdown
	Prompt string // json extraction prompt
}

// Task runs the ingestion steps for a single job. It holds no per-job state.
type Task struct {
	store   BookmarkStore
	scraper domain.Scraper
	index   Indexer
	cfg     Config
	newID   func() string
}

// NewTask creates an ingestion task.
func NewTask(store BookmarkStore, scraper domain.Scraper, index Indexer, cfg Config) *Task {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	return &Task{store: store, scraper: scraper, index: index, cfg: cfg, newID: idgen.New}
}

// Run executes the job. On failure the Result is in StateFailed and the
// returned error wraps the cause.
func (t *Task) Run(ctx context.Context, job Job) (Result, error) {
	log := logger.FromContext(ctx)
	res := Result{State: StateReceived, URL: job.URL}

	fail := func(step State, err error) (Result, error) {
		log.Debug("ingest step failed", zap.String("step", string(step)), zap.Error(err))
		return Result{State: StateFailed, Message: err.Error(), URL: res.URL}, fmt.Errorf("%s: %w", step, err)
	}

	// validating
	if err := bookmark.ValidateURL(job.URL); err != nil {
		return fail(StateValidating, err)
	}

	// deduplicating
	normalized := bookmark.Normalize(job.URL)
	res.URL = normalized
	exists, err := t.store.Exists(ctx, normalized)
	if err != nil {
		return fail(StateDeduplicating, err)
	}
	if exists {
		return Result{State: StateCompleted, Message: MessageDuplicate, URL: normalized}, nil
	}

	// fetching
	scraped, err := t.scraper.Scrape(ctx, normalized, t.formats())
	if err != nil {
		return fail(StateFetching, err)
	}

	// extracting
	title, text, err := t.extract(normalized, scraped)
	if err != nil {
		return fail(StateExtracting, err)
	}

	// persisting
	if err := t.store.Create(ctx, normalized, title); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return fail(StatePersisting, err)
		}
		log.Info("bookmark row already present, indexing anyway", zap.String("url", normalized))
	}

	// indexing
	rec, err := record.New(t.newID(), text, normalized, title)
	if err != nil {
		return fail(StateIndexing, err)
	}
	if err := t.index.Upsert(ctx, []record.Record{rec}); err != nil {
		return fail(StateIndexing, err)
	}

	return Result{State: StateCompleted, Message: MessageIndexed, URL: normalized, RecordID: rec.ID}, nil
}

func (t *Task) formats() []domain.ScrapeFormat {
	if t.cfg.Format == FormatMarkdown {
		return []domain.ScrapeFormat{domain.MarkdownFormat()}
	}
	return []domain.ScrapeFormat{domain.JSONFormat(t.cfg.Prompt)}
}

// extract returns the title and the text to embed.
func (t *Task) extract(url string, scraped domain.ScrapeResult) (title, text string, err error) {
	if t.cfg.Format == FormatMarkdown {
		text = strings.TrimSpace(scraped.Markdown)
		if text == "" {
			return "", "", fmt.Errorf("%w: empty markdown", domain.ErrExtraction)
		}
		title = strings.TrimSpace(scraped.Metadata.Title)
		if title == "" {
			title = url
		}
		return title, text, nil
	}
	return parseSummary(scraped.JSON)
}

// parseSummary strictly decodes {"title": string, "description": string}.
func parseSummary(raw json.RawMessage) (title, description string, err error) {
	if len(raw) == 0 {
		return "", "", fmt.Errorf("%w: no structured data in response", domain.ErrExtraction)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", "", fmt.Errorf("%w: structured data is not an object: %w", domain.ErrExtraction, err)
	}

	title, err = stringField(fields, "title")
	if err != nil {
		return "", "", err
	}
	description, err = stringField(fields, "description")
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(description) == "" {
		return "", "", fmt.Errorf("%w: description is empty", domain.ErrExtraction)
	}
	return title, description, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", domain.ErrExtraction, name)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", domain.ErrExtraction, name)
	}
	return s, nil
}
