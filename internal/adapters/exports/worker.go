// Package exports renders derived taxonomy and resolution data and stores it
// in a blob store from a background worker.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"amari/internal/blob"
	"amari/internal/catalog"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

// Kind names the data an export renders.
type Kind string

const (
	KindTree        Kind = "tree"        // whole ingredient forest
	KindResolutions Kind = "resolutions" // every cocktail resolved against one inventory
	KindCatalog     Kind = "catalog"     // all stored records in import format
)

// Format is the serialisation of one artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

var supportedFormats = map[Kind][]Format{
	KindTree:        {FormatJSON, FormatYAML},
	KindResolutions: {FormatJSON, FormatCSV},
	KindCatalog:     {FormatYAML, FormatJSON},
}

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact is one stored rendering of an export.
type Artifact struct {
	Key         string    `json:"key"`
	LatestKey   string    `json:"latest_key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	InventoryID string     `json:"inventory_id,omitempty"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input is an enqueue request.
type Input struct {
	Kind        Kind
	InventoryID string
	Formats     []Format
	RequestedBy string
}

// Scheduler queues exports and exposes their status.
type Scheduler interface {
	EnqueueExport(ctx context.Context, input Input) (Record, error)
	GetExport(id string) (Record, bool)
}

// Source supplies the data exports render.
type Source interface {
	Forest(ctx context.Context) (map[string]*taxonomy.SubtreeNode, error)
	ResolveInventory(ctx context.Context, inventoryID string) ([]domain.RecipeResolutionSummary, domain.Result, error)
	GetInventory(ctx context.Context, id string) (domain.Inventory, error)
	ExportCatalog(ctx context.Context) (catalog.Catalog, error)
}

// Logger is the subset of charm log used by the worker.
type Logger interface {
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Info(any, ...any) {}
func (noopLogger) Warn(any, ...any) {}

// ErrQueueFull is returned when the worker cannot accept another export.
var ErrQueueFull = errors.New("export queue full")

const (
	queueSize = 32
	keyPrefix = "exports"
)

// Worker executes exports asynchronously.
type Worker struct {
	source Source
	store  blob.Store
	logger Logger
	nowFn  func() time.Time

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker. A nil logger discards output.
func NewWorker(source Source, store blob.Store, logger Logger) *Worker {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
		queue:  make(chan task, queueSize),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// EnqueueExport validates input, records a queued export, and schedules it.
func (w *Worker) EnqueueExport(ctx context.Context, input Input) (Record, error) {
	if w.source == nil || w.store == nil {
		return Record{}, fmt.Errorf("export worker not configured")
	}
	supported, ok := supportedFormats[input.Kind]
	if !ok {
		return Record{}, fmt.Errorf("unknown export kind %q", input.Kind)
	}
	if input.Kind == KindResolutions {
		if strings.TrimSpace(input.InventoryID) == "" {
			return Record{}, fmt.Errorf("inventory_id required for %s export", input.Kind)
		}
		if _, err := w.source.GetInventory(ctx, input.InventoryID); err != nil {
			return Record{}, err
		}
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = supported[:1]
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if !containsFormat(supported, f) {
			return Record{}, fmt.Errorf("format %s not supported for %s export", f, input.Kind)
		}
		seen[f] = struct{}{}
		uniq = append(uniq, f)
	}

	now := w.nowFn()
	record := Record{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		InventoryID: input.InventoryID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: record.ID, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.logger.Info("export queued", "id", record.ID, "kind", record.Kind)
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

type rendered struct {
	format      Format
	contentType string
	payload     []byte
	rows        int
}

func (w *Worker) process(t task) {
	w.mu.RLock()
	record, ok := w.jobs[t.id]
	var formats []Format
	if ok {
		formats = append([]Format(nil), record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}
	w.updateStatus(t.id, StatusRunning)

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		out, err := w.render(t.input, format)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		artifact, err := w.put(t.id, t.input, out)
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) render(input Input, format Format) (rendered, error) {
	var (
		data any
		rows int
	)
	switch input.Kind {
	case KindTree:
		forest, err := w.source.Forest(w.ctx)
		if err != nil {
			return rendered{}, fmt.Errorf("load tree: %w", err)
		}
		data = forest
		for _, root := range forest {
			rows += len(root.Slugs())
		}
	case KindResolutions:
		summaries, _, err := w.source.ResolveInventory(w.ctx, input.InventoryID)
		if err != nil {
			return rendered{}, fmt.Errorf("resolve inventory %s: %w", input.InventoryID, err)
		}
		if format == FormatCSV {
			payload, n, err := resolutionsCSV(summaries)
			if err != nil {
				return rendered{}, err
			}
			return rendered{format: format, contentType: "text/csv", payload: payload, rows: n}, nil
		}
		data = summaries
		rows = len(summaries)
	case KindCatalog:
		c, err := w.source.ExportCatalog(w.ctx)
		if err != nil {
			return rendered{}, fmt.Errorf("load catalog: %w", err)
		}
		data = c
		rows = len(c.Ingredients) + len(c.Cocktails) + len(c.Inventories)
	default:
		return rendered{}, fmt.Errorf("unknown export kind %q", input.Kind)
	}

	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return rendered{}, fmt.Errorf("marshal json: %w", err)
		}
		return rendered{format: format, contentType: "application/json", payload: payload, rows: rows}, nil
	case FormatYAML:
		payload, err := yaml.Marshal(data)
		if err != nil {
			return rendered{}, fmt.Errorf("marshal yaml: %w", err)
		}
		return rendered{format: format, contentType: "application/yaml", payload: payload, rows: rows}, nil
	default:
		return rendered{}, fmt.Errorf("unsupported export format %s", format)
	}
}

// resolutionsCSV flattens summaries to one row per component.
func resolutionsCSV(summaries []domain.RecipeResolutionSummary) ([]byte, int, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"inventory_id", "cocktail", "spec", "resolvable", "component", "role", "optional", "status", "substitutes"}); err != nil {
		return nil, 0, err
	}
	rows := 0
	for _, s := range summaries {
		for _, c := range s.Components {
			record := []string{
				s.InventoryID,
				s.CocktailSlug,
				s.SpecSlug,
				strconv.FormatBool(s.Resolvable),
				c.Slug,
				string(c.Role),
				strconv.FormatBool(c.Optional),
				string(c.Status),
				strings.Join(c.Substitutes, ";"),
			}
			if err := writer.Write(record); err != nil {
				return nil, 0, err
			}
			rows++
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rows, nil
}

func (w *Worker) put(id string, input Input, out rendered) (Artifact, error) {
	name := string(input.Kind)
	if input.InventoryID != "" {
		name += "-" + input.InventoryID
	}
	name += "." + string(out.format)
	key := fmt.Sprintf("%s/%s/%s", keyPrefix, id, name)
	latest := fmt.Sprintf("%s/latest/%s", keyPrefix, name)
	meta := map[string]string{
		"export-id": id,
		"kind":      string(input.Kind),
		"rows":      strconv.Itoa(out.rows),
	}
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(out.payload), blob.PutOptions{ContentType: out.contentType, Metadata: meta})
	if err != nil {
		return Artifact{}, err
	}
	if _, err := w.store.Put(w.ctx, latest, bytes.NewReader(out.payload), blob.PutOptions{ContentType: out.contentType, Metadata: meta, Overwrite: true}); err != nil {
		return Artifact{}, err
	}
	artifact := Artifact{
		Key:         info.Key,
		LatestKey:   latest,
		Format:      out.format,
		ContentType: out.contentType,
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		Rows:        out.rows,
		CreatedAt:   info.LastModified,
	}
	url, err := w.store.PresignURL(w.ctx, info.Key, blob.SignedURLOptions{Method: "GET"})
	switch {
	case err == nil:
		artifact.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		w.logger.Warn("presign export artifact failed", "key", info.Key, "err", err)
	}
	return artifact, nil
}

func (w *Worker) updateStatus(id string, status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.UpdatedAt = w.nowFn()
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := w.nowFn()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Info("export succeeded", "id", id, "artifacts", len(artifacts))
}

func (w *Worker) fail(id, reason string) {
	now := w.nowFn()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Warn("export failed", "id", id, "err", reason)
}

func (r *Record) copy() Record {
	dup := *r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

func containsFormat(list []Format, f Format) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

// ParseFormat normalises a format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatCSV, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}
