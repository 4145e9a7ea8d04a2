package exports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"amari/internal/blob"
	"amari/internal/catalog"
	"amari/internal/core"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

func seededService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	seed, err := catalog.Seed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := svc.Import(context.Background(), seed); err != nil {
		t.Fatalf("import: %v", err)
	}
	return svc
}

func waitFor(t *testing.T, w *Worker, id string) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		if !ok {
			t.Fatalf("export %s vanished", id)
		}
		if record.Status == StatusSucceeded || record.Status == StatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return Record{}
}

func readBlob(t *testing.T, store blob.Store, key string) []byte {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return b
}

func TestWorkerExportsTree(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(seededService(t), store, nil)
	w.Start()
	defer w.Stop(context.Background())

	queued, err := w.EnqueueExport(context.Background(), Input{Kind: KindTree, Formats: []Format{FormatJSON, FormatYAML, FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("unexpected queued record %+v", queued)
	}
	record := waitFor(t, w, queued.ID)
	if record.Status != StatusSucceeded || len(record.Artifacts) != 2 || record.CompletedAt == nil {
		t.Fatalf("unexpected record %+v", record)
	}
	art := record.Artifacts[0]
	if art.Rows != 23 || art.Key != "exports/"+record.ID+"/tree.json" || art.LatestKey != "exports/latest/tree.json" {
		t.Fatalf("unexpected artifact %+v", art)
	}
	var forest map[string]*taxonomy.SubtreeNode
	if err := json.Unmarshal(readBlob(t, store, art.Key), &forest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := forest["spirits"].Children["rum"]; !ok {
		t.Fatalf("expected rum under spirits")
	}
	info, err := store.Head(context.Background(), art.LatestKey)
	if err != nil || info.Metadata["export-id"] != record.ID {
		t.Fatalf("latest head: %+v %v", info, err)
	}
}

func TestWorkerLatestKeyOverwritten(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(seededService(t), store, nil)
	w.Start()
	defer w.Stop(context.Background())

	var last string
	for i := 0; i < 2; i++ {
		queued, err := w.EnqueueExport(context.Background(), Input{Kind: KindCatalog})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if rec := waitFor(t, w, queued.ID); rec.Status != StatusSucceeded {
			t.Fatalf("export failed: %s", rec.Error)
		}
		last = queued.ID
	}
	info, err := store.Head(context.Background(), "exports/latest/catalog.yaml")
	if err != nil || info.Metadata["export-id"] != last {
		t.Fatalf("expected latest to track last export, got %+v %v", info, err)
	}
	parsed, err := catalog.Parse(readBlob(t, store, "exports/latest/catalog.yaml"))
	if err != nil || len(parsed.Cocktails) != 3 {
		t.Fatalf("catalog export should re-import: %d %v", len(parsed.Cocktails), err)
	}
	all, _ := store.List(context.Background(), "exports/")
	if len(all) != 3 {
		t.Fatalf("expected two exports plus latest, got %d", len(all))
	}
}

func TestWorkerExportsResolutionsCSV(t *testing.T) {
	store := blob.NewMemory()
	svc := seededService(t)
	w := NewWorker(svc, store, nil)
	w.Start()
	defer w.Stop(context.Background())

	queued, err := w.EnqueueExport(context.Background(), Input{Kind: KindResolutions, InventoryID: "home-bar", Formats: []Format{FormatCSV}, RequestedBy: "bar-manager"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitFor(t, w, queued.ID)
	if record.Status != StatusSucceeded {
		t.Fatalf("export failed: %s", record.Error)
	}
	rows, err := csv.NewReader(strings.NewReader(string(readBlob(t, store, record.Artifacts[0].Key)))).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(rows) != 14 || rows[0][0] != "inventory_id" {
		t.Fatalf("expected header plus 13 component rows, got %d", len(rows))
	}
	found := false
	for _, row := range rows[1:] {
		if row[1] == "old-fashioned" && row[2] == "rum" && row[4] == "aged-rum" {
			found = row[7] == string(domain.StatusImplied) && row[8] == "el-dorado-12-year-rum"
		}
	}
	if !found {
		t.Fatalf("expected implied aged rum row in %v", rows)
	}
	stored, _ := svc.ListResolutions(context.Background(), "home-bar")
	if len(stored) != 4 {
		t.Fatalf("expected resolutions persisted, got %d", len(stored))
	}
}

func TestWorkerEnqueueValidation(t *testing.T) {
	w := NewWorker(seededService(t), blob.NewMemory(), nil)
	ctx := context.Background()
	cases := []Input{
		{Kind: "pdf"},
		{Kind: KindTree, Formats: []Format{FormatCSV}},
		{Kind: KindResolutions},
	}
	for _, in := range cases {
		if _, err := w.EnqueueExport(ctx, in); err == nil {
			t.Fatalf("expected %+v to be rejected", in)
		}
	}
	var nf domain.ErrNotFound
	if _, err := w.EnqueueExport(ctx, Input{Kind: KindResolutions, InventoryID: "cellar"}); !errors.As(err, &nf) {
		t.Fatalf("expected inventory not found, got %v", err)
	}
	if _, err := NewWorker(nil, nil, nil).EnqueueExport(ctx, Input{Kind: KindTree}); err == nil {
		t.Fatalf("expected unconfigured worker error")
	}
	if _, ok := w.GetExport("missing"); ok {
		t.Fatalf("expected unknown export")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	w := NewWorker(seededService(t), blob.NewMemory(), nil)
	ctx := context.Background()
	for i := 0; i < queueSize; i++ {
		if _, err := w.EnqueueExport(ctx, Input{Kind: KindTree}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if _, err := w.EnqueueExport(ctx, Input{Kind: KindTree}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	w.mu.RLock()
	jobs := len(w.jobs)
	w.mu.RUnlock()
	if jobs != queueSize {
		t.Fatalf("rejected export must not be tracked, got %d jobs", jobs)
	}
}

type failingStore struct {
	blob.Store
}

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestWorkerStoreFailure(t *testing.T) {
	w := NewWorker(seededService(t), failingStore{blob.NewMemory()}, nil)
	w.Start()
	defer w.Stop(context.Background())
	queued, err := w.EnqueueExport(context.Background(), Input{Kind: KindTree})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitFor(t, w, queued.ID)
	if record.Status != StatusFailed || !strings.Contains(record.Error, "disk full") {
		t.Fatalf("expected store failure, got %+v", record)
	}
}

func TestWorkerTreeYAMLMatchesJSON(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	for _, node := range []core.IngredientNode{
		{Slug: "spirits", DisplayName: "Spirits", Kind: domain.KindCategory},
		{Slug: "rum", DisplayName: "Rum", Kind: domain.KindFamily, Parent: "spirits"},
	} {
		if _, _, err := svc.CreateIngredient(ctx, node); err != nil {
			t.Fatalf("create %s: %v", node.Slug, err)
		}
	}
	store := blob.NewMemory()
	w := NewWorker(svc, store, nil)
	w.Start()
	defer w.Stop(ctx)
	queued, err := w.EnqueueExport(ctx, Input{Kind: KindTree, Formats: []Format{FormatJSON, FormatYAML}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitFor(t, w, queued.ID)
	if record.Status != StatusSucceeded || len(record.Artifacts) != 2 || record.Artifacts[1].Rows != 2 {
		t.Fatalf("unexpected record %+v", record)
	}

	raw := readBlob(t, store, "exports/latest/tree.yaml")
	if strings.Contains(string(raw), "ingredientnode") {
		t.Fatalf("node fields should be inline:\n%s", raw)
	}
	var fromYAML, fromJSON map[string]*taxonomy.SubtreeNode
	if err := yaml.Unmarshal(raw, &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if err := json.Unmarshal(readBlob(t, store, "exports/latest/tree.json"), &fromJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	rum := fromYAML["spirits"].Children["rum"]
	if rum == nil || rum.Slug != "rum" || rum.Kind != domain.KindFamily || rum.Parent != "spirits" {
		t.Fatalf("unexpected yaml node %+v", rum)
	}
	if !reflect.DeepEqual(fromYAML, fromJSON) {
		t.Fatalf("yaml and json trees differ:\n%+v\n%+v", fromYAML["spirits"], fromJSON["spirits"])
	}
}

func TestWorkerCatalogJSONReimports(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	w := NewWorker(seededService(t), store, nil)
	w.Start()
	defer w.Stop(ctx)
	queued, err := w.EnqueueExport(ctx, Input{Kind: KindCatalog, Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec := waitFor(t, w, queued.ID); rec.Status != StatusSucceeded {
		t.Fatalf("export failed: %s", rec.Error)
	}
	raw := readBlob(t, store, "exports/latest/catalog.json")
	if strings.Contains(string(raw), "created_at") {
		t.Fatalf("catalog export carries bookkeeping fields:\n%s", raw)
	}
	parsed, err := catalog.Parse(raw)
	if err != nil {
		t.Fatalf("json catalog should re-import: %v", err)
	}
	fresh := core.NewInMemoryService(core.NewDefaultRulesEngine())
	summary, _, err := fresh.Import(ctx, parsed)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.IngredientsCreated != 23 || summary.CocktailsCreated != 3 || summary.InventoriesCreated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestWorkerStopHonoursContext(t *testing.T) {
	w := NewWorker(nil, nil, nil)
	w.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" CSV "); err != nil || f != FormatCSV {
		t.Fatalf("parse: %v %v", f, err)
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Fatalf("expected unsupported format")
	}
}
