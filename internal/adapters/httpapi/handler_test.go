package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"amari/internal/adapters/exports"
	"amari/internal/blob"
	"amari/internal/catalog"
	"amari/internal/core"
	"amari/internal/infra/persistence/memory"
	"amari/pkg/domain"
)

func newTestHandler(t *testing.T) (*Handler, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	seed, err := catalog.Seed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := svc.Import(context.Background(), seed); err != nil {
		t.Fatalf("import: %v", err)
	}
	return NewHandler(svc, nil), svc
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if ct := rec.Header().Get("Content-Type"); rec.Code != http.StatusNotFound && ct != "application/json" {
		t.Fatalf("%s %s: unexpected content type %q", method, target, ct)
	}
	var payload map[string]json.RawMessage
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code, payload
}

func field[T any](t *testing.T, payload map[string]json.RawMessage, key string) T {
	t.Helper()
	var out T
	raw, ok := payload[key]
	if !ok {
		t.Fatalf("missing %q in %v", key, payload)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %q: %v", key, err)
	}
	return out
}

func TestTreeQueryEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	code, body := do(t, h, http.MethodGet, "/api/v1/ingredients/el-dorado-12-year-rum/parents", "")
	if code != http.StatusOK || strings.Join(field[[]string](t, body, "parents"), ",") != "aged-rum,rum,spirits" {
		t.Fatalf("parents: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/aged-rum/parent", "")
	if code != http.StatusOK || field[domain.IngredientNode](t, body, "parent").Slug != "rum" {
		t.Fatalf("parent: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/rum/children/", "")
	if code != http.StatusOK || len(field[[]string](t, body, "children")) != 2 {
		t.Fatalf("children: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/rum/subtree", "")
	sub := field[map[string]any](t, body, "subtree")
	if code != http.StatusOK || sub["slug"] != "rum" {
		t.Fatalf("subtree: %d %v", code, sub)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/el-dorado-12-year-rum/substitution", "")
	subs := field[map[string]any](t, body, "substitution")
	if code != http.StatusOK || subs["implies_root"] != "rum" {
		t.Fatalf("substitution: %d %v", code, subs)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/tree", "")
	if code != http.StatusOK || len(field[map[string]any](t, body, "tree")) != 5 {
		t.Fatalf("tree: %d", code)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/index", "")
	if code != http.StatusOK || len(field[[]core.IngredientIndexEntry](t, body, "ingredients")) != 23 {
		t.Fatalf("index: %d", code)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/spirits/parent", "")
	if code != http.StatusNotFound || field[string](t, body, "error") == "" {
		t.Fatalf("expected root parent 404, got %d %v", code, body)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/ingredients/mezcal", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/ingredients/rum/cousins", ""); code != http.StatusNotFound {
		t.Fatalf("expected unknown endpoint 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/ingredients/rum/parents", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestIngredientWrites(t *testing.T) {
	h, _ := newTestHandler(t)

	code, body := do(t, h, http.MethodPost, "/api/v1/ingredients", `{"slug":"rhum-agricole","display_name":"Rhum Agricole","kind":"ingredient","parent":"rum"}`)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/ingredients/rhum-agricole/parents", "")
	if code != http.StatusOK || len(field[[]string](t, body, "parents")) != 2 {
		t.Fatalf("expected new node in tree: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodPost, "/api/v1/ingredients", `{"slug":"orphan","kind":"ingredient","parent":"nowhere"}`)
	if code != http.StatusUnprocessableEntity || !strings.Contains(field[string](t, body, "error"), "missing parent") {
		t.Fatalf("expected rule violation, got %d %v", code, body)
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/ingredients", `{"slug":`); code != http.StatusBadRequest {
		t.Fatalf("expected bad payload, got %d", code)
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/ingredients", `{"slug":"x","colour":"red"}`); code != http.StatusBadRequest {
		t.Fatalf("expected unknown field rejection, got %d", code)
	}
	if code, _ := do(t, h, http.MethodDelete, "/api/v1/ingredients/rhum-agricole", ""); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, h, http.MethodPut, "/api/v1/ingredients", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestWriteConflictsAndBlockedDeletes(t *testing.T) {
	h, _ := newTestHandler(t)

	code, body := do(t, h, http.MethodPost, "/api/v1/ingredients", `{"slug":"rum","display_name":"Rum","kind":"family","parent":"spirits"}`)
	if code != http.StatusConflict || !strings.Contains(field[string](t, body, "error"), "already exists") {
		t.Fatalf("expected duplicate ingredient conflict, got %d %v", code, body)
	}
	code, body = do(t, h, http.MethodPost, "/api/v1/cocktails", `{"slug":"old-fashioned","display_name":"Old Fashioned","specs":[]}`)
	if code != http.StatusConflict {
		t.Fatalf("expected duplicate cocktail conflict, got %d %v", code, body)
	}
	code, body = do(t, h, http.MethodPost, "/api/v1/inventories", `{"id":"home-bar","display_name":"Again","items":[]}`)
	if code != http.StatusConflict {
		t.Fatalf("expected duplicate inventory conflict, got %d %v", code, body)
	}

	code, body = do(t, h, http.MethodDelete, "/api/v1/ingredients/rum", "")
	if code != http.StatusUnprocessableEntity || !strings.Contains(field[string](t, body, "error"), "aged-rum") {
		t.Fatalf("expected blocked delete naming the child, got %d %v", code, body)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/ingredients/rum/children", ""); code != http.StatusOK {
		t.Fatalf("rum should survive a blocked delete, got %d", code)
	}
}

func TestCocktailEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	code, body := do(t, h, http.MethodGet, "/api/v1/cocktails", "")
	if code != http.StatusOK || len(field[[]domain.Cocktail](t, body, "cocktails")) != 3 {
		t.Fatalf("list: %d", code)
	}
	code, _ = do(t, h, http.MethodPost, "/api/v1/cocktails", `{"slug":"gold-rush","display_name":"Gold Rush","specs":[{"slug":"std","display_name":"Standard","components":[{"slug":"bourbon-whiskey"}]}]}`)
	if code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/cocktails/index", "")
	index := field[core.CocktailIndex](t, body, "index")
	if code != http.StatusOK || len(index["g"]) != 2 {
		t.Fatalf("index: %d %v", code, index)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/cocktails/gold-rush", "")
	if code != http.StatusOK || field[domain.Cocktail](t, body, "cocktail").DisplayName != "Gold Rush" {
		t.Fatalf("get: %d", code)
	}
	if code, _ := do(t, h, http.MethodDelete, "/api/v1/cocktails/gold-rush", ""); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/cocktails/gold-rush", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/cocktails/a/b", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	code, body := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/full", "")
	if code != http.StatusOK {
		t.Fatalf("full: %d", code)
	}
	full := field[map[string]json.RawMessage](t, body, "inventory")
	implicit := field[map[string]map[string]any](t, full, "implicit_items")
	if implied := implicit["rum"]["implied_by"].([]any); len(implied) != 1 || implied[0] != "el-dorado-12-year-rum" {
		t.Fatalf("unexpected rum item %v", implicit["rum"])
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/items/aged-rum", "")
	if code != http.StatusOK || field[map[string]any](t, body, "item")["explicit"] != false {
		t.Fatalf("item: %d %v", code, body)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/items/gin", ""); code != http.StatusNotFound {
		t.Fatalf("expected absent item 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/cellar/full", ""); code != http.StatusNotFound {
		t.Fatalf("expected unknown inventory 404, got %d", code)
	}

	code, body = do(t, h, http.MethodPost, "/api/v1/inventories", `{"display_name":"Travel","items":["london-dry-gin","dragonfruit"]}`)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	inv := field[domain.Inventory](t, body, "inventory")
	violations := field[[]domain.Violation](t, body, "violations")
	if inv.ID == "" || len(violations) != 1 {
		t.Fatalf("expected generated id and one warning, got %+v %+v", inv, violations)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/inventories", "")
	if code != http.StatusOK || len(field[[]domain.Inventory](t, body, "inventories")) != 2 {
		t.Fatalf("list: %d", code)
	}
	if code, _ := do(t, h, http.MethodDelete, "/api/v1/inventories/"+inv.ID, ""); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/full/extra", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404 for trailing segment, got %d", code)
	}
}

func TestRecipeEndpoints(t *testing.T) {
	h, svc := newTestHandler(t)

	code, body := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/recipes", "")
	if code != http.StatusOK || len(field[[]domain.RecipeResolutionSummary](t, body, "recipes")) != 4 {
		t.Fatalf("resolve all: %d", code)
	}
	stored, _ := svc.ListResolutions(context.Background(), "home-bar")
	if len(stored) != 4 {
		t.Fatalf("expected stored summaries, got %d", len(stored))
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/recipes/old-fashioned/rum", "")
	summaries := field[[]domain.RecipeResolutionSummary](t, body, "recipes")
	if code != http.StatusOK || len(summaries) != 1 || !summaries[0].Resolvable {
		t.Fatalf("resolve spec: %d %+v", code, summaries)
	}
	if summaries[0].Components[0].Status != domain.StatusImplied {
		t.Fatalf("expected implied aged rum, got %+v", summaries[0].Components[0])
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/recipes/old-fashioned", "")
	if code != http.StatusOK || len(field[[]domain.RecipeResolutionSummary](t, body, "recipes")) != 2 {
		t.Fatalf("resolve cocktail: %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/recipes/old-fashioned/mezcal", ""); code != http.StatusNotFound {
		t.Fatalf("expected unknown spec 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/recipes/zombie", ""); code != http.StatusNotFound {
		t.Fatalf("expected unknown cocktail 404, got %d", code)
	}
	code, body = do(t, h, http.MethodDelete, "/api/v1/inventories/home-bar/recipes", "")
	if code != http.StatusOK || field[int](t, body, "deleted") != 4 {
		t.Fatalf("delete: %d %v", code, body)
	}
	code, body = do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/report?limit=1", "")
	report := field[map[string]any](t, body, "report")
	if code != http.StatusOK || report["resolvable"].(float64) != 1 || len(report["most_missing"].([]any)) != 1 {
		t.Fatalf("report: %d %v", code, report)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/inventories/home-bar/report?limit=-2", ""); code != http.StatusBadRequest {
		t.Fatalf("expected bad limit, got %d", code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	code, body := do(t, h, http.MethodGet, "/api/v1/caches", "")
	if code != http.StatusOK || len(field[[]string](t, body, "caches")) != 3 {
		t.Fatalf("list: %d %v", code, body)
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/caches/ingredient_tree", ""); code != http.StatusOK {
		t.Fatalf("populate: %d", code)
	}
	if code, _ := do(t, h, http.MethodDelete, "/api/v1/caches/ingredient_tree", ""); code != http.StatusOK {
		t.Fatalf("invalidate: %d", code)
	}
	if code, _ := do(t, h, http.MethodDelete, "/api/v1/caches/recipes", ""); code != http.StatusNotFound {
		t.Fatalf("expected unknown cache 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodPut, "/api/v1/caches/recipes", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestTreeUnavailableIs500(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	store.ImportState(memory.Snapshot{Ingredients: map[string]domain.Ingredient{
		"aged-rum": {IngredientNode: domain.IngredientNode{Slug: "aged-rum", Kind: domain.KindIngredient, Parent: "rum"}},
	}})
	h := NewHandler(core.NewService(store), nil)
	code, body := do(t, h, http.MethodGet, "/api/v1/ingredients/aged-rum/parents", "")
	if code != http.StatusInternalServerError || !strings.Contains(field[string](t, body, "error"), "aged-rum") {
		t.Fatalf("expected 500 naming aged-rum, got %d %v", code, body)
	}
}

func TestExportEndpoints(t *testing.T) {
	h, svc := newTestHandler(t)
	if code, _ := do(t, h, http.MethodGet, "/api/v1/exports/anything", ""); code != http.StatusNotFound {
		t.Fatalf("expected exports disabled, got %d", code)
	}

	worker := exports.NewWorker(svc, blob.NewMemory(), nil)
	worker.Start()
	defer worker.Stop(context.Background())
	h.Exports = worker

	code, body := do(t, h, http.MethodPost, "/api/v1/exports", `{"kind":"resolutions","inventory_id":"home-bar","formats":["json","csv"]}`)
	if code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %v", code, body)
	}
	record := field[exports.Record](t, body, "export")
	deadline := time.Now().Add(5 * time.Second)
	for record.Status != exports.StatusSucceeded && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		_, body = do(t, h, http.MethodGet, "/api/v1/exports/"+record.ID, "")
		record = field[exports.Record](t, body, "export")
		if record.Status == exports.StatusFailed {
			t.Fatalf("export failed: %s", record.Error)
		}
	}
	if len(record.Artifacts) != 2 {
		t.Fatalf("expected two artifacts, got %+v", record)
	}

	if code, _ := do(t, h, http.MethodPost, "/api/v1/exports", `{"kind":"tree","formats":["xlsx"]}`); code != http.StatusBadRequest {
		t.Fatalf("expected bad format, got %d", code)
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/exports", `{"kind":"resolutions","inventory_id":"cellar"}`); code != http.StatusNotFound {
		t.Fatalf("expected unknown inventory 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/exports/missing", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/api/v1/exports", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, target := range []string{"/", "/api/v1", "/api/v2/ingredients", "/api/v1/recipes"} {
		if code, _ := do(t, h, http.MethodGet, target, ""); code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, code)
		}
	}
	rec := httptest.NewRecorder()
	(&Handler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingredients", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected unconfigured 500, got %d", rec.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/yaml" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "/inventories/{id}/recipes") {
		t.Fatalf("document missing recipe routes")
	}
	if code, _ := do(t, h, http.MethodPost, "/api/v1/openapi.yaml", ""); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}
