package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"amari/internal/catalog"
	"amari/internal/infra/persistence/memory"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

type captureMetrics struct {
	mu     sync.Mutex
	ops    map[string][]bool
	builds int
	failed int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{ops: map[string][]bool{}}
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.ops[op] = append(c.ops[op], success)
	c.mu.Unlock()
}

func (c *captureMetrics) ObserveTreeBuild(_ int, err error, _ time.Duration) {
	c.mu.Lock()
	if err != nil {
		c.failed++
	} else {
		c.builds++
	}
	c.mu.Unlock()
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ok := range c.ops[op] {
		if ok == success {
			return true
		}
	}
	return false
}

func seededService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc := NewInMemoryService(NewDefaultRulesEngine(), opts...)
	seed, err := catalog.Seed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := svc.Import(context.Background(), seed); err != nil {
		t.Fatalf("import seed: %v", err)
	}
	return svc
}

func TestServiceTreeQueries(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	parents, err := svc.Parents(ctx, "el-dorado-12-year-rum")
	if err != nil || strings.Join(parents, ",") != "aged-rum,rum,spirits" {
		t.Fatalf("parents: %v %v", parents, err)
	}
	parent, err := svc.Parent(ctx, "aged-rum")
	if err != nil || parent.Slug != "rum" {
		t.Fatalf("parent: %+v %v", parent, err)
	}
	if _, err := svc.Parent(ctx, "spirits"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Fatalf("expected root parent not found, got %v", err)
	}
	children, err := svc.Children(ctx, "rum")
	if err != nil || strings.Join(children, ",") != "aged-rum,white-rum" {
		t.Fatalf("children: %v %v", children, err)
	}
	sub, err := svc.Subtree(ctx, "rum")
	if err != nil || len(sub.Slugs()) != 5 {
		t.Fatalf("subtree: %v %v", sub, err)
	}
	forest, err := svc.Forest(ctx)
	if err != nil || len(forest) != 5 {
		t.Fatalf("forest: %d %v", len(forest), err)
	}
	subs, err := svc.Substitutions(ctx, "el-dorado-12-year-rum")
	if err != nil {
		t.Fatalf("substitutions: %v", err)
	}
	if strings.Join(subs.Implies, ",") != "aged-rum,rum" || subs.ImpliesRoot != "rum" {
		t.Fatalf("unexpected substitution %+v", subs)
	}
	if strings.Join(subs.Siblings, ",") != "appleton-estate-signature" {
		t.Fatalf("unexpected siblings %v", subs.Siblings)
	}
	if _, err := svc.Node(ctx, "mezcal"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceRootPolicy(t *testing.T) {
	svc := seededService(t, WithPolicy(taxonomy.PolicyRoot))
	subs, err := svc.Substitutions(context.Background(), "el-dorado-12-year-rum")
	if err != nil {
		t.Fatalf("substitutions: %v", err)
	}
	if subs.ImpliesRoot != "spirits" || len(subs.Implies) != 3 {
		t.Fatalf("unexpected root policy substitution %+v", subs)
	}
	if svc.Policy() != taxonomy.PolicyRoot {
		t.Fatalf("policy not applied")
	}
}

func TestServiceIngredientWritesInvalidateTree(t *testing.T) {
	ctx := context.Background()
	metrics := newCaptureMetrics()
	svc := seededService(t, WithMetricsRecorder(metrics))

	if _, err := svc.Tree(ctx); err != nil {
		t.Fatalf("tree: %v", err)
	}
	if _, _, err := svc.CreateIngredient(ctx, IngredientNode{Slug: "plantation-3-stars", DisplayName: "Plantation 3 Stars", Kind: domain.KindProduct, Parent: "white-rum"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	parents, err := svc.Parents(ctx, "plantation-3-stars")
	if err != nil || strings.Join(parents, ",") != "white-rum,rum,spirits" {
		t.Fatalf("new node not visible: %v %v", parents, err)
	}
	if _, _, err := svc.UpdateIngredient(ctx, "plantation-3-stars", func(i *Ingredient) error {
		i.Parent = "aged-rum"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if parents, _ := svc.Parents(ctx, "plantation-3-stars"); parents[0] != "aged-rum" {
		t.Fatalf("update not visible: %v", parents)
	}
	if _, err := svc.DeleteIngredient(ctx, "plantation-3-stars"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Node(ctx, "plantation-3-stars"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Fatalf("expected deleted node gone, got %v", err)
	}
	if metrics.builds != 4 {
		t.Fatalf("expected one build per read after each write, got %d", metrics.builds)
	}
	if !metrics.has("create_ingredient", true) || !metrics.has("ingredient_node", false) {
		t.Fatalf("expected operation metrics, got %+v", metrics.ops)
	}
}

func TestServiceBlocksUnbuildableIngredient(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	cases := []IngredientNode{
		{Slug: "orphan", Kind: domain.KindIngredient, Parent: "nowhere"},
		{Slug: "floating", Kind: domain.KindIngredient},
		{Slug: "rooted", Kind: domain.KindCategory, Parent: "spirits"},
		{Slug: "odd", Kind: "brand", Parent: "rum"},
	}
	for _, node := range cases {
		_, _, err := svc.CreateIngredient(ctx, node)
		var rv domain.RuleViolationError
		if !errors.As(err, &rv) {
			t.Fatalf("%s: expected rule violation, got %v", node.Slug, err)
		}
	}
	if _, _, err := svc.UpdateIngredient(ctx, "rum", func(i *Ingredient) error {
		i.Parent = "aged-rum"
		return nil
	}); err == nil || !strings.Contains(err.Error(), "loops") {
		t.Fatalf("expected cycle to be blocked, got %v", err)
	}
	if _, err := svc.DeleteIngredient(ctx, "rum"); err == nil {
		t.Fatalf("expected delete of parent with children to fail")
	}
	if _, err := svc.Tree(ctx); err != nil {
		t.Fatalf("tree should stay buildable: %v", err)
	}
}

func TestServiceTreeUnavailableUntilRepaired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	store.ImportState(memory.Snapshot{Ingredients: map[string]domain.Ingredient{
		"spirits":  {IngredientNode: domain.IngredientNode{Slug: "spirits", Kind: domain.KindCategory}},
		"aged-rum": {IngredientNode: domain.IngredientNode{Slug: "aged-rum", Kind: domain.KindIngredient, Parent: "rum"}},
	}})
	metrics := newCaptureMetrics()
	svc := NewService(store, WithMetricsRecorder(metrics))

	_, err := svc.Parents(ctx, "aged-rum")
	if !errors.Is(err, ErrTreeUnavailable) {
		t.Fatalf("expected tree unavailable, got %v", err)
	}
	ce, ok := taxonomy.AsConstructionError(err)
	if !ok || ce.Kind != taxonomy.UnresolvableParent || ce.Slug != "aged-rum" {
		t.Fatalf("expected unresolvable aged-rum, got %v", err)
	}
	if _, err := svc.Forest(ctx); !errors.Is(err, ErrTreeUnavailable) {
		t.Fatalf("expected cached failure, got %v", err)
	}
	if metrics.failed != 1 {
		t.Fatalf("expected one failed build, got %d", metrics.failed)
	}

	if _, _, err := svc.CreateIngredient(ctx, IngredientNode{Slug: "rum", Kind: domain.KindFamily, Parent: "spirits"}); err != nil {
		t.Fatalf("repair: %v", err)
	}
	parents, err := svc.Parents(ctx, "aged-rum")
	if err != nil || strings.Join(parents, ",") != "rum,spirits" {
		t.Fatalf("expected repaired tree, got %v %v", parents, err)
	}
}

func TestServiceConcurrentReadersBuildOnce(t *testing.T) {
	ctx := context.Background()
	metrics := newCaptureMetrics()
	svc := seededService(t, WithMetricsRecorder(metrics))
	svc.InvalidateTree()
	before := metrics.builds

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Parents(ctx, "lime-juice"); err != nil {
				t.Errorf("parents: %v", err)
			}
		}()
	}
	wg.Wait()
	if metrics.builds-before != 1 {
		t.Fatalf("expected a single rebuild, got %d", metrics.builds-before)
	}
}

func TestServiceRebuildTree(t *testing.T) {
	svc := seededService(t)
	first, err := svc.Tree(context.Background())
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	second, err := svc.RebuildTree(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if first == second || first.Len() != second.Len() {
		t.Fatalf("expected a fresh tree of the same size")
	}
}

func TestServiceCocktailCRUD(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	created, _, err := svc.CreateCocktail(ctx, Cocktail{Slug: "rum-sour", DisplayName: "Rum Sour", Specs: []domain.Spec{{Slug: "std", Components: []domain.Component{{Slug: "rum"}, {Slug: "mystery-bitters"}}}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected timestamps")
	}
	got, err := svc.GetCocktail(ctx, "rum-sour")
	if err != nil || len(got.Specs) != 1 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, _, err := svc.UpdateCocktail(ctx, "rum-sour", func(c *Cocktail) error {
		c.DisplayName = "Sour (Rum)"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, _ := svc.ListCocktails(ctx)
	if len(list) != 4 {
		t.Fatalf("expected 4 cocktails, got %d", len(list))
	}
	if _, err := svc.DeleteCocktail(ctx, "rum-sour"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var nf domain.ErrNotFound
	if _, err := svc.GetCocktail(ctx, "rum-sour"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceInventoryExpansion(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	exp, err := svc.ExpandInventory(ctx, "home-bar")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	rum, ok := exp.ImplicitItems["rum"]
	if !ok || rum.Explicit || strings.Join(rum.ImpliedBy, ",") != "el-dorado-12-year-rum" {
		t.Fatalf("unexpected rum item %+v", rum)
	}
	if _, ok := exp.ImplicitItems["spirits"]; ok {
		t.Fatalf("family policy must stop at rum")
	}
	item, err := svc.InventoryItem(ctx, "home-bar", "aged-rum")
	if err != nil || len(item.ImpliedBy) != 1 {
		t.Fatalf("item: %+v %v", item, err)
	}
	if _, err := svc.InventoryItem(ctx, "home-bar", "gin"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	var nf domain.ErrNotFound
	if _, err := svc.ExpandInventory(ctx, "nope"); !errors.As(err, &nf) {
		t.Fatalf("expected inventory not found, got %v", err)
	}
}

func TestServiceInventoryCRUDWarnsOnUnknownItems(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	inv, res, err := svc.CreateInventory(ctx, Inventory{DisplayName: "Travel", Items: []string{"gin", "dragonfruit", "gin"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.ID == "" || len(inv.Items) != 2 {
		t.Fatalf("expected generated id and deduped items, got %+v", inv)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one warning, got %+v", res.Violations)
	}
	if _, _, err := svc.UpdateInventory(ctx, inv.ID, func(i *Inventory) error {
		i.Items = []string{"london-dry-gin"}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.GetInventory(ctx, inv.ID)
	if err != nil || strings.Join(got.Items, ",") != "london-dry-gin" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := svc.DeleteInventory(ctx, inv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := svc.ListInventories(ctx)
	if len(list) != 1 {
		t.Fatalf("expected only the seeded inventory, got %d", len(list))
	}
}
