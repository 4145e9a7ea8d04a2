// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"amari/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Ingredient aliases domain.Ingredient for in-memory persistence operations.
	Ingredient = domain.Ingredient
	// Cocktail aliases domain.Cocktail.
	Cocktail = domain.Cocktail
	// Inventory aliases domain.Inventory.
	Inventory = domain.Inventory
	// RecipeResolution aliases domain.RecipeResolution.
	RecipeResolution = domain.RecipeResolution
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	ingredients map[string]Ingredient
	cocktails   map[string]Cocktail
	inventories map[string]Inventory
	resolutions map[string]RecipeResolution
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Ingredients map[string]Ingredient       `json:"ingredients"`
	Cocktails   map[string]Cocktail         `json:"cocktails"`
	Inventories map[string]Inventory        `json:"inventories"`
	Resolutions map[string]RecipeResolution `json:"resolutions"`
}

func newMemoryState() memoryState {
	return memoryState{
		ingredients: make(map[string]Ingredient),
		cocktails:   make(map[string]Cocktail),
		inventories: make(map[string]Inventory),
		resolutions: make(map[string]RecipeResolution),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Ingredients: cloned.ingredients,
		Cocktails:   cloned.cocktails,
		Inventories: cloned.inventories,
		Resolutions: cloned.resolutions,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		ingredients: s.Ingredients,
		cocktails:   s.Cocktails,
		inventories: s.Inventories,
		resolutions: s.Resolutions,
	}.clone()
}

// migrateSnapshot normalises snapshots written by older builds: nil buckets
// become empty, map keys are realigned with record identifiers, inventory
// items are deduplicated, and resolutions of removed inventories are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Ingredients == nil {
		snapshot.Ingredients = map[string]Ingredient{}
	}
	if snapshot.Cocktails == nil {
		snapshot.Cocktails = map[string]Cocktail{}
	}
	if snapshot.Inventories == nil {
		snapshot.Inventories = map[string]Inventory{}
	}
	if snapshot.Resolutions == nil {
		snapshot.Resolutions = map[string]RecipeResolution{}
	}

	for key, ing := range snapshot.Ingredients {
		if ing.Slug == "" {
			ing.Slug = key
		}
		if ing.Slug != key {
			delete(snapshot.Ingredients, key)
		}
		snapshot.Ingredients[ing.Slug] = ing
	}
	for key, c := range snapshot.Cocktails {
		if c.Slug == "" {
			c.Slug = key
		}
		if c.Slug != key {
			delete(snapshot.Cocktails, key)
		}
		snapshot.Cocktails[c.Slug] = c
	}
	for key, inv := range snapshot.Inventories {
		if inv.ID == "" {
			inv.ID = key
		}
		inv.Items = dedupeStrings(inv.Items)
		if inv.ID != key {
			delete(snapshot.Inventories, key)
		}
		snapshot.Inventories[inv.ID] = inv
	}
	for key, res := range snapshot.Resolutions {
		if _, ok := snapshot.Inventories[res.InventoryID]; !ok {
			delete(snapshot.Resolutions, key)
			continue
		}
		if res.Key() != key {
			delete(snapshot.Resolutions, key)
			snapshot.Resolutions[res.Key()] = res
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.ingredients {
		cloned.ingredients[k] = cloneIngredient(v)
	}
	for k, v := range s.cocktails {
		cloned.cocktails[k] = cloneCocktail(v)
	}
	for k, v := range s.inventories {
		cloned.inventories[k] = cloneInventory(v)
	}
	for k, v := range s.resolutions {
		cloned.resolutions[k] = cloneResolution(v)
	}
	return cloned
}

func cloneIngredient(i Ingredient) Ingredient {
	cp := i
	cp.IngredientNode = i.IngredientNode.Clone()
	return cp
}

func cloneComponents(in []domain.Component) []domain.Component {
	if in == nil {
		return nil
	}
	out := make([]domain.Component, len(in))
	for i, c := range in {
		cp := c
		if c.Quantity != nil {
			q := *c.Quantity
			cp.Quantity = &q
		}
		cp.Notes = append([]string(nil), c.Notes...)
		out[i] = cp
	}
	return out
}

func cloneCocktail(c Cocktail) Cocktail {
	cp := c
	cp.Specs = make([]domain.Spec, len(c.Specs))
	for i, s := range c.Specs {
		spec := s
		spec.Components = cloneComponents(s.Components)
		spec.Garnish = cloneComponents(s.Garnish)
		cp.Specs[i] = spec
	}
	return cp
}

func cloneInventory(i Inventory) Inventory {
	cp := i
	cp.Items = append([]string{}, i.Items...)
	return cp
}

func cloneResolution(r RecipeResolution) RecipeResolution {
	cp := r
	cp.Components = make([]domain.ComponentResolution, len(r.Components))
	for i, c := range r.Components {
		cc := c
		cc.Substitutes = append([]string{}, c.Substitutes...)
		cc.Parents = append([]string{}, c.Parents...)
		cp.Components[i] = cc
	}
	cp.StatusCount = make(map[domain.Status]int, len(r.StatusCount))
	for k, v := range r.StatusCount {
		cp.StatusCount[k] = v
	}
	return cp
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedIngredients(m map[string]Ingredient) []Ingredient {
	out := make([]Ingredient, 0, len(m))
	for _, v := range m {
		out = append(out, cloneIngredient(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func sortedCocktails(m map[string]Cocktail) []Cocktail {
	out := make([]Cocktail, 0, len(m))
	for _, v := range m {
		out = append(out, cloneCocktail(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func sortedInventories(m map[string]Inventory) []Inventory {
	out := make([]Inventory, 0, len(m))
	for _, v := range m {
		out = append(out, cloneInventory(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func resolutionsFor(m map[string]RecipeResolution, inventoryID string) []RecipeResolution {
	out := make([]RecipeResolution, 0)
	for _, v := range m {
		if inventoryID != "" && v.InventoryID != inventoryID {
			continue
		}
		out = append(out, cloneResolution(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ListIngredients returns all ingredients within the snapshot, sorted by slug.
func (v transactionView) ListIngredients() []Ingredient {
	return sortedIngredients(v.state.ingredients)
}

// FindIngredient retrieves an ingredient by slug from the snapshot.
func (v transactionView) FindIngredient(slug string) (Ingredient, bool) {
	i, ok := v.state.ingredients[slug]
	if !ok {
		return Ingredient{}, false
	}
	return cloneIngredient(i), true
}

// ListCocktails returns all cocktails in the snapshot.
func (v transactionView) ListCocktails() []Cocktail {
	return sortedCocktails(v.state.cocktails)
}

// FindCocktail retrieves a cocktail by slug.
func (v transactionView) FindCocktail(slug string) (Cocktail, bool) {
	c, ok := v.state.cocktails[slug]
	if !ok {
		return Cocktail{}, false
	}
	return cloneCocktail(c), true
}

// ListInventories returns all inventories in the snapshot.
func (v transactionView) ListInventories() []Inventory {
	return sortedInventories(v.state.inventories)
}

// FindInventory retrieves an inventory by ID.
func (v transactionView) FindInventory(id string) (Inventory, bool) {
	i, ok := v.state.inventories[id]
	if !ok {
		return Inventory{}, false
	}
	return cloneInventory(i), true
}

// ListResolutions returns stored summaries for inventoryID, or all of them
// when inventoryID is empty.
func (v transactionView) ListResolutions(inventoryID string) []RecipeResolution {
	return resolutionsFor(v.state.resolutions, inventoryID)
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindIngredient exposes ingredient lookup within the transaction scope.
func (tx *transaction) FindIngredient(slug string) (Ingredient, bool) {
	return transactionView{state: &tx.state}.FindIngredient(slug)
}

// FindInventory exposes inventory lookup within the transaction scope.
func (tx *transaction) FindInventory(id string) (Inventory, bool) {
	return transactionView{state: &tx.state}.FindInventory(id)
}

// CreateIngredient stores a new taxonomy record.
func (tx *transaction) CreateIngredient(i Ingredient) (Ingredient, error) {
	if i.Slug == "" {
		return Ingredient{}, fmt.Errorf("ingredient slug is required")
	}
	if _, exists := tx.state.ingredients[i.Slug]; exists {
		return Ingredient{}, domain.ErrConflict{Entity: domain.EntityIngredient, ID: i.Slug}
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.ingredients[i.Slug] = cloneIngredient(i)
	tx.recordChange(Change{Entity: domain.EntityIngredient, Action: domain.ActionCreate, After: cloneIngredient(i)})
	return cloneIngredient(i), nil
}

// UpdateIngredient mutates an ingredient using the provided mutator function.
// The slug is immutable.
func (tx *transaction) UpdateIngredient(slug string, mutator func(*Ingredient) error) (Ingredient, error) {
	current, ok := tx.state.ingredients[slug]
	if !ok {
		return Ingredient{}, domain.ErrNotFound{Entity: domain.EntityIngredient, ID: slug}
	}
	before := cloneIngredient(current)
	if err := mutator(&current); err != nil {
		return Ingredient{}, err
	}
	current.Slug = slug
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.ingredients[slug] = cloneIngredient(current)
	tx.recordChange(Change{Entity: domain.EntityIngredient, Action: domain.ActionUpdate, Before: before, After: cloneIngredient(current)})
	return cloneIngredient(current), nil
}

// DeleteIngredient removes a taxonomy record. Records that still have
// children cannot be removed.
func (tx *transaction) DeleteIngredient(slug string) error {
	current, ok := tx.state.ingredients[slug]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityIngredient, ID: slug}
	}
	for _, other := range tx.state.ingredients {
		if other.Parent == slug {
			return domain.RuleViolationError{Result: domain.Result{Violations: []domain.Violation{{
				Rule:     "ingredient_parent_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("ingredient %q still referenced by child %q", slug, other.Slug),
				Entity:   domain.EntityIngredient,
				ID:       slug,
			}}}}
		}
	}
	delete(tx.state.ingredients, slug)
	tx.recordChange(Change{Entity: domain.EntityIngredient, Action: domain.ActionDelete, Before: cloneIngredient(current)})
	return nil
}

// CreateCocktail stores a new cocktail.
func (tx *transaction) CreateCocktail(c Cocktail) (Cocktail, error) {
	if c.Slug == "" {
		return Cocktail{}, fmt.Errorf("cocktail slug is required")
	}
	if _, exists := tx.state.cocktails[c.Slug]; exists {
		return Cocktail{}, domain.ErrConflict{Entity: domain.EntityCocktail, ID: c.Slug}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cocktails[c.Slug] = cloneCocktail(c)
	tx.recordChange(Change{Entity: domain.EntityCocktail, Action: domain.ActionCreate, After: cloneCocktail(c)})
	return cloneCocktail(c), nil
}

// UpdateCocktail mutates an existing cocktail.
func (tx *transaction) UpdateCocktail(slug string, mutator func(*Cocktail) error) (Cocktail, error) {
	current, ok := tx.state.cocktails[slug]
	if !ok {
		return Cocktail{}, domain.ErrNotFound{Entity: domain.EntityCocktail, ID: slug}
	}
	before := cloneCocktail(current)
	if err := mutator(&current); err != nil {
		return Cocktail{}, err
	}
	current.Slug = slug
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.cocktails[slug] = cloneCocktail(current)
	tx.recordChange(Change{Entity: domain.EntityCocktail, Action: domain.ActionUpdate, Before: before, After: cloneCocktail(current)})
	return cloneCocktail(current), nil
}

// DeleteCocktail removes a cocktail and every stored summary that refers to it.
func (tx *transaction) DeleteCocktail(slug string) error {
	current, ok := tx.state.cocktails[slug]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCocktail, ID: slug}
	}
	delete(tx.state.cocktails, slug)
	for key, res := range tx.state.resolutions {
		if res.CocktailSlug == slug {
			delete(tx.state.resolutions, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityCocktail, Action: domain.ActionDelete, Before: cloneCocktail(current)})
	return nil
}

// CreateInventory stores a new inventory. An ID is generated when empty.
func (tx *transaction) CreateInventory(i Inventory) (Inventory, error) {
	if i.ID == "" {
		i.ID = tx.store.newID()
	}
	if _, exists := tx.state.inventories[i.ID]; exists {
		return Inventory{}, domain.ErrConflict{Entity: domain.EntityInventory, ID: i.ID}
	}
	i.Items = dedupeStrings(i.Items)
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.inventories[i.ID] = cloneInventory(i)
	tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionCreate, After: cloneInventory(i)})
	return cloneInventory(i), nil
}

// UpdateInventory mutates an existing inventory.
func (tx *transaction) UpdateInventory(id string, mutator func(*Inventory) error) (Inventory, error) {
	current, ok := tx.state.inventories[id]
	if !ok {
		return Inventory{}, domain.ErrNotFound{Entity: domain.EntityInventory, ID: id}
	}
	before := cloneInventory(current)
	if err := mutator(&current); err != nil {
		return Inventory{}, err
	}
	current.ID = id
	current.Items = dedupeStrings(current.Items)
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.inventories[id] = cloneInventory(current)
	tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionUpdate, Before: before, After: cloneInventory(current)})
	return cloneInventory(current), nil
}

// DeleteInventory removes an inventory together with its stored summaries.
func (tx *transaction) DeleteInventory(id string) error {
	current, ok := tx.state.inventories[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityInventory, ID: id}
	}
	delete(tx.state.inventories, id)
	for key, res := range tx.state.resolutions {
		if res.InventoryID == id {
			delete(tx.state.resolutions, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: cloneInventory(current)})
	return nil
}

// PutResolution creates or replaces the stored summary for its key.
func (tx *transaction) PutResolution(summary domain.RecipeResolutionSummary) (RecipeResolution, error) {
	if _, ok := tx.state.inventories[summary.InventoryID]; !ok {
		return RecipeResolution{}, domain.ErrNotFound{Entity: domain.EntityInventory, ID: summary.InventoryID}
	}
	key := summary.Key()
	res := RecipeResolution{RecipeResolutionSummary: summary}
	res.CreatedAt = tx.now
	res.UpdatedAt = tx.now
	action := domain.ActionCreate
	var before any
	if existing, ok := tx.state.resolutions[key]; ok {
		action = domain.ActionUpdate
		res.CreatedAt = existing.CreatedAt
		before = cloneResolution(existing)
	}
	tx.state.resolutions[key] = cloneResolution(res)
	tx.recordChange(Change{Entity: domain.EntityResolution, Action: action, Before: before, After: cloneResolution(res)})
	return cloneResolution(res), nil
}

// DeleteResolution removes one stored summary.
func (tx *transaction) DeleteResolution(key string) error {
	current, ok := tx.state.resolutions[key]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityResolution, ID: key}
	}
	delete(tx.state.resolutions, key)
	tx.recordChange(Change{Entity: domain.EntityResolution, Action: domain.ActionDelete, Before: cloneResolution(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetIngredient retrieves an ingredient by slug from committed state.
func (s *Store) GetIngredient(slug string) (Ingredient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindIngredient(slug)
}

// ListIngredients returns all ingredients from committed state.
func (s *Store) ListIngredients() []Ingredient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIngredients(s.state.ingredients)
}

// GetCocktail retrieves a cocktail by slug.
func (s *Store) GetCocktail(slug string) (Cocktail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindCocktail(slug)
}

// ListCocktails returns all cocktails.
func (s *Store) ListCocktails() []Cocktail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCocktails(s.state.cocktails)
}

// GetInventory retrieves an inventory by ID.
func (s *Store) GetInventory(id string) (Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindInventory(id)
}

// ListInventories returns all inventories.
func (s *Store) ListInventories() []Inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedInventories(s.state.inventories)
}

// ListResolutions returns stored summaries for inventoryID, or all when empty.
func (s *Store) ListResolutions(inventoryID string) []RecipeResolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolutionsFor(s.state.resolutions, inventoryID)
}
