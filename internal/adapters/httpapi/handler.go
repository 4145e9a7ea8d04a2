// Package httpapi exposes the taxonomy, inventories, and recipe resolution
// over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"amari/docs/schema/openapi"
	"amari/internal/adapters/exports"
	"amari/internal/cache"
	"amari/internal/core"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

const apiPrefix = "/api/v1/"

// Handler routes API requests to the service.
type Handler struct {
	Service *core.Service
	Exports exports.Scheduler
}

// NewHandler constructs an API handler. exp may be nil, which disables the
// export endpoints.
func NewHandler(svc *core.Service, exp exports.Scheduler) *Handler {
	return &Handler{Service: svc, Exports: exp}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path+"/", apiPrefix) {
		http.NotFound(w, r)
		return
	}
	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	switch segments[0] {
	case "openapi.yaml":
		if !allow(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapi.Spec())
	case "ingredients":
		h.handleIngredients(w, r, segments[1:])
	case "cocktails":
		h.handleCocktails(w, r, segments[1:])
	case "inventories":
		h.handleInventories(w, r, segments[1:])
	case "caches":
		h.handleCaches(w, r, segments[1:])
	case "exports":
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, segments[1:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleIngredients(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			ings, err := h.Service.ListIngredients(ctx)
			respond(w, http.StatusOK, map[string]any{"ingredients": ings}, err)
		case http.MethodPost:
			var node domain.IngredientNode
			if !decode(w, r, &node) {
				return
			}
			created, res, err := h.Service.CreateIngredient(ctx, node)
			respond(w, http.StatusCreated, map[string]any{"ingredient": created, "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
		return
	case 1:
		switch rest[0] {
		case "index":
			if !allow(w, r, http.MethodGet) {
				return
			}
			index, err := h.Service.IngredientIndex(ctx)
			respond(w, http.StatusOK, map[string]any{"ingredients": index}, err)
			return
		case "tree":
			if !allow(w, r, http.MethodGet) {
				return
			}
			forest, err := h.Service.CachedForest(ctx)
			respond(w, http.StatusOK, map[string]any{"tree": forest}, err)
			return
		}
		slug := rest[0]
		switch r.Method {
		case http.MethodGet:
			node, err := h.Service.Node(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"ingredient": node}, err)
		case http.MethodDelete:
			res, err := h.Service.DeleteIngredient(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"deleted": slug, "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
		return
	case 2:
		if !allow(w, r, http.MethodGet) {
			return
		}
		slug := rest[0]
		switch rest[1] {
		case "parent":
			node, err := h.Service.Parent(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"parent": node}, err)
		case "parents":
			parents, err := h.Service.Parents(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"parents": parents}, err)
		case "children":
			children, err := h.Service.Children(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"children": children}, err)
		case "subtree":
			sub, err := h.Service.Subtree(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"subtree": sub}, err)
		case "substitution":
			subs, err := h.Service.Substitutions(ctx, slug)
			respond(w, http.StatusOK, map[string]any{"substitution": subs}, err)
		default:
			writeError(w, http.StatusNotFound, "ingredient endpoint not found")
		}
		return
	}
	writeError(w, http.StatusNotFound, "ingredient endpoint not found")
}

func (h *Handler) handleCocktails(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			cocktails, err := h.Service.ListCocktails(ctx)
			respond(w, http.StatusOK, map[string]any{"cocktails": cocktails}, err)
		case http.MethodPost:
			var c domain.Cocktail
			if !decode(w, r, &c) {
				return
			}
			created, res, err := h.Service.CreateCocktail(ctx, c)
			respond(w, http.StatusCreated, map[string]any{"cocktail": created, "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
	case len(rest) == 1 && rest[0] == "index":
		if !allow(w, r, http.MethodGet) {
			return
		}
		index, err := h.Service.CocktailNameIndex(ctx)
		respond(w, http.StatusOK, map[string]any{"index": index}, err)
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			c, err := h.Service.GetCocktail(ctx, rest[0])
			respond(w, http.StatusOK, map[string]any{"cocktail": c}, err)
		case http.MethodDelete:
			res, err := h.Service.DeleteCocktail(ctx, rest[0])
			respond(w, http.StatusOK, map[string]any{"deleted": rest[0], "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
	default:
		writeError(w, http.StatusNotFound, "cocktail endpoint not found")
	}
}

func (h *Handler) handleInventories(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			invs, err := h.Service.ListInventories(ctx)
			respond(w, http.StatusOK, map[string]any{"inventories": invs}, err)
		case http.MethodPost:
			var inv domain.Inventory
			if !decode(w, r, &inv) {
				return
			}
			created, res, err := h.Service.CreateInventory(ctx, inv)
			respond(w, http.StatusCreated, map[string]any{"inventory": created, "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
		return
	}

	id := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			inv, err := h.Service.GetInventory(ctx, id)
			respond(w, http.StatusOK, map[string]any{"inventory": inv}, err)
		case http.MethodDelete:
			res, err := h.Service.DeleteInventory(ctx, id)
			respond(w, http.StatusOK, map[string]any{"deleted": id, "violations": res.Violations}, err)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if rest[1] != "recipes" && rest[1] != "items" && len(rest) != 2 {
		writeError(w, http.StatusNotFound, "inventory endpoint not found")
		return
	}
	switch rest[1] {
	case "full":
		if !allow(w, r, http.MethodGet) {
			return
		}
		exp, err := h.Service.ExpandInventory(ctx, id)
		respond(w, http.StatusOK, map[string]any{"inventory": exp}, err)
	case "items":
		if len(rest) != 3 {
			writeError(w, http.StatusNotFound, "inventory endpoint not found")
			return
		}
		if !allow(w, r, http.MethodGet) {
			return
		}
		item, err := h.Service.InventoryItem(ctx, id, rest[2])
		respond(w, http.StatusOK, map[string]any{"item": item}, err)
	case "report":
		if !allow(w, r, http.MethodGet) {
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		rep, err := h.Service.InventoryReport(ctx, id, limit)
		respond(w, http.StatusOK, map[string]any{"report": rep}, err)
	case "recipes":
		h.handleRecipes(w, r, id, rest[2:])
	default:
		writeError(w, http.StatusNotFound, "inventory endpoint not found")
	}
}

func (h *Handler) handleRecipes(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			summaries, _, err := h.Service.ResolveInventory(ctx, id)
			respond(w, http.StatusOK, map[string]any{"recipes": summaries}, err)
		case http.MethodDelete:
			removed, _, err := h.Service.DeleteResolutions(ctx, id)
			respond(w, http.StatusOK, map[string]any{"deleted": removed}, err)
		default:
			methodNotAllowed(w)
		}
	case 1, 2:
		if !allow(w, r, http.MethodGet) {
			return
		}
		spec := ""
		if len(rest) == 2 {
			spec = rest[1]
		}
		summaries, err := h.Service.ResolveRecipe(ctx, id, rest[0], spec)
		respond(w, http.StatusOK, map[string]any{"recipes": summaries}, err)
	default:
		writeError(w, http.StatusNotFound, "recipe endpoint not found")
	}
}

func (h *Handler) handleCaches(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"caches": h.Service.CacheKeys()})
	case 1:
		key := rest[0]
		switch r.Method {
		case http.MethodDelete:
			respond(w, http.StatusOK, map[string]any{"invalidated": key}, h.Service.InvalidateCache(ctx, key))
		case http.MethodPost:
			respond(w, http.StatusOK, map[string]any{"populated": key}, h.Service.PopulateCache(ctx, key))
		default:
			methodNotAllowed(w)
		}
	default:
		writeError(w, http.StatusNotFound, "cache endpoint not found")
	}
}

type exportRequest struct {
	Kind        string   `json:"kind"`
	InventoryID string   `json:"inventory_id"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, rest []string) {
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodPost) {
			return
		}
		var req exportRequest
		if !decode(w, r, &req) {
			return
		}
		formats := make([]exports.Format, 0, len(req.Formats))
		for _, raw := range req.Formats {
			f, err := exports.ParseFormat(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			formats = append(formats, f)
		}
		record, err := h.Exports.EnqueueExport(r.Context(), exports.Input{
			Kind:        exports.Kind(strings.ToLower(strings.TrimSpace(req.Kind))),
			InventoryID: req.InventoryID,
			Formats:     formats,
			RequestedBy: req.RequestedBy,
		})
		if err != nil {
			var nf domain.ErrNotFound
			switch {
			case errors.As(err, &nf):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, exports.ErrQueueFull):
				writeError(w, http.StatusServiceUnavailable, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
	case 1:
		if !allow(w, r, http.MethodGet) {
			return
		}
		record, ok := h.Exports.GetExport(rest[0])
		if !ok {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	default:
		writeError(w, http.StatusNotFound, "export endpoint not found")
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		methodNotAllowed(w)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, status, payload)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		nf domain.ErrNotFound
		cf domain.ErrConflict
		rv domain.RuleViolationError
	)
	switch {
	case errors.Is(err, core.ErrTreeUnavailable):
		return http.StatusInternalServerError
	case errors.As(err, &nf), errors.Is(err, taxonomy.ErrNotFound), errors.Is(err, cache.ErrUnknownKey):
		return http.StatusNotFound
	case errors.As(err, &cf):
		return http.StatusConflict
	case errors.As(err, &rv):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
