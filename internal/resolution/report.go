package resolution

import (
	"sort"

	"amari/pkg/domain"
)

// MissingCount is how many specs an ingredient blocks.
type MissingCount struct {
	Slug  string `json:"slug"`
	Specs int    `json:"specs"`
}

// Report aggregates resolution summaries for one inventory.
type Report struct {
	InventoryID  string               `json:"inventory_id"`
	Specs        int                  `json:"specs"`
	Resolvable   int                  `json:"resolvable"`
	Unresolvable int                  `json:"unresolvable"`
	StatusCount  map[domain.Status]int `json:"status_count"`
	// MostMissing ranks required missing ingredients by blocked spec count.
	MostMissing []MissingCount `json:"most_missing"`
}

// BuildReport summarises summaries. limit caps MostMissing; zero keeps all.
func BuildReport(inventoryID string, summaries []domain.RecipeResolutionSummary, limit int) Report {
	rep := Report{
		InventoryID: inventoryID,
		StatusCount: make(map[domain.Status]int, len(domain.Statuses)),
		MostMissing: []MissingCount{},
	}
	for _, status := range domain.Statuses {
		rep.StatusCount[status] = 0
	}
	blocked := map[string]int{}
	for _, s := range summaries {
		rep.Specs++
		if s.Resolvable {
			rep.Resolvable++
		} else {
			rep.Unresolvable++
		}
		seen := map[string]bool{}
		for _, c := range s.Components {
			rep.StatusCount[c.Status]++
			if c.Status == domain.StatusMissing && !c.Optional && !seen[c.Slug] {
				seen[c.Slug] = true
				blocked[c.Slug]++
			}
		}
	}
	for slug, n := range blocked {
		rep.MostMissing = append(rep.MostMissing, MissingCount{Slug: slug, Specs: n})
	}
	sort.Slice(rep.MostMissing, func(i, j int) bool {
		a, b := rep.MostMissing[i], rep.MostMissing[j]
		if a.Specs != b.Specs {
			return a.Specs > b.Specs
		}
		return a.Slug < b.Slug
	})
	if limit > 0 && len(rep.MostMissing) > limit {
		rep.MostMissing = rep.MostMissing[:limit]
	}
	return rep
}
