package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"amari/internal/resolution"
	"amari/internal/taxonomy"
	"amari/pkg/domain"
)

func newTreeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [slug]",
		Short: "Print the taxonomy, or the subtree under slug",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireTaxonomy(cmd.Context(), svc); err != nil {
				return err
			}

			var roots []*taxonomy.SubtreeNode
			if len(args) == 1 {
				sub, err := svc.Subtree(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(sub)
				}
				roots = append(roots, sub)
			} else {
				forest, err := svc.CachedForest(cmd.Context())
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(forest)
				}
				roots = sortedNodes(forest)
			}
			var b strings.Builder
			for _, root := range roots {
				renderTree(&b, root, "", "")
			}
			_, err = fmt.Fprint(a.out, b.String())
			return err
		},
	}
}

func sortedNodes(m map[string]*taxonomy.SubtreeNode) []*taxonomy.SubtreeNode {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*taxonomy.SubtreeNode, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func renderTree(b *strings.Builder, n *taxonomy.SubtreeNode, lead, childLead string) {
	b.WriteString(lead)
	b.WriteString(kindStyle(n.Kind).Render(n.Slug))
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(string(n.Kind)))
	b.WriteString("\n")
	children := sortedNodes(n.Children)
	for i, c := range children {
		if i == len(children)-1 {
			renderTree(b, c, childLead+"└── ", childLead+"    ")
			continue
		}
		renderTree(b, c, childLead+"├── ", childLead+"│   ")
	}
}

func newSubstitutionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "substitution <slug>",
		Short: "Show the ingredients a slug stands in for under the configured policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireTaxonomy(cmd.Context(), svc); err != nil {
				return err
			}
			sub, err := svc.Substitutions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(sub)
			}
			a.println(kindStyle(sub.Kind).Render(sub.Self), subtitleStyle.Render(string(sub.Kind)))
			a.printList("parents", sub.Parents)
			a.printList("children", sub.Children)
			a.printList("siblings", sub.Siblings)
			a.printList("implies", sub.Implies)
			if sub.ImpliesRoot != "" {
				a.println(subtitleStyle.Render(fmt.Sprintf("  %-9s", "root")), slugStyle.Render(sub.ImpliesRoot))
			}
			return nil
		},
	}
}

func (a *app) printList(label string, slugs []string) {
	value := subtitleStyle.Render("-")
	if len(slugs) > 0 {
		styled := make([]string, len(slugs))
		for i, s := range slugs {
			styled[i] = slugStyle.Render(s)
		}
		value = strings.Join(styled, ", ")
	}
	a.println(subtitleStyle.Render(fmt.Sprintf("  %-9s", label)), value)
}

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <inventory> [cocktail [spec]]",
		Short: "Classify recipe components as DIRECT, IMPLIED or MISSING for an inventory",
		Long: `Resolve one spec, every spec of one cocktail, or every cocktail against an
inventory. Resolving a whole inventory replaces its stored summaries.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireTaxonomy(cmd.Context(), svc); err != nil {
				return err
			}

			var summaries []domain.RecipeResolutionSummary
			if len(args) == 1 {
				summaries, _, err = svc.ResolveInventory(cmd.Context(), args[0])
			} else {
				spec := ""
				if len(args) == 3 {
					spec = args[2]
				}
				summaries, err = svc.ResolveRecipe(cmd.Context(), args[0], args[1], spec)
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(summaries)
			}
			for _, s := range summaries {
				a.printSummary(s)
			}
			return nil
		},
	}
}

func (a *app) printSummary(s domain.RecipeResolutionSummary) {
	verdict := errorStyle.Render("missing ingredients")
	if s.Resolvable {
		verdict = successStyle.Render("resolvable")
	}
	a.println(titleStyle.Render(s.CocktailSlug+"/"+s.SpecSlug), verdict)
	for _, c := range s.Components {
		line := fmt.Sprintf("  %s %s", statusStyle(c.Status).Render(fmt.Sprintf("%-7s", c.Status)), slugStyle.Render(c.Slug))
		var notes []string
		if c.Role == domain.RoleGarnish {
			notes = append(notes, "garnish")
		}
		if c.Optional {
			notes = append(notes, "optional")
		}
		if c.Status == domain.StatusImplied && len(c.Substitutes) > 0 {
			notes = append(notes, "via "+strings.Join(c.Substitutes, ", "))
		}
		if len(notes) > 0 {
			line += " " + subtitleStyle.Render("("+strings.Join(notes, "; ")+")")
		}
		a.println(line)
	}
}

func newReportCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "report <inventory>",
		Short: "Summarise what an inventory can make and which purchases unlock the most",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireTaxonomy(cmd.Context(), svc); err != nil {
				return err
			}
			rep, err := svc.InventoryReport(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(rep)
			}
			a.printReport(rep)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of missing ingredients to rank (0 for all)")
	return cmd
}

func (a *app) printReport(rep resolution.Report) {
	a.println(titleStyle.Render(rep.InventoryID))
	a.println(fmt.Sprintf("  %s of %d specs resolvable", successStyle.Render(fmt.Sprint(rep.Resolvable)), rep.Specs))
	counts := make([]string, 0, len(domain.Statuses))
	for _, status := range domain.Statuses {
		counts = append(counts, statusStyle(status).Render(fmt.Sprintf("%s %d", status, rep.StatusCount[status])))
	}
	a.println("  " + strings.Join(counts, "  "))
	if len(rep.MostMissing) == 0 {
		return
	}
	a.println(subtitleStyle.Render("  most missing:"))
	for _, m := range rep.MostMissing {
		a.println(fmt.Sprintf("    %s %s", slugStyle.Render(m.Slug), subtitleStyle.Render(fmt.Sprintf("blocks %d", m.Specs))))
	}
}
