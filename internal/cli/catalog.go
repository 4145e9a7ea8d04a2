package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"amari/internal/catalog"
	"amari/internal/core"
)

func newImportCommand(a *app) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Upsert ingredients, cocktails and inventories from YAML catalogs",
		Long: `Import upserts catalog files in order. Each file is applied in one
transaction and only if the resulting taxonomy builds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !seed && len(args) == 0 {
				return fmt.Errorf("nothing to import: pass catalog files or --seed")
			}
			var catalogs []catalog.Catalog
			names := make([]string, 0, len(args)+1)
			if seed {
				c, err := catalog.Seed()
				if err != nil {
					return err
				}
				catalogs = append(catalogs, c)
				names = append(names, "seed")
			}
			for _, path := range args {
				c, err := catalog.LoadFile(path)
				if err != nil {
					return err
				}
				catalogs = append(catalogs, c)
				names = append(names, path)
			}

			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summaries := make(map[string]core.ImportSummary, len(catalogs))
			for i, c := range catalogs {
				summary, res, err := svc.Import(cmd.Context(), c)
				if err != nil {
					return fmt.Errorf("import %s: %w", names[i], err)
				}
				for _, v := range res.Violations {
					a.logger.Warn(v.Message, "rule", v.Rule, "entity", v.Entity)
				}
				summaries[names[i]] = summary
				if !a.asJSON {
					a.printImportSummary(names[i], summary)
				}
			}
			if a.asJSON {
				return a.printJSON(summaries)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "import the bundled seed catalog first")
	return cmd
}

func (a *app) printImportSummary(name string, s core.ImportSummary) {
	a.println(successStyle.Render("imported"), slugStyle.Render(name))
	a.println(subtitleStyle.Render(fmt.Sprintf("  ingredients  %d created, %d updated", s.IngredientsCreated, s.IngredientsUpdated)))
	a.println(subtitleStyle.Render(fmt.Sprintf("  cocktails    %d created, %d updated", s.CocktailsCreated, s.CocktailsUpdated)))
	a.println(subtitleStyle.Render(fmt.Sprintf("  inventories  %d created, %d updated", s.InventoriesCreated, s.InventoriesUpdated)))
}

func newCatalogCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print every stored record in import format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			c, err := svc.ExportCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(c)
			}
			data, err := c.Marshal()
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
}
