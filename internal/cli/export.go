package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"amari/internal/adapters/exports"
	"amari/internal/blob"
)

const exportPollInterval = 20 * time.Millisecond

func newExportCommand(a *app) *cobra.Command {
	var (
		inventoryID string
		formats     []string
		requestedBy string
	)
	cmd := &cobra.Command{
		Use:       "export <tree|resolutions|catalog>",
		Short:     "Render an export into the configured blob store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(exports.KindTree), string(exports.KindResolutions), string(exports.KindCatalog)},
		RunE: func(cmd *cobra.Command, args []string) error {
			input := exports.Input{
				Kind:        exports.Kind(args[0]),
				InventoryID: inventoryID,
				RequestedBy: requestedBy,
			}
			for _, raw := range formats {
				f, err := exports.ParseFormat(raw)
				if err != nil {
					return err
				}
				input.Formats = append(input.Formats, f)
			}
			record, err := a.export(cmd.Context(), input)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(record)
			}
			a.println(successStyle.Render("exported"), slugStyle.Render(string(record.Kind)), subtitleStyle.Render(record.ID))
			for _, art := range record.Artifacts {
				a.println(fmt.Sprintf("  %s %s", slugStyle.Render(art.Key), subtitleStyle.Render(fmt.Sprintf("%d rows, %d bytes", art.Rows, art.SizeBytes))))
				if art.URL != "" {
					a.println("  " + subtitleStyle.Render(art.URL))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inventoryID, "inventory", "", "inventory to resolve (resolutions exports)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output formats (json, csv, yaml)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "recorded on the export")
	return cmd
}

// export runs one export through the worker and waits for it to finish.
func (a *app) export(ctx context.Context, input exports.Input) (exports.Record, error) {
	svc, cleanup, err := a.openService(ctx)
	if err != nil {
		return exports.Record{}, err
	}
	defer cleanup()
	store, err := blob.Open(ctx, a.cfg.BlobStoreConfig())
	if err != nil {
		return exports.Record{}, fmt.Errorf("open blob store: %w", err)
	}

	worker := exports.NewWorker(svc, store, a.logger)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(ctx, input)
	if err != nil {
		return exports.Record{}, err
	}
	ticker := time.NewTicker(exportPollInterval)
	defer ticker.Stop()
	for {
		record, ok := worker.GetExport(queued.ID)
		if !ok {
			return exports.Record{}, fmt.Errorf("export %s lost", queued.ID)
		}
		switch record.Status {
		case exports.StatusSucceeded:
			return record, nil
		case exports.StatusFailed:
			return record, errors.New(record.Error)
		}
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}
