// Package cli implements the amari command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"amari/internal/cache"
	"amari/internal/config"
	"amari/internal/core"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// app holds state shared by every subcommand of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	asJSON   bool

	cfg    *config.Config
	logger *log.Logger
	out    io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "amari",
		Short: "Ingredient taxonomy and recipe resolution",
		Long: titleStyle.Render("amari") + subtitleStyle.Render(" - ingredient taxonomy and recipe resolution") + `

amari keeps a category -> family -> ingredient -> product tree of bar
ingredients and tells you which cocktails an inventory can make, directly
or through a stand-in from the same family.

` + subtitleStyle.Render("Examples:") + `
  amari import --seed                  Load the bundled catalog
  amari tree spirits                   Print part of the taxonomy
  amari substitution aged-rum          Show what an ingredient stands in for
  amari resolve home-bar               Resolve every cocktail for an inventory
  amari serve                          Start the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print JSON instead of styled text")

	root.AddCommand(
		newServeCommand(a),
		newImportCommand(a),
		newCatalogCommand(a),
		newTreeCommand(a),
		newSubstitutionCommand(a),
		newResolveCommand(a),
		newReportCommand(a),
		newExportCommand(a),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(),
		fang.WithVersion(fmt.Sprintf("%s (commit: %s)", Version, Commit)),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, path, err := config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: a.cfgFile})
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix:          "amari",
		ReportTimestamp: true,
		Level:           lvl,
	})
	if path != "" {
		a.logger.Debug("config loaded", "path", path)
	}
	return nil
}

// openService opens the configured store and cache. The returned cleanup
// releases both.
func (a *app) openService(ctx context.Context, opts ...core.ServiceOption) (*core.Service, func(), error) {
	store, err := core.OpenPersistentStore(a.cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	reg, closeCache, err := a.openCache(ctx)
	if err != nil {
		_ = core.CloseStore(store)
		return nil, nil, err
	}
	base := []core.ServiceOption{
		core.WithLogger(a.logger),
		core.WithPolicy(a.cfg.Policy()),
		core.WithCache(reg),
	}
	svc := core.NewService(store, append(base, opts...)...)
	cleanup := func() {
		closeCache()
		if err := core.CloseStore(store); err != nil {
			a.logger.Warn("close store", "err", err)
		}
	}
	return svc, cleanup, nil
}

func (a *app) openCache(ctx context.Context) (*cache.Registry, func(), error) {
	switch a.cfg.Cache.Driver {
	case "redis":
		driver, err := cache.NewRedis(ctx, a.cfg.Cache.RedisAddr, "")
		if err != nil {
			return nil, nil, fmt.Errorf("open redis cache: %w", err)
		}
		closeFn := func() {
			if err := driver.Close(); err != nil {
				a.logger.Warn("close redis cache", "err", err)
			}
		}
		return cache.NewRegistry(driver, a.cfg.Cache.TTL), closeFn, nil
	default:
		return cache.NewRegistry(cache.NewLocal(a.cfg.Cache.TTL), a.cfg.Cache.TTL), func() {}, nil
	}
}

// errEmptyTaxonomy is returned by query commands run against an empty store.
var errEmptyTaxonomy = errors.New("no ingredients stored; run `amari import --seed` or import a catalog first")

func requireTaxonomy(ctx context.Context, svc *core.Service) error {
	ings, err := svc.ListIngredients(ctx)
	if err != nil {
		return err
	}
	if len(ings) == 0 {
		return errEmptyTaxonomy
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) println(parts ...any) {
	_, _ = fmt.Fprintln(a.out, parts...)
}
