package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dealerprice/internal/config"
	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/logging"
	"github.com/JonMunkholm/dealerprice/internal/store"
)

// globalFlags overlay the environment configuration.
type globalFlags struct {
	envFile     string
	driver      string
	databaseURL string
	sqlitePath  string
	logLevel    string
	logFormat   string
}

// flagEnv maps persistent flags to the env vars they override.
var flagEnv = []struct {
	flag string
	env  string
}{
	{"driver", "STORE_DRIVER"},
	{"database-url", "DATABASE_URL"},
	{"sqlite", "SQLITE_PATH"},
	{"log-level", "LOG_LEVEL"},
	{"log-format", "LOG_FORMAT"},
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "priceimport",
		Short: "Preview and import dealer price lists",
		Long: `priceimport decodes dealer price lists (xls, xlsx, dbf, csv), applies a
column mapping and replaces the dealer's product set.

Configuration comes from the environment (and .env); flags override it.

Examples:
  priceimport dealer create --name Acme --currency RUB --sqlite prices.db
  priceimport preview --dealer 1 --file prices.xlsx --sqlite prices.db
  priceimport run --dealer 1 --file prices.xlsx --mapping acme.yaml --sqlite prices.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load if present")
	pf.StringVar(&flags.driver, "driver", "", "store driver: postgres or sqlite")
	pf.StringVar(&flags.databaseURL, "database-url", "", "PostgreSQL connection string")
	pf.StringVar(&flags.sqlitePath, "sqlite", "", "SQLite database file (implies --driver sqlite)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newPreviewCmd(flags),
		newRunCmd(flags),
		newDealerCmd(flags),
		newRunsCmd(flags),
	)
	return root
}

// env bundles what a subcommand needs.
type env struct {
	cfg     *config.Config
	store   store.Backend
	service *core.Service
	close   func()
}

// setup loads configuration, applies flag overrides, configures logging to
// stderr and opens the store.
func setup(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (*env, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	overrides := make(map[string]string, len(flagEnv))
	for _, fe := range flagEnv {
		if f := cmd.Flags().Lookup(fe.flag); f != nil && f.Changed {
			overrides[fe.env] = f.Value.String()
		}
	}
	if flags.sqlitePath != "" && !cmd.Flags().Changed("driver") {
		overrides["STORE_DRIVER"] = "sqlite"
	}

	cfg, err := config.LoadFrom(config.Overlay(os.Getenv, overrides))
	if err != nil {
		return nil, err
	}
	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	backend, closeFn, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service := core.NewService(backend, core.Options{
		BatchSize:   cfg.Import.BatchSize,
		PreviewRows: cfg.Import.PreviewRows,
		Timeout:     cfg.Import.Timeout,
		DBFCodepage: cfg.Import.DBFCodepage,
		Limiter:     core.NewImportLimiter(1, cfg.Import.MaxWaitTime),
	})

	return &env{cfg: cfg, store: backend, service: service, close: closeFn}, nil
}
