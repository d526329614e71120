package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"flotta/internal/backend"
	"flotta/internal/cli"
	"flotta/internal/config"
	applog "flotta/internal/log"
)

var (
	version = "dev"

	backendFlag string
	jsonOutput  bool
)

// app is what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flottactl",
		Short: "Operator tool for the flotta vehicle log",
		Long: `flottactl reads the same configuration as the bot (environment and .env)
and runs one-off operations against the usage store: monthly reports, the
plate list and a manual journal sync.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&backendFlag, "backend", "", "Override DATA_BACKEND ("+joinTypes()+")")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	root.AddCommand(newReportCmd(), newPlatesCmd(), newSyncCmd())
	return root
}

func joinTypes() string {
	s := ""
	for i, t := range backend.GetBackendTypeStrings() {
		if i > 0 {
			s += ", "
		}
		s += t
	}
	return s
}

// loadApp reads and validates configuration. Logs go to stderr so stdout
// stays parseable.
func loadApp() (*app, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if backendFlag != "" {
		cfg.DataBackend = backendFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "flottactl",
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) openBackend(ctx context.Context) (*backend.BackendResult, backend.Config, error) {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, bcfg, err
	}
	res, err := backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, bcfg, err
	}
	return res, bcfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
