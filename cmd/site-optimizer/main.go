package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/classifier"
	"github.com/opscart/site-optimizer/pkg/config"
	"github.com/opscart/site-optimizer/pkg/inventory"
	"github.com/opscart/site-optimizer/pkg/logger"
	"github.com/opscart/site-optimizer/pkg/metrics"
	"github.com/opscart/site-optimizer/pkg/storage"
)

var (
	// Global flags
	envFile string
	verbose bool

	// Global config
	cfg *config.Config
)

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "site-optimizer",
		Short: "WordPress site tiering and deployment",
		Long: `Classify WordPress sites into performance tiers from their traffic,
check server RAM budgets, and deploy tier resource configuration to
docker-compose site stacks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg = config.NewConfig()
			if verbose {
				cfg.LogLevel = "debug"
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)
			return cfg.Validate()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newInventoryCmd(),
		newClassifyCmd(),
		newDeployCmd(),
		newReportCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func inventoryConfig() inventory.Config {
	return inventory.Config{
		Path:           cfg.InventoryPath(),
		ServerDefaults: inventory.ServerDefaults(cfg.ServerDefaults),
	}
}

// loadInventory opens the inventory document, reporting skipped records.
func loadInventory() (*inventory.Store, error) {
	inv := inventory.New(inventoryConfig())
	result, err := inv.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if result.Skipped > 0 {
		fmt.Printf("[WARN] Skipped %d invalid inventory record(s)\n", result.Skipped)
	}
	logVerbose("Loaded %d sites and %d servers from %s", result.Sites, result.Servers, inv.Path())
	return inv, nil
}

func newClassifier(inv *inventory.Store) (*classifier.Classifier, error) {
	return classifier.New(inv, cfg.Tier1MinVisitors, cfg.Tier2MinVisitors)
}

// openHistory opens Postgres when storage is enabled and the file store otherwise.
func openHistory() (storage.Store, error) {
	sc := storage.Config{Type: "file", Path: cfg.HistoryDir()}
	if cfg.StorageEnabled {
		sc = storage.Config{Type: "postgres", URL: cfg.DatabaseURL}
	}
	store, err := storage.New(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// writeMetrics records into a fresh registry and writes the node exporter
// textfile when METRICS_TEXTFILE is set.
func writeMetrics(record func(m *metrics.Metrics)) {
	if cfg.MetricsTextfile == "" {
		return
	}
	m := metrics.New()
	record(m)
	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to write metrics textfile: %v\n", err)
		return
	}
	logVerbose("Metrics written to %s", cfg.MetricsTextfile)
}

// splitPatterns parses a comma-separated filter flag.
func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	os.Exit(1)
}
