package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"s3migrate/internal/app"
	"s3migrate/internal/config"
	"s3migrate/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "s3migrate",
	Short: "Migrate all buckets between S3-compatible endpoints",
	Long: `Copies every object of every bucket from one S3-compatible endpoint
(AWS S3, MinIO, Wasabi, ...) to another. Small objects move in a single
put; large objects go through parallel multipart uploads. Re-running
after an interruption skips objects already at the destination.`,
	RunE: runMigration,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete every bucket and object at an endpoint",
	Long: `Enumerates all buckets at the source endpoint, deletes every object
in each bucket and then the bucket itself. A bucket that cannot be
emptied is left in place and reported.`,
	RunE: runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	addEndpointFlags(rootCmd.Flags(), "src", "source")
	addEndpointFlags(rootCmd.Flags(), "dst", "destination")

	rootCmd.Flags().String("bucket-suffix", "", "Suffix to retry with on destination bucket name conflicts")
	rootCmd.Flags().Int64("chunk-size", config.DefaultChunkSize, "Multipart threshold and part size in bytes")
	rootCmd.Flags().Int("part-concurrency", 8, "Concurrent part uploads per object")
	rootCmd.Flags().Int("max-source-keys", config.DefaultMaxSourceKeys, "Source listing cap per bucket")
	rootCmd.Flags().Int("max-retries", 0, "Retry attempts per storage call (0 = until cancelled)")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Bool("continue-on-error", true, "Keep going after per-object failures")
	rootCmd.Flags().String("checkpoint", "./migration.db", "Migration ledger database file")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display")
	rootCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (empty = disabled)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")

	addEndpointFlags(sweepCmd.Flags(), "src", "target")
	sweepCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")

	rootCmd.AddCommand(sweepCmd)
}

func addEndpointFlags(flags *pflag.FlagSet, prefix, role string) {
	flags.String(prefix+"-endpoint", "", role+" endpoint (host:port or URL)")
	flags.String(prefix+"-region", "", role+" region")
	flags.String(prefix+"-access-key", "", role+" access key")
	flags.String(prefix+"-secret-key", "", role+" secret key")
	flags.String(prefix+"-credentials-file", "", role+" AWS-format credentials file")
	flags.String(prefix+"-profile", "", role+" credentials profile name")
	flags.Bool(prefix+"-secure", false, "Use HTTPS for "+role)
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	migrator, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	err = migrator.Run(signalContext(log))

	if closeErr := migrator.Close(); closeErr != nil {
		log.Error("Error closing migrator", zap.Error(closeErr))
	}

	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSweep(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	sweeper, err := app.NewSweeper(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}

	return sweeper.Run(signalContext(log))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM
func signalContext(log *zap.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	return ctx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
