package app

import (
	"context"
	"fmt"
	"time"

	"s3migrate/internal/checkpoint"
	"s3migrate/internal/config"
	"s3migrate/internal/metrics"
	"s3migrate/internal/planner"
	"s3migrate/internal/progress"
	"s3migrate/internal/storage"
	"s3migrate/internal/sweep"
	"s3migrate/internal/transfer"

	"go.uber.org/zap"
)

// Migrator wires the storage clients, transfer engine, planner, ledger
// and metrics into one runnable migration.
type Migrator struct {
	cfg     *config.Config
	logger  *zap.Logger
	planner *planner.Planner
	ledger  checkpoint.Store
	metrics *metrics.Collector
}

// New creates a new migrator instance
func New(cfg *config.Config, logger *zap.Logger) (*Migrator, error) {
	srcClient, err := newClient(cfg.Source, cfg.Migration)
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	dstClient, err := newClient(cfg.Target, cfg.Migration)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination client: %w", err)
	}

	ledger, err := checkpoint.NewSQLiteStore(cfg.Migration.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}

	collector := metrics.New()

	transferer := transfer.NewTransferer(srcClient, dstClient, transfer.Config{
		ChunkSize:       cfg.Migration.ChunkSize,
		PartConcurrency: cfg.Migration.PartConcurrency,
	}, collector, logger)

	plan := planner.New(srcClient, dstClient, transferer, ledger, collector, logger, planner.Config{
		BucketSuffix:    cfg.Migration.BucketSuffix,
		MaxSourceKeys:   cfg.Migration.MaxSourceKeys,
		ContinueOnError: cfg.Migration.ContinueOnError,
	})

	return &Migrator{
		cfg:     cfg,
		logger:  logger,
		planner: plan,
		ledger:  ledger,
		metrics: collector,
	}, nil
}

// Run executes the migration process
func (m *Migrator) Run(ctx context.Context) error {
	m.logger.Info("Starting migration",
		zap.String("source", m.cfg.Source.Endpoint),
		zap.String("target", m.cfg.Target.Endpoint),
		zap.String("bucket_suffix", m.cfg.Migration.BucketSuffix),
		zap.Int64("chunk_size", m.cfg.Migration.ChunkSize),
		zap.Int("part_concurrency", m.cfg.Migration.PartConcurrency),
	)

	if addr := m.cfg.Migration.MetricsAddr; addr != "" {
		go func() {
			if err := m.metrics.StartServer(addr); err != nil {
				m.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	var display *progress.Display
	if m.cfg.Migration.ShowProgress && progress.IsTerminalSupported() {
		display = progress.NewDisplay(m.metrics.GetProgressTracker(), 2*time.Second)
		display.Start()
	}

	err := m.planner.Run(ctx)

	if display != nil {
		display.Stop()
	}

	m.reportFailed()

	if err != nil {
		return err
	}

	m.logger.Info("Migration completed")
	return nil
}

// reportFailed lists ledger entries whose last attempt failed so the
// operator knows what a re-run will retry.
func (m *Migrator) reportFailed() {
	failed, err := m.ledger.ListFailed()
	if err != nil {
		m.logger.Error("Failed to read ledger", zap.Error(err))
		return
	}

	for _, record := range failed {
		m.logger.Warn("Object requires another run",
			zap.String("bucket", record.SrcBucket),
			zap.String("key", record.Key),
			zap.String("last_error", record.LastError),
		)
	}
}

// Close cleans up resources
func (m *Migrator) Close() error {
	if m.ledger != nil {
		return m.ledger.Close()
	}
	return nil
}

// Sweeper wires a storage client into the sweep tool.
type Sweeper struct {
	logger  *zap.Logger
	sweeper *sweep.Sweeper
}

// NewSweeper creates a sweeper against the source endpoint of cfg
func NewSweeper(cfg *config.Config, logger *zap.Logger) (*Sweeper, error) {
	client, err := newClient(cfg.Source, cfg.Migration)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Sweeper{
		logger:  logger,
		sweeper: sweep.New(client, metrics.New(), logger),
	}, nil
}

// Run executes the sweep
func (s *Sweeper) Run(ctx context.Context) error {
	return s.sweeper.Run(ctx)
}

func newClient(ec config.EndpointConfig, mc config.Migration) (storage.Client, error) {
	return storage.NewMinIOClient(storage.Config{
		Endpoint:        ec.Endpoint,
		Region:          ec.Region,
		AccessKey:       ec.AccessKey,
		SecretKey:       ec.SecretKey,
		CredentialsFile: ec.CredentialsFile,
		Profile:         ec.Profile,
		Secure:          ec.Secure,
		MaxRetries:      mc.MaxRetries,
		RetryBackoff:    time.Duration(mc.RetryBackoffMs) * time.Millisecond,
	})
}
