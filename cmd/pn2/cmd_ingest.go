package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/engine"
	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/model"
	"github.com/49nn/ProveNuance2/internal/store"
)

var (
	watchDir      string
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [batch.json...]",
	Short: "Validate and persist extractor batches",
	Long: `Validates each batch file against the active manifest and commits the
accepted rules, conditions and assumptions. With --watch, ingests .json
files dropped into a directory and reloads the manifest when it changes.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&watchDir, "watch", "", "watch a directory for batch files instead of reading arguments")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 4, "parallel validation workers")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if watchDir == "" && len(args) == 0 {
		return errors.New("provide batch files or --watch DIR")
	}

	st, err := store.Open(dbPath, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", dbPath, err)
	}
	defer st.Close()

	m, err := loadActiveManifest(cmd.Context(), st)
	if err != nil {
		return err
	}
	eng := engine.New(st, m, engine.WithLogger(logger))

	if watchDir != "" {
		return runWatch(cmd.Context(), eng)
	}

	batches := make([]model.Batch, 0, len(args))
	for _, path := range args {
		b, err := readBatch(path)
		if err != nil {
			return err
		}
		batches = append(batches, b)
	}

	reports, err := eng.IngestAll(cmd.Context(), batches, ingestWorkers)
	if err != nil {
		return err
	}

	failed := false
	for _, rep := range reports {
		printReport(rep)
		if !rep.Committed {
			failed = true
		}
	}
	if failed {
		return errors.New("one or more batches did not commit")
	}
	return nil
}

func runWatch(ctx context.Context, eng *engine.Engine) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bw := engine.NewBatchWatcher(eng, watchDir, printReport)
	if err := bw.Start(ctx); err != nil {
		return err
	}
	defer bw.Stop()

	mw, err := manifest.NewWatcher(manifestPath, func(m *manifest.Manifest) {
		eng.SetManifest(m)
	}, logger)
	if err != nil {
		logger.Warn("manifest watch unavailable", zap.String("path", manifestPath), zap.Error(err))
	} else if err := mw.Start(ctx); err != nil {
		logger.Warn("manifest watch unavailable", zap.String("path", manifestPath), zap.Error(err))
	} else {
		defer mw.Stop()
	}

	logger.Info("watching for batches", zap.String("dir", watchDir))
	<-ctx.Done()
	return nil
}

func loadActiveManifest(ctx context.Context, st *store.Store) (*manifest.Manifest, error) {
	if _, err := os.Stat(manifestPath); err == nil {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest %s: %w", manifestPath, err)
		}
		return m, nil
	}
	m, err := st.LoadManifest(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoManifest) {
			return nil, fmt.Errorf("no manifest at %s and none seeded in %s", manifestPath, dbPath)
		}
		return nil, err
	}
	return m, nil
}

func readBatch(path string) (model.Batch, error) {
	var b model.Batch
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("failed to read batch %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("failed to decode batch %s: %w", path, err)
	}
	return b, nil
}

func printReport(rep *engine.BatchReport) {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", zap.Error(err))
		return
	}
	fmt.Println(string(out))
}
