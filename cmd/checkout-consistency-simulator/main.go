// Package main boots the checkout consistency benchmark engine: it runs one
// configured workload against one backend strategy, drains the outcome
// pipeline, and writes the run summary and consistency scoreboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/checkout-consistency-simulator/internal/backend"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/checkout"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/config"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/driver"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/inject"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/metrics"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/obs"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/results"
	"github.com/fairyhunter13/checkout-consistency-simulator/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	obs.InitLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		obs.Logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	runID := uuid.NewString()
	obs.Logger.Info("run starting",
		"run_id", runID,
		"scenario", cfg.Scenario,
		"backend", cfg.Backend,
		"arrival", cfg.Arrival,
		"concurrency", cfg.Concurrency,
		"hot_skus", cfg.HotSKUs,
		"initial_stock", cfg.InitialStock,
		"seed", cfg.Seed,
	)

	st := store.New(cfg.SKUs(), cfg.InitialStock)
	strategy, err := backend.New(cfg, st)
	if err != nil {
		return err
	}
	injector := inject.New(inject.Options{
		Seed:          cfg.Seed,
		FailProb:      cfg.FailProb,
		LateFailProb:  cfg.LateFailProb,
		CompFailProb:  cfg.CompFailProb,
		LateFailDelay: cfg.LateFailDelay,
	})
	wf := checkout.New(cfg.Scenario, strategy, injector)

	jsonl, err := metrics.NewJSONLSink(filepath.Join(cfg.OutDir, fmt.Sprintf("outcomes_%s.jsonl", runID)))
	if err != nil {
		return err
	}
	sinks := []metrics.Sink{jsonl}
	var resultsDB *results.Store
	if cfg.ResultsDB != "" {
		resultsDB, err = results.Open(cfg.ResultsDB)
		if err != nil {
			return err
		}
		sinks = append(sinks, resultsDB)
	}
	rec := metrics.NewRecorder(sinks...)
	drv := driver.New(cfg, runID, wf, rec)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokerCtx, cancelBroker := context.WithCancel(context.Background())
	defer cancelBroker()
	rec.Start(brokerCtx)

	projCtx, cancelProj := context.WithCancel(context.Background())
	defer cancelProj()
	projDone := make(chan struct{})
	if backend.UsesProjection(cfg.Backend) {
		proj := store.NewProjector(st, cfg.ProjectionInterval, cfg.ProjectionMaxLag, cfg.Seed)
		go func() {
			defer close(projDone)
			_ = proj.Run(projCtx)
		}()
	} else {
		close(projDone)
	}

	runCtx, cancelRun := drv.RunWindow(rootCtx)
	defer cancelRun()

	started := time.Now().UTC()
	err = drv.Run(runCtx)
	ended := time.Now().UTC()
	if err != nil {
		obs.Logger.Error("workload error", "error", err)
	}

	// Settle the projection, then flush every recorded outcome before the
	// scans read the store.
	cancelProj()
	<-projDone

	rec.CloseIntake()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if !rec.DrainUntil(drainCtx) {
		obs.Logger.Warn("outcome drain timed out")
	}
	cancelBroker()

	counts := rec.Tally()
	scan := metrics.ScanConsistency(st)
	kpi := metrics.BuildKPIReport(runID, cfg, counts, scan)
	runRec := metrics.BuildRunRecord(runID, cfg, started, ended, counts)

	if err := metrics.AppendRunRecord(filepath.Join(cfg.OutDir, "results.jsonl"), runRec); err != nil {
		return err
	}
	if err := metrics.WriteKPIReport(filepath.Join(cfg.OutDir, fmt.Sprintf("kpi_%s.json", runID)), kpi); err != nil {
		return err
	}
	if resultsDB != nil {
		if err := resultsDB.SaveRun(runRec); err != nil {
			obs.Logger.Error("run row insert failed", "error", err)
		}
	}
	if err := rec.CloseSinks(); err != nil {
		obs.Logger.Error("sink close failed", "error", err)
	}

	obs.Logger.Info("run finished",
		"run_id", runID,
		"total", runRec.Total,
		"ok", runRec.OK,
		"failed", runRec.Failed,
		"out_of_stock", runRec.OutOfStock,
		"tps", runRec.TPS,
		"oversold_skus", kpi.OversoldSKUs,
		"orphan_payments", kpi.OrphanPayments,
		"stale_reads", kpi.StaleReads,
	)
	return nil
}
