package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NicoRio42/mapant-fr-worker/internal/api"
	"github.com/NicoRio42/mapant-fr-worker/internal/config"
	"github.com/NicoRio42/mapant-fr-worker/internal/engine"
	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/steps"
	"github.com/NicoRio42/mapant-fr-worker/internal/transfer"
	"github.com/NicoRio42/mapant-fr-worker/internal/worker"
)

var threads int

var rootCmd = &cobra.Command{
	Use:   "mapant-worker",
	Short: "mapant.fr worker - processes map generation jobs from the mapant.fr API",
	Long: `mapant-worker pulls jobs from the mapant.fr API and processes them on this
machine: it turns LiDAR point clouds into intermediate rasters, renders
orienteering map tiles and assembles the tile pyramid served by the site.
Complete documentation is available at https://github.com/NicoRio42/mapant.fr`,
	Version: "0.1.0",
	RunE:    run,
}

func init() {
	rootCmd.Flags().IntVarP(&threads, "threads", "t", worker.DefaultPoolSize, "Number of jobs processed in parallel")
}

func run(cmd *cobra.Command, _ []string) error {
	if threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", threads)
	}

	if err := logger.Setup(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	transferClient := transfer.NewClient(cfg)
	lidarCache := steps.NewLidarStepCache(steps.DefaultLidarStepDir, cfg.BaseURL, transferClient)
	cassini := engine.NewCassini()

	dispatcher := worker.NewDispatcher(
		steps.NewLidarStep(cfg, transferClient, cassini),
		steps.NewRenderStep(cfg, transferClient, cassini, engine.NewGDAL(), lidarCache),
		steps.NewPyramidStep(cfg, transferClient),
	)

	pool := worker.NewPool(api.NewClient(cfg), dispatcher)
	pool.Size = threads

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %d workers against %s", pool.Size, cfg.BaseURL)
	pool.Run(ctx)
	logger.Info("All workers stopped")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
