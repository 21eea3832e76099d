package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deskmate/internal/store"
	"deskmate/internal/vision"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full companion service",
	Long: `Runs the companion as a long-lived service: the directive flush
loop, the data file watcher (settings edits apply live) and, when
enabled in its config, the periodic screen vision capture feeding
observations back into the conversation.`,
	RunE: runService,
}

func runService(cmd *cobra.Command, args []string) error {
	app, err := buildApp(logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visionCfg := vision.LoadConfig(dataDir)
	visionSvc := vision.NewService(visionCfg, vision.NewScreenCapturer(), nil, logger)
	visionSvc.EnablePreviews(filepath.Join(dataDir, "vision"))
	visionSvc.RegisterListener(func(snap vision.Snapshot) {
		app.manager.HandleVision(ctx, snap.Text, snap.Timestamp, snap.Width, snap.Height, snap.Preview)
	})

	logger.Info("deskmate service started",
		zap.String("data_dir", dataDir),
		zap.Bool("vision_enabled", visionCfg.Enabled))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.manager.Start()
		<-gctx.Done()
		app.manager.Stop()
		return nil
	})

	g.Go(func() error {
		visionSvc.Start()
		<-gctx.Done()
		visionSvc.Stop()
		return nil
	})

	g.Go(func() error {
		watcher, err := store.NewWatcher(dataDir, func(path string) {
			app.reload()
			visionSvc.UpdateConfig(vision.LoadConfig(dataDir))
		}, logger)
		if err != nil {
			logger.Warn("data file watching unavailable", zap.Error(err))
			<-gctx.Done()
			return nil
		}
		if err := watcher.Start(); err != nil {
			logger.Warn("cannot start data file watcher", zap.Error(err))
			<-gctx.Done()
			return nil
		}
		<-gctx.Done()
		watcher.Stop()
		return nil
	})

	return g.Wait()
}
