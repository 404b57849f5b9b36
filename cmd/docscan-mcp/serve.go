package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/docscan-mcp/internal/capture"
	"github.com/ironsheep/docscan-mcp/internal/config"
	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/server"
	"github.com/ironsheep/docscan-mcp/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Runs the scanner as an MCP server. Configure it in your MCP client
(e.g., Claude Desktop) with the command "docscan-mcp serve".

When source.dir is configured, scan_capture without a path captures the
newest image in that directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := imaging.NewImageCache()
	engine, err := newEngine(cfg, cache)
	if err != nil {
		return err
	}

	var store *storage.Store
	if cfg.Storage.Enabled {
		store, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	srv, err := server.New(server.Options{
		Engine:         engine,
		Cache:          cache,
		Store:          store,
		DefaultOwner:   cfg.Storage.DefaultOwner,
		JPEGQuality:    cfg.Capture.JPEGQuality,
		OCRLanguage:    cfg.OCR.Language,
		TessdataPrefix: cfg.OCR.TessdataPrefix,
		Version:        Version,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	logger.Info("docscan MCP server starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("source_dir", cfg.Source.Dir),
		zap.Bool("storage", store != nil))

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	engine.Retake()
	return nil
}

// newEngine wires the frame source and detector described by c.
func newEngine(c *config.Config, cache *imaging.ImageCache) (*capture.Engine, error) {
	var source capture.FrameSource = capture.NewStaticSource()
	if c.Source.Dir != "" {
		source = capture.NewDirectorySource(c.Source.Dir, cache)
	}

	detector, err := detection.NewDetector(c.Detection, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("detector configured", zap.Any("params", detector.Params()))
	return capture.NewEngine(source, capture.Options{
		Detector:      detector,
		MinOutputSize: c.Capture.MinOutputSize,
		Logger:        logger,
	})
}

func openStore(ctx context.Context, c *config.Config) (*storage.Store, error) {
	blobs, err := storage.NewBlobStore(c.Storage.BlobDir)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, c.Storage.DatabasePath, blobs, logger)
}
