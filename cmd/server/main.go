// Package main is the entry point for the heatmap server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cengen-heatmap/server/internal/api"
	"github.com/cengen-heatmap/server/internal/cache"
	"github.com/cengen-heatmap/server/internal/config"
	"github.com/cengen-heatmap/server/internal/data/table"
	"github.com/cengen-heatmap/server/internal/generator"
	"github.com/cengen-heatmap/server/internal/render"
	"github.com/cengen-heatmap/server/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting heatmap server on port %d", cfg.Server.Port)

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		ResultCacheSize:  cfg.Cache.ResultCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize heatmap renderer (shared across all datasets)
	heatmapRenderer := render.NewHeatmapRenderer(render.Config{
		CellSize: cfg.Render.CellSize,
		Legend:   cfg.Render.Legend,
	})

	// Initialize dataset registry
	datasetIDs := cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)

	log.Printf("Initializing %d dataset(s), default: %s", len(datasetIDs), cfg.Data.DefaultDataset)

	// Load each dataset's three stage tables and reconcile identifiers.
	for _, datasetID := range datasetIDs {
		ds := cfg.Data.Datasets[datasetID]

		sep := ','
		if ds.Separator != "" {
			sep = rune(ds.Separator[0])
		}

		stages := []struct {
			label string
			path  string
		}{
			{"L1", ds.L1File},
			{"L4", ds.L4File},
			{"D1", ds.D1File},
		}
		tables := make([]*table.ExpressionTable, len(stages))
		for i, stage := range stages {
			tbl, err := table.Read(stage.path, sep)
			if err != nil {
				log.Fatalf("Failed to load %s table for dataset %q: %v", stage.label, datasetID, err)
			}
			tables[i] = tbl
			log.Printf("  [%s] %s: %d genes x %d cells (%s)", datasetID, stage.label, len(tbl.Genes()), len(tbl.Cells()), stage.path)
		}

		gen := generator.New(tables[0], tables[1], tables[2])
		log.Printf("  [%s] Gene universe: %d, cell universe: %d", datasetID, len(gen.Genes()), len(gen.Cells()))

		svc := service.NewHeatmapService(service.HeatmapServiceConfig{
			DatasetID: datasetID,
			Generator: gen,
			Cache:     cacheManager,
			Renderer:  heatmapRenderer,
			L1File:    ds.L1File,
			L4File:    ds.L4File,
			D1File:    ds.D1File,
		})
		registry.Register(datasetID, svc)
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:       registry,
		CORSOrigins:    cfg.Server.CORSOrigins,
		DefaultMaxRows: cfg.Render.MaxRows,
		DefaultMaxCols: cfg.Render.MaxCols,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
