package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbnexus/dbnexus/internal/api"
	"github.com/dbnexus/dbnexus/internal/audit"
	"github.com/dbnexus/dbnexus/internal/config"
	"github.com/dbnexus/dbnexus/internal/health"
	"github.com/dbnexus/dbnexus/internal/metrics"
	"github.com/dbnexus/dbnexus/internal/permission"
	"github.com/dbnexus/dbnexus/internal/pool"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (YAML or TOML)")
	apiPort := flag.Int("api-port", 8080, "status API port")
	apiKey := flag.String("api-key", "", "API key for the status endpoints (empty disables auth)")
	checkInterval := flag.Duration("check-interval", 30*time.Second, "health check interval")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("dbnexus starting...")

	var (
		cfg config.DbConfig
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	p, err := pool.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create pool: %v", err)
	}

	m := metrics.New()
	p.SetMetrics(m)
	p.SetAuditLogger(audit.NewLogger(audit.NewMemoryStorage(4096), audit.SeverityInfo))

	hc := health.NewChecker(p, m, *checkInterval, 3)
	hc.Start()

	var permWatcher *permission.Watcher
	if path := p.Config().PermissionsPath; path != "" {
		provider, err := permission.NewFileProvider(path)
		if err != nil {
			log.Printf("Warning: permission hot-reload not available: %v", err)
		} else if permWatcher, err = permission.NewWatcher(provider, p.Permissions()); err != nil {
			log.Printf("Warning: permission hot-reload not available: %v", err)
		}
	}

	apiServer := api.NewServer(p, hc, m, *apiKey)
	if err := apiServer.Start(*apiPort); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	log.Printf("dbnexus ready - db:%s api:%d", p.DatabaseType(), *apiPort)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down...", sig)

	if permWatcher != nil {
		permWatcher.Stop()
	}
	apiServer.Stop()
	hc.Stop()
	p.Close()

	log.Printf("dbnexus stopped")
}
