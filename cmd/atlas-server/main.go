// Copyright 2025 Shadow Atlas Project
//
// Atlas server daemon: loads the most recent published snapshot,
// exposes lookup(point|address)/verify_proof/proof_for_action over
// HTTP, and watches the on-chain gate for Verified events. Same
// flag-parse, config.Load, signal.Notify-then-graceful-shutdown shape
// as the teacher's main.go.

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/shadowatlas/atlas/pkg/atlasbuild"
	"github.com/shadowatlas/atlas/pkg/config"
	"github.com/shadowatlas/atlas/pkg/database"
	"github.com/shadowatlas/atlas/pkg/datasource"
	"github.com/shadowatlas/atlas/pkg/onchain"
	"github.com/shadowatlas/atlas/pkg/resolver"
	"github.com/shadowatlas/atlas/pkg/runtime"
	"github.com/shadowatlas/atlas/pkg/serving"
)

// unconfiguredGeocoder is the default Geocoder: address lookups fail
// fast with a clear error until a real geocoder is wired in by the
// operator, while point lookups (which never consult the geocoder) work
// regardless.
type unconfiguredGeocoder struct{}

func (unconfiguredGeocoder) Geocode(ctx context.Context, address string) (resolver.GeocodeResult, error) {
	return resolver.GeocodeResult{}, resolver.ErrGeocodeFailed
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		snapshotPath = flag.String("snapshot", "", "Path to the snapshot file to load at startup (overrides SNAPSHOTS_DIR auto-discovery)")
		showHelp     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		log.Println("atlas-server: serves lookup(point|address), verify_proof, and proof_for_action over HTTP")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize atlas runtime: %v", err)
	}
	rt.Logger.Printf("atlas runtime initialized, hash constants verified")

	sources := &datasource.Multi{}
	if cfg.PostgresURL != "" {
		dbClient, err := database.NewClient(cfg)
		if err != nil {
			log.Fatalf("failed to connect to Postgres boundary source: %v", err)
		}
		sources.Sources = append(sources.Sources, datasource.NewPostgres(database.NewBoundaryRepository(dbClient)))
		rt.Logger.Printf("connected Postgres/PostGIS boundary source")
	} else {
		rt.Logger.Printf("POSTGRES_URL not set; running with no durable boundary source")
	}

	res := resolver.New(unconfiguredGeocoder{}, sources, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	metrics := serving.NewMetrics()
	server := serving.New(rt, res, metrics)

	path := *snapshotPath
	if path == "" {
		path, err = latestSnapshotPath(cfg.SnapshotsDir)
		if err != nil {
			rt.Logger.Printf("no snapshot found in %s yet, starting with no snapshot loaded: %v", cfg.SnapshotsDir, err)
		}
	}
	if path != "" {
		if err := loadSnapshotFromFile(server, path); err != nil {
			log.Fatalf("failed to load snapshot %s: %v", path, err)
		}
		rt.Logger.Printf("loaded snapshot from %s", path)
	}

	var onchainClient *onchain.Client
	if cfg.GateContractAddress != "" {
		onchainClient, err = onchain.NewClient(cfg.EthRPCURL, cfg.EthChainID, cfg.GateContractAddress, cfg.EthPrivateKey)
		if err != nil {
			log.Fatalf("failed to initialize on-chain gate client: %v", err)
		}
		rt.Logger.Printf("on-chain gate client initialized for contract %s", cfg.GateContractAddress)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if onchainClient != nil {
		startBlock, err := onchainClient.RawClient().BlockNumber(ctx)
		if err != nil {
			log.Fatalf("failed to read starting block for the on-chain watcher: %v", err)
		}
		watcher := onchain.NewWatcher(onchainClient.RawClient(), cfg.GateContractAddress, startBlock, time.Duration(cfg.GateEventPollIntervalSecs)*time.Second)
		watcher.OnVerified(func(event onchain.VerifiedEvent) error {
			rt.Logger.Printf("observed Verified event: action_id=%s block=%d", event.ActionID, event.BlockNumber)
			return nil
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				rt.Logger.Printf("on-chain watcher stopped: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewMux(),
	}

	go func() {
		rt.Logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rt.Logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		rt.Logger.Printf("http server shutdown error: %v", err)
	}
}

// latestSnapshotPath returns the lexicographically greatest *.json file
// in dir — snapshot filenames are expected to embed a sortable version
// epoch, so the greatest name is the most recently published snapshot.
func latestSnapshotPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", os.ErrNotExist
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

func loadSnapshotFromFile(server *serving.Server, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snap, err := atlasbuild.Deserialize(data)
	if err != nil {
		return err
	}
	return server.SetSnapshot(snap)
}
