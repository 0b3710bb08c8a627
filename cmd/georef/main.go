package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EthanOConnor/ml-georeferencer/internal/api"
	"github.com/EthanOConnor/ml-georeferencer/internal/config"
	"github.com/EthanOConnor/ml-georeferencer/internal/db"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/monitor"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef/stream"
	"github.com/EthanOConnor/ml-georeferencer/internal/units"
	"github.com/EthanOConnor/ml-georeferencer/internal/version"
)

var (
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	dbFile      = flag.String("db", "", "Path to the SQLite database file (overrides config)")
	configFile  = flag.String("config", "", "Path to a JSON config file")
	defaultUnit = flag.String("units", "", "Default report unit (overrides config)")
	mapFile     = flag.String("map", "", "Map image to load into the session at startup")
	refFile     = flag.String("reference", "", "Reference image to load into the session at startup")
	serveStream = flag.Bool("stream", false, "Publish solve frames over gRPC")
	plotDir     = flag.String("plot-dir", "", "Record solve residual plots under this directory")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	// The migrate subcommand owns its own flag set, so dispatch before
	// flag.Parse sees the server flags.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
		migrateDB := migrateFlags.String("db", "georef.db", "Path to database file")
		migrateFlags.Parse(os.Args[2:])
		db.RunMigrateCommand(migrateFlags.Args(), *migrateDB)
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("georef %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if *defaultUnit != "" {
		if !units.IsValid(*defaultUnit) {
			log.Fatalf("Invalid units %q (want one of %s)", *defaultUnit, units.GetValidUnitsString())
		}
		cfg.DefaultUnit = defaultUnit
	}

	listenAddr := cfg.GetListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}
	dbPath := cfg.GetDBPath()
	if *dbFile != "" {
		dbPath = *dbFile
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	session := georef.NewSession(rand.New(rand.NewSource(time.Now().UnixNano())), nil)
	if *mapFile != "" {
		session.SetMapPath(*mapFile)
		log.Printf("Loaded map %s", *mapFile)
	}
	if *refFile != "" {
		session.SetReferencePath(*refFile)
		if session.ReferenceGeoref() != nil {
			log.Printf("Loaded reference %s (georeferenced)", *refFile)
		} else {
			log.Printf("Loaded reference %s (no usable georeferencing found)", *refFile)
		}
	}

	server := api.NewServer(session, database, cfg)

	// The plotter stays attached even when idle so the /api/plots
	// routes can start it later.
	plotter := monitor.NewResidualPlotter()
	server.AttachPlotter(plotter)
	if *plotDir != "" {
		if err := plotter.Start(*plotDir); err != nil {
			log.Fatalf("Failed to start residual plotter: %v", err)
		}
		defer plotter.Stop()
		log.Printf("Recording solve residual plots under %s", *plotDir)
	}

	if *serveStream {
		streamCfg := stream.DefaultConfig()
		streamCfg.ListenAddr = cfg.GetGRPCListenAddr()
		publisher := stream.NewPublisher(streamCfg)
		if err := publisher.Start(); err != nil {
			log.Fatalf("Failed to start solve stream: %v", err)
		}
		defer publisher.Stop()
		server.AttachStream(publisher)
	}

	// Create a wait group for the HTTP server routine
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// mount the API handlers and the admin debugging routes
		mux := server.ServeMux()
		database.AttachAdminRoutes(mux)

		httpServer := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", listenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
