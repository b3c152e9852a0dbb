package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/orientd/api"
	"github.com/banshee-data/orientd/db"
	"github.com/banshee-data/orientd/internal/config"
	"github.com/banshee-data/orientd/internal/engine"
	"github.com/banshee-data/orientd/internal/fsutil"
	"github.com/banshee-data/orientd/internal/iio"
	"github.com/banshee-data/orientd/internal/modebus"
	"github.com/banshee-data/orientd/internal/osk"
	"github.com/banshee-data/orientd/internal/swdev"
	"github.com/banshee-data/orientd/internal/xctl"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to a JSON config file")
	debugMode  = flag.Bool("debug", false, "Print a live sensor readout instead of managing the session")
)

func loadConfig() *config.Config {
	path := *configPath
	if path == "" {
		path = os.Getenv("ORIENTD_CONFIG")
	}
	if path == "" {
		return config.Empty()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", path, err)
	}
	return cfg
}

// Main
func main() {
	flag.Parse()

	// optional .env for ORIENTD_CONFIG and friends
	if err := godotenv.Load(); err == nil {
		log.Print("loaded environment from .env")
	}

	cfg := loadConfig()

	reader := iio.NewReader(fsutil.OSFileSystem{}, cfg.GetSensorsGlob(), cfg.GetSensorFaultCeiling())
	if err := reader.Discover(); err != nil {
		log.Fatalf("sensor discovery failed: %v", err)
	}

	if *debugMode {
		if err := runDebug(reader, cfg); err != nil {
			log.Fatalf("debug readout failed: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	ctl := xctl.NewX11()
	present, err := ctl.ListInputDeviceNames()
	if err != nil {
		log.Fatalf("failed to enumerate input devices: %v", err)
	}
	devices := engine.NewDeviceSet(cfg.GetKeyboards(), cfg.GetPointers(), cfg.GetTouchscreens(), present)

	keyboard := osk.NewLauncher(cfg.GetKeyboardCommand())

	var database *db.DB
	if path := cfg.GetDatabasePath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	// the tabletmode D-Bus signal is optional: without a bus connection the
	// daemon still runs on sensor heuristics alone
	var modeEvents <-chan bool
	if listener, err := modebus.Listen(); err != nil {
		log.Printf("tablet-mode bus signal unavailable: %v", err)
	} else {
		defer listener.Close()
		modeEvents = listener.Events()
	}

	var swpub engine.SwitchPublisher
	if cfg.GetPublishTabletSwitch() {
		sw, err := swdev.New()
		if err != nil {
			log.Printf("failed to create tablet-mode switch device: %v", err)
		} else {
			defer sw.Close()
			swpub = sw
		}
	}

	opts := engine.Options{
		Sensors:          reader,
		Controller:       ctl,
		Keyboard:         keyboard,
		Switch:           swpub,
		LidOpen:          func() bool { return iio.LidOpen(fsutil.OSFileSystem{}, cfg.GetLidStatePath()) },
		Devices:          devices,
		Output:           cfg.GetOutput(),
		GravityThreshold: cfg.GetGravityThreshold(),
		PollInterval:     cfg.GetPollInterval(),
		ModeEvents:       modeEvents,
	}
	if database != nil {
		opts.Recorder = database
	}
	eng := engine.New(opts)

	// Create a wait group for the engine and HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the engine routine to poll the sensors and apply transitions
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine terminated: %v", err)
		}
		log.Print("engine routine terminated")
		// a fatal engine error should bring the whole daemon down
		stop()
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		// mount the API handlers for status, poll interval, and transition log
		apiMux := api.NewServer(eng, database).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
