// Command area-monitor runs the zone monitoring pipelines behind an HTTP
// API, optionally replaying recorded detector output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/api"
	"github.com/banshee-data/area-monitor/internal/config"
	"github.com/banshee-data/area-monitor/internal/db"
	"github.com/banshee-data/area-monitor/internal/monitoring"
	"github.com/banshee-data/area-monitor/internal/pipeline"
	"github.com/banshee-data/area-monitor/internal/timeutil"
	"github.com/banshee-data/area-monitor/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to tuning JSON (default: config/tuning.defaults.json)")
	envFile        = flag.String("env-file", ".env", "Optional dotenv file with AREA_* overrides")
	listen         = flag.String("listen", "", "Listen address (overrides config; empty disables the server when replaying)")
	dbPath         = flag.String("db", "", "SQLite database path (overrides config)")
	replayPath     = flag.String("replay", "", "JSONL file of frames to replay")
	replayRealtime = flag.Bool("replay-realtime", false, "Pace replay by frame timestamps")
	zonesPath      = flag.String("zones", "", "JSON file of zones to register at startup")
	logLevel       = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat      = flag.String("log-format", "", "Log format: json or console (overrides config)")
	traceFrames    = flag.Bool("trace-frames", false, "Log one line per processed frame")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

const (
	alertQueueSize = 1024
	frameQueueSize = 4096
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	tuning, err := loadTuning(*configPath, *envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlagOverrides(tuning)

	logger, err := monitoring.NewLogger(tuning.GetLogLevel(), tuning.GetLogFormat(), "area-monitor")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	restoreLogf := monitoring.UseZap(logger)
	defer restoreLogf()
	restoreStdLog := zap.RedirectStdLog(logger)
	defer restoreStdLog()
	configurePipelineLogs(logger, tuning.GetLogLevel(), *traceFrames)
	log.Printf("starting %s", version.String())

	database, err := db.Open(tuning.GetDatabasePath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	// Storage writes happen off the frame path.
	alertSink := alerts.NewAsyncSink(database, alertQueueSize)
	hub := api.NewBroadcaster()
	manager := pipeline.NewManager(tuning, nil, alertSink, hub)

	if *zonesPath != "" {
		n, err := seedZones(manager, *zonesPath)
		if err != nil {
			log.Fatalf("failed to load zones: %v", err)
		}
		log.Printf("registered %d zones from %s", n, *zonesPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	frames := newFrameRecorder(database, frameQueueSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		frames.run(ctx)
		log.Print("frame recorder stopped")
	}()

	if days := tuning.GetRetentionDays(); days > 0 {
		worker := db.NewRetentionWorker(database, time.Duration(days)*24*time.Hour, nil)
		worker.PruneFuncs = append(worker.PruneFuncs, manager.PruneAlerts)
		if _, err := worker.RunOnce(); err != nil {
			log.Printf("initial retention pass failed: %v", err)
		}
		worker.Start()
		defer worker.Stop()
	}

	addr := tuning.GetListen()
	if *replayPath != "" && *listen == "" && flagPassed("listen") {
		addr = ""
	}

	if *replayPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var pace timeutil.Clock
			if *replayRealtime {
				pace = timeutil.RealClock{}
			}
			n, err := replay(ctx, manager, *replayPath, pace, frames.record)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("replay failed after %d frames: %v", n, err)
			} else {
				log.Printf("replay finished: %d frames", n)
			}
			if addr == "" {
				stop()
			}
		}()
	}

	if addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := api.NewServer(manager, database, hub)
			srv.FrameHook = frames.record
			server := &http.Server{
				Addr:              addr,
				Handler:           api.LoggingMiddleware(srv.ServeMux()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				log.Printf("listening on %s", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("failed to start server: %v", err)
					stop()
				}
			}()

			<-ctx.Done()
			log.Println("shutting down HTTP server...")
			hub.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				if err := server.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}
			log.Printf("HTTP server routine stopped")
		}()
	} else if *replayPath == "" {
		log.Fatal("nothing to do: set -listen or -replay")
	}

	wg.Wait()
	alertSink.Close()
	if n := alertSink.Dropped(); n > 0 {
		log.Printf("dropped %d alert writes (queue full)", n)
	}
	if n := frames.dropped(); n > 0 {
		log.Printf("dropped %d frame summaries (queue full)", n)
	}
	log.Printf("Graceful shutdown complete")
}

func loadTuning(path, envFile string) (*config.TuningConfig, error) {
	var (
		cfg *config.TuningConfig
		err error
	)
	if path == "" {
		cfg = config.MustLoadDefaultConfig()
	} else if cfg, err = config.LoadTuningConfig(path); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides copies explicitly set flags over the loaded tuning.
func applyFlagOverrides(cfg *config.TuningConfig) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = logFormat
	}
}

func flagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// configurePipelineLogs sends the pipeline's ops stream to zap at warn
// level, diag only when debugging, and trace only on request.
func configurePipelineLogs(logger *zap.Logger, level string, trace bool) {
	named := logger.Named("pipeline")
	ops, err := zap.NewStdLogAt(named, zap.WarnLevel)
	if err != nil {
		ops = zap.NewStdLog(named)
	}
	var diag, traceW io.Writer
	if monitoring.ParseLevel(level) == zap.DebugLevel {
		diag = zap.NewStdLog(named).Writer()
	}
	if trace {
		traceW = zap.NewStdLog(named).Writer()
	}
	pipeline.SetLogWriters(ops.Writer(), diag, traceW)
}

// replay feeds a JSONL capture through the manager. With a non-nil pace
// clock it waits out the gap between frame timestamps. It returns the
// number of frames processed.
func replay(ctx context.Context, m *pipeline.Manager, path string, pace timeutil.Clock, onFrame func(pipeline.FrameResult)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fr := pipeline.NewFrameReader(f)
	var (
		n    int
		last time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		frame, err := fr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		if pace != nil && !last.IsZero() && frame.Timestamp.After(last) {
			select {
			case <-pace.After(frame.Timestamp.Sub(last)):
			case <-ctx.Done():
				return n, ctx.Err()
			}
		}
		if !frame.Timestamp.IsZero() {
			last = frame.Timestamp
		}
		res := m.ProcessFrame(frame)
		if onFrame != nil {
			onFrame(res)
		}
		n++
	}
}
