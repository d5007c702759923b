package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pgilab/pgilab/server/internal/api"
	"github.com/pgilab/pgilab/server/internal/auth"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/config"
	"github.com/pgilab/pgilab/server/internal/dataset"
	"github.com/pgilab/pgilab/server/internal/filewatch"
	"github.com/pgilab/pgilab/server/internal/metrics"
	"github.com/pgilab/pgilab/server/internal/report"
	"github.com/pgilab/pgilab/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses built-in defaults")
	dataPath := flag.String("data", "", "dataset CSV path; overrides dataset.path from the config")
	uiDir := flag.String("ui-dir", "", "serve static UI files from this directory; leave empty to disable")
	flag.Parse()

	// A missing .env is normal; the environment may already hold the API key.
	_ = godotenv.Load()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("pgilab-server starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	if *dataPath != "" {
		cfg.Dataset.Path = *dataPath
	}
	level.Set(cfg.Logging.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"dataset", cfg.Dataset.Path,
		"autosave", cfg.Dataset.Autosave,
		"watch", cfg.Dataset.Watch,
		"checks", len(cfg.Checks),
		"webhooks", len(cfg.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Dataset store, loaded from the CSV file. A missing file starts empty.
	st := dataset.New(dataset.Codec{Comma: cfg.Dataset.Comma()})
	res, err := st.LoadFile(cfg.Dataset.Path)
	if err != nil {
		slog.Error("failed to load dataset", "path", cfg.Dataset.Path, "err", err)
		os.Exit(1)
	}
	for _, re := range res.Errors {
		slog.Warn("dataset row skipped", "path", cfg.Dataset.Path, "line", re.Line, "err", re.Error())
	}
	slog.Info("dataset loaded", "path", cfg.Dataset.Path, "rows", st.Len(), "errors", len(res.Errors))
	if len(res.Errors) > 0 && cfg.Dataset.Autosave {
		slog.Warn("autosave paused until the rejected rows are fixed on disk", "path", cfg.Dataset.Path)
	}

	var saveMu sync.Mutex
	save := func() {
		saveMu.Lock()
		defer saveMu.Unlock()
		err := st.SaveFile(cfg.Dataset.Path)
		switch {
		case errors.Is(err, dataset.ErrRejectedRows):
			slog.Warn("dataset not saved: fix the rejected rows in the file first", "path", cfg.Dataset.Path, "rejected", st.Rejected())
		case err != nil:
			slog.Error("failed to save dataset", "path", cfg.Dataset.Path, "err", err)
		}
	}
	if cfg.Dataset.Autosave {
		st.OnChange(save)
	}

	if cfg.Dataset.Watch {
		go func() {
			err := filewatch.Watch(ctx, cfg.Dataset.Path, filewatch.DefaultDebounce, func() {
				changed, res, err := st.ReloadFile(cfg.Dataset.Path)
				if err != nil {
					slog.Warn("dataset reload failed, keeping current records", "path", cfg.Dataset.Path, "err", err)
					return
				}
				if changed {
					slog.Info("dataset reloaded", "path", cfg.Dataset.Path, "rows", st.Len(), "errors", len(res.Errors))
				}
			})
			if err != nil {
				slog.Error("dataset watch stopped", "err", err)
			}
		}()
	}

	// Config hot reload adjusts the log level; everything else needs a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(c *config.Config) {
				level.Set(c.Logging.SlogLevel())
				slog.Info("config reloaded", "level", c.Logging.SlogLevel().String())
			})
			if err != nil {
				slog.Error("config watch stopped", "err", err)
			}
		}()
	}

	engine, err := checks.New(cfg.Checks)
	if err != nil {
		slog.Error("invalid checks", "err", err)
		os.Exit(1)
	}

	// Check notifications: announce findings that appear or clear after a change.
	notifier := checks.NewNotifier(engine, cfg.Webhooks)
	notifier.Baseline(st.Records())
	st.OnChange(func() { notifier.Evaluate(st.Records()) })

	reg := metrics.NewRegistry(st)

	// WebSocket hub: broadcasts the summary on every tick and every change.
	hub := ws.New(st, cfg.Server.BroadcastInterval)
	st.OnChange(hub.Notify)
	go hub.Run(ctx)

	apiHandler := api.New(st, api.Options{
		Checks:  engine,
		Metrics: reg.Recorder,
		Report: report.Options{
			Title:   cfg.Report.Title,
			GroupBy: cfg.Report.Grouping(),
			Chart:   cfg.Report.ChartKind(),
		},
	})
	authMW := auth.APIKey(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())
	if cfg.Server.Auth.Mode == auth.ModeAPIKey && cfg.Server.Auth.Key() == "" {
		slog.Warn("auth mode is apikey but the key is unset; API is open", "key_env", cfg.Server.Auth.KeyEnv)
	}

	// Combined HTTP server: REST API, metrics and WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", authMW(apiHandler))
	httpMux.Handle("/metrics", reg.Handler())
	httpMux.Handle("/ws/stream", hub)

	// Optional static UI. Unknown paths fall back to index.html.
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.RequestID(httpMux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("pgilab-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if cfg.Dataset.Autosave {
		save()
	}
	notifier.Wait()
}
