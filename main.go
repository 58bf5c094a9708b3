package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	go2tvadapters "go2tv.app/uniremote/internal/adapters/go2tv"
	mdnsadapters "go2tv.app/uniremote/internal/adapters/mdns"
	"go2tv.app/uniremote/internal/buildinfo"
	"go2tv.app/uniremote/internal/config"
	"go2tv.app/uniremote/internal/diagnostics"
	"go2tv.app/uniremote/internal/discovery"
	"go2tv.app/uniremote/internal/domain"
	"go2tv.app/uniremote/internal/firetv"
	"go2tv.app/uniremote/internal/httpapi"
	"go2tv.app/uniremote/internal/lifecycle"
	"go2tv.app/uniremote/internal/mcpserver"
	"go2tv.app/uniremote/internal/netlock"
	"go2tv.app/uniremote/internal/remote"
	"go2tv.app/uniremote/internal/roku"
	"go2tv.app/uniremote/internal/settings"
)

const (
	serverName      = "uniremote"
	shutdownTimeout = 5 * time.Second
)

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Config struct {
		StorePath        string `json:"store_path"`
		HTTPListen       string `json:"http_listen,omitempty"`
		RouteDiscovery   bool   `json:"route_discovery"`
		InstallDiscovery bool   `json:"install_discovery"`
		SSDPWatch        bool   `json:"ssdp_watch"`
	} `json:"config"`
	Capabilities diagnostics.CapabilityReport `json:"capabilities"`
}

func main() {
	selfTest := flag.Bool("self-test", false, "run capability diagnostics then exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to a uniremote.yaml config file")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *selfTest {
		out := selfTestOutput{Capabilities: diagnostics.DetectCapabilities(cfg.FireTV.SDKPlugin)}
		out.Server.Name = serverName
		out.Server.Version = buildinfo.Version
		out.Config.StorePath = cfg.Store.Path
		out.Config.HTTPListen = cfg.HTTP.Listen
		out.Config.RouteDiscovery = cfg.FireTV.RouteDiscovery
		out.Config.InstallDiscovery = cfg.FireTV.InstallDiscovery
		out.Config.SSDPWatch = cfg.Discovery.Watch

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logger := newLogger(cfg.Log, os.Stderr)
	logger.Info(
		"uniremote_start",
		slog.String("server", serverName),
		slog.String("version", buildinfo.Version),
		slog.String("store", cfg.Store.Path),
		slog.String("http_listen", cfg.HTTP.Listen),
	)

	if err := run(runCtx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, ok := config.ParseLogLevel(cfg.Level)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid %s_LOG_LEVEL=%q; defaulting to info\n", config.EnvPrefix, cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (runErr error) {
	stack := lifecycle.NewStack(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stack.Close(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}()

	store, err := settings.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	stack.Push("settings_store", func(context.Context) error { return store.Close() })

	if addr := strings.TrimSpace(cfg.Roku.Address); addr != "" {
		seeded, err := store.SeedRokuAddress(ctx, addr)
		if err != nil {
			return err
		}
		if seeded {
			logger.Info("settings_roku_seeded", slog.String("address", addr))
		}
	}

	rokuClient := roku.NewClient(roku.Options{
		UserAgent:      cfg.Roku.UserAgent,
		KeyTimeout:     cfg.Roku.KeyTimeout,
		PowerOnTimeout: cfg.Roku.PowerOnTimeout,
		PowerOnBackoff: cfg.Roku.PowerOnBackoff,
		Logger:         logger,
	})
	scanner := discovery.NewService(rokuClient, discovery.Options{
		Budget:        cfg.Discovery.Budget,
		PacketTimeout: cfg.Discovery.PacketTimeout,
		InfoTimeout:   cfg.Discovery.InfoTimeout,
		Logger:        logger,
	})

	if cfg.Discovery.Watch {
		watcher := discovery.NewWatcher(logger)
		err := watcher.Start(
			func(dev domain.RokuDevice) {
				logger.Info("roku_seen", slog.String("address", dev.Address), slog.String("location", dev.Location))
			},
			func(dev domain.RokuDevice) {
				logger.Info("roku_gone", slog.String("address", dev.Address))
			},
		)
		if err != nil {
			logger.Warn("ssdp_watch_unavailable", slog.String("error", err.Error()))
		} else {
			stack.Push("ssdp_watcher", func(context.Context) error { return watcher.Stop() })
		}
	}

	fireOpts := firetv.Options{
		PluginPath: cfg.FireTV.SDKPlugin,
		Lock:       netlock.New(serverName+"-firetv", logger),
		Logger:     logger,
	}
	if cfg.FireTV.RouteDiscovery {
		fireOpts.Route = go2tvadapters.NewBundle(ctx, 0, logger).Route
	}
	if cfg.FireTV.InstallDiscovery {
		fireOpts.Install = mdnsadapters.NewInstallChannel(cfg.FireTV.DiscoveryWindow, 0, logger)
	}
	fireTV := firetv.New(fireOpts)
	stack.PushFunc("firetv_discovery", fireTV.StopDiscovery)

	svc := remote.NewService(remote.ServiceOptions{
		Store:      store,
		Dispatcher: remote.NewDispatcher(rokuClient, fireTV, store, logger),
		Roku:       scanner,
		Receivers:  fireTV,
		FireTV:     fireTV,
		Feed:       fireTV,
		Logger:     logger,
	})

	if sigs := lifecycle.RescanSignals(); len(sigs) > 0 {
		rescan := make(chan os.Signal, 1)
		signal.Notify(rescan, sigs...)
		stack.PushFunc("rescan_signals", func() { signal.Stop(rescan) })
		go rescanOnSignal(ctx, rescan, svc, logger)
	}

	if listen := strings.TrimSpace(cfg.HTTP.Listen); listen != "" {
		httpServer := &http.Server{
			Addr:              listen,
			Handler:           httpapi.New(svc, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http_server_failed", slog.String("error", err.Error()))
			}
		}()
		stack.Push("http_server", httpServer.Shutdown)
		logger.Info("http_server_start", slog.String("listen", listen))
	}

	srv := mcpserver.New(os.Stdin, os.Stdout, mcpserver.Config{
		ServerName:    serverName,
		ServerVersion: buildinfo.Version,
		Logger:        logger,
		Remote:        svc,
	})

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- srv.Run(ctx)
	}()

	select {
	case runErr = <-runErrCh:
		// With the HTTP API up, a closed stdin only ends the MCP session.
		if runErr == nil && cfg.HTTP.Listen != "" {
			logger.Info("mcp_session_closed")
			<-ctx.Done()
			runErr = ctx.Err()
		}
	case <-ctx.Done():
		runErr = ctx.Err()
	}
	if runErr != nil {
		logger.Warn("uniremote_stopping", slog.String("reason", runErr.Error()))
	} else {
		logger.Info("uniremote_stopping", slog.String("reason", "clean_eof"))
	}
	return runErr
}

func rescanOnSignal(ctx context.Context, sigs <-chan os.Signal, svc *remote.Service, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			devices, err := svc.ScanRoku(ctx, 0)
			if err != nil {
				logger.Warn("roku_rescan_failed", slog.String("error", err.Error()))
				continue
			}
			for _, dev := range devices {
				logger.Info("roku_rescan_device", slog.String("address", dev.Address), slog.String("name", dev.DisplayName()))
			}
		}
	}
}
