// Command viewpoint serves accessibility snapshots of live browser pages
// over HTTP and MCP.
//
// Usage:
//
//	viewpoint -config viewpoint.yaml        # serve pages from YAML config
//	viewpoint -url https://example.com      # open a single page and serve
//	viewpoint -url https://example.com -mcp # also expose MCP tools on stdio
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
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/stephenstubbs/viewpoint/archive"
	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/httpapi"
	"github.com/stephenstubbs/viewpoint/internal/browser"
	"github.com/stephenstubbs/viewpoint/internal/config"
	"github.com/stephenstubbs/viewpoint/mcpsrv"
	"github.com/stephenstubbs/viewpoint/session"
)

func main() {
	configPath := flag.String("config", "", "path to viewpoint.yaml config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	singleURL := flag.String("url", "", "open a single URL at startup")
	remote := flag.String("remote", "", "ws:// URL of an external Chrome (overrides config)")
	headful := flag.Bool("headful", false, "run the browser with a visible window")
	mcpStdio := flag.Bool("mcp", false, "also serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *addr, *singleURL, *remote, *headful, *mcpStdio); err != nil {
		logger.Error("viewpoint: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr, singleURL, remote string, headful, mcpStdio bool) error {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if remote != "" {
		cfg.Browser.Remote = remote
	}
	if headful {
		cfg.Browser.Headful = true
	}
	if singleURL != "" {
		cfg.Pages = append(cfg.Pages, config.PageConfig{URL: singleURL})
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headful:   cfg.Browser.Headful,
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	defer mgr.Close()

	reg := session.NewRegistry(logger)
	engine := axsnap.New(axsnap.Config{Logger: logger})
	opener := browser.NewOpener(ctx, mgr, reg, reg.NewContext(), logger)

	var arch *archive.Store
	if cfg.Archive.Path != "" {
		var err error
		arch, err = archive.Open(cfg.Archive.Path, cfg.Archive.StoreOutlines)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer arch.Close()
		go retentionLoop(ctx, logger, arch, cfg.Archive.RetentionDays)
	}

	for _, pc := range cfg.Pages {
		if _, err := opener.OpenPage(ctx, pc.URL); err != nil {
			logger.Warn("viewpoint: startup page failed", "url", pc.URL, "error", err)
		}
	}

	if mcpStdio {
		mcpService := mcpsrv.NewService(logger, reg, engine, opener, cfg.Capture)
		srv := mcp.NewServer(&mcp.Implementation{Name: "viewpoint", Version: "1.0.0"}, nil)
		mcpService.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("viewpoint: mcp stdio", "error", err)
			}
		}()
		logger.Info("viewpoint: mcp tools on stdio")
	}

	api := httpapi.NewService(logger, reg, engine, opener, arch, cfg.Capture)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("viewpoint: http listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("viewpoint: http shutdown", "error", err)
	}
	logger.Info("viewpoint: stopped")
	return nil
}

// retentionLoop prunes archived captures past the retention window.
func retentionLoop(ctx context.Context, logger *slog.Logger, arch *archive.Store, days int) {
	retention := time.Duration(days) * 24 * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := arch.Cleanup(ctx, retention)
			if err != nil {
				logger.Warn("viewpoint: archive cleanup", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("viewpoint: archive pruned", "events", n)
			}
		}
	}
}
