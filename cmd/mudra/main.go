package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "mudra.yaml", "path to the YAML config file")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	debug := flag.Bool("debug", false, "enable debug logging")
	classify := flag.String("classify", "", "classify a video file, print the response and exit")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if *classify != "" {
		if err := classifyFile(*configPath, *classify); err != nil {
			slog.Error("classify failed", "path", *classify, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *addr); err != nil {
		slog.Error("mudra exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := a.Server().HTTPServer(cfg.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr, "static_dir", cfg.Server.StaticDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// classifyFile runs one video through the recognizer without serving HTTP.
func classifyFile(configPath, path string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Camera.Enabled = false
	cfg.MQTT.Broker = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.ClassifyFile(ctx, path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// findWebDir returns the first web client directory found next to the
// working directory or in ~/.mudra/web, or "" if there is none.
func findWebDir() string {
	candidates := []string{"web", "../web", "../../web"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".mudra", "web"))
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
