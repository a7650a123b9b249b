// Package main provides the player daemon entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/ubiquity/internal/api/connect"
	"github.com/osa030/ubiquity/internal/app/library"
	"github.com/osa030/ubiquity/internal/app/session"
	"github.com/osa030/ubiquity/internal/infra/audio"
	"github.com/osa030/ubiquity/internal/infra/config"
	"github.com/osa030/ubiquity/internal/infra/logger"
	"github.com/osa030/ubiquity/internal/infra/metadata"
	"github.com/osa030/ubiquity/internal/infra/store"
)

var (
	app        = kingpin.New("ubiquityd", "ubiquity local music player daemon")
	configPath = app.Flag("config", "Path to config file (.yaml or .toml)").Default("config/ubiquity.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// scan command
	scanCmd = app.Command("scan", "Scan the music folders, print the result and exit")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available scan filters and exit")

	// list-backends command
	listBackendsCmd = app.Command("list-backends", "List available audio backends and exit")
)

func init() {
	app.Command("start", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	case listBackendsCmd.FullCommand():
		for _, name := range audio.Types() {
			fmt.Println(name)
		}
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == scanCmd.FullCommand() {
		if err := scan(cfg); err != nil {
			zlog.Error().Msgf("Scan failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open session store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Error().Msgf("Failed to close session store: %v", err)
		}
	}()

	reader := metadata.NewReader()
	backend := audio.New(audio.Config{
		Type:             cfg.Backend.Type,
		AboutToFinish:    time.Duration(cfg.Backend.AboutToFinishMs) * time.Millisecond,
		ProgressInterval: time.Duration(cfg.Backend.ProgressIntervalMs) * time.Millisecond,
		Settings:         cfg.Backend.Settings,
	}, reader)

	sessionMgr, err := session.NewManager(cfg, session.Deps{
		Backend: backend,
		Reader:  reader,
		Store:   st,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}

	ctx := context.Background()
	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	mux := http.NewServeMux()
	path, handler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessionMgr),
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)),
	)
	mux.Handle(path, handler)

	// HTTP/2 cleartext so gRPC clients can connect without TLS
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		sessionMgr.Close()
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the session first so subscription streams return
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// scan runs one library scan and prints the result.
func scan(cfg *config.Config) error {
	scanner, err := session.NewScanner(cfg, metadata.NewReader())
	if err != nil {
		return err
	}
	result, err := scanner.Scan(context.Background())
	if err != nil {
		return err
	}

	for i, t := range result.Tracks {
		fmt.Printf("%4d  %-8s  %s\n", i, t.DurationFormatted(), t.Name())
	}
	for _, r := range result.Rejected {
		fmt.Printf("skipped  %-24s  %s\n", r.Code, r.Path)
	}
	fmt.Printf("\n%d tracks, %d skipped, %d unreadable\n", len(result.Tracks), len(result.Rejected), result.Failed)
	return nil
}

// printFilters prints available scan filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := library.GetRegistered()
	for _, name := range library.FilterNames() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-20s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
