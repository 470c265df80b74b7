package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/toolbooth/toolbooth/internal/audit"
	"github.com/toolbooth/toolbooth/internal/auth"
	"github.com/toolbooth/toolbooth/internal/config"
	"github.com/toolbooth/toolbooth/internal/logging"
	"github.com/toolbooth/toolbooth/internal/mcpserver"
	"github.com/toolbooth/toolbooth/internal/server"
)

var Version = "dev"

func main() {
	// Handle hash-secret subcommand before anything else.
	if len(os.Args) > 1 && os.Args[1] == "hash-secret" {
		hashSecret()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashSecret reads a client secret from stdin and prints its bcrypt hash
// for use as client_secret_hash in a credentials file.
func hashSecret() {
	fmt.Fprint(os.Stderr, "Enter secret: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}
	secret := scanner.Text()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	clock := clockwork.NewRealClock()

	apiKeys, err := cfg.ParseAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing API keys: %w", err)
	}

	creds, err := cfg.ParseClientCredentials()
	if err != nil {
		return fmt.Errorf("parsing client credentials: %w", err)
	}

	registry := auth.NewRegistry(clock)
	defer registry.Stop()

	issuer := auth.NewIssuer(creds, []byte(cfg.SigningSecret), cfg.TokenLifetime, registry, clock)
	validator := auth.NewValidator(apiKeys, []byte(cfg.SigningSecret), registry, clock)

	var recorder auth.Recorder

	if cfg.AuditDBPath != "" {
		auditLog, err := audit.Open(cfg.AuditDBPath, logger)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer auditLog.Close()

		recorder = auditLog

		logger.Info("audit log enabled", slog.String("path", cfg.AuditDBPath))
	}

	gateway := auth.NewGateway(validator, recorder, logger, clock)

	// MCP server setup.
	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "toolbooth", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, clock)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Issuer:     issuer,
		Registry:   registry,
		Gateway:    gateway,
		MCPHandler: mcpHandler,
		Logger:     logger,
		ServerURL:  cfg.ServerURL,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server",
		slog.String("listen", cfg.ListenAddr),
		slog.String("server_url", cfg.ServerURL),
		slog.Int("api_keys", len(apiKeys)),
		slog.Int("clients", len(creds)),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
