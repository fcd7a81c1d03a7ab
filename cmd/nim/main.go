// Command nim runs the assistant.
//
//	nim serve            HTTP + WebSocket API (and gRPC when server.grpc_addr is set)
//	nim mcp              MCP server on stdio
//	nim ask "<text>"     one request, answer on stdout
//	nim tools            list discovered capabilities
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/becomeliminal/nim-orchestrator/config"
	"github.com/becomeliminal/nim-orchestrator/engine"
	"github.com/becomeliminal/nim-orchestrator/mcpserver"
	"github.com/becomeliminal/nim-orchestrator/rpc"
	"github.com/becomeliminal/nim-orchestrator/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "tools":
		err = runTools(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Printf("nim %s\n", mcpserver.Version)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: nim <command> [flags]

Commands:
  serve          Run the HTTP/WebSocket API (and gRPC when configured)
  mcp            Run as an MCP server on stdio
  ask <text>     Answer one request and exit
  tools          List the available capabilities
  version        Print the version

Flags (all commands):
  -config path   TOML config file (default: nim.toml)
  -env path      .env file (default: .env)
`)
}

// loadConfig parses the shared flags and loads configuration.
func loadConfig(name string, args []string) (config.Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "TOML config file")
	envFile := fs.String("env", ".env", ".env file")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, fs.Args(), nil
}

func runServe(args []string) error {
	cfg, _, err := loadConfig("serve", args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// ============================================================================
	// SERVER SETUP
	// ============================================================================

	srv, err := server.New(server.Config{
		Assistant:      a.assistant,
		Catalog:        a.catalog,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout.Duration,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Run(cfg.Server.Addr)
	}()
	if cfg.Server.GRPCAddr != "" {
		go func() {
			errCh <- rpc.Serve(ctx, cfg.Server.GRPCAddr, rpc.NewService(a.assistant, a.catalog))
		}()
	}

	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🚀 nim running")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("📡 HTTP API: http://localhost%s/api/prompt", cfg.Server.Addr)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Addr)
	log.Printf("💚 Health check: http://localhost%s/health", cfg.Server.Addr)
	if cfg.Server.GRPCAddr != "" {
		log.Printf("📡 gRPC: %s", cfg.Server.GRPCAddr)
	}
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(args []string) error {
	cfg, _, err := loadConfig("mcp", args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := mcpserver.Deps{Assistant: a.assistant, Catalog: a.catalog}
	if a.store != nil {
		deps.Memory = a.store
	}
	// Logs go to stderr; stdout belongs to the MCP transport.
	return mcpserver.Serve(mcpserver.New(deps))
}

func runAsk(args []string) error {
	cfg, rest, err := loadConfig("ask", args)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(rest, " "))
	if text == "" {
		return errors.New(`usage: nim ask "<text>"`)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Tools.Watch = false
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.assistant.HandleText(ctx, text)
	if err != nil {
		return err
	}
	fmt.Println(out.Text)
	if out.Type == engine.OutputError {
		return out.Error
	}
	return nil
}

func runTools(args []string) error {
	cfg, _, err := loadConfig("tools", args)
	if err != nil {
		return err
	}

	registry := newRegistry(cfg)
	snapshot, err := registry.Discover(context.Background())
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		fmt.Printf("No capabilities found under %s\n", registry.Root())
		return nil
	}
	for _, d := range snapshot {
		fmt.Println(d.Summary())
	}
	return nil
}
