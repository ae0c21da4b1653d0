package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/mcp"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "", "Transport type (stdio, sse); overrides mcp.transport")
	port := fs.Int("port", 0, "HTTP port (for sse transport); overrides mcp.port")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: amazon-crawler mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  amazon-crawler mcp-server -config config.yaml

  # Start with SSE transport on port 8090
  amazon-crawler mcp-server -config config.yaml -transport sse -port 8090

Available MCP Tools:
  list_tasks       List scheduled tasks with their window and last run
  classify_url     Classify a URL (and optionally its HTML)
  queue_status     Snapshot the frontier queues and counters
  seed_task        Seed a task's URLs in the background
  get_job_status   Check a seeding job
  search_exported  Search exported result documents
  extract_html     Run a page through the extraction pipeline
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := doMcpServer(ctx, *configFile, *transport, *port, *logLevel, os.Stderr)
	stop()
	os.Exit(code)
}

// doMcpServer is the testable implementation of the MCP server.
// The MCP protocol owns stdout, so logs and errors go to stderr.
func doMcpServer(ctx context.Context, configPath, transport string, port int, logLevel string, stderr io.Writer) int {
	appCfg, warnings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if transport != "" {
		appCfg.MCP.Transport = transport
	}
	if port > 0 {
		appCfg.MCP.Port = port
	}

	log := setupLogger(stderr, logLevel, appCfg.LogLevel)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := newStack(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing crawler: %v\n", err)
		return 1
	}
	defer st.Close()
	if err := st.scheduler.LoadState(); err != nil {
		log.Warnf("Failed to load schedule state: %v (starting fresh)", err)
	}
	if appCfg.Metrics.Enabled {
		st.reg.StartServer(ctx, appCfg.Metrics.Addr, appCfg.Metrics.Path, log.WithField("component", "metrics"))
	}

	mcp.ServerVersion = version
	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  appCfg.MCP.Transport,
		Port:       appCfg.MCP.Port,
		Logger:     log,
		Pool:       st.pool,
		Scheduler:  st.scheduler,
		Pipeline:   st.pipeline,
		Registry:   st.reg,
		Status:     st.status,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer func() { _ = server.Shutdown(context.Background()) }()

	log.Infof("Starting MCP server (transport: %s)", appCfg.MCP.Transport)
	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
