// Package mcp exposes the crawler's schedule, classifier, queues and exports as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/extract"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/relevance"
	"github.com/Sriram-PR/amazon-crawler/pkg/watch"
)

const (
	serverName = "amazon-crawler"
)

// ServerVersion is reported to MCP clients; main overrides it at build time
var ServerVersion = "dev"

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger

	Pool      *queue.Pool
	Scheduler *watch.Scheduler
	Pipeline  *extract.Pipeline // Optional; enables extract_html
	Registry  *metrics.Registry // Optional
	Status    *metrics.LogStatusWriter
}

// Server wraps the MCP server with the crawler's tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	gate       *relevance.Gate
	log        *logrus.Entry
	jobManager *JobManager
	tools      []string
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Pool == nil || cfg.Scheduler == nil {
		return nil, fmt.Errorf("queue pool and scheduler are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		ServerVersion,
		server.WithLogging(),
	)

	log := cfg.Logger.WithField("component", "mcp")
	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		gate:       relevance.NewGate(relevance.DocumentChecker{MinContentLength: cfg.AppConfig.MinContentLength}, nil, log),
		log:        log,
		jobManager: NewJobManager(),
	}

	s.registerTools()
	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List the scheduled crawl tasks with their current window, tier and last seeding run"),
	), s.handleListTasks)

	s.addTool(mcp.NewTool("classify_url",
		mcp.WithDescription("Classify an Amazon URL into its page traits; with html, also run the relevance check"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page URL"),
		),
		mcp.WithString("html",
			mcp.Description("Raw page HTML (optional)"),
		),
	), s.handleClassifyURL)

	s.addTool(mcp.NewTool("queue_status",
		mcp.WithDescription("Snapshot the frontier queues, counters and recent status reports"),
	), s.handleQueueStatus)

	s.addTool(mcp.NewTool("seed_task",
		mcp.WithDescription("Seed a task's URLs into the frontier in the background. Returns immediately with a job ID."),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task name, e.g. BEST_SELLERS"),
		),
	), s.handleSeedTask)

	s.addTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a seeding job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by seed_task"),
		),
	), s.handleGetJobStatus)

	s.addTool(mcp.NewTool("search_exported",
		mcp.WithDescription("Search exported result documents using text matching"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (case-insensitive substring match)"),
		),
		mcp.WithString("label",
			mcp.Description("Limit search to one task label (optional)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
		),
	), s.handleSearchExported)

	if s.cfg.Pipeline != nil {
		s.addTool(mcp.NewTool("extract_html",
			mcp.WithDescription("Run a page through relevance, extraction and link collection"),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("The page URL"),
			),
			mcp.WithString("html",
				mcp.Required(),
				mcp.Description("Raw page HTML"),
			),
			mcp.WithString("label",
				mcp.Description("Task label the page was fetched for (optional)"),
			),
		), s.handleExtractHTML)
	}

	s.log.Infof("Registered %d MCP tools", len(s.tools))
}

// Tools returns the names of the registered tools
func (s *Server) Tools() []string { return append([]string(nil), s.tools...) }

// Run starts the MCP server with the configured transport
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		go func() {
			<-ctx.Done()
			_ = sseServer.Shutdown(context.Background())
		}()
		if err := sseServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
