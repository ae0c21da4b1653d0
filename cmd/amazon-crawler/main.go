package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	applog "github.com/Sriram-PR/amazon-crawler/pkg/log"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
	"github.com/Sriram-PR/amazon-crawler/pkg/watch"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "tasks":
		runTasks(os.Args[2:])
	case "classify":
		runClassify(os.Args[2:])
	case "process":
		runProcess(os.Args[2:])
	case "schedule":
		runSchedule(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("amazon-crawler %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `amazon-crawler - Amazon listing, product and review crawler

Usage:
  amazon-crawler <command> [options]

Commands:
  tasks       Show the task catalog and each task's window
  classify    Classify URLs into page traits
  process     Run saved pages through relevance, extraction and link collection
  schedule    Seed the frontier from task seed lists on schedule
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'amazon-crawler <command> -h' for command-specific help.`)
}

// setupLogger creates the process logger, reporting an unusable level through the logger itself.
// A non-empty flag value overrides the configured level.
func setupLogger(out io.Writer, flagLevel, cfgLevel string) *logrus.Logger {
	level := cfgLevel
	if flagLevel != "" {
		level = flagLevel
	}
	log, warning := applog.NewLogger(out, level)
	if warning != "" {
		log.Warn(warning)
	}
	return log
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// A second signal forces exit.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	return ctx, func() {
		cancel()
		signal.Stop(sigChan)
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amazon-crawler validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate validates the configuration and the task catalog and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, warnings, err := config.Load(configPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	// Construct the scheduler to run the catalog window checks for the selected tasks
	seeds := watch.NewSeedSource(appCfg.SeedDir, appCfg.Links.DropParams...)
	pool := queue.NewPool(nil, discardEntry())
	defer pool.Close()
	sched, err := watch.NewScheduler(appCfg.Schedule, pool, seeds, watch.NewStateManager(appCfg.Schedule.StateFile), nil, discardEntry())
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	hasError := false
	for _, t := range sched.Tasks() {
		if t.FileName == "" {
			fmt.Fprintf(stdout, "OK: [%s] no seed list\n", t.Name)
			continue
		}
		urls, err := seeds.Read(t.FileName)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", t.Name, err)
			hasError = true
			continue
		}
		if len(urls) == 0 {
			fmt.Fprintf(stdout, "WARN: [%s] seed list %s is empty\n", t.Name, t.FileName)
		}
		fmt.Fprintf(stdout, "OK: [%s] %d seed URLs\n", t.Name, len(urls))
	}
	if hasError {
		return 1
	}

	if appCfg.Commit.HasSink() {
		fmt.Fprintf(stdout, "Sink: %s table %q (sync batch size %d)\n", appCfg.Commit.Driver, appCfg.Commit.Table, appCfg.EffectiveSyncBatchSize())
	} else {
		fmt.Fprintln(stdout, "Sink: none, results are exported as JSON documents")
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

func discardEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// runTasks handles the tasks subcommand
func runTasks(args []string) {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (optional; reads schedule state)")
	at := fs.String("at", "", "Evaluate windows at this RFC3339 instant instead of now")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amazon-crawler tasks [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler tasks\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler tasks -at 2024-05-01T09:30:00Z -json\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doTasks(*configFile, *at, *asJSON, os.Stdout, os.Stderr))
}

// doTasks prints the scheduling status of every configured task.
// Returns exit code (0 = success, 1 = error).
func doTasks(configPath, at string, asJSON bool, stdout, stderr io.Writer) int {
	now := time.Now()
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid -at value %q: %v\n", at, err)
			return 1
		}
		now = parsed
	}

	appCfg, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	pool := queue.NewPool(nil, discardEntry())
	defer pool.Close()
	state := watch.NewStateManager(appCfg.Schedule.StateFile)
	if err := state.Load(); err != nil {
		fmt.Fprintf(stderr, "Warning: schedule state not loaded: %v\n", err)
	}
	sched, err := watch.NewScheduler(appCfg.Schedule, pool, watch.NewSeedSource(appCfg.SeedDir), state, nil, discardEntry())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	statuses := sched.Status(now)

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statuses); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tPRIORITY\tTIER\tPERIOD\tWINDOW\tACTIVE\tNEXT RUN")
	for _, st := range statuses {
		window := st.Start.Format("01-02 15:04") + " - " + st.End.Format("01-02 15:04")
		next := st.NextRun.Format("01-02 15:04")
		if st.FileName == "" {
			next = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\t%s\n",
			st.Name, st.Label, st.Priority, st.Tier, st.Period, window, st.Active, next)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runClassify handles the classify subcommand
func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	htmlFile := fs.String("html", "", "Saved page HTML consulted for ambiguous URLs (single URL only)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amazon-crawler classify [options] <url>...\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler classify https://www.amazon.com/dp/B0C1234567\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler classify -html page.html https://www.amazon.com/gp/aw/d/B0C1234567\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doClassify(fs.Args(), *htmlFile, os.Stdout, os.Stderr))
}

// doClassify prints the traits and routed tasks of each URL.
// Returns exit code (0 = success, 1 = error).
func doClassify(urls []string, htmlPath string, stdout, stderr io.Writer) int {
	if htmlPath != "" && len(urls) != 1 {
		fmt.Fprintln(stderr, "Error: -html takes exactly one URL")
		return 1
	}

	var doc *parse.Document
	if htmlPath != "" {
		content, err := os.ReadFile(htmlPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		doc, err = parse.ParseDocument(urls[0], content)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tKIND\tLABEL\tPRIMARY\tASIN\tTASKS")
	for _, u := range urls {
		t := traits.Classify(u, doc)
		var tasks []string
		if t.IsLabeledPortal() {
			for _, d := range task.ByLabel(t.PortalLabel) {
				tasks = append(tasks, d.Name)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%s\n",
			u, t.Kind, dash(t.PortalLabel), t.IsPrimaryPortal, dash(t.ASIN), dash(strings.Join(tasks, ",")))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// exitCodeFor maps a command error to an exit code, treating cancellation as a clean stop
func exitCodeFor(err error, log *logrus.Logger) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Stopped by signal.")
		return 0
	default:
		log.Errorf("Finished with error: %v", err)
		return 1
	}
}
