package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

// scheduleOptions are the schedule subcommand's flags
type scheduleOptions struct {
	Once         bool
	Tasks        []string // Seed these tasks immediately, ignoring their last run
	FrontierFile string
}

// runSchedule handles the schedule subcommand
func runSchedule(args []string) {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal); overrides log_level")
	once := fs.Bool("once", false, "Seed the due tasks once and exit")
	tasks := fs.String("task", "", "Comma-separated task names to seed now and exit, e.g. BEST_SELLERS")
	frontier := fs.String("frontier", "", "Write the queued frontier URLs to this file on exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amazon-crawler schedule [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler schedule -config config.yaml\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler schedule -once -frontier frontier.tsv\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler schedule -task MOVERS_AND_SHAKERS,NEW_RELEASES\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	appCfg, warnings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	log := setupLogger(os.Stderr, *logLevel, appCfg.LogLevel)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	opts := scheduleOptions{Once: *once, FrontierFile: *frontier}
	for _, name := range strings.Split(*tasks, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.Tasks = append(opts.Tasks, name)
		}
	}

	err = doSchedule(ctx, appCfg, log, opts, os.Stdout)
	cancel()
	os.Exit(exitCodeFor(err, log))
}

// doSchedule seeds the frontier from the task seed lists. Without Once or Tasks it blocks until ctx is cancelled.
func doSchedule(ctx context.Context, appCfg *config.AppConfig, log *logrus.Logger, opts scheduleOptions, stdout io.Writer) error {
	st, err := newStack(ctx, appCfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	defer func() {
		if opts.FrontierFile == "" {
			return
		}
		if err := writeFrontierFile(opts.FrontierFile, st.pool); err != nil {
			log.Errorf("Writing frontier: %v", err)
		}
	}()

	if len(opts.Tasks) > 0 || opts.Once {
		if err := st.scheduler.LoadState(); err != nil {
			log.Warnf("Failed to load schedule state: %v (starting fresh)", err)
		}
	}

	switch {
	case len(opts.Tasks) > 0:
		for _, name := range opts.Tasks {
			run, err := st.scheduler.SeedNow(ctx, name)
			if err != nil {
				return err
			}
			printRun(stdout, run)
		}
		return nil
	case opts.Once:
		runs := st.scheduler.RunDue(ctx)
		if len(runs) == 0 {
			fmt.Fprintln(stdout, "No task due.")
		}
		for _, run := range runs {
			printRun(stdout, run)
		}
		return ctx.Err()
	}

	if appCfg.Metrics.Enabled {
		st.reg.StartServer(ctx, appCfg.Metrics.Addr, appCfg.Metrics.Path, log.WithField("component", "metrics"))
	}
	log.Infof("Scheduling %d tasks (cron %q)", len(st.scheduler.Tasks()), appCfg.Schedule.Cron)
	return st.scheduler.Run(ctx)
}

func printRun(w io.Writer, run models.TaskRunState) {
	if run.LastError != "" {
		fmt.Fprintf(w, "%-20s error: %s\n", run.Name, run.LastError)
		return
	}
	fmt.Fprintf(w, "%-20s seeds=%d enqueued=%d next=%s\n", run.Name, run.SeedCount, run.Enqueued, run.NextRun.Format("2006-01-02 15:04"))
}
