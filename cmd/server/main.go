/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the timesheet analytics engine: runs the HTTP
  server and offers one-shot maintenance commands against the same store.

COMMANDS:
  serve       Start the HTTP API (and the Kafka consumer when configured)
  recompute   Recompute derived records for a project, task, user week, or all
  snapshot    Print a user's all-time snapshot as a table or JSON
  seed        Load a demo scenario, or list scenarios without --scenario

CONFIGURATION (increasing precedence):
  defaults < --config YAML file < PERF_* environment < flags
  e.g. PERF_DB_PATH, PERF_EVENTS_TRANSPORT=kafka, PERF_KAFKA_BROKERS=a:9092,b:9092

  db.path "" selects the in-memory store; ":memory:" an in-memory SQLite.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the rebuild scheduler and the Kafka consumer
  4. Close the publisher and the database connection

EXAMPLES:
  server serve --port 3000
  server seed --scenario overloaded-sprint
  server recompute --user emp-eve --week 2025-03-10
  server snapshot --user emp-eve --json

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and defaults
  - events/: Inline and Kafka transports
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/warp/timesheet-analytics/api"
	"github.com/warp/timesheet-analytics/config"
	"github.com/warp/timesheet-analytics/events"
	"github.com/warp/timesheet-analytics/logging"
	"github.com/warp/timesheet-analytics/metrics"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/scenario"
	"github.com/warp/timesheet-analytics/store/memory"
	"github.com/warp/timesheet-analytics/store/sqlite"
	"github.com/warp/timesheet-analytics/timesheet"
)

var (
	v          = config.NewViper()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Timesheet performance analytics engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("db", "", "SQLite database path (empty keeps the configured value)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	_ = v.BindPFlag("db.path", flags.Lookup("db"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(seedCmd())
}

// =============================================================================
// WIRING
// =============================================================================

// app holds the components every command shares.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   api.Store
	close   func() error
	metrics *metrics.Recorder
	engine  *performance.Engine
}

func openApp() (*app, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	if cfg.DB.Path == "" {
		a.store, a.close = memory.New(), func() error { return nil }
		log.Warn("using in-memory store, data is lost on exit")
	} else {
		store, err := sqlite.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store, a.close = store, store.Close
	}

	a.engine = performance.NewEngine(a.store, a.store, log)
	a.engine.Observer = a.metrics
	return a, nil
}

func (a *app) kafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: a.cfg.Kafka.Brokers,
		Topic:   a.cfg.Kafka.Topic,
		GroupID: a.cfg.Kafka.Group,
	}
}

// withApp opens the shared components, runs fn, and closes the store.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	var consume bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				return serve(cmd.Context(), a, consume)
			})
		},
	}
	cmd.Flags().Int("port", 0, "HTTP server port")
	_ = v.BindPFlag("http.port", cmd.Flags().Lookup("port"))
	cmd.Flags().BoolVar(&consume, "consume", true, "with the kafka transport, also consume events in this process")
	return cmd
}

func serve(ctx context.Context, a *app, consume bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recomputer := &performance.Recomputer{Engine: a.engine}

	var (
		pub      events.Publisher
		consumer *events.Consumer
	)
	switch a.cfg.Events.Transport {
	case config.TransportKafka:
		kcfg := a.kafkaConfig()
		pub = events.NewKafkaPublisher(events.NewWriter(kcfg), a.log, a.metrics)
		if consume {
			consumer = events.NewConsumer(events.NewReader(kcfg), recomputer, a.log)
			consumer.Start(ctx)
		}
		a.log.Info("kafka transport", slog.Any("brokers", kcfg.Brokers), slog.String("topic", kcfg.Topic))
	default:
		pub = events.NewInline(recomputer, a.metrics)
	}
	defer pub.Close()

	handler := api.NewHandler(a.store, a.engine, pub, a.log)
	handler.Rebuilds = api.NewRebuildScheduler(handler, a.cfg.Rebuild.Interval)
	handler.Rebuilds.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, a.metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	handler.Rebuilds.Stop()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			a.log.Warn("consumer close failed", slog.Any("error", err))
		}
	}
	a.log.Info("server stopped")
	return nil
}

// =============================================================================
// RECOMPUTE
// =============================================================================

type recomputeFlags struct {
	Project string
	Task    string
	User    string
	Week    string
	All     bool
}

func recomputeCmd() *cobra.Command {
	var f recomputeFlags
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute derived records",
		Long: `Recompute derived records from raw state.

  --project ID           project performance
  --task ID              task efficiency
  --user ID [--week D]   employee performance for one week, or every week
  --all                  everything, in dependency order`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				out, err := recompute(cmd.Context(), a, f)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&f.Project, "project", "", "project id")
	cmd.Flags().StringVar(&f.Task, "task", "", "task id")
	cmd.Flags().StringVar(&f.User, "user", "", "user id")
	cmd.Flags().StringVar(&f.Week, "week", "", "week start (YYYY-MM-DD), with --user")
	cmd.Flags().BoolVar(&f.All, "all", false, "recompute everything")
	cmd.MarkFlagsMutuallyExclusive("project", "task", "user", "all")
	cmd.MarkFlagsOneRequired("project", "task", "user", "all")
	return cmd
}

func recompute(ctx context.Context, a *app, f recomputeFlags) (any, error) {
	e := a.engine
	switch {
	case f.All:
		return e.RecomputeAll(ctx, a.store)
	case f.Project != "":
		return e.RecomputeProject(ctx, timesheet.ProjectID(f.Project))
	case f.Task != "":
		return e.RecomputeTask(ctx, timesheet.TaskID(f.Task))
	case f.User != "" && f.Week != "":
		week, err := timesheet.ParseDate(f.Week)
		if err != nil {
			return nil, err
		}
		return e.RecomputeEmployee(ctx, timesheet.UserID(f.User), week)
	case f.User != "":
		user := timesheet.UserID(f.User)
		sheets, err := a.store.TimesheetsByUser(ctx, user)
		if err != nil {
			return nil, err
		}
		out := make([]*performance.EmployeePerformance, 0, len(sheets))
		for _, ts := range sheets {
			perf, err := e.RecomputeEmployee(ctx, user, ts.WeekStart)
			if err != nil {
				return nil, err
			}
			out = append(out, perf)
		}
		return out, nil
	}
	return nil, errors.New("nothing to recompute")
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func snapshotCmd() *cobra.Command {
	var (
		user   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print a user's all-time performance snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				snap, err := a.engine.Snapshot(cmd.Context(), timesheet.UserID(user))
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(snap)
				}
				renderSnapshot(os.Stdout, snap)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func renderSnapshot(w io.Writer, s *performance.EmployeeSnapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Snapshot " + string(s.UserID))
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Timesheets", s.Timesheets},
		{"Total hours", s.TotalHours},
		{"Productive hours", s.ProductiveHours},
		{"Admin hours", s.AdminHours},
		{"Utilization rate (%)", s.UtilizationRate},
		{"Average tasks per day", s.AverageTaskPerDay},
		{"Context switches", s.ContextSwitchCount},
		{"Multi-project load", s.MultiProjectLoad},
	})
	tw.Render()
}

// =============================================================================
// SEED
// =============================================================================

func seedCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo scenario (lists scenarios without --scenario)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return listScenarios(os.Stdout)
			}
			return withApp(func(a *app) error {
				h := api.NewHandler(a.store, a.engine, nil, a.log)
				stats, err := h.Seed(cmd.Context(), id)
				if err != nil {
					return err
				}
				a.log.Info("scenario loaded", slog.String("scenario", id),
					slog.Int("tasks", stats.Tasks),
					slog.Int("projects", stats.Projects),
					slog.Int("employee_weeks", stats.Employees))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "scenario", "", "scenario id")
	return cmd
}

func listScenarios(w io.Writer) error {
	all, err := scenario.List()
	if err != nil {
		return err
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Description"})
	for _, s := range all {
		tw.AppendRow(table.Row{s.ID, s.Name, s.Description})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
