// ABOUTME: CLI entrypoint for the prospect research pipeline: analyze, resume,
// ABOUTME: history, forget, export, and serve commands with signal-driven pause.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/2389-research/prospect/pipeline"
	"github.com/2389-research/prospect/report"
	"github.com/2389-research/prospect/tui"
	"github.com/2389-research/prospect/web"
)

var version = "dev"

// config holds CLI configuration parsed from flags and positional arguments.
type config struct {
	command     string
	args        []string
	dataDir     string
	model       string
	budget      int
	addr        string
	tuiMode     bool
	verbose     bool
	showVersion bool
}

func main() {
	_ = godotenv.Load()

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("prospect %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("prospect", flag.ContinueOnError)
	fs.StringVar(&cfg.dataDir, "data-dir", "", "Data directory for persistent state (default: $XDG_DATA_HOME/prospect)")
	fs.StringVar(&cfg.model, "model", "", "LLM model override")
	fs.IntVar(&cfg.budget, "budget", 0, "Context budget in characters per stage")
	fs.StringVar(&cfg.addr, "addr", "", "Listen address for serve")
	fs.BoolVar(&cfg.tuiMode, "tui", false, "Run with interactive terminal UI")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine events to stderr")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(os.Stderr, version)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.command = fs.Arg(0)
		cfg.args = fs.Args()[1:]
	}

	return cfg
}

// run dispatches to the command handler. Returns the process exit code.
func run(cfg config) int {
	fc, err := loadFileConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fc = applyEnv(fc)

	switch cfg.command {
	case "analyze":
		return runAnalyze(cfg, fc)
	case "resume":
		return runResume(cfg, fc)
	case "history":
		return runHistory(cfg, fc)
	case "forget":
		return runForget(cfg, fc)
	case "export":
		return runExport(cfg, fc)
	case "serve":
		return runServe(cfg, fc)
	case "":
		printHelp(os.Stderr, version)
		return 0
	}

	fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", cfg.command)
	printHelp(os.Stderr, version)
	return 2
}

func runAnalyze(cfg config, fc fileConfig) int {
	if len(cfg.args) == 0 {
		fmt.Fprintln(os.Stderr, "error: analyze requires a query")
		return 2
	}
	query := strings.Join(cfg.args, " ")

	return runEngine(cfg, fc, func(app *app, ctx context.Context) (*pipeline.Execution, error) {
		return app.engine.Run(ctx, query)
	}, func(app *app) (string, tea.Cmd) {
		entity, _ := pipeline.ParseQuery(query)
		return entity, tui.RunCmd(context.Background(), app.engine, query)
	})
}

func runResume(cfg config, fc fileConfig) int {
	if len(cfg.args) != 1 {
		fmt.Fprintln(os.Stderr, "error: resume requires an execution ID or ordinal")
		return 2
	}
	ref := cfg.args[0]

	return runEngine(cfg, fc, func(app *app, ctx context.Context) (*pipeline.Execution, error) {
		exec, err := resolveRef(app, ref)
		if err != nil {
			return nil, err
		}
		return app.engine.Resume(ctx, exec.ID)
	}, func(app *app) (string, tea.Cmd) {
		exec, err := resolveRef(app, ref)
		if err != nil {
			return "", nil
		}
		return exec.Entity, tui.ResumeCmd(context.Background(), app.engine, exec.ID)
	})
}

// resolveRef maps an ordinal (Nth most recent resumable) or an execution ID
// to a stored execution.
func resolveRef(app *app, ref string) (*pipeline.Execution, error) {
	resumable, err := app.store.ListResumable()
	if err != nil {
		return nil, err
	}
	return pipeline.ResolveResumable(resumable, ref)
}

// runEngine builds the full app and drives a run to completion, either
// headless or through the TUI. SIGINT/SIGTERM requests a cooperative stop;
// a second signal cancels outright.
func runEngine(cfg config, fc fileConfig,
	drive func(*app, context.Context) (*pipeline.Execution, error),
	tuiSetup func(*app) (string, tea.Cmd),
) int {
	var extra pipeline.Sink
	if cfg.verbose && !cfg.tuiMode {
		extra = verboseSink
	}

	var bridge *tui.EventBridge
	if cfg.tuiMode {
		bridge = tui.NewEventBridge(nil)
		extra = bridge.HandleEvent
	}

	app, err := buildApp(cfg, fc, extra)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer app.Close()

	if cfg.tuiMode {
		entity, runCmd := tuiSetup(app)
		if runCmd == nil {
			fmt.Fprintln(os.Stderr, "error: nothing to run")
			return 1
		}
		model := tui.NewModel(app.engine, runCmd, entity, app.registry.Names())
		p := tea.NewProgram(model, tea.WithAltScreen())
		bridge.SetSend(p.Send)

		out, err := p.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		if m, ok := out.(tui.Model); ok {
			return reportOutcome(m.Exec(), m.Err())
		}
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupt received, pausing at next safe point (again to force quit)...")
		app.engine.Stop()
		<-sigChan
		cancel()
	}()

	exec, runErr := drive(app, ctx)
	return reportOutcome(exec, runErr)
}

// reportOutcome prints the run result and maps it to an exit code. A paused
// run exits 0: the checkpoint is intact and resumable.
func reportOutcome(exec *pipeline.Execution, runErr error) int {
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		if exec != nil {
			fmt.Fprintf(os.Stderr, "Run %s is resumable: prospect resume %s\n", exec.ID, exec.ID)
		}
		return 1
	}
	if exec == nil {
		return 0
	}

	switch exec.Status {
	case pipeline.ExecPaused:
		fmt.Printf("Run paused at a safe checkpoint.\n")
		fmt.Printf("Resume with: prospect resume %s\n", exec.ID)
		return 0
	case pipeline.ExecCompleted:
		fmt.Printf("Research completed for %s.\n", exec.Entity)
		fmt.Print(report.Markdown(exec))
		return 0
	}
	fmt.Printf("Run %s finished with status %s.\n", exec.ID, exec.Status)
	return 0
}

func runHistory(cfg config, fc fileConfig) int {
	app, err := buildReadOnlyApp(cfg, fc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer app.Close()

	execs, err := app.store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(execs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}

	ordinals := resumableOrdinals(execs)
	fmt.Printf("%-27s %-24s %-10s %-17s %s\n", "ID", "ENTITY", "STATUS", "CREATED", "RESUME")
	for _, e := range execs {
		resume := ""
		if n, ok := ordinals[e.ID]; ok {
			resume = fmt.Sprintf("prospect resume %d", n)
		}
		fmt.Printf("%-27s %-24s %-10s %-17s %s\n",
			e.ID, clip(e.Entity, 24), e.Status, e.CreatedAt.Format("2006-01-02 15:04"), resume)
	}
	return 0
}

// resumableOrdinals maps resumable execution IDs to their 1-based ordinal,
// newest first, matching what resume <N> resolves.
func resumableOrdinals(execs []*pipeline.Execution) map[string]int {
	ordinals := make(map[string]int)
	n := 0
	for _, e := range execs {
		switch e.Status {
		case pipeline.ExecPaused, pipeline.ExecFailed, pipeline.ExecRunning:
			n++
			ordinals[e.ID] = n
		}
	}
	return ordinals
}

func runForget(cfg config, fc fileConfig) int {
	if len(cfg.args) == 0 {
		fmt.Fprintln(os.Stderr, "error: forget requires an entity name")
		return 2
	}
	entity := strings.Join(cfg.args, " ")

	app, err := buildReadOnlyApp(cfg, fc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer app.Close()

	deleted, err := app.memory.Forget(entity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("Forgot %d facts about %s.\n", deleted, entity)
	return 0
}

func runExport(cfg config, fc fileConfig) int {
	if len(cfg.args) < 1 {
		fmt.Fprintln(os.Stderr, "error: export requires an execution ID")
		return 2
	}

	app, err := buildReadOnlyApp(cfg, fc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer app.Close()

	exec, err := app.store.Get(cfg.args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if len(cfg.args) < 2 {
		fmt.Print(report.Markdown(exec))
		return 0
	}

	out := cfg.args[1]
	var content string
	if strings.HasSuffix(out, ".html") {
		content, err = report.HTML(exec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	} else {
		content = report.Markdown(exec)
	}

	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote report to %s.\n", out)
	return 0
}

func runServe(cfg config, fc fileConfig) int {
	var extra pipeline.Sink
	if cfg.verbose {
		extra = verboseSink
	}

	app, err := buildApp(cfg, fc, extra)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer app.Close()

	addr := cfg.addr
	if addr == "" {
		addr = fc.Addr
	}

	srv, err := web.NewServer(web.ServerConfig{
		Addr:        addr,
		Engine:      app.engine,
		Store:       app.store,
		Memory:      app.memory,
		ProgressDir: filepath.Join(app.dataDir, "progress"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("prospect API listening on %s\n", addrOrDefault(addr))
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func addrOrDefault(addr string) string {
	if addr == "" {
		return "127.0.0.1:2390"
	}
	return addr
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
