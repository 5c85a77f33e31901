package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jmcleod/pantrypal/api"
	"github.com/jmcleod/pantrypal/client"
	"github.com/jmcleod/pantrypal/internal/config"
	"github.com/jmcleod/pantrypal/internal/logging"
	"github.com/jmcleod/pantrypal/session"
	"github.com/jmcleod/pantrypal/storage"
	bboltstorage "github.com/jmcleod/pantrypal/storage/bbolt"
	"github.com/jmcleod/pantrypal/storage/memory"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// skipSession marks commands that never touch the API session.
const skipSession = "skip-session"

// app is the state shared by every command for one invocation.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	envFile string
	flags   struct {
		apiBase   string
		dataDir   string
		logLevel  string
		logFormat string
		logFile   string
		ephemeral bool
		json      bool
	}

	cfg      *config.Config
	logger   *slog.Logger
	logClose io.Closer
	repo     storage.Repository
	store    *session.Store
	registry *prometheus.Registry
	api      *api.API
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut, envFile: ".env", logger: slog.Default()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pantrypal",
		Short: "PantryPal finds recipes you can cook with what you have",
		Long: `A command-line client for the PantryPal recipe API: manage your pantry,
browse and create recipes, keep favorites and a shopping list, and get
suggestions for what to cook next.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.configure(cmd); err != nil {
				return err
			}
			if cmd.Annotations[skipSession] != "" {
				return nil
			}
			return a.openSession()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.apiBase, "api-base", "", "API base URL (env PANTRYPAL_API_BASE_URL)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "Directory for the saved session (env PANTRYPAL_DATA_DIR)")
	pf.BoolVar(&a.flags.ephemeral, "ephemeral", false, "Keep the session in memory only")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&a.flags.logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	pf.BoolVar(&a.flags.json, "json", false, "Print results as JSON")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRegisterCmd(a),
		newPantryCmd(a),
		newRecipesCmd(a),
		newFavoritesCmd(a),
		newShoppingCmd(a),
		newSuggestCmd(a),
		newIngredientsCmd(a),
		newMockServerCmd(a),
	)
	return root
}

// configure loads the environment, applies flag overrides and sets up logging.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("api-base") {
		cfg.APIBaseURL = a.flags.apiBase
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = a.flags.dataDir
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.flags.logFormat
	}
	if flags.Changed("log-file") {
		cfg.LogFile = a.flags.logFile
	}
	if flags.Changed("log-level") {
		lvl, err := logging.ParseLevel(a.flags.logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	a.cfg = cfg

	var w io.Writer = a.errOut
	if cfg.LogFile != "" {
		f := logging.OpenFile(cfg.LogFile)
		a.logClose = f
		w = f
	}
	logger, err := logging.Setup(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("--log-format: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *app) openSession() error {
	if a.flags.ephemeral {
		a.repo = memory.NewRepository()
	} else {
		if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(a.cfg.SessionPath(), nil)
		if err != nil {
			return fmt.Errorf("failed to open session storage: %w", err)
		}
		a.repo = repo
	}

	persister, err := session.NewRepositoryPersister(a.repo, a.cfg.SessionPassphrase,
		session.WithPersisterLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	a.store = session.New(persister, session.WithLogger(a.logger))

	a.registry = prometheus.NewRegistry()
	c := client.New(a.cfg.APIBaseURL, a.store,
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.Timeout}),
		client.WithLogger(a.logger),
		client.WithNavigator(cliNavigator{w: a.errOut}),
		client.WithMetrics(client.NewMetrics(a.registry)),
		client.WithRateLimit(rate.Limit(a.cfg.RateLimit), 1),
		client.WithUserAgent("pantrypal-cli/"+Version),
	)
	a.api = api.New(c, a.store, api.WithLogger(a.logger))
	return nil
}

// close releases the session storage. It runs whether or not the command
// succeeded.
func (a *app) close() {
	a.logMetrics()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing session", "error", err)
		}
	}
	if c, ok := a.repo.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("closing session storage", "error", err)
		}
	}
	if a.logClose != nil {
		_ = a.logClose.Close()
	}
}

// logMetrics writes the request counters at debug level.
func (a *app) logMetrics() {
	if a.registry == nil || !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Debug("gathering client metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName(), "value", m.GetCounter().GetValue()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			a.logger.Debug("client metric", attrs...)
		}
	}
}

// cliNavigator tells the user how to recover from an expired session. The
// non-zero exit that follows drops all in-process state.
type cliNavigator struct {
	w io.Writer
}

func (n cliNavigator) RedirectToLogin() {
	fmt.Fprintln(n.w, `session expired; run "pantrypal login"`)
}

func (a *app) requireLogin() error {
	if !a.store.State().Authenticated() {
		return errors.New(`not signed in; run "pantrypal login"`)
	}
	return nil
}

// run executes one invocation and always releases the session.
func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	defer a.close()
	return root.ExecuteContext(ctx)
}

// describe renders err for the terminal.
func describe(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// Execute runs the CLI against the process's standard streams.
func Execute() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := run(context.Background(), a, os.Args[1:]); err != nil {
		if !errors.Is(err, client.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "Error:", describe(err))
		}
		os.Exit(1)
	}
}
