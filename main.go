package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/config"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
	"github.com/metcalfc/bivium/internal/web"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const flushTimeout = 5 * time.Second

// env is everything a command needs, prepared by the Before hook.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	backend  state.Backend
	writer   *state.Writer
	progress *state.ProgressStore
	settings *state.SettingsStore
	library  *reader.Library
	started  time.Time
}

type envKey struct{}

func contextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &env{})
}

// envFromContext returns the env installed by contextWithEnv.
func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{}
}

func openBackend(cfg *config.Config) (state.Backend, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = state.StateDir()
	}
	if cfg.Storage.Backend == "sqlite" {
		return state.OpenSQLiteBackend(dir)
	}
	return state.OpenFileBackend(dir)
}

// initializeAppContext prepares configuration, logging and storage after the
// command line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}

	e := envFromContext(ctx)
	e.started = time.Now()
	var err error
	if e.cfg, err = config.LoadConfiguration(cmd.String("config")); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Args().First() == "read" && readerOwnsConsole {
		e.cfg.Logging.ConsoleLogger.Level = "none"
	}
	if e.log, err = e.cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	e.log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version), zap.String("runtime", runtime.Version()))

	if e.backend, err = openBackend(e.cfg); err != nil {
		return ctx, fmt.Errorf("unable to open state storage: %w", err)
	}
	e.writer = state.NewWriter(e.log, 0)
	e.progress = state.NewProgressStore(e.backend, e.writer, e.log)
	e.settings = state.NewSettingsStore(e.backend, e.writer, e.log)
	e.settings.Load(ctx)
	e.library = reader.NewLibrary(e.cfg.Library)
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	e := envFromContext(ctx)

	if e.writer != nil {
		fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if er := e.writer.Flush(fctx); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to flush state: %w", er))
		}
		cancel()
		err = multierr.Append(err, e.writer.Close())
	}
	if e.backend != nil {
		if er := e.backend.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close state storage: %w", er))
		}
	}
	if e.log != nil {
		e.log.Debug("Program ended", zap.Duration("elapsed", time.Since(e.started)), zap.Strings("parsed args", cmd.Args().Slice()))
		_ = e.log.Sync()
	}
	return err
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	if e := envFromContext(ctx); e.log != nil {
		e.log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

// pixelTuning maps configuration to browser and desktop hosts.
func pixelTuning(r config.ReaderConfig) session.Tuning {
	return session.Tuning{
		RowHeight:        r.RowHeight,
		Stride:           r.Stride,
		ProgressInterval: r.ProgressInterval,
		RestoreDelay:     r.RestoreDelay,
		HideDelay:        r.HideDelay,
		HintDuration:     r.HintDuration,
		DoubleTap:        r.DoubleTap,
		MinHeight:        r.MinHeight,
		HeightPadding:    r.HeightPadding,
		FontSettle:       r.FontSettle,
	}
}

// nextOf cycles through all.
func nextOf[T comparable](all []T, cur T) T {
	for i, v := range all {
		if v == cur {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

func stepSize(cur float64, up bool) float64 {
	sizes := state.FontSizes
	if up {
		for _, s := range sizes {
			if s > cur {
				return s
			}
		}
		return sizes[len(sizes)-1]
	}
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] < cur {
			return sizes[i]
		}
	}
	return sizes[0]
}

func readAction(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if cmd.NArg() != 2 {
		return fmt.Errorf("expected BOOK and CHAPTER, got %d arguments", cmd.NArg())
	}
	return runReader(ctx, e, cmd.Args().Get(0), cmd.Args().Get(1), cmd.Bool("fresh"))
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	addr := e.cfg.Server.Listen
	if cmd.IsSet("listen") {
		addr = cmd.String("listen")
	}
	srv := web.New(web.Options{
		Library:  e.library,
		Progress: e.progress,
		Settings: e.settings,
		Tuning:   pixelTuning(e.cfg.Reader),
		Logger:   e.log,
		Fresh:    cmd.Bool("fresh"),
	})
	return srv.ListenAndServe(ctx, addr)
}

func configAction(ctx context.Context, _ *cli.Command) error {
	data, err := config.Dump(envFromContext(ctx).cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(contextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	freshFlag := func() cli.Flag {
		return &cli.BoolFlag{Name: "fresh", Usage: "ignore saved reading positions"}
	}
	app := &cli.Command{
		Name:            "bivium",
		Usage:           "bilingual German/Spanish reader",
		Version:         fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
		},
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "Reads a chapter",
				ArgsUsage: "BOOK CHAPTER",
				Flags:     []cli.Flag{freshFlag()},
				Action:    readAction,
			},
			{
				Name:  "serve",
				Usage: "Serves the reader to browsers",
				Flags: []cli.Flag{
					freshFlag(),
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen on `ADDRESS`"},
				},
				Action: serveAction,
			},
			{
				Name:   "config",
				Usage:  "Dumps the actual configuration (YAML)",
				Action: configAction,
			},
		},
	}

	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		if !errWasHandled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
