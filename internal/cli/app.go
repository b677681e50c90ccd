package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/engine"
	"github.com/roach88/termalign/internal/hierarchy"
	"github.com/roach88/termalign/internal/lock"
	"github.com/roach88/termalign/internal/store"
)

// app is the wiring one command runs against: config, store, locker and a
// running engine.
type app struct {
	cfg    config.Config
	store  *store.Store
	locker lock.Locker
	engine *engine.Engine
	out    *OutputFormatter

	cancel context.CancelFunc
	done   chan error
}

// engineOptions lets tests inject engine options such as a fixed id
// generator.
var engineOptions []engine.Option

// openApp loads config, opens the store and starts an engine. The caller
// must Close the app.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	slog.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		rl, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockPrefix, cfg.LockTTL)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		locker = rl
	}

	reader := hierarchy.New(st, cfg.Vocabulary, cfg.Limits.MaxCascadeDepth)
	eng := engine.New(st, reader, locker, cfg, engineOptions...)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	return &app{
		cfg:    cfg,
		store:  st,
		locker: locker,
		engine: eng,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		cancel: cancel,
		done:   done,
	}, nil
}

// session loads alignmentID under the command's owner.
func (a *app) session(ctx context.Context, alignmentID, owner string) error {
	if err := a.engine.LoadSession(ctx, alignmentID, owner); err != nil {
		return WrapExitError(ExitFailure, "failed to load alignment", err)
	}
	return nil
}

// Close releases the session lock, stops the engine and closes the store.
func (a *app) Close(ctx context.Context) {
	if err := a.engine.Close(ctx); err != nil {
		slog.Warn("release session", "error", err)
	}
	a.engine.Stop()
	<-a.done
	a.cancel()
	if rl, ok := a.locker.(*lock.RedisLocker); ok {
		if err := rl.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}
