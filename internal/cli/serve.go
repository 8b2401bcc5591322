package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/feed"
	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/store"
)

type serveFlags struct {
	addr   string
	player string
	dbPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve <world-file>",
		Short: "Run the engine with a websocket event feed",
		Long: `Load the world into a live engine and serve its event stream:

  /ws        websocket feed of snapshot and error events
  /snapshot  latest published snapshot as JSON
  /healthz   liveness probe

The process runs until the context is cancelled (Ctrl-C).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", ":8645", "listen address")
	cmd.Flags().StringVarP(&flags.player, "player", "p", "", "player id")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "persist the command journal to this SQLite file")
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command, worldPath string, flags *serveFlags) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	w, err := loadWorldFile(formatter, worldPath)
	if err != nil {
		return err
	}

	engOpts := []engine.Option{}
	if flags.dbPath != "" {
		journal, err := store.Open(flags.dbPath)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer journal.Close()

		// Resume version numbering above anything already journaled.
		if version, err := journal.LatestVersion(cmd.Context()); err == nil && version > 0 {
			engOpts = append(engOpts, engine.WithClock(engine.NewClockAt(version)))
		}
		engOpts = append(engOpts, engine.WithJournal(journal))
	}

	eng := engine.New(rules.NewRegistry(), engine.UUIDv7Generator{}, engOpts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engDone := make(chan struct{})
	go func() {
		defer close(engDone)
		_ = eng.Run(ctx)
	}()

	if err := eng.LoadRules(ctx, w, flags.player); err != nil {
		cancel()
		<-engDone
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitFailure, "load rules", err)
	}

	feedSrv := feed.NewServer(eng)
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		feedSrv.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", feedSrv.Handler())
	mux.HandleFunc("/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		snap := eng.Snapshot()
		if snap == nil {
			http.Error(rw, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(snap)
	})
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:        flags.addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("serving", "addr", flags.addr, "game", w.Game)
	err = server.ListenAndServe()
	cancel()
	<-feedDone
	<-engDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitCommandError, "http server", err)
	}
	return nil
}
