package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/replay"
	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/spherelog"
	"github.com/quillback/spheretrace/internal/store"
)

type replayFlags struct {
	player      string
	stopOnError bool
	dbPath      string
	timeout     time.Duration
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &replayFlags{}

	cmd := &cobra.Command{
		Use:   "replay <world-file> <log-file>",
		Short: "Replay a recorded sphere log against a live engine",
		Long: `Load the world, replay the recorded run command by command, and verify
that the live accessible sets match the log's expectations at every sphere.
Exits 0 on a clean pass and 1 on any mismatch or pre-check violation.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd, args[0], args[1], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.player, "player", "p", "", "player id")
	cmd.Flags().BoolVar(&flags.stopOnError, "stop-on-first-error", false, "halt at the first mismatch")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "persist the command journal and report to this SQLite file")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "per-barrier timeout (0 waits forever)")
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command, worldPath, logPath string, flags *replayFlags) error {
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

	if _, err := os.Stat(logPath); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("sphere log not found: %s", logPath), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("sphere log not found: %s", logPath))
	}
	log, err := spherelog.Open(logPath, flags.player)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid sphere log", err)
	}
	formatter.VerboseLog("parsed %s log: %d events, %d spheres, player %s",
		log.Format, len(log.Events), len(log.Entries), log.Player)

	engOpts := []engine.Option{}
	var journal *store.Store
	if flags.dbPath != "" {
		journal, err = store.Open(flags.dbPath)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer journal.Close()
		engOpts = append(engOpts, engine.WithJournal(journal))
	}

	eng := engine.New(rules.NewRegistry(), engine.UUIDv7Generator{}, engOpts...)
	ctx, cancel := context.WithCancel(cmd.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	report, err := replay.Run(ctx, eng, log, replay.Options{
		World:            w,
		Player:           log.Player,
		StopOnFirstError: flags.stopOnError,
		PingTimeout:      flags.timeout,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeReplay, err.Error(), nil)
		return WrapExitError(ExitCommandError, "replay aborted", err)
	}

	if journal != nil {
		if id, err := journal.WriteReplayReport(ctx, report); err == nil {
			formatter.VerboseLog("stored replay report %d in %s", id, flags.dbPath)
		} else {
			formatter.VerboseLog("storing replay report failed: %v", err)
		}
	}

	if err := printReport(formatter, report); err != nil {
		return err
	}
	if !report.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("replay %s", report.Outcome()))
	}
	return nil
}

func printReport(formatter *OutputFormatter, report *replay.Report) error {
	if formatter.Format == "json" {
		return formatter.JSON(report)
	}

	fmt.Fprintf(formatter.Writer, "replay %s (%d/%d events)\n",
		report.Outcome(), report.ProcessedEvents, report.TotalEvents)
	for _, sphere := range report.SphereResults {
		status := "ok"
		switch {
		case sphere.Aborted:
			status = "aborted"
		case !sphere.Passed:
			status = fmt.Sprintf("%d mismatches", sphere.Mismatches)
		}
		fmt.Fprintf(formatter.Writer, "  sphere %-5s %d checked, %s\n",
			sphere.Sphere, sphere.Checked, status)
	}
	for _, mismatch := range report.Mismatches {
		fmt.Fprintf(formatter.Writer, "  mismatch [%s] sphere %s", mismatch.Kind, mismatch.Index)
		if mismatch.Location != "" {
			fmt.Fprintf(formatter.Writer, " location %q", mismatch.Location)
		}
		if len(mismatch.MissingFromState) > 0 {
			fmt.Fprintf(formatter.Writer, " missing=%v", mismatch.MissingFromState)
		}
		if len(mismatch.ExtraInState) > 0 {
			fmt.Fprintf(formatter.Writer, " extra=%v", mismatch.ExtraInState)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
