package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raoulx24/dir-archiver/internal/apperr"
	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/watcher"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

const defaultConfigPath = "backup.yaml"

type options struct {
	configPath  string
	incremental bool
	dryRun      bool
	list        bool
	format      string
	restore     string
	to          string
	noVerify    bool
	verify      bool
	daemon      bool
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "backup: %v\n", err)
	}
	return apperr.ExitCode(err)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	configDefault := defaultConfigPath
	if p := os.Getenv("BACKUP_CONFIG"); p != "" {
		configDefault = p
	}

	cmd := &cobra.Command{
		Use:   "backup [flags] <sourceDir>",
		Short: "Archive a directory tree into checksummed, rotated snapshots",
		Long: `backup writes compressed, SHA-256 stamped archives of a directory tree,
keeps a daily/weekly/monthly history of them and restores any of them on demand.`,
		Example: `  backup /home/alice
  backup --incremental /home/alice
  backup --dry-run /home/alice
  backup --list --format json
  backup --restore backup-20251110-020000 --to /tmp/restore
  backup --verify
  backup --daemon /home/alice`,
		Args:          validateArgs(opts),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArguments, err)
	})

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", configDefault, "config file (env BACKUP_CONFIG)")
	f.BoolVar(&opts.incremental, "incremental", false, "archive only files changed since the last incremental run")
	f.BoolVar(&opts.dryRun, "dry-run", false, "report what would be archived and rotated without writing anything")
	f.BoolVar(&opts.list, "list", false, "list archives with their verification status")
	f.StringVar(&opts.format, "format", "table", "list output format: table, json or yaml")
	f.StringVar(&opts.restore, "restore", "", "restore the named archive")
	f.StringVar(&opts.to, "to", "", "restore target directory")
	f.BoolVar(&opts.noVerify, "no-verify", false, "skip digest verification before restoring")
	f.BoolVar(&opts.verify, "verify", false, "verify the digest of every archive")
	f.BoolVar(&opts.daemon, "daemon", false, "keep running and back up on schedule and on changes")
	return cmd
}

// validateArgs enforces exactly one mode per invocation.
func validateArgs(opts *options) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		modes := 0
		for _, on := range []bool{opts.list, opts.restore != "", opts.verify} {
			if on {
				modes++
			}
		}
		backup := modes == 0

		switch {
		case modes > 1:
			return fmt.Errorf("%w: --list, --restore and --verify are mutually exclusive", apperr.ErrInvalidArguments)
		case backup && len(args) != 1:
			return fmt.Errorf("%w: expected exactly one source directory", apperr.ErrInvalidArguments)
		case !backup && len(args) != 0:
			return fmt.Errorf("%w: unexpected argument %q", apperr.ErrInvalidArguments, args[0])
		case !backup && (opts.incremental || opts.dryRun || opts.daemon):
			return fmt.Errorf("%w: --incremental, --dry-run and --daemon only apply to backups", apperr.ErrInvalidArguments)
		case opts.daemon && opts.dryRun:
			return fmt.Errorf("%w: --daemon cannot be combined with --dry-run", apperr.ErrInvalidArguments)
		case opts.restore != "" && opts.to == "":
			return fmt.Errorf("%w: --restore needs --to", apperr.ErrInvalidArguments)
		case opts.restore == "" && (opts.to != "" || opts.noVerify):
			return fmt.Errorf("%w: --to and --no-verify only apply to --restore", apperr.ErrInvalidArguments)
		}
		switch opts.format {
		case "table", "json", "yaml":
		default:
			return fmt.Errorf("%w: unknown format %q", apperr.ErrInvalidArguments, opts.format)
		}
		return nil
	}
}

func execute(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) error {
	cfg, cfgErr := config.Load(opts.configPath)
	if cfg == nil {
		return cfgErr
	}

	log, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: stderr})
	if err != nil {
		// keep going on stderr alone; an unwritable log file must not block backups
		log, closer, _ = logging.New(logging.Options{Level: cfg.LogLevel, Stderr: stderr})
		log.Warn("log file unavailable", "file", cfg.LogFile, "error", err)
	}
	defer closer.Close()

	if errors.Is(cfgErr, apperr.ErrConfigMissing) {
		log.Warn("config file not found, using defaults", "path", opts.configPath)
	}

	var mb *mailbox.Mailbox[worker.Job]
	if opts.daemon {
		mb = mailbox.New[worker.Job]()
	}
	w, err := worker.New(cfg, log, mb, worker.Deps{})
	if err != nil {
		return err
	}

	switch {
	case opts.list:
		listings, err := w.List(ctx)
		if err != nil {
			return err
		}
		return printListings(stdout, opts.format, listings)

	case opts.verify:
		listings, err := w.VerifyAll(ctx)
		if listings != nil {
			if perr := printListings(stdout, opts.format, listings); perr != nil && err == nil {
				err = perr
			}
		}
		return err

	case opts.restore != "":
		verify := cfg.VerifyBeforeRestore && !opts.noVerify
		_, err := w.Restore(ctx, opts.restore, opts.to, verify)
		return err

	case opts.daemon:
		return runDaemon(ctx, cfg, log, w, mb, args[0], opts.incremental)

	default:
		_, err := w.Backup(ctx, worker.Job{
			Source:      args[0],
			Incremental: opts.incremental,
			DryRun:      opts.dryRun,
			Trigger:     "cli",
		})
		return err
	}
}

// runDaemon feeds the worker from the schedule and the source watcher until
// ctx is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, log logging.Logger, w *worker.Worker, mb *mailbox.Mailbox[worker.Job], source string, incremental bool) error {
	watch, err := watcher.New(cfg, source, incremental, log, mb)
	if err != nil {
		return err
	}
	if cfg.Schedule == "" && cfg.WatchMode == "off" {
		return fmt.Errorf("%w: daemon mode needs a schedule or a watch_mode", apperr.ErrInvalidArguments)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	log.Info("daemon started", "source", source, "schedule", cfg.Schedule, "watch_mode", cfg.WatchMode)
	err = watch.Start(ctx)
	cancel()
	<-done
	log.Info("daemon stopped")
	return err
}
