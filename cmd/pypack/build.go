package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/pypackstudio/pypack/internal/backend"
	"github.com/pypackstudio/pypack/internal/config"
	"github.com/pypackstudio/pypack/internal/process"
	"github.com/pypackstudio/pypack/internal/studio"
)

func newBuildCmd() *cobra.Command {
	var (
		flags  configFlags
		events bool
		quiet  bool
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "build [target]",
		Short: "Run a build and stream the tool's output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd, targetArg(args))
			if err != nil {
				return configError(err)
			}

			ctx, cancel := studio.SetupSignalHandler(logger)
			defer cancel()

			view := newBuildView(quiet, prefix)
			var s *studio.Studio
			s = studio.New(studio.Options{
				Logger:      logger,
				EventSocket: events,
				OnEvent: func(buildID string, ev process.Event) {
					if ev.Kind == process.EventStarted && events {
						view.note(colInfo.Sprint("events: ") + s.EventSocketPath())
					}
					view.handle(ev)
				},
			})

			res, err := s.Build(ctx, cfg)
			view.done()
			if err != nil {
				if isConfigError(err) {
					return configError(err)
				}
				return err
			}
			return reportBuild(res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&events, "events", false, "Publish build events on a local socket")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo the tool's output")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix every echoed output line")
	return cmd
}

func reportBuild(res studio.Result) error {
	switch {
	case res.Killed:
		fmt.Fprintln(os.Stderr, colWarn.Sprint("build killed"))
		return &exitError{code: exitKilled}
	case res.ExitCode != 0:
		fmt.Fprintln(os.Stderr, colError.Sprintf("build failed with exit code %d", res.ExitCode))
		code := res.ExitCode
		if code < 0 {
			code = exitFailure
		}
		return &exitError{code: code}
	}

	fmt.Fprint(os.Stderr, colArrow.Sprint("-> "))
	fmt.Fprintln(os.Stderr, colSuccess.Sprintf("build succeeded in %s: %s", res.Duration.Round(time.Millisecond), res.Config.OutputDir))
	if res.Installer != nil {
		fmt.Fprint(os.Stderr, colArrow.Sprint("-> "))
		fmt.Fprintln(os.Stderr, colSuccess.Sprintf("installer written to %s", res.Installer.Dest))
	}
	return nil
}

func newCommandCmd() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "command [target]",
		Short: "Print the command a build would run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd, targetArg(args))
			if err != nil {
				return configError(err)
			}
			command, err := studio.New(studio.Options{Logger: logger}).Command(cfg)
			if err != nil {
				return configError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shellquote.Join(command...))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newValidateCmd() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   "validate [target]",
		Short: "Check a build configuration without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd, targetArg(args))
			if err != nil {
				return configError(err)
			}
			if ok, msg := cfg.Validate(); !ok {
				return configError(errors.New(msg))
			}
			fmt.Fprintln(cmd.OutOrStdout(), colSuccess.Sprint("configuration is valid"))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the packaging backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range backend.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func configError(err error) error {
	return &exitError{code: exitConfig, err: err}
}

func isConfigError(err error) bool {
	return errors.Is(err, studio.ErrInvalidConfig) ||
		errors.Is(err, backend.ErrUnknownBackend) ||
		errors.Is(err, config.ErrTargetNotFound) ||
		errors.Is(err, config.ErrTargetRequired) ||
		errors.Is(err, studio.ErrInterpreterNotFound)
}
