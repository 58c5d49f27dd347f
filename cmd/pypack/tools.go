package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pypackstudio/pypack/internal/installer"
	"github.com/pypackstudio/pypack/internal/ipc"
	"github.com/pypackstudio/pypack/internal/project"
	"github.com/pypackstudio/pypack/internal/studio"
)

func newInstallerCmd() *cobra.Command {
	var name, source, dest, archive string
	cmd := &cobra.Command{
		Use:   "installer",
		Short: "Build an installer folder from a built application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			compression, err := installer.ParseCompression(archive)
			if err != nil {
				return configError(err)
			}
			ctx, cancel := studio.SetupSignalHandler(logger)
			defer cancel()

			s := studio.New(studio.Options{Logger: logger})
			res, err := s.Installer(ctx, installer.Options{
				AppName:     name,
				Source:      installer.ArtifactDir(source, name),
				Dest:        dest,
				Compression: compression,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stderr, colArrow.Sprint("-> "))
			fmt.Fprintln(os.Stderr, colSuccess.Sprintf("installer written to %s (%d files)", res.Dest, res.Files))
			if res.Archive != "" {
				fmt.Fprint(os.Stderr, colArrow.Sprint("-> "))
				fmt.Fprintln(os.Stderr, colSuccess.Sprintf("archive written to %s", res.Archive))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Application name")
	cmd.Flags().StringVar(&source, "source", "", "Build output directory")
	cmd.Flags().StringVar(&dest, "dest", "", "Installer folder to create")
	cmd.Flags().StringVar(&archive, "archive", "", "Also write a tarball: gz, xz or zst")
	for _, f := range []string{"name", "source", "dest"} {
		if err := cmd.MarkFlagRequired(f); err != nil {
			panic(err)
		}
	}
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify DIR",
		Short: "Check an installer folder against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := installer.ReadManifest(filepath.Join(args[0], installer.ManifestName))
			if err != nil {
				return err
			}
			if err := installer.VerifyManifest(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), colSuccess.Sprintf("%d files match %s", len(entries), installer.ManifestName))
			return nil
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean DIR",
		Short: "Remove everything inside an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return studio.New(studio.Options{Logger: logger}).Clean(args[0])
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze [DIR]",
		Short: "Print packaging hints for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			report, err := project.Analyze(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			for _, h := range report.Hints {
				fmt.Fprintln(out, colArrow.Sprint("-> ")+h.Message)
			}
			if report.Interpreter != "" {
				fmt.Fprintln(out, colInfo.Sprint("interpreter: ")+report.Interpreter)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

var errStreamClosed = errors.New("event stream closed before the build finished")

func newWatchCmd() *cobra.Command {
	var kill, status bool
	cmd := &cobra.Command{
		Use:   "watch SOCKET",
		Short: "Follow a build started with --events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ipc.Dial(args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			switch {
			case kill:
				if err := c.Send("kill"); err != nil {
					return err
				}
			case status:
				if err := c.Send("status"); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for {
				msg, err := c.Next()
				if errors.Is(err, io.EOF) {
					return errStreamClosed
				}
				if err != nil {
					return err
				}
				if status && msg.Type != ipc.TypeResponse {
					continue
				}
				switch msg.Type {
				case ipc.TypeStarted:
					fmt.Fprintln(out, colArrow.Sprint("started ")+msg.BuildID)
				case ipc.TypeLine:
					fmt.Fprintln(out, msg.Text)
				case ipc.TypeFinished:
					code := -1
					if msg.ExitCode != nil {
						code = *msg.ExitCode
					}
					fmt.Fprintln(out, colInfo.Sprintf("finished with exit code %d", code))
					return nil
				case ipc.TypeResponse:
					if msg.Status != "ok" {
						return errors.New(msg.Error)
					}
					if status {
						fmt.Fprintln(out, msg.State)
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&kill, "kill", false, "Kill the build, then keep following it")
	cmd.Flags().BoolVar(&status, "status", false, "Print the build state and exit")
	return cmd
}
