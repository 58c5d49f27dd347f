package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gookit/color"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pypackstudio/pypack/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=<version>"
var version = "dev"

// Exit codes besides the packaging tool's own.
const (
	exitFailure = 1
	exitConfig  = 2
	exitKilled  = 130
)

var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#2E7D32")
	colArrow   = color.HEX("#FFEB3B")
)

var (
	logLevel string
	logger   hclog.Logger = hclog.NewNullLogger()
	closeLog              = func() error { return nil }
)

// exitError carries a process exit code through cobra. A nil err means the
// failure was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pypack",
		Short:         "Package Python applications with PyInstaller or Nuitka",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, source := logging.ResolveLevel(logLevel)
			out, closer := logging.OpenOutput()
			logger = logging.NewLogger("pypack", level, out)
			closeLog = closer
			logger.Debug("logger configured", "level", level, "source", source)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = closeLog()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); prefix with json: for JSON output")

	root.AddCommand(
		newBuildCmd(),
		newCommandCmd(),
		newValidateCmd(),
		newProfileCmd(),
		newInstallerCmd(),
		newVerifyCmd(),
		newCleanCmd(),
		newAnalyzeCmd(),
		newWatchCmd(),
		newBackendsCmd(),
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, colWarn.Sprintf("ignoring .env: %v", err))
	}

	err := newRootCmd().Execute()
	if err == nil {
		return
	}

	code := exitFailure
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		err = ee.err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colError.Sprint("error: ")+err.Error())
	}
	os.Exit(code)
}
