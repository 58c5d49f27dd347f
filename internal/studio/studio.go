// Package studio orchestrates builds: it validates and normalizes a
// BuildConfig, asks the selected backend for a command, supervises the
// packaging tool through a process.Worker and runs the post-build steps.
// A Studio runs at most one build and at most one installer step at a time.
package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/kballard/go-shellquote"

	"github.com/pypackstudio/pypack/internal/backend"
	"github.com/pypackstudio/pypack/internal/config"
	"github.com/pypackstudio/pypack/internal/filemgr"
	"github.com/pypackstudio/pypack/internal/installer"
	"github.com/pypackstudio/pypack/internal/ipc"
	"github.com/pypackstudio/pypack/internal/process"
)

var (
	ErrBuildInProgress     = errors.New("a build is already running")
	ErrInstallerInProgress = errors.New("an installer step is already running")
	ErrInterpreterNotFound = errors.New("python interpreter not found")
	ErrInvalidConfig       = errors.New("invalid build configuration")
)

// Options configures a Studio.
type Options struct {
	Logger hclog.Logger
	// Platform overrides the host platform policy of the backends.
	Platform *backend.Platform
	// OnEvent receives every worker event in order, on the build goroutine.
	OnEvent func(buildID string, ev process.Event)
	// EventSocket publishes each build on a local socket (see package ipc).
	EventSocket bool
	// WaitDelay bounds output draining after the tool exits.
	WaitDelay time.Duration
}

// Result describes a finished build.
type Result struct {
	BuildID  string
	Command  []string
	Config   config.BuildConfig // normalized
	ExitCode int
	Killed   bool
	Duration time.Duration

	// Installer is set when the installer step ran.
	Installer *installer.Result
}

// Succeeded reports whether the tool exited 0 without being killed.
func (r Result) Succeeded() bool { return r.ExitCode == 0 && !r.Killed }

type Studio struct {
	logger    hclog.Logger
	backends  map[string]backend.Backend
	files     *filemgr.Manager
	installer *installer.Builder
	onEvent   func(string, process.Event)
	socket    bool
	waitDelay time.Duration

	mu         sync.Mutex
	worker     *process.Worker
	server     *ipc.Server
	installing bool
}

func New(opts Options) *Studio {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	platform := backend.HostPlatform
	if opts.Platform != nil {
		platform = *opts.Platform
	}
	return &Studio{
		logger:    logger,
		backends:  backend.Registry(platform),
		files:     filemgr.New(logger),
		installer: installer.New(logger),
		onEvent:   opts.OnEvent,
		socket:    opts.EventSocket,
		waitDelay: opts.WaitDelay,
	}
}

// SetupSignalHandler installs SIGINT/SIGTERM handlers and returns a context
// that is cancelled when a signal is received. Cancelling a build's context
// kills the build.
func SetupSignalHandler(logger hclog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received signal, stopping", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// Prepare validates cfg, normalizes it and builds the backend command.
func (s *Studio) Prepare(cfg config.BuildConfig) (config.BuildConfig, []string, error) {
	if ok, msg := cfg.Validate(); !ok {
		return config.BuildConfig{}, nil, fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
	}
	n, err := cfg.Normalized()
	if err != nil {
		return config.BuildConfig{}, nil, err
	}
	b, ok := s.backends[n.Backend]
	if !ok {
		return config.BuildConfig{}, nil, fmt.Errorf("%w: %s", backend.ErrUnknownBackend, n.Backend)
	}
	return n, b.BuildCommand(&n), nil
}

// Build runs one build to completion. Cancelling ctx kills the tool. The
// returned error covers failures to run the tool or its post-build steps;
// the tool's own failure is reported through Result.ExitCode.
func (s *Studio) Build(ctx context.Context, cfg config.BuildConfig) (Result, error) {
	s.mu.Lock()
	if s.worker != nil {
		s.mu.Unlock()
		return Result{}, ErrBuildInProgress
	}

	n, command, err := s.Prepare(cfg)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	if err := process.CheckExecutable(n.PythonExe); err != nil {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %w", ErrInterpreterNotFound, err)
	}
	env, err := n.Environment()
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	w := process.New(command, process.Options{
		Dir:       n.ProjectDir,
		Env:       env,
		WaitDelay: s.waitDelay,
	})
	s.worker = w
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.worker = nil
		s.mu.Unlock()
	}()

	buildID := w.ID().String()
	log := s.logger.With("build_id", buildID, "backend", n.Backend)
	res := Result{BuildID: buildID, Command: command, Config: n, ExitCode: -1}

	if s.socket {
		stop, err := s.startServer(ctx, buildID)
		if err != nil {
			return res, err
		}
		defer stop()
	}

	log.Info("starting build", "command", "$ "+shellquote.Join(command...))
	start := time.Now()

	if err := w.Start(); err != nil {
		s.drain(buildID, w)
		return res, err
	}

	go func() {
		select {
		case <-ctx.Done():
			log.Warn("build cancelled")
			if err := w.Kill(); err != nil {
				log.Error("kill failed", "error", err)
			}
		case <-w.Done():
		}
	}()

	s.drain(buildID, w)
	code, waitErr := w.Wait()
	res.ExitCode = code
	res.Killed = w.State() == process.StateKilled
	res.Duration = time.Since(start)
	if waitErr != nil {
		return res, fmt.Errorf("wait for build: %w", waitErr)
	}

	switch {
	case res.Killed:
		log.Warn("build killed", "duration", res.Duration)
		return res, nil
	case code != 0:
		log.Error("build failed", "exit_code", code, "duration", res.Duration)
		return res, nil
	}
	log.Info("build succeeded", "duration", res.Duration)

	if n.OutputDir != "" && len(n.DirectoriesToCreate) > 0 {
		if err := s.files.CopyItems(n.DirectoriesToCreate, n.OutputDir, n.Name); err != nil {
			log.Warn("post-build copy incomplete", "error", err)
		}
	}

	if n.CreateSetup {
		ir, err := s.Installer(ctx, installer.Options{
			AppName: n.Name,
			Source:  installer.ArtifactDir(n.OutputDir, n.Name),
			Dest:    InstallerDir(n),
		})
		if err != nil {
			return res, fmt.Errorf("installer step: %w", err)
		}
		res.Installer = &ir
	}
	return res, nil
}

// InstallerDir is where a build's installer folder goes, next to the output
// directory rather than inside it.
func InstallerDir(cfg config.BuildConfig) string {
	return filepath.Join(filepath.Dir(cfg.OutputDir), "installer", cfg.Name)
}

// drain forwards every worker event to the log, the event socket and the
// OnEvent callback until the stream closes.
func (s *Studio) drain(buildID string, w *process.Worker) {
	log := s.logger.Named("tool")
	for ev := range w.Events() {
		switch ev.Kind {
		case process.EventLine:
			log.Debug(ev.Text)
		case process.EventFinished:
			log.Debug("tool exited", "exit_code", ev.ExitCode)
		}

		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			srv.Publish(ipc.FromEvent(buildID, ev))
		}
		if s.onEvent != nil {
			s.onEvent(buildID, ev)
		}
	}
}

func (s *Studio) startServer(ctx context.Context, buildID string) (func(), error) {
	srv, err := ipc.NewServer(ipc.SocketPath(buildID), s, s.logger)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ctx); err != nil {
			s.logger.Error("event socket stopped", "error", err)
		}
	}()
	s.logger.Info("event socket listening", "path", srv.Path())

	return func() {
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
		srv.Close()
	}, nil
}

// EventSocketPath returns the socket of the running build, or "".
func (s *Studio) EventSocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return s.server.Path()
}

// Command returns the command a build of cfg would run, without running it.
func (s *Studio) Command(cfg config.BuildConfig) ([]string, error) {
	_, command, err := s.Prepare(cfg)
	return command, err
}

// Kill kills the running build. It is a no-op when no build is running.
func (s *Studio) Kill() error {
	s.mu.Lock()
	w := s.worker
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Kill()
}

// Running reports whether a build is in flight.
func (s *Studio) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker != nil
}

// BuildState returns the state of the current build, or "idle".
func (s *Studio) BuildState() string {
	s.mu.Lock()
	w := s.worker
	s.mu.Unlock()
	if w == nil {
		return process.StateIdle.String()
	}
	return w.State().String()
}

// Installer runs the installer step. Only one may run at a time.
func (s *Studio) Installer(ctx context.Context, opts installer.Options) (installer.Result, error) {
	s.mu.Lock()
	if s.installing {
		s.mu.Unlock()
		return installer.Result{}, ErrInstallerInProgress
	}
	s.installing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.installing = false
		s.mu.Unlock()
	}()
	return s.installer.Build(ctx, opts)
}

// Clean empties an output directory.
func (s *Studio) Clean(outputDir string) error {
	return s.files.CleanOutput(outputDir)
}
