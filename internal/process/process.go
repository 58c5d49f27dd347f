// Package process supervises a single packaging-tool invocation. A Worker
// launches one child process, merges its stdout and stderr, and reports its
// lifecycle as a stream of events: one Started, zero or more Line, and
// exactly one Finished.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrAlreadyStarted = errors.New("worker already started")
	ErrLaunchFailed   = errors.New("launch failed")
)

// EventKind identifies a worker event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventLine
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventLine:
		return "line"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lifecycle notification. Command is set for EventStarted,
// Text for EventLine and ExitCode for EventFinished.
type Event struct {
	Kind     EventKind
	Command  []string
	Text     string
	ExitCode int
}

// State is the worker lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateKilled
	StateFailed // the program could not be launched
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateKilled:
		return "killed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the worker can no longer change state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateKilled || s == StateFailed
}

// Options configures a Worker.
type Options struct {
	// Dir is the working directory of the child; empty means the current one.
	Dir string
	// Env is overlaid on the host environment for this invocation only.
	Env map[string]string
	// BufferSize is the capacity of the event channel (minimum 1).
	BufferSize int
	// WaitDelay bounds how long output is drained after the process exits
	// while descendants still hold the output pipe. Zero waits indefinitely.
	WaitDelay time.Duration
}

const defaultBufferSize = 256

// Worker supervises one child process. It is single use: once it reaches a
// terminal state it cannot be started again. The event channel must be
// drained; a consumer that stops reading stalls the child's output.
type Worker struct {
	id      uuid.UUID
	command []string
	opts    Options

	events chan Event
	done   chan struct{}

	mu            sync.Mutex
	state         State
	cmd           *exec.Cmd
	killRequested bool
	exitCode      int
	waitErr       error
}

// New creates an idle worker for command. command[0] is the program, the rest
// are its arguments; no shell is involved.
func New(command []string, opts Options) *Worker {
	size := opts.BufferSize
	if size < 1 {
		size = defaultBufferSize
	}
	return &Worker{
		id:       uuid.New(),
		command:  slices.Clone(command),
		opts:     opts,
		events:   make(chan Event, size),
		done:     make(chan struct{}),
		exitCode: -1,
	}
}

// ID returns the build identifier of this worker.
func (w *Worker) ID() uuid.UUID { return w.id }

// Command returns a copy of the command the worker runs.
func (w *Worker) Command() []string { return slices.Clone(w.command) }

// Events returns the event stream. It is closed after Finished, or right
// after Started when the launch fails.
func (w *Worker) Events() <-chan Event { return w.events }

// Done is closed once the worker reaches a terminal state and every event
// has been delivered.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pid returns the child's process ID, or 0 before a successful launch.
func (w *Worker) Pid() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

// Start emits Started and launches the child. A launch failure is returned
// as ErrLaunchFailed; the worker is then terminal and emits nothing more.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateIdle {
		return ErrAlreadyStarted
	}
	if len(w.command) == 0 {
		w.failLocked()
		return ErrEmptyCommand
	}

	// The channel always has room for the first event.
	w.events <- Event{Kind: EventStarted, Command: slices.Clone(w.command)}

	out := newLineWriter(func(line string) {
		w.events <- Event{Kind: EventLine, Text: line}
	})

	cmd := exec.Command(w.command[0], w.command[1:]...)
	cmd.Dir = w.opts.Dir
	cmd.Env = append(os.Environ(), overlay(w.opts.Env)...)
	// Same writer for both streams: exec hands the child a single pipe.
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = w.opts.WaitDelay
	configureCommand(cmd)

	if err := cmd.Start(); err != nil {
		w.failLocked()
		return fmt.Errorf("%w: %s: %w", ErrLaunchFailed, w.command[0], err)
	}

	w.cmd = cmd
	w.state = StateRunning
	go w.wait(out)
	return nil
}

// Kill forcibly terminates the child if it is running and is a no-op
// otherwise. Finished is still emitted by the exit notification, never by Kill.
func (w *Worker) Kill() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateRunning {
		return nil
	}
	w.killRequested = true
	if err := killProcess(w.cmd); err != nil {
		return fmt.Errorf("kill process %d: %w", w.cmd.Process.Pid, err)
	}
	return nil
}

// Wait blocks until the Finished event has been delivered and returns the
// exit code. The error reports launch failures and wait faults, never a
// non-zero exit code.
func (w *Worker) Wait() (int, error) {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitCode, w.waitErr
}

func (w *Worker) wait(out *lineWriter) {
	err := w.cmd.Wait()
	out.Flush()

	code := -1
	if w.cmd.ProcessState != nil {
		code = w.cmd.ProcessState.ExitCode()
	}

	w.mu.Lock()
	w.exitCode = code
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		w.waitErr = err
	}
	w.state = finalState(w.killRequested, w.cmd.ProcessState)
	w.mu.Unlock()

	w.events <- Event{Kind: EventFinished, ExitCode: code}
	close(w.events)
	close(w.done)
}

// finalState reports Killed only when a kill was requested and the child
// actually died from it. A child that exited on its own before the kill
// landed is Completed.
func finalState(killRequested bool, ps *os.ProcessState) State {
	if killRequested && (ps == nil || signaled(ps)) {
		return StateKilled
	}
	return StateCompleted
}

func (w *Worker) failLocked() {
	w.state = StateFailed
	w.waitErr = ErrLaunchFailed
	close(w.events)
	close(w.done)
}

// overlay renders env as KEY=VALUE entries in a stable order. Appended after
// os.Environ they take precedence over inherited values.
func overlay(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
