package process

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/smazurov/hlsfeed/internal/logging"
)

// DefaultTailLines is how many output lines a Process keeps for post-mortem logs.
const DefaultTailLines = 50

// OutputHandler receives output lines from the subprocess.
// Implementations can extract progress metrics, etc.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, etc.)
type LogParser func(line string) (level, msg string)

// Process owns one subprocess started from an argument vector.
// Done is closed after the process has exited and its output is drained.
type Process struct {
	id     string
	binary string
	args   []string

	cmd           *exec.Cmd
	logger        logging.Logger
	processLogger logging.Logger // logger for process output (nil = use logger)
	logParser     LogParser      // parses process output for log level (nil = no parsing)
	outputHandler OutputHandler
	tail          *tailBuffer

	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
	exitErr  error
}

// New creates a process. Nothing runs until Start.
func New(id, binary string, args []string, logger logging.Logger) *Process {
	return &Process{
		id:       id,
		binary:   binary,
		args:     args,
		logger:   logger,
		tail:     newTailBuffer(DefaultTailLines),
		done:     make(chan struct{}),
		exitCode: -1,
	}
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler registers a handler that sees every output line.
// Must be called before Start.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.outputHandler = handler
}

// ID returns the identifier the process was created with.
func (p *Process) ID() string {
	return p.id
}

// Args returns the argument vector, without the binary.
func (p *Process) Args() []string {
	return p.args
}

// Start spawns the subprocess. It does not wait for it to exit.
// A spawn failure (missing binary, permission denied) is returned as is.
func (p *Process) Start() error {
	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.id)
	}

	cmd := exec.Command(p.binary, p.args...)
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "binary", p.binary, "error", err)
		return err
	}

	p.cmd = cmd
	p.startedAt = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	// Wait must not run until both pipes are drained
	go func() {
		output.Wait()
		err := cmd.Wait()

		p.mu.Lock()
		p.exitCode = exitCodeFromError(err)
		p.exitErr = err
		p.mu.Unlock()

		close(p.done)
	}()

	return nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while the process is still running.
// A process killed by a signal reports 128 plus the signal number.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the error from Wait, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// PID returns the OS process id, or 0 before Start.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Tail returns the most recent output lines, oldest first.
func (p *Process) Tail() []string {
	return p.tail.Lines()
}

// Terminate asks the process (and its group) to exit.
func (p *Process) Terminate() error {
	if p.cmd == nil || p.Exited() {
		return nil
	}
	return terminate(p.cmd)
}

// Kill forcibly ends the process (and its group).
func (p *Process) Kill() error {
	if p.cmd == nil || p.Exited() {
		return nil
	}
	return kill(p.cmd)
}

// Stop sends a graceful termination signal and returns immediately.
// If the process is still alive after grace it is killed. The check
// looks at the real exit state, so an exit racing the timer is never
// followed by a stray kill.
func (p *Process) Stop(grace time.Duration) {
	if !p.sendStopSignal() {
		return
	}

	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-p.done:
		case <-timer.C:
			p.forceKill(grace)
		}
	}()
}

// StopAndWait stops the process like Stop and blocks until it has exited,
// giving up after killTimeout once the kill was sent. Returns the exit code.
func (p *Process) StopAndWait(grace, killTimeout time.Duration) int {
	if !p.sendStopSignal() {
		return p.ExitCode()
	}

	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(grace):
		p.forceKill(grace)
	}

	select {
	case <-p.done:
	case <-time.After(killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id, "pid", p.PID())
	}
	return p.ExitCode()
}

// sendStopSignal returns false when there is nothing left to stop.
func (p *Process) sendStopSignal() bool {
	if p.cmd == nil || p.Exited() {
		return false
	}

	p.logger.Info("Sending SIGTERM to process", "id", p.id, "pid", p.PID())
	if err := p.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGTERM", "id", p.id, "error", err)
	}
	return true
}

func (p *Process) forceKill(grace time.Duration) {
	if p.Exited() {
		return
	}
	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", grace)
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}
}

// streamOutput streams output from the subprocess.
// Uses the configured processLogger (or falls back to default logger).
// Uses the configured LogParser to extract log levels from process output.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}
		p.tail.Add(line)

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "panic", "error":
			logger.Error(msg, "id", p.id)
		case "warning":
			logger.Warn(msg, "id", p.id)
		case "debug", "trace", "verbose":
			logger.Debug(msg, "id", p.id)
		default:
			logger.Info(msg, "id", p.id)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// scanLines is bufio.ScanLines that also breaks on a bare \r, which the
// engine uses to rewrite its stats line in place.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
