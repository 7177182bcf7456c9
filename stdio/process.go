// Package stdio owns the child process of the service under test, and provides line-oriented
// access to its standard input and output.
package stdio

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/alessio/shellescape"

	"github.com/launchdarkly/stdio-rpc-contract-tests/framework"
)

const (
	defaultGracePeriod = 2 * time.Second
	defaultMaxLineSize = 4 * 1024 * 1024
)

// VerbosityArgs are always appended to the target's command line, to keep its own logging
// out of the way of the protocol.
var VerbosityArgs = []string{"--log-level", "error"}

var (
	// ErrTransport is wrapped by every error caused by a closed pipe or an exited process.
	ErrTransport = errors.New("transport error")

	// ErrNotStarted is returned by I/O methods called before Start succeeded.
	ErrNotStarted = errors.New("target process was not started")
)

// Config describes how to launch the target.
type Config struct {
	// Path is the target executable.
	Path string

	// Args are passed before VerbosityArgs.
	Args []string

	// Env is added to the harness's own environment.
	Env []string

	// SettleDelay is how long Start waits after launching the process. This is a heuristic, not
	// a readiness check. Zero means no wait.
	SettleDelay time.Duration

	// GracePeriod is how long Stop waits after SIGTERM before killing the process.
	GracePeriod time.Duration

	// MaxLineSize bounds a single line of output.
	MaxLineSize int
}

type lineItem struct {
	line string
	err  error
}

// Process is a running target. All I/O methods are meant to be called from one goroutine;
// the harness never pipelines requests.
type Process struct {
	config  Config
	logger  framework.Logger
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan lineItem
	closing chan struct{}
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

// NewProcess creates a Process that has not been started yet. Output that the target writes to
// stderr, and anything unusual that happens during teardown, is reported to logger.
func NewProcess(config Config, logger framework.Logger) *Process {
	if config.GracePeriod <= 0 {
		config.GracePeriod = defaultGracePeriod
	}
	if config.MaxLineSize <= 0 {
		config.MaxLineSize = defaultMaxLineSize
	}
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Process{
		config:  config,
		logger:  logger,
		lines:   make(chan lineItem),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *Process) commandArgs() []string {
	return append(append([]string(nil), p.config.Args...), VerbosityArgs...)
}

// CommandLine returns the full command, quoted so it can be pasted into a shell.
func (p *Process) CommandLine() string {
	parts := []string{shellescape.Quote(p.config.Path)}
	for _, a := range p.commandArgs() {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}

// Pid returns the process ID, or 0 if the process was never started.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Start launches the target. It returns once the process exists and the settle delay has
// passed; it does not know whether the service is ready to accept input.
func (p *Process) Start(ctx context.Context) error {
	if p.cmd != nil {
		return errors.New("target process was already started")
	}
	cmd := exec.Command(p.config.Path, p.commandArgs()...)
	if len(p.config.Env) > 0 {
		cmd.Env = append(os.Environ(), p.config.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "could not create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "could not create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "could not create stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "could not start %s", p.config.Path)
	}
	p.cmd = cmd
	p.stdin = stdin

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		p.drainStderr(stderr)
	}()
	go func() {
		// cmd.Wait closes the pipes, so it must not run until both readers have seen EOF.
		readers.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if p.config.SettleDelay > 0 {
		timer := time.NewTimer(p.config.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Process) readStdout(stdout io.Reader) {
	defer close(p.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, min(4096, p.config.MaxLineSize)), p.config.MaxLineSize)
	for scanner.Scan() {
		select {
		case p.lines <- lineItem{line: scanner.Text()}:
		case <-p.closing:
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case p.lines <- lineItem{err: errors.Wrapf(ErrTransport, "error reading target output: %s", err)}:
		case <-p.closing:
		}
		_, _ = io.Copy(io.Discard, stdout)
	}
}

func (p *Process) drainStderr(stderr io.Reader) {
	logger := framework.PrefixedLogger(p.logger, "stderr: ")
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), p.config.MaxLineSize)
	for scanner.Scan() {
		logger.Printf("%s", scanner.Text())
	}
	_, _ = io.Copy(io.Discard, stderr)
}

// Exited returns true if the process has terminated.
func (p *Process) Exited() bool {
	if p.cmd == nil {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// WriteLine writes payload followed by a newline in a single write, so nothing is left
// buffered on our side.
func (p *Process) WriteLine(payload string) error {
	if p.cmd == nil {
		return ErrNotStarted
	}
	if p.Exited() {
		return errors.Wrapf(ErrTransport, "target process has exited (%v)", p.waitErr)
	}
	if _, err := io.WriteString(p.stdin, payload+"\n"); err != nil {
		return errors.Wrapf(ErrTransport, "could not write to target: %s", err)
	}
	return nil
}

// ReadLine blocks until the target writes a complete line. It returns io.EOF if the target
// closed its output, or the context's error if ctx ends first. A context with no deadline
// means the call can block for as long as the target stays silent.
func (p *Process) ReadLine(ctx context.Context) (string, error) {
	if p.cmd == nil {
		return "", ErrNotStarted
	}
	select {
	case item, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return item.line, item.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop closes the target's input, asks it to terminate, and kills it if it is still running
// after the grace period. It is safe to call more than once, or without a successful Start.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		if p.cmd == nil {
			return
		}
		close(p.closing)
		_ = p.stdin.Close()

		if err := signalProcess(p.cmd.Process, syscall.SIGTERM); err != nil {
			p.logger.Printf("Could not send SIGTERM to target: %s", err)
		}
		grace := time.NewTimer(p.config.GracePeriod)
		defer grace.Stop()
		select {
		case <-p.done:
			return
		case <-grace.C:
		}

		p.logger.Printf("Target did not exit within %s; killing it", p.config.GracePeriod)
		if err := signalProcess(p.cmd.Process, os.Kill); err != nil {
			p.logger.Printf("Could not kill target: %s", err)
		}
		// A grandchild holding the output pipes open could keep done from closing; don't
		// let that hang the harness.
		select {
		case <-p.done:
		case <-time.After(p.config.GracePeriod):
			p.logger.Printf("Target output was still open after kill; giving up on it")
		}
	})
}

// signalProcess sends sig to a process, returning nil if the process has already exited.
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
