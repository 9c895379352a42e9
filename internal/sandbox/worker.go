package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kodidev/kodidev/internal/addon"
	"github.com/kodidev/kodidev/internal/env"
)

var (
	// ErrAddonRuntime means the addon's own code failed during the
	// invocation. The failure never propagates past the sandbox boundary.
	ErrAddonRuntime = errors.New("addon raised an error")

	// ErrWorkerUnresponsive means the worker died or went silent without
	// sending a final result message.
	ErrWorkerUnresponsive = errors.New("worker exited without a result")
)

// hclogLevels maps the host's numeric log levels (debug, info, notice,
// warning, error, severe, fatal, none) onto hclog levels.
var hclogLevels = []hclog.Level{
	hclog.Debug,
	hclog.Debug,
	hclog.Info,
	hclog.Warn,
	hclog.Error,
	hclog.Error,
	hclog.Error,
	hclog.Debug,
}

// HostSession is the capability the controller lends to a running worker:
// a blocking user prompt relayed across the isolation boundary. Prompt
// must return promptly once ctx is cancelled.
type HostSession interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// Worker drives the addon's entry point in a subprocess. A worker is
// either single-shot, exiting after one invocation, or reusable, staying
// alive across invocations of the same addon to avoid startup overhead.
type Worker struct {
	Addon *addon.Addon

	deps    []*addon.Addon
	env     *env.Environment
	log     hclog.Logger
	session HostSession
	reuse   bool

	// pollInterval bounds how long the controller blocks before
	// re-checking that the worker is still alive.
	pollInterval time.Duration
	stopGrace    time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	exited chan struct{}
	pid    int
}

// NewWorker prepares a worker for one addon. Nothing is spawned until the
// first Execute call.
func NewWorker(e *env.Environment, log hclog.Logger, session HostSession, a *addon.Addon, deps []*addon.Addon, reuse bool) *Worker {
	return &Worker{
		Addon:        a,
		deps:         deps,
		env:          e,
		log:          log.Named("worker").With("addon", a.ID),
		session:      session,
		reuse:        reuse,
		pollInterval: time.Second,
		stopGrace:    3 * time.Second,
	}
}

// Alive reports whether the worker subprocess is currently running.
func (w *Worker) Alive() bool {
	if w.cmd == nil {
		return false
	}
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// Pid returns the worker's process id, or 0 when it was never started.
func (w *Worker) Pid() int {
	return w.pid
}

func (w *Worker) start() error {
	entry := w.Addon.LibraryPath()
	if info, err := os.Stat(entry); err != nil || info.IsDir() {
		return fmt.Errorf("addon entry point %s is not runnable", entry)
	}

	cmd := exec.Command(entry)
	cmd.Dir = w.Addon.Path
	cmd.Env = append(os.Environ(),
		"KODIDEV_PATH="+strings.Join(SearchPath(w.Addon, w.deps), string(os.PathListSeparator)),
		"KODIDEV_HOME="+w.env.Home,
		"KODIDEV_TEMP="+w.env.Temp,
		"KODIDEV_PROFILE="+w.Addon.ProfileDir,
		"KODIDEV_HANDLE="+strconv.Itoa(Handle),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.pid = cmd.Process.Pid
	w.lines = make(chan []byte, 16)
	w.exited = make(chan struct{})

	go func(lines chan<- []byte) {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lines <- line
		}
		close(lines)
	}(w.lines)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			w.log.Debug("addon stderr", "line", scanner.Text())
		}
	}()

	go func(c *exec.Cmd, exited chan<- struct{}) {
		_ = c.Wait()
		close(exited)
	}(cmd, w.exited)

	w.log.Debug("worker started", "pid", w.pid, "entry", entry)
	return nil
}

// Execute runs one callback URL to completion, relaying prompts and log
// records as they arrive, and returns the invocation's navigation state.
// Addon failures and worker deaths surface as errors; they never panic the
// controller.
func (w *Worker) Execute(ctx context.Context, u *url.URL) (*NavState, error) {
	if !w.Alive() {
		if err := w.start(); err != nil {
			return nil, err
		}
	}

	base := *u
	base.RawQuery = ""
	query := ""
	if u.RawQuery != "" {
		query = "?" + u.RawQuery
	}

	if err := w.send(&Message{Kind: MsgExecute, Execute: &ExecutePayload{
		BaseURL: base.String(),
		Handle:  Handle,
		Query:   query,
		URL:     u.String(),
	}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnresponsive, err)
	}

	state, err := w.await(ctx)

	if !w.reuse {
		w.Stop()
	}
	return state, err
}

// await polls the channel until a result arrives or the worker dies. The
// poll interval keeps the controller from blocking forever on a worker
// that crashed without closing its pipes.
func (w *Worker) await(ctx context.Context) (*NavState, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return nil, ErrWorkerUnresponsive
			}
			state, done, err := w.handleLine(ctx, line)
			if done {
				return state, err
			}

		case <-ticker.C:
			if !w.Alive() {
				// Drain whatever the worker managed to flush before dying.
				for line := range w.lines {
					state, done, err := w.handleLine(ctx, line)
					if done {
						return state, err
					}
				}
				return nil, ErrWorkerUnresponsive
			}

		case <-ctx.Done():
			w.Stop()
			return nil, ctx.Err()
		}
	}
}

// handleLine processes one channel frame. done is true once a final result
// has been seen.
func (w *Worker) handleLine(ctx context.Context, line []byte) (state *NavState, done bool, err error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		w.log.Debug("ignoring unparseable worker output", "line", string(line))
		return nil, false, nil
	}

	switch msg.Kind {
	case MsgPrompt:
		text := ""
		if msg.Prompt != nil {
			text = msg.Prompt.Text
		}
		reply, err := w.session.Prompt(ctx, text)
		if err != nil {
			// An interrupted prompt answers with an empty string so the
			// addon can carry on; cancellation is the loop's concern.
			reply = ""
		}
		if err := w.send(&Message{Kind: MsgPromptReply, Reply: &ReplyPayload{Text: reply}}); err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrWorkerUnresponsive, err)
		}

	case MsgLog:
		if msg.Log != nil {
			w.logRecord(msg.Log)
		}

	case MsgResult:
		if msg.Result == nil || !msg.Result.Success || msg.Result.State == nil {
			return nil, true, ErrAddonRuntime
		}
		return msg.Result.State, true, nil

	default:
		w.log.Debug("ignoring unexpected worker message", "kind", msg.Kind)
	}
	return nil, false, nil
}

func (w *Worker) logRecord(rec *LogPayload) {
	level := hclog.Debug
	if rec.Level >= 0 && rec.Level < len(hclogLevels) {
		level = hclogLevels[rec.Level]
	}
	w.log.Log(level, rec.Message)
}

func (w *Worker) send(msg *Message) error {
	frame, err := msg.Encode()
	if err != nil {
		return err
	}
	_, err = w.stdin.Write(frame)
	return err
}

// Stop shuts the worker down: a stop message and closed stdin first, a kill
// after the grace period. Safe to call on a never-started or already-dead
// worker.
func (w *Worker) Stop() {
	if w.cmd == nil {
		return
	}
	if w.Alive() {
		_ = w.send(&Message{Kind: MsgStop})
	}
	_ = w.stdin.Close()

	select {
	case <-w.exited:
	case <-time.After(w.stopGrace):
		w.log.Warn("worker did not exit, killing", "pid", w.pid)
		_ = w.cmd.Process.Kill()
		<-w.exited
	}
	w.cmd = nil
}
