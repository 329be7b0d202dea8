// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport moves newline-delimited text between a script and the
// game client, and owns the client subprocess when it was spawned here.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"
)

const (
	defaultStopTimeout = 5 * time.Second
	defaultLineBuffer  = 256
	maxLineLen         = 1024 * 1024
)

var (
	// ErrClosed is reported once the client's output has ended or the
	// transport was closed.
	ErrClosed = errors.New("transport closed")

	// ErrTimeout is reported when no line arrived before the caller's deadline.
	ErrTimeout = errors.New("timed out waiting for line")
)

// Error is a pipe or process failure. It is fatal to the session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options tune a transport.
type Options struct {
	Logger     *slog.Logger
	LineBuffer int
}

// ClientConfig describes how to launch the game client in scripting mode.
type ClientConfig struct {
	Path        string
	Args        []string
	WorkDir     string
	Env         map[string]string
	StopTimeout time.Duration
}

// Transport is a line-oriented pipe pair. Writes are serialized so
// concurrent senders never interleave partial lines.
type Transport struct {
	logger *slog.Logger

	wmu    sync.Mutex
	writer io.Writer

	reader io.Reader
	lines  chan string
	done   chan struct{}
	stop   chan struct{}

	mu          sync.Mutex
	closed      bool
	err         error
	cmd         *exec.Cmd
	stopTimeout time.Duration
	exitCode    int
	stopOnce    sync.Once
	doneOnce    sync.Once
}

// Attach wraps an existing pipe pair, such as the script's own stdin and
// stdout when the client launched it.
func Attach(r io.Reader, w io.Writer, opts Options) *Transport {
	t := newTransport(r, w, opts)
	go t.readLoop()
	return t
}

// Spawn starts the client binary with its stdin and stdout connected to the
// returned transport. The client's stderr is logged.
func Spawn(ctx context.Context, cfg ClientConfig, opts Options) (*Transport, error) {
	if cfg.Path == "" {
		return nil, &Error{Op: "spawn", Err: errors.New("empty client path")}
	}

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.WorkDir
	// Own process group so Close reaches helpers the client forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Op: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Op: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &Error{Op: "stderr pipe", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "spawn", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &Error{Op: "spawn", Err: err}
	}

	t := newTransport(stdout, stdin, opts)
	t.cmd = cmd
	t.stopTimeout = cfg.StopTimeout
	if t.stopTimeout <= 0 {
		t.stopTimeout = defaultStopTimeout
	}
	t.logger.Info("client started", "path", cfg.Path, "args", cfg.Args, "pid", cmd.Process.Pid)

	go t.captureStderr(stderr)
	go t.readLoop()
	return t, nil
}

func newTransport(r io.Reader, w io.Writer, opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	buf := opts.LineBuffer
	if buf <= 0 {
		buf = defaultLineBuffer
	}
	return &Transport{
		logger: logger,
		writer: w,
		reader: r,
		lines:  make(chan string, buf),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

// Send writes one line, adding the trailing newline.
func (t *Transport) Send(line string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	select {
	case <-t.done:
		return &Error{Op: "send", Err: ErrClosed}
	default:
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return &Error{Op: "send", Err: ErrClosed}
	}

	line = strings.TrimRight(line, "\r\n")
	if _, err := io.WriteString(t.writer, line+"\n"); err != nil {
		return &Error{Op: "send", Err: err}
	}
	if f, ok := t.writer.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return &Error{Op: "send", Err: err}
		}
	}
	t.logger.Debug("out", "line", line)
	return nil
}

// NextLine blocks until a line is available, the client's output ends
// (ErrClosed) or ctx is done (ErrTimeout on deadline, ctx.Err() otherwise).
// Lines already read are delivered before ErrClosed.
func (t *Transport) NextLine(ctx context.Context) (string, error) {
	select {
	case line := <-t.lines:
		return line, nil
	default:
	}

	select {
	case line := <-t.lines:
		return line, nil
	case <-t.done:
		select {
		case line := <-t.lines:
			return line, nil
		default:
			return "", ErrClosed
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

// NextLineTimeout is NextLine with a relative timeout.
func (t *Transport) NextLineTimeout(timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.NextLine(ctx)
}

// Done is closed once no more lines will arrive.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the transport ended: nil for a clean end of output or an
// explicit Close, the read or exit error otherwise. It is only meaningful
// after Done is closed.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// ExitCode returns the client's exit code once it has exited, or -1 if the
// transport did not spawn a client.
func (t *Transport) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil {
		return -1
	}
	return t.exitCode
}

// Close shuts the client's input, stops a spawned client, and releases
// every NextLine waiter with ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		select {
		case <-t.done:
		case <-time.After(t.closeWait()):
		}
		return nil
	}
	t.closed = true
	cmd := t.cmd
	t.mu.Unlock()

	if c, ok := t.writer.(io.Closer); ok {
		c.Close()
	}
	// From here the reader discards output, so a client blocked writing to
	// a full pipe can still see the signal and exit.
	t.stopOnce.Do(func() { close(t.stop) })

	if cmd != nil && cmd.Process != nil {
		pgid := cmd.Process.Pid
		syscall.Kill(-pgid, syscall.SIGTERM)
		select {
		case <-t.done:
		case <-time.After(t.stopTimeout):
			t.logger.Warn("client did not exit, killing", "pid", pgid)
			syscall.Kill(-pgid, syscall.SIGKILL)
		}
	} else if c, ok := t.reader.(io.Closer); ok {
		c.Close()
	}

	// A read blocked on a descriptor that ignores Close must not hold up
	// the waiters; they are released here and the reader is abandoned.
	select {
	case <-t.done:
	case <-time.After(t.closeWait()):
		t.finish(nil)
	}
	return nil
}

func (t *Transport) closeWait() time.Duration {
	if t.stopTimeout > 0 {
		return t.stopTimeout
	}
	return defaultStopTimeout
}

func (t *Transport) readLoop() {
	br := bufio.NewReaderSize(t.reader, 64*1024)
	var readErr error

	for {
		line, err := readLine(br)
		if err == nil || len(line) > 0 {
			t.deliver(line)
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}

	// Wait may only run once stdout has been drained.
	if t.cmd != nil {
		if err := t.cmd.Wait(); err != nil {
			t.mu.Lock()
			requested := t.closed
			t.mu.Unlock()
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.mu.Lock()
				t.exitCode = exitErr.ExitCode()
				t.mu.Unlock()
			}
			if !requested && readErr == nil {
				readErr = err
			}
		}
		t.logger.Info("client exited", "code", t.ExitCode())
	}

	t.mu.Lock()
	if t.closed && (errors.Is(readErr, io.ErrClosedPipe) || errors.Is(readErr, os.ErrClosed)) {
		readErr = nil
	}
	t.mu.Unlock()
	t.finish(readErr)
}

// deliver queues a line for NextLine, or drops it once Close has begun.
func (t *Transport) deliver(line string) {
	select {
	case <-t.stop:
		return
	default:
	}
	t.logger.Debug("in", "line", line)
	select {
	case t.lines <- line:
	case <-t.stop:
	}
}

// readLine returns the next line without its line ending. Bytes past
// maxLineLen are read and discarded rather than buffered, and a cut never
// leaves half a UTF-8 sequence behind.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	truncated := false
	for {
		frag, more, err := br.ReadLine()
		if room := maxLineLen - len(buf); len(frag) > room {
			frag = frag[:room]
			truncated = true
		}
		buf = append(buf, frag...)
		if err != nil || !more {
			if truncated {
				buf = trimPartialRune(buf)
			}
			return string(buf), err
		}
	}
}

func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

func (t *Transport) finish(err error) {
	t.mu.Lock()
	if err != nil && t.err == nil {
		t.err = &Error{Op: "read", Err: err}
	}
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Transport) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLen)
	for scanner.Scan() {
		t.logger.Warn("client stderr", "line", scanner.Text())
	}
	// An oversized line stops the scanner; keep the pipe drained anyway.
	io.Copy(io.Discard, r)
}
