package repository

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"kata_analysis/internal/domain/katago"
	kataerr "kata_analysis/internal/errors"
)

const (
	// Ownership and policy arrays on a 19x19 board make result lines large.
	maxLineSize = 16 * 1024 * 1024

	eventBuffer = 64
)

// Event is one item of the engine's output stream: either a decoded
// response or the error for a line that could not be decoded. Decode errors
// do not end the stream.
type Event struct {
	Response katago.Response
	Err      error
}

// EngineChannel owns one spawned engine process and turns its stdio into a
// write-sink for actions and a read-stream of decoded responses. The sink
// and the stream touch disjoint pipe halves and are safe to drive from
// separate goroutines; responses for several in-flight queries may arrive
// interleaved, correlation by id is the caller's job.
type EngineChannel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event
	log    *zap.SugaredLogger

	writeMu     sync.Mutex
	stdinClosed bool
	killOnce    sync.Once
}

// NewEngineChannel spawns the supplied not-yet-started command and takes
// ownership of its stdin and stdout pipes. Stderr is left to the caller. A
// spawn failure (missing binary, bad working directory) is returned, not
// fatal.
func NewEngineChannel(cmd *exec.Cmd, log *zap.SugaredLogger) (*EngineChannel, error) {
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	c := &EngineChannel{
		cmd:    cmd,
		stdin:  stdinPipe,
		events: make(chan Event, eventBuffer),
		log:    log,
	}

	go c.readLoop(stdoutPipe)

	return c, nil
}

// Send encodes one action and writes it to the engine's stdin. Writes are
// serialized and delivered in submission order; the write blocks while the
// pipe buffer is full. An encode failure affects only this action.
func (c *EngineChannel) Send(a katago.Action) error {
	buf, err := katago.EncodeAction(a)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.stdinClosed {
		return kataerr.ErrSinkClosed
	}
	if _, err := c.stdin.Write(buf); err != nil {
		return fmt.Errorf("write action %q to engine: %w", a.ActionID(), err)
	}
	return nil
}

// Events returns the response stream. It is closed when the engine closes
// its stdout; that is normal completion, not an error. Events arrive in the
// exact order the engine emitted the corresponding lines.
func (c *EngineChannel) Events() <-chan Event {
	return c.events
}

// CloseSend closes the engine's stdin. The response stream keeps running
// until the engine exits on its own.
func (c *EngineChannel) CloseSend() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.stdinClosed {
		return nil
	}
	c.stdinClosed = true
	return c.stdin.Close()
}

// Wait reaps the engine process after it exits.
func (c *EngineChannel) Wait() error {
	return c.cmd.Wait()
}

// Close forcibly terminates the engine.
func (c *EngineChannel) Close() error {
	_ = c.CloseSend()
	c.killOnce.Do(func() {
		if c.cmd.Process != nil {
			if err := c.cmd.Process.Kill(); err != nil {
				c.log.Warnw("failed to kill engine process", "error", err)
			}
		}
	})
	return nil
}

func (c *EngineChannel) readLoop(stdout io.Reader) {
	defer close(c.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp, err := katago.DecodeResponse(line)
		if err != nil {
			c.log.Warnw("engine emitted undecodable line", "error", err)
			c.events <- Event{Err: err}
			continue
		}
		c.events <- Event{Response: resp}
	}

	if err := scanner.Err(); err != nil {
		c.events <- Event{Err: fmt.Errorf("read engine stdout: %w", err)}
	}
}
