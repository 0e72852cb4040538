package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"syscall"
)

// ProcessError reports a failed worker round trip: non-zero exit, malformed
// framing or a timeout, with whatever the worker wrote to stderr attached.
type ProcessError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("worker %s failed: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += "; stderr: " + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

const maxStderr = 16 * 1024

// stderrBuffer keeps the tail of the worker's stderr for diagnosis.
type stderrBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > maxStderr {
		b.buf = b.buf[len(b.buf)-maxStderr:]
	}
	b.mu.Unlock()
	return len(p), nil
}

func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Process is one running worker subprocess. A pooled worker loops frames on
// its standard streams until stdin closes; a one-shot worker handles a
// single frame and exits. A Process is owned by one goroutine at a time.
type Process struct {
	command []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	stderr  *stderrBuffer

	oneShot bool
	broken  bool
	waited  bool
}

// StartProcess launches command. The child dies with us (SIGKILL on parent
// death), so an aborted evaluation never leaks workers.
func StartProcess(command []string, env []string, oneShot bool) (*Process, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty worker command")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	if len(env) > 0 {
		cmd.Env = env
	}

	p := &Process{command: command, cmd: cmd, stderr: &stderrBuffer{}, oneShot: oneShot}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	p.stdin = stdin
	p.stdout = bufio.NewReaderSize(stdout, 1<<16)

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Command: command[0], Err: fmt.Errorf("failed to start: %v", err)}
	}
	return p, nil
}

type exchangeResult struct {
	frame *Frame
	err   error
}

// Exchange writes one request frame and reads one response frame. Writing
// and reading run concurrently so a worker that streams its response before
// consuming all input cannot deadlock on full pipes. The call blocks the
// calling goroutine only; ctx aborts it.
func (p *Process) Exchange(ctx context.Context, req *Frame) (*Frame, error) {
	if p.broken {
		return nil, p.failf(fmt.Errorf("worker process is broken"))
	}

	writeDone := make(chan error, 1)
	go func() {
		err := WriteFrame(p.stdin, req)
		if p.oneShot {
			p.stdin.Close()
		}
		writeDone <- err
	}()

	readDone := make(chan exchangeResult, 1)
	go func() {
		f, err := ReadFrame(p.stdout)
		readDone <- exchangeResult{frame: f, err: err}
	}()

	select {
	case <-ctx.Done():
		p.kill()
		<-writeDone
		<-readDone
		return nil, p.failf(ctx.Err())
	case res := <-readDone:
		werr := <-writeDone
		if res.err != nil {
			p.kill()
			return nil, p.failf(fmt.Errorf("reading worker output: %v", res.err))
		}
		if werr != nil {
			// the worker replied but never consumed our input
			p.kill()
			return nil, p.failf(fmt.Errorf("writing worker input: %v", werr))
		}
		if p.oneShot {
			if err := p.wait(); err != nil {
				return nil, p.failf(err)
			}
		}
		return res.frame, nil
	}
}

func (p *Process) failf(err error) error {
	p.broken = true
	return &ProcessError{Command: p.command[0], Stderr: p.stderr.String(), Err: err}
}

func (p *Process) kill() {
	p.broken = true
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.wait()
}

func (p *Process) wait() error {
	if p.waited {
		return nil
	}
	p.waited = true
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("worker exited: %v", err)
	}
	return nil
}

// Close shuts a pooled worker down by closing its stdin and reaping it.
func (p *Process) Close() error {
	p.stdin.Close()
	err := p.wait()
	if err != nil && !p.broken {
		log.Printf("worker %s: %v", p.command[0], err)
	}
	return err
}

// RunWorker spawns a fresh worker for a single frame round trip.
func RunWorker(ctx context.Context, command []string, env []string, req *Frame) (*Frame, error) {
	p, err := StartProcess(command, env, true)
	if err != nil {
		return nil, err
	}
	resp, err := p.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
