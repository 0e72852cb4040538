package bridge

import (
	"context"
	"fmt"
	"log"
)

type task struct {
	ctx  context.Context
	req  *Frame
	resp chan exchangeResult
}

// Pool keeps n long-lived workers alive and feeds them frames through a
// task queue. Each worker process is owned by exactly one pool goroutine; a
// crashed worker is replaced and only the task that crashed it fails.
type Pool struct {
	command   []string
	env       []string
	taskQueue chan *task
	done      chan struct{}
}

const maxQueuedTasks = 400

func NewPool(n int, command []string, env []string) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", n)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("empty worker command")
	}
	p := &Pool{
		command:   command,
		env:       env,
		taskQueue: make(chan *task, maxQueuedTasks),
		done:      make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		proc, err := StartProcess(command, env, false)
		if err != nil {
			p.Close()
			return nil, err
		}
		go p.run(proc)
	}
	return p, nil
}

func (p *Pool) run(proc *Process) {
	defer func() {
		if proc != nil {
			proc.Close()
		}
	}()
	for {
		select {
		case <-p.done:
			return
		case t, ok := <-p.taskQueue:
			if !ok {
				return
			}
			if proc == nil || proc.broken {
				var err error
				proc, err = StartProcess(p.command, p.env, false)
				if err != nil {
					t.resp <- exchangeResult{err: err}
					continue
				}
			}
			f, err := proc.Exchange(t.ctx, t.req)
			t.resp <- exchangeResult{frame: f, err: err}
			if err != nil {
				log.Printf("worker %s: %v, restarting", p.command[0], err)
				proc.Close()
				proc = nil
			}
		}
	}
}

// Exchange runs one frame round trip on any idle worker.
func (p *Pool) Exchange(ctx context.Context, req *Frame) (*Frame, error) {
	t := &task{ctx: ctx, req: req, resp: make(chan exchangeResult, 1)}
	select {
	case p.taskQueue <- t:
	default:
		return nil, fmt.Errorf("worker pool task queue is full")
	}
	select {
	case <-ctx.Done():
		return nil, &ProcessError{Command: p.command[0], Err: ctx.Err()}
	case res := <-t.resp:
		return res.frame, res.err
	}
}

func (p *Pool) Close() {
	close(p.done)
}
