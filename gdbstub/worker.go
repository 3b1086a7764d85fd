package gdbstub

import (
	"errors"
	"fmt"
)

var errWorkerClosed = errors.New("stub worker closed")

type anyResp struct {
	v   any
	err error
}

type anyReq struct {
	run  func() (any, error)
	resp chan anyResp
}

// worker owns the connection: every request/response exchange runs on its
// goroutine, one at a time.
type worker struct {
	req  chan anyReq
	quit chan struct{}
	done chan struct{}
}

func newWorker() *worker {
	w := &worker{
		req:  make(chan anyReq),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.quit:
				return
			case q := <-w.req:
				var out any
				var err error
				func() {
					defer func() {
						if x := recover(); x != nil {
							err = fmt.Errorf("%v", x)
						}
					}()
					out, err = q.run()
				}()
				q.resp <- anyResp{out, err}
			}
		}
	}()

	return w
}

func (w *worker) close() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	<-w.done
}

func do[T any](w *worker, fn func() (T, error)) (T, error) {
	var zero T
	resp := make(chan anyResp, 1)
	select {
	case w.req <- anyReq{run: func() (any, error) { v, err := fn(); return v, err }, resp: resp}:
	case <-w.quit:
		return zero, errWorkerClosed
	}
	r := <-resp
	if v, ok := r.v.(T); ok {
		return v, r.err
	}
	return zero, r.err
}

func doErr(w *worker, fn func() error) error {
	_, err := do(w, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
