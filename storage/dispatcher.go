package storage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ActivitySink receives activity entries from the dispatcher workers.
type ActivitySink interface {
	Send(ctx context.Context, a Activity) error
}

type DispatcherOptions struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// Dispatcher delivers activity entries to a sink from a bounded worker pool
// so that board mutations never wait on the network.
type Dispatcher struct {
	sink    ActivitySink
	log     *log.Logger
	jobs    chan Activity
	timeout time.Duration
	handoff time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewDispatcher(sink ActivitySink, opts DispatcherOptions, logger *log.Logger) *Dispatcher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		log:     logger,
		jobs:    make(chan Activity, opts.Buffer),
		timeout: opts.Timeout,
		handoff: opts.HandoffTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("activity dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", opts.Workers, opts.Buffer, opts.Timeout, opts.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for a := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Send(ctx, a)
		cancel()
		if err != nil {
			d.log.Errorf("activity send failed, err: %v, board: %s, version: %d, worker: %d", err, a.BoardID, a.Version, id)
		}
	}
}

// Dispatch queues a for delivery. It reports false when the buffer stayed
// full for the handoff timeout or the dispatcher is closed.
func (d *Dispatcher) Dispatch(a Activity) bool {
	if ok, closed := trySendNonBlocking(d.jobs, a); closed {
		return false
	} else if ok {
		return true
	}

	if d.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(d.jobs, a, timer.C)
	if closed {
		return false
	}
	return ok
}

// Close stops accepting entries and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func trySendNonBlocking(ch chan Activity, a Activity) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- a:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan Activity, a Activity, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- a:
		return true, false
	case <-timer:
		return false, false
	}
}
