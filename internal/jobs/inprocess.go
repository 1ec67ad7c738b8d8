package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("deletion queue full")

// InProcessQueue is the default transport: a buffered channel drained by
// a single worker goroutine. Per-collection concurrency inside a run is
// already bounded by the engine, so one run at a time keeps load on the
// store predictable.
type InProcessQueue struct {
	processor *Processor
	jobs      chan Job
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
}

func NewInProcessQueue(p *Processor, buffer int) *InProcessQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &InProcessQueue{
		processor: p,
		jobs:      make(chan Job, buffer),
		stopCh:    make(chan struct{}),
	}
}

func (q *InProcessQueue) Enqueue(ctx context.Context, j Job) error {
	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InProcessQueue) Start() {
	if q.running {
		logrus.Warn("deletion queue already running")
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.loop()
	logrus.Info("in-process deletion queue started")
}

func (q *InProcessQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case j := <-q.jobs:
			q.processor.Process(context.Background(), j)
		case <-q.stopCh:
			// Drain whatever was accepted before shutdown.
			for {
				select {
				case j := <-q.jobs:
					q.processor.Process(context.Background(), j)
				default:
					return
				}
			}
		}
	}
}

// Stop drains accepted jobs and blocks until the worker exits.
func (q *InProcessQueue) Stop() {
	if !q.running {
		return
	}
	q.running = false
	close(q.stopCh)
	q.wg.Wait()
	logrus.Info("in-process deletion queue stopped")
}
