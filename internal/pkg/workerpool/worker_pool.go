package workerpool

import (
	"sync"
)

// WorkerPool runs submitted jobs on a fixed number of goroutines.
// A pool is single-use: Submit jobs, then Wait to drain them.
type WorkerPool struct {
	workers    int
	jobs       chan func()
	wg         sync.WaitGroup
	stopOnce   sync.Once
	closeOnce  sync.Once
	stopSignal chan struct{}
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	wp := &WorkerPool{
		workers:    workers,
		jobs:       make(chan func(), workers*2),
		stopSignal: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.stopSignal:
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			job()
		}
	}
}

// Submit blocks until a worker slot is free. It reports false when the pool is stopping.
func (wp *WorkerPool) Submit(job func()) bool {
	select {
	case <-wp.stopSignal:
		return false
	default:
	}
	select {
	case <-wp.stopSignal:
		return false
	case wp.jobs <- job:
		return true
	}
}

// Wait stops accepting jobs and blocks until every queued job has run.
func (wp *WorkerPool) Wait() {
	wp.closeOnce.Do(func() { close(wp.jobs) })
	wp.wg.Wait()
}

// Stop abandons queued jobs; running jobs finish.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() { close(wp.stopSignal) })
	wp.Wait()
}
