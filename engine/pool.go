package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool runs submitted tasks on a bounded, elastic set of goroutines.
type WorkerPool struct {
	taskQueue     chan func()    // Queue for tasks
	maxWorkers    int            // Maximum number of workers
	minWorkers    int            // Minimum number of workers
	idleTimeout   time.Duration  // Time after which idle workers stop
	activeWorkers atomic.Int32   // Current number of active workers
	workerWG      sync.WaitGroup // Wait group for worker shutdown
	stop          chan struct{}  // Signal to stop the pool
	stopOnce      sync.Once
}

// NewWorkerPool creates a new WorkerPool.
func NewWorkerPool(minWorkers, maxWorkers int, idleTimeout time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	return &WorkerPool{
		taskQueue:   make(chan func(), 1000),
		maxWorkers:  maxWorkers,
		minWorkers:  minWorkers,
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
}

// Start launches the minimum number of workers.
func (wp *WorkerPool) Start() {
	for range wp.minWorkers {
		wp.startWorker()
	}
}

// Stop waits for running tasks and stops every worker. Queued tasks that
// no worker picked up are dropped.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.stop)
	})
	wp.workerWG.Wait()
}

// Submit queues a task. It returns false once the pool is stopped.
func (wp *WorkerPool) Submit(task func()) bool {
	select {
	case <-wp.stop:
		return false
	default:
	}

	if n := int(wp.activeWorkers.Load()); n < wp.maxWorkers && (n == 0 || len(wp.taskQueue) > 0) {
		wp.startWorker()
	}

	select {
	case wp.taskQueue <- task:
		return true
	case <-wp.stop:
		return false
	}
}

// Active is the current number of workers.
func (wp *WorkerPool) Active() int {
	return int(wp.activeWorkers.Load())
}

func (wp *WorkerPool) startWorker() {
	wp.activeWorkers.Add(1)
	wp.workerWG.Add(1)
	go func() {
		defer wp.workerWG.Done()

		idle := time.NewTimer(wp.idleTimeout)
		defer idle.Stop()
		for {
			select {
			case task := <-wp.taskQueue:
				task()
				idle.Reset(wp.idleTimeout)
			case <-idle.C:
				// Stop worker if idle too long and above minWorkers
				n := wp.activeWorkers.Load()
				if int(n) > wp.minWorkers && wp.activeWorkers.CompareAndSwap(n, n-1) {
					return
				}
				idle.Reset(wp.idleTimeout)
			case <-wp.stop:
				wp.activeWorkers.Add(-1)
				return
			}
		}
	}()
}
