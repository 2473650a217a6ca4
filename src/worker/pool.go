package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Pool runs sync jobs in the background so webhook handling and
// shutdown never wait on the aggregator. One job is one account id.
type Pool struct {
	workerCount int
	jobs        chan int64
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	run         func(ctx context.Context, accountID int64)
	jobTimeout  time.Duration

	mu     sync.Mutex // guards closed and the close of jobs
	closed bool
}

func NewPool(workerCount, queueSize int, jobTimeout time.Duration, run func(ctx context.Context, accountID int64)) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workerCount: workerCount,
		jobs:        make(chan int64, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		run:         run,
		jobTimeout:  jobTimeout,
	}
}

func (p *Pool) Start() {
	log.Printf("INFO: starting sync worker pool with %d workers", p.workerCount)
	for i := 1; i <= p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			log.Printf("INFO: sync worker %d shutting down", id)
			return
		case accountID, ok := <-p.jobs:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
			p.run(ctx, accountID)
			cancel()
		}
	}
}

// EnqueueSync submits an account for background synchronization.
// Non-blocking: a full queue drops the job with an error so the caller
// can log it; the periodic scheduler catches dropped accounts up later.
// Safe to race with Shutdown; once shutdown begins the job is refused.
func (p *Pool) EnqueueSync(accountID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("sync pool shutting down, dropping job for account %d", accountID)
	}
	select {
	case p.jobs <- accountID:
		return nil
	default:
		return fmt.Errorf("sync queue full, dropping job for account %d", accountID)
	}
}

// Shutdown stops accepting work, waits for in-flight jobs up to the
// timeout, then cancels whatever is left.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("INFO: sync worker pool drained")
	case <-time.After(timeout):
		log.Println("WARN: sync worker pool shutdown timeout reached, cancelling jobs")
	}
	p.cancel()
}
