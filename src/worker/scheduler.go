package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler periodically scans for accounts whose sync-frequency window
// has elapsed and feeds them to the pool. The orchestrator's own
// throttle and lock make double-enqueues harmless.
type Scheduler struct {
	pool     *Pool
	interval time.Duration
	due      func(ctx context.Context, now time.Time) ([]int64, error)
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(pool *Pool, interval time.Duration, due func(ctx context.Context, now time.Time) ([]int64, error)) *Scheduler {
	return &Scheduler{
		pool:     pool,
		interval: interval,
		due:      due,
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	log.Printf("INFO: sync scheduler running every %s", s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	}()
}

func (s *Scheduler) tick(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accountIDs, err := s.due(ctx, now)
	if err != nil {
		log.Printf("ERROR: scheduler failed to list due accounts: %v", err)
		return
	}

	enqueued := 0
	for _, id := range accountIDs {
		if err := s.pool.EnqueueSync(id); err != nil {
			log.Printf("WARN: scheduler could not enqueue account %d: %v", id, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		log.Printf("INFO: scheduler enqueued %d of %d due accounts", enqueued, len(accountIDs))
	}
}

// Stop signals the scheduler and waits for an in-flight tick to finish,
// so no enqueue can arrive after Stop returns.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}
