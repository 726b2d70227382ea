package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ReplyJob is one unit of reply work for a conversation. Jobs for the
// same conversation always land on the same worker, so replies within a
// conversation stay ordered even when the pool runs wide.
type ReplyJob struct {
	ConversationID string
	Handler        func(ctx context.Context) error
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	NumWorkers      int   `json:"num_workers"`
	QueueSize       int   `json:"queue_size"`
	TotalDispatched int64 `json:"total_dispatched"`
	TotalProcessed  int64 `json:"total_processed"`
	TotalDropped    int64 `json:"total_dropped"`
	TotalErrors     int64 `json:"total_errors"`
}

// ReplyPool runs reply handlers on a fixed set of workers, sharded by
// conversation id. It exists so the webhook can acknowledge the
// provider before the model call finishes.
type ReplyPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id       int
	jobQueue chan ReplyJob
	ctx      context.Context
	cancel   context.CancelFunc
	pool     *ReplyPool
}

func NewReplyPool(numWorkers, queueSize int) *ReplyPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	return &ReplyPool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the workers. The context bounds the lifetime of every
// handler the pool runs.
func (p *ReplyPool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan ReplyJob, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[REPLY_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues a job on the worker owning the conversation's
// shard. It never blocks: a full queue drops the job and returns false
// so the caller can fall back to handling it inline.
func (p *ReplyPool) TryDispatch(job ReplyJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.ConversationID)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[REPLY_POOL] Worker %d queue full (or stopped), dropping job for conversation %s",
		shard, job.ConversationID)
	return false
}

// Stop drains the workers gracefully.
func (p *ReplyPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[REPLY_POOL] Stopping workers...")

		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}

		p.wg.Wait()

		stats := p.GetStats()
		logrus.Infof("[REPLY_POOL] All workers stopped (processed=%d dropped=%d errors=%d)",
			stats.TotalProcessed, stats.TotalDropped, stats.TotalErrors)
	})
}

func (p *ReplyPool) GetStats() PoolStats {
	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
	}
}

// shardFor maps a conversation to its worker via consistent hashing.
func (p *ReplyPool) shardFor(conversationID string) int {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job, open := <-w.jobQueue:
			if !open {
				return
			}
			w.process(job)
		}
	}
}

func (w *worker) process(job ReplyJob) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[REPLY_POOL] Worker %d panic for conversation %s: %v", w.id, job.ConversationID, r)
		}
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.Errorf("[REPLY_POOL] Worker %d job failed for conversation %s: %v", w.id, job.ConversationID, err)
	}
	atomic.AddInt64(&w.pool.totalProcessed, 1)
}
