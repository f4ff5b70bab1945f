package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of webhook work. Jobs sharing a Key run on the same worker,
// in dispatch order.
type Job struct {
	Key     string
	Handler func(ctx context.Context) error
}

type Stats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	Uptime          string         `json:"uptime"`
	Workers         []WorkerStats  `json:"workers"`
	ActiveKeys      map[string]int `json:"active_keys"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// keys are forgotten this long after their last dispatch
const activeKeyTTL = 2 * time.Second

type activeKey struct {
	workerID  int
	updatedAt time.Time
}

// Pool shards jobs over a fixed set of workers, each with its own bounded queue.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    atomic.Bool
	stopCh     chan struct{}
	startTime  time.Time

	totalDispatched atomic.Int64
	totalProcessed  atomic.Int64
	totalDropped    atomic.Int64
	totalErrors     atomic.Int64

	activeMu   sync.Mutex
	activeKeys map[string]activeKey
}

type worker struct {
	id            int
	queue         chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	processing    atomic.Bool
	jobsProcessed atomic.Int64
	pool          *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 6
	}
	if queueSize <= 0 {
		queueSize = 250
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		activeKeys: make(map[string]activeKey),
		stopCh:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.startTime = time.Now()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.activeMu.Lock()
				p.expireKeys(time.Now())
				p.activeMu.Unlock()
			}
		}
	}()

	for i := range p.workers {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:     i,
			queue:  make(chan Job, p.queueSize),
			ctx:    workerCtx,
			cancel: cancel,
			pool:   p,
		}
		p.workers[i] = w
		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[MSG_WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues job without blocking. It reports false when the
// worker's queue is full or the pool is stopped.
func (p *Pool) TryDispatch(job Job) bool {
	if p.stopped.Load() {
		p.totalDropped.Add(1)
		return false
	}

	shard := p.shardFor(job.Key)
	p.totalDispatched.Add(1)

	p.activeMu.Lock()
	p.activeKeys[job.Key] = activeKey{workerID: shard, updatedAt: time.Now()}
	p.activeMu.Unlock()

	sent := func() (ok bool) {
		// Stop may close the queue between the stopped check and the send.
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].queue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	p.activeMu.Lock()
	delete(p.activeKeys, job.Key)
	p.activeMu.Unlock()

	p.totalDropped.Add(1)
	logrus.Warnf("[MSG_WORKER_POOL] Worker %d queue full, dropping job for %s", shard, job.Key)
	return false
}

// Stop cancels the workers and waits for queued jobs to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stopCh)
		logrus.Info("[MSG_WORKER_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w == nil {
				continue
			}
			w.cancel()
			close(w.queue)
		}
		p.wg.Wait()

		logrus.Info("[MSG_WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) expireKeys(now time.Time) {
	for k, v := range p.activeKeys {
		if now.Sub(v.updatedAt) > activeKeyTTL {
			delete(p.activeKeys, k)
		}
	}
}

func (p *Pool) Stats() Stats {
	workers := make([]WorkerStats, 0, len(p.workers))
	active := 0
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		busy := w.processing.Load()
		if busy {
			active++
		}
		workers = append(workers, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.queue),
			IsProcessing:  busy,
			JobsProcessed: w.jobsProcessed.Load(),
		})
	}

	p.activeMu.Lock()
	p.expireKeys(time.Now())
	keys := make(map[string]int, len(p.activeKeys))
	for k, v := range p.activeKeys {
		keys[k] = v.workerID
	}
	p.activeMu.Unlock()

	var uptime string
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime).Truncate(time.Second).String()
	}

	return Stats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   active,
		TotalDispatched: p.totalDispatched.Load(),
		TotalProcessed:  p.totalProcessed.Load(),
		TotalDropped:    p.totalDropped.Load(),
		TotalErrors:     p.totalErrors.Load(),
		Uptime:          uptime,
		Workers:         workers,
		ActiveKeys:      keys,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[MSG_WORKER_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.queue:
			if !ok {
				logrus.Debugf("[MSG_WORKER_POOL] Worker %d shutting down", w.id)
				return
			}
			w.handle(job)
		case <-w.ctx.Done():
			logrus.Debugf("[MSG_WORKER_POOL] Worker %d cancelled, draining queue", w.id)
			for job := range w.queue {
				w.handle(job)
			}
			return
		}
	}
}

// handle runs one job. Jobs receive a context detached from the pool's
// cancellation so a drain during shutdown still completes its writes.
func (w *worker) handle(job Job) {
	w.processing.Store(true)
	defer func() {
		if r := recover(); r != nil {
			w.pool.totalErrors.Add(1)
			logrus.Errorf("[MSG_WORKER_POOL] Worker %d panic for %s: %v", w.id, job.Key, r)
		}
		w.processing.Store(false)
		w.jobsProcessed.Add(1)
		w.pool.totalProcessed.Add(1)
	}()

	if err := job.Handler(context.WithoutCancel(w.ctx)); err != nil {
		w.pool.totalErrors.Add(1)
		logrus.WithError(err).Errorf("[MSG_WORKER_POOL] Worker %d job failed for %s", w.id, job.Key)
	}
}
