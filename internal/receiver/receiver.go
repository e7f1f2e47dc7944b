// Package receiver runs the long-poll loop over the queue and fans
// processing out across a bounded pool of workers, in the idiom of
// gravwell's own sqsS3Routine/worker pair (s3Ingester/manager.go): one
// goroutine polling, and one goroutine per message, with at most
// Concurrency of them in flight (bounded by a weighted semaphore).
package receiver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/queue"
)

// State is the receiver's lifecycle stage.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Processor handles one queue message, with all the upload events it
// decoded to, end to end (the Ingestor). Returning a nil error marks
// the message safe to delete; poisonous is set when the message could
// never succeed (malformed envelope, failed validation) so it should be
// deleted anyway rather than redelivered forever.
type Processor interface {
	Process(ctx context.Context, ev queue.Message) (poisonous bool, err error)
}

// Config carries the receiver's concurrency and shutdown tunables.
type Config struct {
	Concurrency        int64
	ShutdownDeadline   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 30 * time.Second
	}
	return c
}

// Counters tallies the receiver's per-message outcomes.
type Counters struct {
	mu                sync.Mutex
	MessagesReceived  int
	MessagesProcessed int
	MessagesDeleted   int
	MessagesFailed    int
	ShutdownAbandoned int
}

func (c *Counters) add(f func(*Counters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c)
}

// Snapshot returns a copy safe to read without further locking.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{
		MessagesReceived:  c.MessagesReceived,
		MessagesProcessed: c.MessagesProcessed,
		MessagesDeleted:   c.MessagesDeleted,
		MessagesFailed:    c.MessagesFailed,
		ShutdownAbandoned: c.ShutdownAbandoned,
	}
}

// Queuer is the subset of *queue.Queue the receiver depends on.
type Queuer interface {
	Receive(ctx context.Context) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandles []string) error
}

// Receiver owns the poll loop and worker pool.
type Receiver struct {
	cfg   Config
	q     Queuer
	proc  Processor
	lg    *logging.Logger
	sem   *semaphore.Weighted

	mu       sync.Mutex
	state    State
	counters Counters
}

// New builds a Receiver in the Idle state.
func New(cfg Config, q Queuer, proc Processor, lg *logging.Logger) *Receiver {
	cfg = cfg.withDefaults()
	return &Receiver{
		cfg:   cfg,
		q:     q,
		proc:  proc,
		lg:    lg,
		sem:   semaphore.NewWeighted(cfg.Concurrency),
		state: Idle,
	}
}

// State returns the receiver's current lifecycle stage.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Counters exposes the running totals.
func (r *Receiver) Counters() Counters { return r.counters.Snapshot() }

// Run polls until ctx is cancelled, dispatching each message to a
// worker bounded by Concurrency. It blocks until every in-flight
// message has either finished or the shutdown deadline elapsed.
func (r *Receiver) Run(ctx context.Context) error {
	r.setState(Running)

	var wg sync.WaitGroup
OUTER:
	for {
		select {
		case <-ctx.Done():
			break OUTER
		default:
		}

		msgs, err := r.q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break OUTER
			}
			r.lg.Error("receive failed", logging.KVErr(err))
			if sleepErr := sleepContext(ctx, time.Second); sleepErr != nil {
				break OUTER
			}
			continue
		}

		for _, m := range msgs {
			r.counters.add(func(c *Counters) { c.MessagesReceived++ })
			if err := r.sem.Acquire(ctx, 1); err != nil {
				break OUTER
			}
			wg.Add(1)
			go func(m queue.Message) {
				defer wg.Done()
				defer r.sem.Release(1)
				r.handle(ctx, m)
			}(m)
		}
	}

	r.setState(Stopping)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.cfg.ShutdownDeadline):
		r.lg.Warn("shutdown deadline elapsed with workers still in flight")
		r.counters.add(func(c *Counters) { c.ShutdownAbandoned++ })
	}
	r.setState(Stopped)
	return nil
}

func (r *Receiver) handle(ctx context.Context, m queue.Message) {
	poisonous, err := r.proc.Process(ctx, m)
	r.counters.add(func(c *Counters) { c.MessagesProcessed++ })

	if err != nil && !poisonous {
		r.counters.add(func(c *Counters) { c.MessagesFailed++ })
		r.lg.Error("processing failed, leaving message for redelivery", logging.NewKV("message_id", m.MessageID), logging.KVErr(err))
		return
	}
	if err != nil {
		r.counters.add(func(c *Counters) { c.MessagesFailed++ })
		r.lg.Warn("poison message, deleting without success", logging.NewKV("message_id", m.MessageID), logging.KVErr(err))
	}

	if delErr := r.q.Delete(ctx, []string{m.ReceiptHandle}); delErr != nil {
		r.lg.Error("failed to delete processed message", logging.NewKV("message_id", m.MessageID), logging.KVErr(delErr))
		return
	}
	r.counters.add(func(c *Counters) { c.MessagesDeleted++ })
}

func (r *Receiver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
