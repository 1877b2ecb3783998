// Package queue bounds concurrent in-flight checkin mutations, keeps
// mutations for the same habit mutually exclusive, and applies optimistic
// local updates with rollback on failure.
//
// The source of these rules is a cooperative single-threaded client; on a
// preemptively scheduled runtime the queue's counters and active-set live
// behind one mutex. The observable behavior — per-habit exclusion, bounded
// concurrency, FIFO with skip-over for blocked habits — is unchanged.
package queue

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultConcurrency is the in-flight mutation cap across all habits.
	DefaultConcurrency = 6
	// MaxConcurrency is the hard ceiling on the configurable cap.
	MaxConcurrency = 10
	// DefaultReconcileDelay is how long after a successful mutation the
	// deferred full refresh fires.
	DefaultReconcileDelay = 5 * time.Minute
)

// Task is one checkin mutation: +1 (or −1 when Remove) against a habit on
// a given day key.
type Task struct {
	HabitID int
	DateKey string
	Remove  bool
}

// MutateFunc performs the remote mutation and returns the server-confirmed
// count for the habit's current period. Timeout semantics belong to the
// implementation; the queue only reacts to the outcome.
type MutateFunc func(ctx context.Context, task Task) (int, error)

// Options tunes a Queue. Zero values pick the defaults.
type Options struct {
	// Concurrency caps in-flight mutations; clamped to [1, MaxConcurrency].
	Concurrency int
	// ReconcileDelay is the deferred-refresh delay after a success.
	ReconcileDelay time.Duration
	// Refresh performs the full reconciliation refresh. Optional.
	Refresh func()
	// OnError is notified after a failed task has been rolled back, so the
	// UI can surface a non-blocking error. Optional.
	OnError func(task Task, err error)
}

type pendingTask struct {
	ctx  context.Context
	task Task
	cmd  *Command
}

// Queue serializes competing checkin mutations. See the package comment
// for the scheduling rules.
type Queue struct {
	mutate MutateFunc
	state  *State

	limit          int
	reconcileDelay time.Duration
	refresh        func()
	onError        func(Task, error)

	mu           sync.Mutex
	waiting      []*pendingTask
	active       int
	activeHabits map[int]struct{}
	// pending counts queued+running tasks per habit. A counter, not a
	// boolean: rapid taps stack several tasks, and "still synchronizing"
	// must only clear when all of them finished.
	pending map[int]int

	reconcileTimer    *time.Timer
	reconcileArmed    bool
	reconcileDeferred bool

	wg sync.WaitGroup
}

func New(mutate MutateFunc, state *State, opts Options) *Queue {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if limit > MaxConcurrency {
		limit = MaxConcurrency
	}
	delay := opts.ReconcileDelay
	if delay <= 0 {
		delay = DefaultReconcileDelay
	}
	return &Queue{
		mutate:         mutate,
		state:          state,
		limit:          limit,
		reconcileDelay: delay,
		refresh:        opts.Refresh,
		onError:        opts.OnError,
		activeHabits:   make(map[int]struct{}),
		pending:        make(map[int]int),
	}
}

// Enqueue applies the optimistic delta to the state, queues the remote
// mutation, and drains immediately.
func (q *Queue) Enqueue(ctx context.Context, task Task) {
	delta := 1
	if task.Remove {
		delta = -1
	}
	cmd := q.state.Apply(task.HabitID, delta)

	q.mu.Lock()
	q.pending[task.HabitID]++
	q.waiting = append(q.waiting, &pendingTask{ctx: ctx, task: task, cmd: cmd})
	q.drainLocked()
	q.mu.Unlock()
}

// drainLocked starts waiting tasks while capacity remains, skipping over
// tasks whose habit already has a mutation running.
func (q *Queue) drainLocked() {
	for q.active < q.limit {
		idx := -1
		for i, pt := range q.waiting {
			if _, busy := q.activeHabits[pt.task.HabitID]; !busy {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		pt := q.waiting[idx]
		copy(q.waiting[idx:], q.waiting[idx+1:])
		q.waiting[len(q.waiting)-1] = nil // release the slot for GC
		q.waiting = q.waiting[:len(q.waiting)-1]

		q.active++
		q.activeHabits[pt.task.HabitID] = struct{}{}
		q.wg.Add(1)
		go q.run(pt)
	}
}

func (q *Queue) run(pt *pendingTask) {
	defer q.wg.Done()

	count, err := q.mutate(pt.ctx, pt.task)

	q.mu.Lock()
	q.active--
	delete(q.activeHabits, pt.task.HabitID)
	if q.pending[pt.task.HabitID]--; q.pending[pt.task.HabitID] <= 0 {
		delete(q.pending, pt.task.HabitID)
	}

	if err != nil {
		pt.cmd.Rollback()
	} else {
		q.state.Confirm(pt.task.HabitID, count)
		q.scheduleReconcileLocked()
	}

	// A refresh that was skipped mid-flight fires once everything settles.
	if len(q.pending) == 0 && q.reconcileDeferred {
		q.reconcileDeferred = false
		q.scheduleReconcileLocked()
	}

	q.drainLocked()
	q.mu.Unlock()

	if err != nil && q.onError != nil {
		q.onError(pt.task, err)
	}
}

func (q *Queue) scheduleReconcileLocked() {
	if q.refresh == nil || q.reconcileArmed {
		return
	}
	q.armReconcileLocked()
}

func (q *Queue) armReconcileLocked() {
	q.reconcileArmed = true
	q.reconcileTimer = time.AfterFunc(q.reconcileDelay, q.fireReconcile)
}

func (q *Queue) fireReconcile() {
	q.mu.Lock()
	q.reconcileArmed = false
	if len(q.pending) > 0 {
		// Refreshing mid-flight would discard optimistic state.
		q.reconcileDeferred = true
		q.mu.Unlock()
		return
	}
	refresh := q.refresh
	q.mu.Unlock()
	if refresh != nil {
		refresh()
	}
}

// Pending reports how many tasks (queued or running) target habitID.
func (q *Queue) Pending(habitID int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[habitID]
}

// Idle reports whether no task is queued or running for any habit.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

// InFlight reports the number of currently running mutations.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Wait blocks until every task enqueued so far has completed.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Stop cancels a scheduled reconciliation refresh, if any.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reconcileTimer != nil {
		q.reconcileTimer.Stop()
		q.reconcileTimer = nil
	}
	q.reconcileArmed = false
	q.reconcileDeferred = false
}
