// Package kernel implements the discrete-event simulation engine: virtual
// time, events, delayed waits, and deterministic cooperative scheduling of
// tasks. Tasks run each as their own goroutine but only one is ever
// unblocked at a time — the engine hands off control explicitly, so the
// observable behaviour is exactly that of a single-threaded scheduler with
// FIFO-by-creation-order ready queues and delta-cycle semantics.
package kernel

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// Time is virtual simulated time, in seconds.
type Time float64

// Event is a named notification with a single pending/fired flag. Firing
// wakes every task currently waiting on it; it carries no payload and does
// not queue — multiple notifies between firings collapse into one wakeup.
type Event struct {
	name string
}

// NewEvent creates a named event. The name is used only for diagnostics.
func NewEvent(name string) *Event {
	return &Event{name: name}
}

func (e *Event) String() string { return e.name }

type taskState int

const (
	stateRunnable taskState = iota
	stateBlockedEvent
	stateBlockedDelay
	stateDone
)

// Task is a cooperative fibre with an owning module name and an entry
// procedure. It is runnable, blocked-on-event, or blocked-on-delay.
type Task struct {
	id     int
	module string
	state  taskState
	resume chan struct{}
}

func (t *Task) Module() string { return t.module }

type timedEntry struct {
	wake Time
	seq  int
	task *Task
}

type yieldMsg struct {
	task *Task
	done bool
}

// Engine owns the ready queue, the timed-wait queue, the event waiters map
// and the set of events pending delta-cycle delivery.
type Engine struct {
	now     Time
	runTime Time

	nextTaskID int
	nextSeq    int
	tasks      []*Task

	ready   []*Task
	timed   []timedEntry
	waiters map[*Event][]*Task

	deltaPending []*Event
	deltaSeen    map[*Event]bool

	yield chan yieldMsg

	log       *log.Logger
	observers []func(now Time, isDelta bool)
}

// New creates an idle engine. Call CreateTask for every module task before
// Run.
func New(logger *log.Logger) *Engine {
	return &Engine{
		waiters:   make(map[*Event][]*Task),
		deltaSeen: make(map[*Event]bool),
		yield:     make(chan yieldMsg),
		log:       logger,
	}
}

// Now returns the current virtual time. Only meaningful while Run is
// executing or after it has stopped.
func (e *Engine) Now() Time { return e.now }

// AddObserver registers a function invoked once per scheduling iteration
// (isDelta indicates whether this call corresponds to a delta-cycle batch
// rather than an end-of-timestep batch).
func (e *Engine) AddObserver(fn func(now Time, isDelta bool)) {
	e.observers = append(e.observers, fn)
}

// CreateTask registers a new cooperative task for moduleName. entry is run
// on its own goroutine but is only ever active while it holds the baton
// handed to it by the scheduler in Run.
func (e *Engine) CreateTask(moduleName string, entry func(*Handle)) *Task {
	t := &Task{
		id:     e.nextTaskID,
		module: moduleName,
		state:  stateRunnable,
		resume: make(chan struct{}),
	}
	e.nextTaskID++
	e.tasks = append(e.tasks, t)
	e.ready = append(e.ready, t)

	go func() {
		<-t.resume
		h := &Handle{task: t, engine: e}
		entry(h)
		e.yield <- yieldMsg{task: t, done: true}
	}()

	return t
}

// Notify wakes every task waiting on e immediately: they re-enter ready in
// the order they began waiting.
func (e *Engine) Notify(ev *Event) {
	waiting := e.waiters[ev]
	delete(e.waiters, ev)
	for _, t := range waiting {
		t.state = stateRunnable
		e.ready = append(e.ready, t)
	}
}

// NotifyZero defers delivery of ev to the end of the current batch of
// runnable tasks (a delta cycle), deduplicating repeated notifies.
func (e *Engine) NotifyZero(ev *Event) {
	if e.deltaSeen[ev] {
		return
	}
	e.deltaSeen[ev] = true
	e.deltaPending = append(e.deltaPending, ev)
}

// Run drives the scheduler until virtual time reaches runTime or the
// simulation runs out of work (no ready, timed, or deadlocked tasks).
func (e *Engine) Run(runTime Time) {
	e.runTime = runTime

	for {
		for len(e.ready) > 0 {
			t := e.ready[0]
			e.ready = e.ready[1:]
			t.resume <- struct{}{}
			msg := <-e.yield
			if msg.done {
				msg.task.state = stateDone
			}
		}

		e.fireObservers(false)

		if len(e.deltaPending) > 0 {
			pending := e.deltaPending
			e.deltaPending = nil
			e.deltaSeen = make(map[*Event]bool)
			for _, ev := range pending {
				e.Notify(ev)
			}
			if len(e.ready) > 0 {
				e.fireObservers(true)
				continue
			}
		}

		if len(e.timed) == 0 {
			if e.hasOutstandingWaiters() {
				e.reportDeadlock()
			}
			return
		}

		wake := e.minWake()
		if wake >= e.runTime {
			e.now = e.runTime
			return
		}
		e.now = wake
		e.moveTimedToReady(wake)
	}
}

func (e *Engine) fireObservers(isDelta bool) {
	for _, obs := range e.observers {
		obs(e.now, isDelta)
	}
}

func (e *Engine) hasOutstandingWaiters() bool {
	return len(e.waiters) > 0
}

func (e *Engine) reportDeadlock() {
	var blocked []string
	for ev, tasks := range e.waiters {
		for _, t := range tasks {
			blocked = append(blocked, fmt.Sprintf("%s waiting on %s", t.module, ev.name))
		}
	}
	e.log.Fatal("deadlock detected: no runnable or timed task remains", "waiting", blocked)
}

func (e *Engine) minWake() Time {
	min := 0
	for i := range e.timed {
		if i == 0 {
			min = i
			continue
		}
		if e.timed[i].wake < e.timed[min].wake ||
			(e.timed[i].wake == e.timed[min].wake && e.timed[i].seq < e.timed[min].seq) {
			min = i
		}
	}
	return e.timed[min].wake
}

func (e *Engine) moveTimedToReady(wake Time) {
	remaining := e.timed[:0]
	var due []timedEntry
	for _, entry := range e.timed {
		if entry.wake == wake {
			due = append(due, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}
	e.timed = remaining
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	for _, entry := range due {
		entry.task.state = stateRunnable
		e.ready = append(e.ready, entry.task)
	}
}

// Handle is the per-task capability a task's entry procedure uses to
// suspend itself. It must only be used from inside the task it was issued
// to, and never retained across a WaitEvent/WaitDelay call by another task.
type Handle struct {
	task   *Task
	engine *Engine
}

// Now returns the engine's current virtual time.
func (h *Handle) Now() Time { return h.engine.now }

// Module returns the owning module name, for diagnostics.
func (h *Handle) Module() string { return h.task.module }

// Log returns the engine-wide logger.
func (h *Handle) Log() *log.Logger { return h.engine.log }

// WaitEvent suspends the calling task until ev is notified.
func (h *Handle) WaitEvent(ev *Event) {
	h.engine.waiters[ev] = append(h.engine.waiters[ev], h.task)
	h.task.state = stateBlockedEvent
	h.engine.yield <- yieldMsg{task: h.task}
	<-h.task.resume
}

// WaitDelay suspends the calling task for d seconds of virtual time. d must
// be >= 0; zero-time waits are used to force a delta-cycle boundary.
func (h *Handle) WaitDelay(d Time) {
	h.engine.nextSeq++
	h.engine.timed = append(h.engine.timed, timedEntry{
		wake: h.engine.now + d,
		seq:  h.engine.nextSeq,
		task: h.task,
	})
	h.task.state = stateBlockedDelay
	h.engine.yield <- yieldMsg{task: h.task}
	<-h.task.resume
}

// Notify and NotifyZero are forwarded so task code never needs to thread
// the engine reference separately from its Handle.
func (h *Handle) Notify(ev *Event)     { h.engine.Notify(ev) }
func (h *Handle) NotifyZero(ev *Event) { h.engine.NotifyZero(ev) }
