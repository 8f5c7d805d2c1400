package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("quill.vm")

// Status is the execution state of a Thread.
type Status int32

const (
	StatusNone Status = iota
	StatusRunning
	StatusYield
	StatusFinished
	StatusError
	StatusCancelled
)

var statusNames = [...]string{"NONE", "RUNNING", "YIELD", "FINISHED", "ERROR", "CANCELLED"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// ---------------------------------------------------------------------------
// Thread: one script invocation
// ---------------------------------------------------------------------------

// Thread executes a Script as a single cooperative coroutine. It owns its
// operand stack, heap, program counter and jump-return stack; nothing is
// shared with other threads except the Script and the Environment.
//
// A thread only runs inside Start and Resume. Status, Done and Cancel may be
// used from any goroutine; everything else belongs to the goroutine driving
// the thread. A Cancel from elsewhere never runs the shutdown sweep while
// the driver is executing: the driver does it on the way out.
type Thread struct {
	id     string
	env    *Environment
	script *Script
	args   []Primitive

	heap    *Heap
	stack   *Stack
	pc      int
	current int // address of the executing instruction
	returns []int

	mu      sync.Mutex // held by the driver while it executes
	status  atomic.Int32
	result  Primitive
	err     error
	yielded Primitive
	cont    atomic.Pointer[Continuation]

	finalizeOnce sync.Once
	done         chan struct{}
	swept        atomic.Int32
	trace        bool
}

// NewThread creates a thread bound to script. args become the positional
// arguments of the main program; object references among them are
// registered when the thread starts.
func NewThread(env *Environment, script *Script, args ...Primitive) *Thread {
	if env == nil {
		env = NewEnvironment()
	}
	t := &Thread{
		id:     uuid.New().String(),
		env:    env,
		script: script,
		args:   append([]Primitive(nil), args...),
		done:   make(chan struct{}),
		trace:  log.AllowLevel(commonlog.Debug),
	}
	t.heap = newHeap(t)
	t.stack = newStack(t, t.heap)
	return t
}

// ID returns the unique thread identifier.
func (t *Thread) ID() string { return t.id }

// Status returns the current execution state.
func (t *Thread) Status() Status { return Status(t.status.Load()) }

func (t *Thread) Env() *Environment { return t.env }
func (t *Thread) Script() *Script   { return t.script }
func (t *Thread) Stack() *Stack     { return t.stack }
func (t *Thread) Heap() *Heap       { return t.heap }

// PC returns the address of the next instruction.
func (t *Thread) PC() int { return t.pc }

// Args returns the main program's arguments.
func (t *Thread) Args() []Primitive { return t.args }

// Err returns the error that ended the thread, if any.
func (t *Thread) Err() error { return t.err }

// Yielded returns the value handed out by the last suspension.
func (t *Thread) Yielded() Primitive { return t.yielded }

// Continuation returns the pending resume handle while the thread is
// yielded.
func (t *Thread) Continuation() *Continuation { return t.cont.Load() }

// Sweeps returns how many instances the shutdown sweep visited.
func (t *Thread) Sweeps() int { return int(t.swept.Load()) }

// Done is closed once the thread reached a terminal state and its shutdown
// sweep has completed.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Result returns the value the main program returned.
func (t *Thread) Result() (Primitive, error) {
	if s := t.Status(); s != StatusFinished {
		return Null, fmt.Errorf("%w: result of %s thread", ErrProtocol, s)
	}
	return t.result, nil
}

// Wrap converts a host object to an object reference using the template
// registered for its Go type. Existing instances are reused by identity.
func (t *Thread) Wrap(host any) (Primitive, error) {
	if host == nil {
		return Null, nil
	}
	if inst := t.heap.Find(host); inst != nil {
		return Ref(inst), nil
	}
	tmpl, ok := t.env.Templates.ForHost(host)
	if !ok {
		return Null, fmt.Errorf("%w: no template for host type %T", ErrUnresolved, host)
	}
	return Ref(NewInstance(host, tmpl)), nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start registers the start arguments and runs until the thread yields,
// finishes, fails or is cancelled. The error is non-nil only for protocol
// misuse; script failures are reported through Status and Err.
func (t *Thread) Start() (Status, error) {
	var err error
	if derr := t.drive(func() {
		if !t.status.CompareAndSwap(int32(StatusNone), int32(StatusRunning)) {
			err = fmt.Errorf("%w: start of %s thread", ErrProtocol, t.Status())
			return
		}
		log.Debugf("thread %s: start %s", t.id, t.script.Name)
		t.run(func() {
			for _, a := range t.args {
				t.heap.Retain(a)
			}
		})
	}); derr != nil {
		return t.Status(), derr
	}
	return t.Status(), err
}

// drive runs fn holding the driver lock, then finalizes the thread if it
// was cancelled meanwhile. Re-entering from inside the thread is misuse.
func (t *Thread) drive(fn func()) error {
	if !t.mu.TryLock() {
		return fmt.Errorf("%w: thread is already executing", ErrProtocol)
	}
	func() {
		defer t.mu.Unlock()
		fn()
	}()
	if t.Status() == StatusCancelled {
		t.mu.Lock()
		t.finalize()
		t.mu.Unlock()
	}
	return nil
}

// Resume continues a yielded thread with v as the value of the suspending
// expression.
func (t *Thread) Resume(v Primitive) (Status, error) {
	c := t.cont.Load()
	if c == nil {
		return t.Status(), fmt.Errorf("%w: resume of %s thread", ErrProtocol, t.Status())
	}
	return c.Resume(v)
}

// Yield suspends the running thread. It is meant for natives: the native
// returns normally and the dispatch loop stops after it.
func (t *Thread) Yield() (*Continuation, error) {
	return t.suspend(Null)
}

// YieldWith suspends the thread, exposing v to the host via Yielded.
func (t *Thread) YieldWith(v Primitive) (*Continuation, error) {
	t.heap.Retain(v)
	c, err := t.suspend(v)
	if err != nil {
		t.heap.Release(v)
	}
	return c, err
}

// suspend publishes the continuation before flipping the status, so
// anyone who observes YIELD also sees it.
func (t *Thread) suspend(v Primitive) (*Continuation, error) {
	c := &Continuation{thread: t}
	t.yielded = v
	t.cont.Store(c)
	if !t.status.CompareAndSwap(int32(StatusRunning), int32(StatusYield)) {
		t.cont.Store(nil)
		t.yielded = Null
		return nil, fmt.Errorf("%w: yield from %s thread", ErrProtocol, t.Status())
	}
	log.Debugf("thread %s: yield at %04d", t.id, t.current)
	return c, nil
}

// Cancel stops the thread without an error. An idle thread is finalized
// immediately; a running one stops before its next instruction and is
// finalized by its driver, as is one whose native has just yielded.
func (t *Thread) Cancel() {
	for {
		s := t.Status()
		if s.Terminal() {
			return
		}
		if t.status.CompareAndSwap(int32(s), int32(StatusCancelled)) {
			log.Debugf("thread %s: cancelled from %s", t.id, s)
			if t.mu.TryLock() {
				t.finalize()
				t.mu.Unlock()
			}
			return
		}
	}
}

// Fail ends a running or yielded thread with err. It must be called from
// the goroutine driving the thread, or while the thread is idle.
func (t *Thread) Fail(err error) {
	for {
		s := t.Status()
		if s != StatusRunning && s != StatusYield {
			return
		}
		if t.status.CompareAndSwap(int32(s), int32(StatusError)) {
			t.err = err
			log.Errorf("thread %s: %v", t.id, err)
			t.finalize()
			return
		}
	}
}

func (t *Thread) complete(result Primitive) {
	if !t.status.CompareAndSwap(int32(StatusRunning), int32(StatusFinished)) {
		t.heap.Release(result)
		return
	}
	t.result = result
	log.Debugf("thread %s: finished with %s", t.id, result.AsString())
	t.finalize()
}

// finalize runs the shutdown sweep once, whichever terminal state the
// thread reached.
func (t *Thread) finalize() {
	t.finalizeOnce.Do(func() {
		t.cont.Store(nil)
		n := t.heap.sweep()
		t.swept.Store(int32(n))
		log.Debugf("thread %s: %s, swept %d instances", t.id, t.Status(), n)
		close(t.done)
	})
}

// ---------------------------------------------------------------------------
// Continuation
// ---------------------------------------------------------------------------

// Continuation resumes one particular suspension of a thread. It can be
// used once.
type Continuation struct {
	thread *Thread
	used   atomic.Bool
}

// Thread returns the suspended thread.
func (c *Continuation) Thread() *Thread { return c.thread }

// Resume pushes v and continues execution.
func (c *Continuation) Resume(v Primitive) (Status, error) {
	t := c.thread
	var err error
	if derr := t.drive(func() {
		if c.used.Swap(true) {
			err = fmt.Errorf("%w: continuation already resumed", ErrProtocol)
			return
		}
		if t.cont.Load() != c {
			err = fmt.Errorf("%w: stale continuation", ErrProtocol)
			return
		}
		if !t.status.CompareAndSwap(int32(StatusYield), int32(StatusRunning)) {
			err = fmt.Errorf("%w: resume of %s thread", ErrProtocol, t.Status())
			return
		}
		t.cont.Store(nil)
		yielded := t.yielded
		t.yielded = Null
		log.Debugf("thread %s: resume at %04d", t.id, t.pc)
		t.run(func() {
			t.heap.Release(yielded)
			t.stack.Push(v)
		})
	}); derr != nil {
		return t.Status(), derr
	}
	return t.Status(), err
}
