// Package actor implements the actor-style threading framework: a
// thread-safe priority inbox, a millisecond timer wheel, and
// readiness-based multiplexed I/O, combined into one dedicated
// per-actor event loop goroutine.
package actor

import (
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// oneYear caps the readiness-poll timeout when no timer is pending, matching
// the source's "wait effectively forever, but not literally forever" idiom.
const oneYear = 365 * 24 * time.Hour

// Behavior is the capability set a concrete actor type supplies. BaseActor
// is parameterised over it instead of using virtual methods.
type Behavior interface {
	// OnPreCreate validates configuration before the goroutine is spawned.
	// It runs on the parent goroutine.
	OnPreCreate() error
	// OnThreadInitiate does first-time setup on the actor's own goroutine.
	OnThreadInitiate() error
	// OnMsg handles one non-Stop message.
	OnMsg(msg Message)
	// OnTimer handles one timer fire.
	OnTimer(id int)
	// OnEvent handles readiness on subscribed fds.
	OnEvent(readable, writable, exceptional []int)
	// OnThreadTerminate runs last, on the actor's own goroutine, before exit.
	OnThreadTerminate()
	// OnPostJoin runs on the parent goroutine after Stop(join=true) returns.
	OnPostJoin()
}

// BaseActor owns the inbox, timer wheel, and registered FD set, and runs the
// event loop described in SPEC_FULL.md §4.4. Concrete actor types hold a
// *BaseActor (in their Base field) and pass themselves as the Behavior.
type BaseActor struct {
	typeName string
	behavior Behavior
	logger   zerolog.Logger

	inbox  *inbox
	timers *timerWheel
	fds    *fdSet

	wakeR, wakeW *os.File

	mu        sync.Mutex
	state     State
	shuttingDown bool
	number    int
	parent    *BaseActor

	wg      sync.WaitGroup
	started bool
}

// NewBaseActor constructs an actor in state Unknown. typeName labels its
// metrics and log lines; behavior supplies the hooks.
func NewBaseActor(typeName string, behavior Behavior, logger zerolog.Logger) (*BaseActor, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, NewError(ErrSystem, err)
	}
	return &BaseActor{
		typeName: typeName,
		behavior: behavior,
		logger:   logger.With().Str("actor_type", typeName).Logger(),
		inbox:    newInbox(),
		timers:   newTimerWheel(),
		fds:      newFDSet(),
		wakeR:    r,
		wakeW:    w,
		number:   -1,
		state:    StateUnknown,
	}, nil
}

// SetAttribute assigns this actor an actor number and optional parent,
// registering it in the global registry in state Ready.
func (a *BaseActor) SetAttribute(number int, parent *BaseActor) {
	a.mu.Lock()
	a.number = number
	a.parent = parent
	a.state = StateReady
	a.mu.Unlock()

	if number != -1 {
		globalRegistry.setAttribute(number, a)
		obs.ActorsRegistered.Set(float64(globalRegistry.Len()))
	}
}

// Number returns the actor's registered number, or -1 if unregistered.
func (a *BaseActor) Number() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.number
}

// State returns the actor's current lifecycle state.
func (a *BaseActor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *BaseActor) setState(st State) {
	a.mu.Lock()
	a.state = st
	number := a.number
	a.mu.Unlock()
	if number != -1 {
		globalRegistry.setState(number, st)
	}
}

// Active reports whether the actor has not yet begun shutting down; client
// TCP reconnect logic checks this before re-arming its retry timer.
func (a *BaseActor) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.shuttingDown
}

// AppendFD registers fd with the given watch interest in this actor's
// readiness set.
func (a *BaseActor) AppendFD(fd int, r, w, x bool) error {
	return a.fds.Append(fd, r, w, x)
}

// RemoveFD drops every registered entry for fd.
func (a *BaseActor) RemoveFD(fd int) {
	a.fds.Remove(fd)
}

// SetTimer schedules a timer; see timerWheel.Set.
func (a *BaseActor) SetTimer(delayMS int64, id int, periodMS int64) error {
	return a.timers.Set(delayMS, id, periodMS)
}

// CancelTimer cancels every timer matching id (-1 cancels all).
func (a *BaseActor) CancelTimer(id int) {
	a.timers.Cancel(id)
}

// wake writes a single byte to unblock an in-flight readiness poll.
func (a *BaseActor) wake() {
	a.wakeW.Write([]byte{'!'})
}

// Post enqueues msg. front=true posts at the head (priority); front=false
// posts at the tail. Returns ErrTerminate (message still dropped) once
// shutdown has begun.
func (a *BaseActor) Post(msg Message, front bool) error {
	a.mu.Lock()
	terminating := a.shuttingDown
	a.mu.Unlock()
	if terminating {
		return NewError(ErrTerminate, nil)
	}
	a.inbox.Put(msg, front)
	a.wake()
	obs.InboxDepth.WithLabelValues(a.typeName).Set(float64(a.inbox.Len()))
	return nil
}

// Start validates configuration via OnPreCreate, then spawns the actor's
// event-loop goroutine. A second Start on an already-started actor fails
// with ErrContext.
func (a *BaseActor) Start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return NewError(ErrContext, nil)
	}
	a.started = true
	a.mu.Unlock()

	if err := a.behavior.OnPreCreate(); err != nil {
		obs.ActorStartFailures.WithLabelValues(a.typeName).Inc()
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return err
	}

	a.wg.Add(1)
	go a.run()

	obs.ActorStarts.WithLabelValues(a.typeName).Inc()
	return nil
}

// Stop posts a Stop message; immediately=true enqueues it at the head so
// pending messages are dropped, immediately=false lets them drain first. If
// join is true, Stop blocks until the goroutine exits, then calls
// OnPostJoin.
func (a *BaseActor) Stop(join, immediately bool, ret int) error {
	a.mu.Lock()
	a.shuttingDown = true
	a.mu.Unlock()
	a.setState(StateShuttingDown)

	a.inbox.Put(stopMsg{ret: ret}, immediately)
	a.wake()

	if join {
		a.wg.Wait()
		a.behavior.OnPostJoin()
	}
	return nil
}

// Destroy releases the actor's OS resources (the wake pipe). It is safe to
// call after Stop(join=true) or as a belt-and-braces path if Stop was never
// called.
func (a *BaseActor) Destroy() {
	a.wakeR.Close()
	a.wakeW.Close()
	a.setState(StateDestroyed)
}

func (a *BaseActor) run() {
	defer a.wg.Done()
	defer obs.ActorsRunning.Dec()
	defer a.recoverFromHookPanic()

	a.setState(StateRunning)
	obs.ActorsRunning.Inc()

	if err := a.behavior.OnThreadInitiate(); err != nil {
		obs.HookErrors.WithLabelValues(a.typeName, "OnThreadInitiate").Inc()
		a.behavior.OnThreadTerminate()
		a.setState(StateStopped)
		return
	}

	a.fds.Append(int(a.wakeR.Fd()), true, false, false)

	for {
		for {
			id, _, ok := a.timers.Timeout()
			if !ok {
				break
			}
			obs.TimerFires.WithLabelValues(a.typeName).Inc()
			a.behavior.OnTimer(id)
		}

		if a.inbox.Empty() {
			a.pollOnce()
		}

		msg, ok := a.inbox.Get()
		if !ok {
			continue
		}
		obs.InboxDepth.WithLabelValues(a.typeName).Set(float64(a.inbox.Len()))

		if _, isStop := msg.(stopMsg); isStop {
			break
		}
		obs.MessagesDispatched.WithLabelValues(a.typeName).Inc()
		a.behavior.OnMsg(msg)
	}

	a.behavior.OnThreadTerminate()
	a.setState(StateStopped)
}

// recoverFromHookPanic handles a panic in OnMsg/OnTimer/OnEvent (none of
// which return an error): the panic is logged with its stack instead of
// crashing the process, and the actor moves to StateStopped rather than being
// left in StateRunning. The event loop does not resume after such a panic,
// and OnThreadTerminate is not called.
func (a *BaseActor) recoverFromHookPanic() {
	if r := recover(); r != nil {
		obs.HookErrors.WithLabelValues(a.typeName, "panic").Inc()
		a.logger.Error().
			Int("actor_number", a.number).
			Interface("panic_value", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered panic")
		a.setState(StateStopped)
	}
}

// pollOnce rebuilds the FD set, blocks in unix.Select for up to the next
// timer deadline (or one year if none pending), drains the wake byte, and
// dispatches any remaining readiness to OnEvent.
func (a *BaseActor) pollOnce() {
	var timeout time.Duration
	if next, ok := a.timers.NextTime(); ok {
		now := Now()
		if next.After(now) {
			timeout = next.Span(now)
		}
	} else {
		timeout = oneYear
	}

	rb := a.fds.Rebuild()
	ts := unix.NsecToTimeval(timeout.Nanoseconds())

	n, err := unix.Select(rb.maxFD+1, rb.read, rb.write, rb.except, &ts)
	if err != nil || n <= 0 {
		return
	}

	wakeFD := int(a.wakeR.Fd())
	if rb.read != nil && fdsetIsSet(rb.read, wakeFD) {
		buf := make([]byte, 1)
		unix.Read(wakeFD, buf)
		fdsetClear(rb.read, wakeFD)
	}

	readable := collectSet(rb.read, rb.maxFD)
	writable := collectSet(rb.write, rb.maxFD)
	exceptional := collectSet(rb.except, rb.maxFD)

	if len(readable) == 0 && len(writable) == 0 && len(exceptional) == 0 {
		return
	}
	a.behavior.OnEvent(readable, writable, exceptional)
}
