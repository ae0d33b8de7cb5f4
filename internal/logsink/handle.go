package logsink

import "github.com/adred-codev/threadbase/internal/actor"

// Handle is a lightweight, cheaply-copied client for a Sink looked up by
// registry number. It resolves lazily on first Write and caches the result,
// matching the original's "don't look it up more than once" contract —
// accepting Ready as well as Running so log lines written during an actor's
// own OnThreadInitiate aren't lost to an unresolved handle.
type Handle struct {
	number int
	base   *actor.BaseActor
}

// NewHandle builds a handle bound to a sink's registry number. Most callers
// should pass DefaultActorNumber unless a dedicated sink was registered
// under its own number.
func NewHandle(number int) *Handle {
	return &Handle{number: number}
}

// Write enqueues text for the bound sink. A sink that was never started, or
// has already stopped, silently drops the write — matching the source's
// "logging must never be allowed to fail the caller" stance.
func (h *Handle) Write(text string) {
	if h.base == nil {
		base, state, ok := actor.GetInstance(h.number)
		if !ok || (state != actor.StateReady && state != actor.StateRunning) {
			return
		}
		h.base = base
	}
	h.base.Post(writeMsg{text: text}, false)
}
