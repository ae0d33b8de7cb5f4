package actor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// fdEntry is one registered (fd, interest) triple.
type fdEntry struct {
	fd                      int
	watchRead, watchWrite   bool
	watchExcept             bool
}

// fdSet is the mutable collection of registered descriptors, rebuildable
// into the three bitmasks unix.Select expects.
type fdSet struct {
	mu      sync.Mutex
	entries []fdEntry
}

func newFDSet() *fdSet {
	return &fdSet{}
}

// Append registers fd with the given watch bits. Rejects fd<0 or a request
// with no watch bit set.
func (s *fdSet) Append(fd int, r, w, x bool) error {
	if fd < 0 {
		return NewError(ErrParam, nil)
	}
	if !r && !w && !x {
		return NewError(ErrParam, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, fdEntry{fd: fd, watchRead: r, watchWrite: w, watchExcept: x})
	return nil
}

// Remove drops every entry matching fd.
func (s *fdSet) Remove(fd int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries[:0]
	for _, e := range s.entries {
		if e.fd != fd {
			out = append(out, e)
		}
	}
	s.entries = out
}

// rebuilt is the readiness-poll input produced by Rebuild.
type rebuilt struct {
	maxFD              int
	read, write, except *unix.FdSet
}

// Rebuild walks the registered entries and produces three bitmasks. A mask
// pointer is nil when nothing is interested in that class, letting the
// readiness call distinguish "not interested" from "interested but empty".
func (s *fdSet) Rebuild() rebuilt {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r, w, x unix.FdSet
	var haveR, haveW, haveX bool
	maxFD := -1

	for _, e := range s.entries {
		if e.watchRead {
			fdsetSet(&r, e.fd)
			haveR = true
		}
		if e.watchWrite {
			fdsetSet(&w, e.fd)
			haveW = true
		}
		if e.watchExcept {
			fdsetSet(&x, e.fd)
			haveX = true
		}
		if e.fd > maxFD {
			maxFD = e.fd
		}
	}

	out := rebuilt{maxFD: maxFD}
	if haveR {
		out.read = &r
	}
	if haveW {
		out.write = &w
	}
	if haveX {
		out.except = &x
	}
	return out
}

// collectSet returns the fds set in mask, 0..maxFD inclusive, or nil if mask
// is nil (the "not interested" case).
func collectSet(mask *unix.FdSet, maxFD int) []int {
	if mask == nil {
		return nil
	}
	var out []int
	for fd := 0; fd <= maxFD; fd++ {
		if fdsetIsSet(mask, fd) {
			out = append(out, fd)
		}
	}
	return out
}
