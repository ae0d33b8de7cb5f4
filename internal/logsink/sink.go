// Package logsink implements the rotating log-sink actor: a dedicated
// goroutine that owns the only open file descriptor for a log stream,
// reached by other actors posting write messages rather than sharing a
// *os.File across goroutines.
package logsink

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
)

// DefaultActorNumber is the reserved registry number a process-wide default
// Sink registers under, so Handles can look it up without holding a
// reference. It lives in the actor-number namespace, disjoint from
// nettcp.ReconnectTimerID's timer-id namespace.
const DefaultActorNumber = math.MaxInt - 1

const defaultMaxLine = 1000
const defaultMaxFiles = 10

type writeMsg struct {
	text string
}

func (writeMsg) isMessage() {}

// Sink is a single-writer log actor: it owns one file at a time, rotating to
// a freshly named file once MaxLine lines have been written, and sweeping
// the directory for files beyond MaxFiles (oldest first, by lexicographic
// name order, which sorts chronologically given the fixed-width timestamp
// naming scheme).
type Sink struct {
	Base *actor.BaseActor

	logger zerolog.Logger
	label  string

	dir      string
	prefix   string
	maxLine  int
	maxFiles int

	file *os.File
	line int
}

// NewSink builds an unstarted sink. dir=="" sends each line to the sink's
// structured logger instead of a file and disables rotation/retention
// entirely.
func NewSink(label, dir, prefix string, maxLine, maxFiles int, logger zerolog.Logger) (*Sink, error) {
	if maxLine <= 0 {
		maxLine = defaultMaxLine
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	s := &Sink{
		label:    label,
		logger:   logger.With().Str("log_sink", label).Logger(),
		dir:      dir,
		prefix:   prefix,
		maxLine:  maxLine,
		maxFiles: maxFiles,
	}
	base, err := actor.NewBaseActor("log_sink", s, s.logger)
	if err != nil {
		return nil, err
	}
	s.Base = base
	return s, nil
}

// Write enqueues a line for this sink. Safe to call from any actor's
// goroutine; the line is stamped with its own arrival time once dispatched.
func (s *Sink) Write(text string) error {
	return s.Base.Post(writeMsg{text: text}, false)
}

// RegisterDefault assigns this sink DefaultActorNumber, so Handle lookups
// with no explicit number resolve to it. Call before Start.
func (s *Sink) RegisterDefault() {
	s.Base.SetAttribute(DefaultActorNumber, nil)
}

// --- actor.Behavior ---

func (s *Sink) OnPreCreate() error { return nil }

func (s *Sink) OnThreadInitiate() error { return nil }

func (s *Sink) OnThreadTerminate() {
	s.closeFile()
}

func (s *Sink) OnPostJoin() {}

func (s *Sink) OnTimer(id int) {}

func (s *Sink) OnEvent(readable, writable, exceptional []int) {}

func (s *Sink) OnMsg(msg actor.Message) {
	m, ok := msg.(writeMsg)
	if !ok {
		return
	}
	now := actor.Now()
	line := fmt.Sprintf("%s %06d %s\n", now.Time().Format("2006.01.02 15:04:05"), now.USec, m.text)

	if s.line == 0 {
		s.openFile(now)
	}

	if s.file != nil {
		if _, err := s.file.WriteString(line); err != nil {
			s.logger.Warn().Err(err).Msg("log sink write failed")
		}
	} else {
		s.logger.Info().Msg(strings.TrimSuffix(line, "\n"))
	}
	obs.LogSinkLinesWritten.WithLabelValues(s.label).Inc()

	s.line++
	if s.line >= s.maxLine {
		if s.file != nil {
			obs.LogSinkRotations.WithLabelValues(s.label).Inc()
		}
		s.closeFile()
		s.line = 0
	}
}

func (s *Sink) openFile(now actor.TimeValue) {
	if s.dir == "" {
		return
	}

	name := fmt.Sprintf("%s%s.log", s.prefix, now.Time().Format("060102_150405"))
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("log sink open failed")
		s.file = nil
		return
	}
	s.file = f
	s.sweepOld()
}

func (s *Sink) closeFile() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

// sweepOld deletes the oldest rotated files once more than maxFiles exist in
// the sink's directory, matching this prefix's naming scheme.
func (s *Sink) sweepOld() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if !strings.HasPrefix(n, s.prefix) {
			continue
		}
		stamp := strings.TrimPrefix(n, s.prefix)
		if ok, _ := filepath.Match("[0-9][0-9][0-9][0-9][0-9][0-9]_[0-9][0-9][0-9][0-9][0-9][0-9].log", stamp); ok {
			names = append(names, n)
		}
	}

	toDelete := len(names) - s.maxFiles
	if toDelete <= 0 {
		return
	}
	sort.Strings(names)
	for i := 0; i < toDelete; i++ {
		os.Remove(filepath.Join(s.dir, names[i]))
	}
}
