package actor

import "time"

const microsPerSecond = int64(1_000_000)

// TimeValue is an absolute or relative point in time expressed as a
// seconds/microseconds pair, mirroring the classic timeval layout.
type TimeValue struct {
	Sec  int64
	USec int64
}

// Clear resets the value to the zero time.
func (t *TimeValue) Clear() {
	t.Sec = 0
	t.USec = 0
}

// IsSet reports whether the value has ever been assigned a non-zero time.
func (t TimeValue) IsSet() bool {
	return t.Sec != 0 || t.USec != 0
}

// Now returns the current wall-clock time as a TimeValue.
func Now() TimeValue {
	n := time.Now()
	return TimeValue{Sec: n.Unix(), USec: int64(n.Nanosecond()) / 1000}
}

// SetCurrent assigns the current wall-clock time.
func (t *TimeValue) SetCurrent() {
	*t = Now()
}

func normalize(sec, usec int64) TimeValue {
	if usec >= microsPerSecond {
		sec += usec / microsPerSecond
		usec %= microsPerSecond
	} else if usec < 0 {
		borrow := (-usec + microsPerSecond - 1) / microsPerSecond
		sec -= borrow
		usec += borrow * microsPerSecond
	}
	return TimeValue{Sec: sec, USec: usec}
}

// AddMicros returns t advanced by the given number of microseconds.
func (t TimeValue) AddMicros(us int64) TimeValue {
	return normalize(t.Sec, t.USec+us)
}

// AddMS returns t advanced by the given number of milliseconds.
func (t TimeValue) AddMS(ms int64) TimeValue {
	return t.AddMicros(ms * 1000)
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after o.
func (t TimeValue) Compare(o TimeValue) int {
	switch {
	case t.Sec < o.Sec:
		return -1
	case t.Sec > o.Sec:
		return 1
	case t.USec < o.USec:
		return -1
	case t.USec > o.USec:
		return 1
	default:
		return 0
	}
}

func (t TimeValue) Before(o TimeValue) bool { return t.Compare(o) < 0 }
func (t TimeValue) After(o TimeValue) bool  { return t.Compare(o) > 0 }
func (t TimeValue) Equal(o TimeValue) bool  { return t.Compare(o) == 0 }

// Span returns the non-negative duration t minus earlier. It panics if
// earlier is actually later than t; callers must pick the order themselves,
// matching the source's "smaller minus larger is forbidden" contract.
func (t TimeValue) Span(earlier TimeValue) time.Duration {
	if earlier.After(t) {
		panic("actor: TimeValue.Span called with earlier > later")
	}
	secs := t.Sec - earlier.Sec
	usecs := t.USec - earlier.USec
	if usecs < 0 {
		secs--
		usecs += microsPerSecond
	}
	return time.Duration(secs)*time.Second + time.Duration(usecs)*time.Microsecond
}

// Duration converts the TimeValue to a time.Duration measured from the Unix
// epoch, useful for feeding deadlines to stdlib timer APIs.
func (t TimeValue) Duration() time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.USec)*time.Microsecond
}

// Time converts the TimeValue to a local time.Time, for formatting log
// timestamps and other human-facing output.
func (t TimeValue) Time() time.Time {
	return time.Unix(t.Sec, t.USec*1000)
}
