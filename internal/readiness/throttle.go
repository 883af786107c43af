package readiness

import "time"

// logThrottle allows one log line per condition per interval. It is only
// used from the loop goroutine.
type logThrottle struct {
	every time.Duration
	last  map[string]time.Time
	now   func() time.Time
}

func newLogThrottle(every time.Duration) *logThrottle {
	return &logThrottle{every: every, last: make(map[string]time.Time), now: time.Now}
}

func (t *logThrottle) allow(condition string) bool {
	now := t.now()
	if last, ok := t.last[condition]; ok && now.Sub(last) < t.every {
		return false
	}
	t.last[condition] = now
	return true
}
