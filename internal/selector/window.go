package selector

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// span is a half-open hour range [start,end). end may be smaller than start
// when the range wraps past midnight.
type span struct {
	start, end int
}

func (s span) contains(hour int) bool {
	if s.start < s.end {
		return hour >= s.start && hour < s.end
	}
	return hour >= s.start || hour < s.end
}

// Window is a set of daily posting hours evaluated in a fixed time zone.
type Window struct {
	spans []span
	loc   *time.Location
}

// AlwaysOpen is a window that contains every instant.
func AlwaysOpen() Window {
	return Window{spans: []span{{0, 24}}, loc: time.UTC}
}

// ParseWindow parses comma separated hour ranges such as "10-20" or "9-13,22-2".
// Hours run from 0 to 24; "0-24" is the whole day.
func ParseWindow(spec string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := Window{loc: loc}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return Window{}, errors.Newf("invalid window range %q: expected start-end", part)
		}
		start, err := parseHour(from)
		if err != nil {
			return Window{}, errors.Wrapf(err, "invalid window range %q", part)
		}
		end, err := parseHour(to)
		if err != nil {
			return Window{}, errors.Wrapf(err, "invalid window range %q", part)
		}
		if start%24 == end%24 && !(start == 0 && end == 24) {
			return Window{}, errors.Newf("invalid window range %q: empty range", part)
		}
		w.spans = append(w.spans, span{start: start % 24, end: end})
	}
	if len(w.spans) == 0 {
		return Window{}, errors.Newf("posting window %q has no ranges", spec)
	}
	return w, nil
}

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "hour %q", s)
	}
	if h < 0 || h > 24 {
		return 0, errors.Newf("hour %d out of range 0-24", h)
	}
	return h, nil
}

// Contains reports whether t falls inside any range, using the hour of t in the window's zone.
func (w Window) Contains(t time.Time) bool {
	hour := t.In(w.loc).Hour()
	for _, s := range w.spans {
		if s.contains(hour) {
			return true
		}
	}
	return false
}

func (w Window) String() string {
	parts := make([]string, len(w.spans))
	for i, s := range w.spans {
		parts[i] = strconv.Itoa(s.start) + "-" + strconv.Itoa(s.end)
	}
	return strings.Join(parts, ",") + " " + w.loc.String()
}
