package dialect

import (
	"time"

	"fluxmcp/internal/model"
)

// bounds carries a query's resolved time range together with the original
// expressions. Relative expressions are passed through to the backend only
// when the stop is "now": both dialects anchor signed durations at the
// current instant, so a relative start against an absolute stop must be
// rendered as the resolved absolute instant instead.
type bounds struct {
	start, stop time.Time
	startRel    string // original relative start expression, or ""
	stopNow     bool
}

func resolveBounds(q *model.Query, now time.Time) (*bounds, error) {
	start, stop, err := q.TimeRange(now)
	if err != nil {
		return nil, err
	}

	startExpr := q.Start
	if startExpr == "" {
		startExpr = model.DefaultStart
	}
	stopExpr := q.Stop
	if stopExpr == "" {
		stopExpr = "now"
	}

	b := &bounds{start: start, stop: stop, stopNow: model.IsNow(stopExpr)}
	if b.stopNow && model.IsRelative(startExpr) {
		b.startRel = startExpr
	}
	return b, nil
}

// effective returns the window-aligned bounds when every is set, and the
// requested bounds otherwise.
func (b *bounds) effective(every string) (time.Time, time.Time, error) {
	if every == "" {
		return b.start, b.stop, nil
	}
	d, err := model.ParseInterval(every)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, stop := AlignWindow(b.start, b.stop, d)
	return start, stop, nil
}
