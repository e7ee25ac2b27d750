package link

import (
	"time"

	"github.com/rigado/l2cap"
)

// cancelTimer cancels *t if armed and clears it. LCB timer fields are
// always accessed through this helper so a stale handle is never reused.
func cancelTimer(t *l2cap.Timer) {
	if *t != nil {
		(*t).Cancel()
	}
	*t = nil
}

// arm cancels whatever timer currently occupies *t, then arms a fresh one
// through the Core's TimerFacility (or the built-in time.AfterFunc one if
// no facility was supplied), storing the new handle in *t.
func (c *Core) arm(t *l2cap.Timer, d time.Duration, callback func()) {
	cancelTimer(t)
	facility := c.collab.Timers
	if facility == nil {
		facility = defaultTimerFacility{}
	}
	*t = facility.Arm(d, callback)
}

// defaultTimerFacility is the time.AfterFunc-backed TimerFacility used
// when no Collaborators.Timers is supplied.
type defaultTimerFacility struct{}

func (defaultTimerFacility) Arm(d time.Duration, callback func()) l2cap.Timer {
	t := time.AfterFunc(d, callback)
	return afterFuncTimer{t}
}

type afterFuncTimer struct {
	t *time.Timer
}

func (a afterFuncTimer) Cancel() { a.t.Stop() }
