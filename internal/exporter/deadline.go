package exporter

import (
	"log/slog"
	"time"
)

// warnWindow is how close to the budget a run gets before the deadline
// starts warning. The current unit of work always runs to completion.
const warnWindow = 30 * time.Second

// deadline tracks elapsed time against a fixed run budget. It is
// checked cooperatively between units of work (one API page, one
// batch); it never interrupts a unit in flight.
type deadline struct {
	start  time.Time
	budget time.Duration
	warned bool
	log    *slog.Logger
	now    func() time.Time // test hook
}

func newDeadline(budget time.Duration, log *slog.Logger) *deadline {
	d := &deadline{
		budget: budget,
		log:    log,
		now:    time.Now,
	}
	d.start = d.now()
	return d
}

func (d *deadline) elapsed() time.Duration {
	return d.now().Sub(d.start)
}

func (d *deadline) remaining() time.Duration {
	return d.budget - d.elapsed()
}

// shouldStop reports whether the run must yield before starting the
// next unit of work. Entering the warning window logs once but does
// not stop the run.
func (d *deadline) shouldStop() bool {
	rem := d.remaining()
	if rem <= 0 {
		d.log.Warn("execution budget exhausted", "elapsed", d.elapsed().Round(time.Second))
		return true
	}
	if rem <= warnWindow && !d.warned {
		d.warned = true
		d.log.Warn("approaching execution budget",
			"remaining", rem.Round(time.Second),
			"budget", d.budget,
		)
	}
	return false
}
