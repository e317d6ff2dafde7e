package custody

import (
	"time"

	"github.com/dtn7/dtn7-core/cron"
)

const sweepJobName = "custody-retransmit"

// RetransmitTimer drives Module.Sweep from the shared scheduler at a fixed
// resolution, standing in for the single global retransmit timer described
// by the custody module: rather than re-arming a one-shot timer for the
// soonest deadline, it re-evaluates all records at a resolution fine enough
// that the effective latency is the same as the original's re-arm-on-fire
// design once seconds-granularity deadlines are involved.
type RetransmitTimer struct {
	scheduler  *cron.Scheduler
	module     *Module
	resolution time.Duration

	now func() uint32
}

// NewRetransmitTimer registers the sweep job on scheduler. now supplies the
// module's notion of current DTN time (seconds since the epoch configured
// for this node).
func NewRetransmitTimer(scheduler *cron.Scheduler, module *Module, resolution time.Duration, now func() uint32) *RetransmitTimer {
	rt := &RetransmitTimer{scheduler: scheduler, module: module, resolution: resolution, now: now}
	_ = scheduler.Register(sweepJobName, resolution, rt.fire)
	return rt
}

func (rt *RetransmitTimer) fire() {
	_ = rt.module.Sweep(rt.now())
}

// Stop unregisters the sweep job.
func (rt *RetransmitTimer) Stop() {
	rt.scheduler.Unregister(sweepJobName)
}
