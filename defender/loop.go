package defender

import (
	"context"

	"github.com/vinayprograms/defender/metrics"
	"github.com/vinayprograms/defender/telemetry"
)

// run is the reporting loop: one tick now, then one per period, until Stop
// or a failed tick.
func (s *session) run(ctx context.Context) {
	defer close(s.done)

	for {
		if !s.tick(ctx) {
			return
		}
		timer := s.agent.clock.NewTimer(s.agent.periodDuration())
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick collects, builds and publishes one report. It returns whether the
// loop should continue. The publish gate is held for the whole tick and
// released as its last action. A tick that finds the previous report still
// being acknowledged builds nothing and waits for the next period.
func (s *session) tick(ctx context.Context) (rearm bool) {
	a := s.agent
	if !s.gate.tryAcquire() {
		a.logger.Debug("tick_skipped", map[string]interface{}{
			"device": s.deviceID,
			"reason": "publish gate held",
		})
		return false
	}
	defer s.gate.release()

	freed, busy := s.reclaim()
	if busy {
		a.logger.Warn("tick_deferred", map[string]interface{}{
			"device": s.deviceID,
			"reason": "previous report still being acknowledged",
		})
		return true
	}
	if freed > 0 {
		a.logger.Warn("report_unacknowledged", map[string]interface{}{
			"device": s.deviceID,
			"count":  freed,
		})
	}

	start := a.clock.Now()
	a.logger.TickStart(s.deviceID)
	ctx, span := a.tracer.StartTickSpan(ctx, s.deviceID)

	flags := a.registry.Snapshot()
	opts := telemetry.TickSpanOptions{Groups: groupNames(flags), Topic: s.topics.Publish}

	r, err := a.builder.Build(ctx, flags)
	if err != nil {
		opts.Event = EventReportBuildFailure.String()
		s.fail(EventReportBuildFailure, 0, err)
		a.tracer.EndTickSpan(span, opts, err)
		a.logger.TickComplete(s.deviceID, a.clock.Now().Sub(start), err)
		return false
	}
	opts.ReportID, opts.ReportBytes = r.ID, r.Size()

	// Tracked before publishing: the verdict can arrive before publish returns.
	s.track(r)

	if err := s.bridge.publish(s.topics.Publish, r.Data(), a.publishTimeout); err != nil {
		s.retire(r.ID)
		r.Release()
		opts.Event = EventMQTTFailure.String()
		s.fail(EventMQTTFailure, r.ID, err)
		a.tracer.EndTickSpan(span, opts, err)
		a.logger.TickComplete(s.deviceID, a.clock.Now().Sub(start), err)
		return false
	}

	a.logger.ReportPublished(s.topics.Publish, r.ID, opts.ReportBytes)
	a.tracer.EndTickSpan(span, opts, nil)
	a.logger.TickComplete(s.deviceID, a.clock.Now().Sub(start), nil)
	return true
}

func groupNames(flags metrics.Flags) []string {
	groups := flags.Enabled()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.String()
	}
	return names
}
