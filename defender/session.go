package defender

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/defender/bus"
	"github.com/vinayprograms/defender/ledger"
	"github.com/vinayprograms/defender/report"
	"github.com/vinayprograms/defender/telemetry"
)

// session is the state of one Start..Stop span.
type session struct {
	agent     *Agent
	deviceID  string
	topics    *TopicSet
	gate      *gate
	bridge    *bridge
	callback  Callback
	startedAt time.Time

	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending map[uint64]*report.Report
	closed  bool
	// delivering counts verdicts between retire and the release of their
	// report. Their reports are still live.
	delivering int
}

func newSession(a *Agent, deviceID string, topics *TopicSet, cb Callback) *session {
	return &session{
		agent:     a,
		deviceID:  deviceID,
		topics:    topics,
		gate:      newGate(),
		bridge:    newBridge(a.bus),
		callback:  cb,
		startedAt: a.clock.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		pending:   make(map[uint64]*report.Report),
	}
}

// track hands r to the pending table.
func (s *session) track(r *report.Report) {
	s.mu.Lock()
	s.pending[r.ID] = r
	s.mu.Unlock()
}

// retire removes and returns the report an acknowledgement refers to. An id
// of 0 means the acknowledgement carried none; the single live report is
// taken then. ok is false once the session is closed. Every ok retire must
// be paired with delivered.
func (s *session) retire(id uint64) (r *report.Report, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.delivering++
	if id != 0 {
		r = s.pending[id]
		delete(s.pending, id)
		return r, true
	}
	if len(s.pending) == 1 {
		for pid, p := range s.pending {
			r = p
			delete(s.pending, pid)
		}
	}
	return r, true
}

// delivered ends a delivery started by retire.
func (s *session) delivered() {
	s.mu.Lock()
	s.delivering--
	s.mu.Unlock()
}

// reclaim frees reports still waiting for a verdict. busy is true while a
// verdict is being delivered; nothing is freed then and no new report may
// be built.
func (s *session) reclaim() (freed int, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivering > 0 {
		return 0, true
	}
	return s.freeLocked(), false
}

// close frees every pending report and drops later acknowledgements.
func (s *session) close() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.freeLocked()
}

func (s *session) freeLocked() int {
	n := len(s.pending)
	for id, r := range s.pending {
		r.Release()
		delete(s.pending, id)
	}
	return n
}

func (s *session) onAccepted(msg *bus.Message) {
	s.onVerdict(EventAccepted, msg.Data)
}

func (s *session) onRejected(msg *bus.Message) {
	s.onVerdict(EventRejected, msg.Data)
}

// onVerdict delivers an acknowledgement to the callback and frees the
// report it refers to.
func (s *session) onVerdict(event Event, payload []byte) {
	a := s.agent
	ack, err := report.DecodeAck(payload)
	if err != nil {
		a.logger.Warn("ack_undecodable", map[string]interface{}{
			"device": s.deviceID,
			"event":  event.String(),
			"error":  err.Error(),
		})
	}

	r, ok := s.retire(ack.ReportID)
	if !ok {
		a.logger.Debug("ack_after_stop", map[string]interface{}{
			"device": s.deviceID,
			"event":  event.String(),
		})
		return
	}
	defer s.delivered()

	reportID := ack.ReportID
	if r != nil {
		reportID = r.ID
	}
	a.logger.AckReceived(event.String(), reportID, r != nil)
	if event == EventAccepted && (r == nil || len(payload) == 0) {
		a.logger.Error("accept_inconsistent", map[string]interface{}{
			"device":      s.deviceID,
			"report_id":   reportID,
			"have_report": r != nil,
			"have_ack":    len(payload) > 0,
		})
	}

	a.tracer.RecordAck(context.Background(), s.deviceID, telemetry.AckSpanOptions{
		ReportID:  reportID,
		Event:     event.String(),
		Status:    ack.Status,
		ErrorCode: ack.ErrorCode,
		Matched:   r != nil,
	})
	s.record(ledger.Entry{
		ReportID:     reportID,
		Event:        event.String(),
		Status:       ack.Status,
		ErrorCode:    ack.ErrorCode,
		ErrorMessage: ack.ErrorMessage,
		ReportBytes:  r.Size(),
	})

	s.callback(event, r.Data(), payload)
	r.Release()
}

// fail ends reporting after a tick could not complete.
func (s *session) fail(event Event, reportID uint64, cause error) {
	a := s.agent
	if err := s.bridge.unsubscribe(a.subscribeTimeout); err != nil {
		a.logger.Warn("unsubscribe_failed", map[string]interface{}{
			"device": s.deviceID,
			"error":  err.Error(),
		})
	}
	entry := ledger.Entry{ReportID: reportID, Event: event.String()}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	s.record(entry)
	s.callback(event, nil, nil)
}

// record writes e to the agent's ledger, if any.
func (s *session) record(e ledger.Entry) {
	a := s.agent
	if a.ledger == nil {
		return
	}
	if e.At.IsZero() {
		e.At = a.clock.Now()
	}
	if err := a.ledger.Record(s.deviceID, e); err != nil {
		a.logger.Warn("ledger_write_failed", map[string]interface{}{
			"device": s.deviceID,
			"event":  e.Event,
			"error":  err.Error(),
		})
	}
}
