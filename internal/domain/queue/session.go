package queue

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medq/medq/internal/platform/events"
	"github.com/medq/medq/internal/platform/notification"
)

// Event types published after each operation.
const (
	EventPatientJoined        = "queue.patient_joined"
	EventPatientRemoved       = "queue.patient_removed"
	EventPatientCalled        = "queue.patient_called"
	EventConsultationStarted  = "queue.consultation_started"
	EventConsultationComplete = "queue.consultation_completed"
	EventPatientNoShow        = "queue.patient_no_show"
)

// Notifier renders and enqueues a toast.
type Notifier interface {
	Notify(templateID string, data map[string]string) (notification.Notification, error)
}

// Recorder receives queue metrics.
type Recorder interface {
	RecordOperation(operation, result string)
	SetQueueLength(total, waiting, inConsultation int)
	ObserveConsultation(minutes int)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string) {}
func (noopRecorder) SetQueueLength(int, int, int)   {}
func (noopRecorder) ObserveConsultation(int)        {}

// Session is the caller-facing wrapper around an Engine. After each
// operation it refreshes its patient snapshot, enqueues a toast and
// publishes a queue event. Results are copies taken under the engine lock.
type Session struct {
	engine    *Engine
	notifier  Notifier
	publisher events.Publisher
	metrics   Recorder
	logger    zerolog.Logger

	mu       sync.RWMutex
	patients []QueuedPatient
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPublisher sets where queue events are sent.
func WithPublisher(p events.Publisher) SessionOption {
	return func(s *Session) { s.publisher = p }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.metrics = r }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession wraps engine. Toasts go to notifier.
func NewSession(engine *Engine, notifier Notifier, opts ...SessionOption) *Session {
	s := &Session{
		engine:    engine,
		notifier:  notifier,
		publisher: events.Discard,
		metrics:   noopRecorder{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.refresh()
	return s
}

// Join adds a patient to the end of the queue.
func (s *Session) Join(ctx context.Context, patientID, name, email, reason string) QueuedPatient {
	p := s.engine.locked(func() *QueuedPatient {
		return s.engine.addPatient(patientID, name, email, reason)
	})
	s.refresh()
	s.notify(ctx, notification.TplQueueJoined, map[string]string{
		"name":     p.Name,
		"position": strconv.Itoa(p.Position),
	})
	s.metrics.RecordOperation("join", "ok")
	s.publish(ctx, EventPatientJoined, p)
	return *p
}

// Remove takes an entry out of the queue. It reports whether the entry
// existed; nothing is announced for unknown ids.
func (s *Session) Remove(ctx context.Context, id string) bool {
	removed := s.engine.RemovePatient(id)
	s.refresh()
	if !removed {
		s.metrics.RecordOperation("remove", "not_found")
		return false
	}
	s.notify(ctx, notification.TplQueueRemoved, nil)
	s.metrics.RecordOperation("remove", "ok")
	s.publish(ctx, EventPatientRemoved, &QueuedPatient{ID: id})
	return true
}

// CallNext calls the next waiting patient for doctorID.
func (s *Session) CallNext(ctx context.Context, doctorID string) *QueuedPatient {
	p := s.engine.locked(func() *QueuedPatient { return s.engine.callNext(doctorID) })
	s.refresh()
	if p == nil {
		s.notify(ctx, notification.TplQueueEmpty, nil)
		s.metrics.RecordOperation("call_next", "not_found")
		return nil
	}
	s.notify(ctx, notification.TplPatientCalled, map[string]string{"name": p.Name})
	s.metrics.RecordOperation("call_next", "ok")
	s.publish(ctx, EventPatientCalled, p)
	return p
}

// StartConsultation begins the consultation for entry id.
func (s *Session) StartConsultation(ctx context.Context, id string) *QueuedPatient {
	p := s.engine.locked(func() *QueuedPatient { return s.engine.startConsultation(id) })
	s.refresh()
	if p == nil {
		s.metrics.RecordOperation("start", "not_found")
		return nil
	}
	s.notify(ctx, notification.TplConsultationStarted, map[string]string{"name": p.Name})
	s.metrics.RecordOperation("start", "ok")
	s.publish(ctx, EventConsultationStarted, p)
	return p
}

// CompleteConsultation finishes the consultation for entry id.
func (s *Session) CompleteConsultation(ctx context.Context, id string) *QueuedPatient {
	p := s.engine.locked(func() *QueuedPatient { return s.engine.completeConsultation(id) })
	s.refresh()
	if p == nil {
		s.metrics.RecordOperation("complete", "not_found")
		return nil
	}
	if p.ActualWaitTime != nil {
		s.notify(ctx, notification.TplConsultationDoneTime, map[string]string{
			"name":    p.Name,
			"minutes": strconv.Itoa(*p.ActualWaitTime),
		})
		s.metrics.ObserveConsultation(*p.ActualWaitTime)
	} else {
		s.notify(ctx, notification.TplConsultationDone, map[string]string{"name": p.Name})
	}
	s.metrics.RecordOperation("complete", "ok")
	s.publish(ctx, EventConsultationComplete, p)
	return p
}

// MarkNoShow removes entry id as a no-show.
func (s *Session) MarkNoShow(ctx context.Context, id string) *QueuedPatient {
	p := s.engine.locked(func() *QueuedPatient { return s.engine.markNoShow(id) })
	s.refresh()
	if p == nil {
		s.metrics.RecordOperation("no_show", "not_found")
		return nil
	}
	s.notify(ctx, notification.TplNoShow, map[string]string{"name": p.Name})
	s.metrics.RecordOperation("no_show", "ok")
	s.publish(ctx, EventPatientNoShow, p)
	return p
}

// Patients returns the snapshot taken after the last operation.
func (s *Session) Patients() []QueuedPatient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]QueuedPatient, len(s.patients))
	copy(out, s.patients)
	return out
}

// State returns a detached copy of the engine state.
func (s *Session) State() QueueState {
	return s.engine.Snapshot()
}

// Position returns the first waiting entry for patientID.
func (s *Session) Position(patientID string) *QueuedPatient {
	return s.engine.locked(func() *QueuedPatient { return s.engine.patientPosition(patientID) })
}

// Analytics returns the current queue analytics.
func (s *Session) Analytics() Analytics {
	return s.engine.Analytics()
}

func (s *Session) refresh() {
	snap := s.engine.Snapshot()
	patients := make([]QueuedPatient, len(snap.Patients))
	waiting, inConsultation := 0, 0
	for i, p := range snap.Patients {
		patients[i] = *p
		switch p.Status {
		case StatusWaiting:
			waiting++
		case StatusInConsultation:
			inConsultation++
		}
	}

	s.mu.Lock()
	s.patients = patients
	s.mu.Unlock()

	s.metrics.SetQueueLength(len(patients), waiting, inConsultation)
}

// log prefers the request-scoped logger carried by ctx.
func (s *Session) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func (s *Session) notify(ctx context.Context, templateID string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(templateID, data); err != nil {
		s.log(ctx).Warn().Err(err).Str("template", templateID).Msg("queue toast not sent")
	}
}

func (s *Session) publish(ctx context.Context, eventType string, p *QueuedPatient) {
	evt, err := events.NewEvent(events.TopicQueue, eventType, p)
	if err != nil {
		s.log(ctx).Error().Err(err).Str("event", eventType).Msg("failed to build queue event")
		return
	}
	evt.EntryID = p.ID
	evt.PatientID = p.PatientID
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log(ctx).Warn().Err(err).
			Str("event", eventType).
			Str("entry_id", p.ID).
			Msg("queue event delivery failed")
	}
}
