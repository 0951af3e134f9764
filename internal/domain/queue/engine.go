package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine holds one walk-in queue in memory. Each method runs to completion
// under the engine lock; nothing is persisted.
type Engine struct {
	mu    sync.Mutex
	state *QueueState
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how queue entry ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an empty queue.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state = &QueueState{
		Patients:    []*QueuedPatient{},
		LastUpdated: e.now(),
	}
	return e
}

// AddPatient appends a waiting entry to the end of the queue. The same
// patient may be queued more than once.
func (e *Engine) AddPatient(patientID, name, email, reason string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addPatient(patientID, name, email, reason)
}

func (e *Engine) addPatient(patientID, name, email, reason string) *QueuedPatient {
	now := e.now()
	position := len(e.state.Patients) + 1
	p := &QueuedPatient{
		ID:                e.newID(),
		PatientID:         patientID,
		Name:              name,
		Email:             email,
		Reason:            reason,
		Position:          position,
		Status:            StatusWaiting,
		JoinedAt:          now,
		EstimatedWaitTime: estimatedWait(position),
	}
	e.state.Patients = append(e.state.Patients, p)
	e.state.LastUpdated = now
	return p
}

// RemovePatient drops the entry with the given queue id and renumbers the
// rest. It reports whether an entry was removed; unknown ids are ignored.
func (e *Engine) RemovePatient(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remove(id)
}

// CallNext marks the earliest waiting entry, in list order, as called by
// doctorID. It returns nil and changes nothing when nobody is waiting.
func (e *Engine) CallNext(doctorID string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callNext(doctorID)
}

func (e *Engine) callNext(doctorID string) *QueuedPatient {
	for _, p := range e.state.Patients {
		if p.Status != StatusWaiting {
			continue
		}
		p.Status = StatusCalled
		doc := doctorID
		p.DoctorID = &doc
		e.state.LastUpdated = e.now()
		return p
	}
	return nil
}

// StartConsultation moves the entry into consultation and makes it the
// currently serving patient. The entry stays in the queue.
func (e *Engine) StartConsultation(id string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startConsultation(id)
}

func (e *Engine) startConsultation(id string) *QueuedPatient {
	p := e.find(id)
	if p == nil {
		return nil
	}
	now := e.now()
	p.Status = StatusInConsultation
	p.StartTime = &now
	e.state.CurrentlyServing = p
	e.state.LastUpdated = now
	return p
}

// CompleteConsultation closes the consultation, records the realised
// minutes when a start time exists, and removes the entry from the queue.
// The returned entry carries the completed status.
func (e *Engine) CompleteConsultation(id string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeConsultation(id)
}

func (e *Engine) completeConsultation(id string) *QueuedPatient {
	p := e.find(id)
	if p == nil {
		return nil
	}
	now := e.now()
	p.Status = StatusCompleted
	p.EndTime = &now
	if p.StartTime != nil {
		minutes := int(now.Sub(*p.StartTime) / time.Minute)
		p.ActualWaitTime = &minutes
	}
	e.remove(id)
	e.state.CurrentlyServing = nil
	return p
}

// MarkNoShow flags the entry as a no-show and removes it from the queue.
func (e *Engine) MarkNoShow(id string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markNoShow(id)
}

func (e *Engine) markNoShow(id string) *QueuedPatient {
	p := e.find(id)
	if p == nil {
		return nil
	}
	p.Status = StatusNoShow
	e.remove(id)
	return p
}

// locked runs op under the engine lock and returns a copy of its result.
func (e *Engine) locked(op func() *QueuedPatient) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return op().Clone()
}

// State returns the live queue state. Later mutations are visible through
// the returned pointer, so concurrent readers should use Snapshot.
func (e *Engine) State() *QueueState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a deep copy of the queue state.
func (e *Engine) Snapshot() QueueState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := QueueState{
		Patients:    make([]*QueuedPatient, len(e.state.Patients)),
		LastUpdated: e.state.LastUpdated,
	}
	for i, p := range e.state.Patients {
		out.Patients[i] = p.Clone()
		if p == e.state.CurrentlyServing {
			out.CurrentlyServing = out.Patients[i]
		}
	}
	if out.CurrentlyServing == nil {
		out.CurrentlyServing = e.state.CurrentlyServing.Clone()
	}
	return out
}

// PatientPosition returns the first waiting entry for the given patient id,
// or nil when that patient has no waiting entry.
func (e *Engine) PatientPosition(patientID string) *QueuedPatient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.patientPosition(patientID)
}

func (e *Engine) patientPosition(patientID string) *QueuedPatient {
	for _, p := range e.state.Patients {
		if p.PatientID == patientID && p.Status == StatusWaiting {
			return p
		}
	}
	return nil
}

// Analytics scans the current list. Completed entries leave the list as
// soon as they complete, so Completed and AvgWaitTime normally read zero.
func (e *Engine) Analytics() Analytics {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := Analytics{
		Total:            len(e.state.Patients),
		CurrentlyServing: e.state.CurrentlyServing.Clone(),
	}
	sum, timed := 0, 0
	for _, p := range e.state.Patients {
		switch p.Status {
		case StatusWaiting:
			a.Waiting++
		case StatusInConsultation:
			a.InConsultation++
		case StatusCompleted:
			a.Completed++
			if p.ActualWaitTime != nil {
				sum += *p.ActualWaitTime
				timed++
			}
		}
	}
	if timed > 0 {
		a.AvgWaitTime = sum / timed
	}
	return a
}

func (e *Engine) find(id string) *QueuedPatient {
	for _, p := range e.state.Patients {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// remove must be called with e.mu held.
func (e *Engine) remove(id string) bool {
	idx := -1
	for i, p := range e.state.Patients {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	rest := make([]*QueuedPatient, 0, len(e.state.Patients)-1)
	rest = append(rest, e.state.Patients[:idx]...)
	rest = append(rest, e.state.Patients[idx+1:]...)
	e.state.Patients = rest
	for i, p := range e.state.Patients {
		p.Position = i + 1
		p.EstimatedWaitTime = estimatedWait(p.Position)
	}
	e.state.LastUpdated = e.now()
	return true
}
