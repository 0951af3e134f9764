// Package notification provides the in-memory toast store: short-lived
// messages that are pushed to subscribers and dismissed automatically.
package notification

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// Type is the visual severity of a toast.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// AutoDismissDelay is how long a toast stays in the store.
const AutoDismissDelay = 5000 * time.Millisecond

// Notification is a single toast.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template ids for queue toasts.
const (
	TplQueueJoined          = "queue-joined"
	TplQueueRemoved         = "queue-removed"
	TplPatientCalled        = "patient-called"
	TplQueueEmpty           = "queue-empty"
	TplConsultationStarted  = "consultation-started"
	TplConsultationDone     = "consultation-completed"
	TplConsultationDoneTime = "consultation-completed-timed"
	TplNoShow               = "patient-no-show"
)

// Template defines a reusable toast.
type Template struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// TemplateEngine manages toast templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the queue templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{ID: TplQueueJoined, Type: TypeSuccess, Title: "Joined Queue", Message: "{{name}} joined the queue at position {{position}}"},
		{ID: TplQueueRemoved, Type: TypeInfo, Title: "Removed from Queue", Message: "Patient removed from the queue"},
		{ID: TplPatientCalled, Type: TypeSuccess, Title: "Patient Called", Message: "{{name}} has been called"},
		{ID: TplQueueEmpty, Type: TypeWarning, Title: "Queue Empty", Message: "No patients waiting in queue"},
		{ID: TplConsultationStarted, Type: TypeInfo, Title: "Consultation Started", Message: "Consultation started with {{name}}"},
		{ID: TplConsultationDone, Type: TypeSuccess, Title: "Consultation Completed", Message: "Consultation completed"},
		{ID: TplConsultationDoneTime, Type: TypeSuccess, Title: "Consultation Completed", Message: "Consultation completed in {{minutes}} minutes"},
		{ID: TplNoShow, Type: TypeWarning, Title: "No Show", Message: "{{name}} marked as no-show"},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement on its
// title and message. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Type, string, string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", "", fmt.Errorf("template %q not found", templateID)
	}

	title, message := t.Title, t.Message
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		message = strings.ReplaceAll(message, placeholder, v)
	}
	return t.Type, title, message, nil
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// Listener receives the full toast list after every change.
type Listener func([]Notification)

// Store keeps the active toasts in insertion order.
type Store struct {
	mu        sync.Mutex
	items     []Notification
	listeners map[uint64]Listener
	nextSub   uint64
	seq       uint64
	now       func() time.Time
	scheduler Scheduler
	templates *TemplateEngine
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithScheduler replaces the timer used for auto-dismissal.
func WithScheduler(s Scheduler) StoreOption {
	return func(st *Store) { st.scheduler = s }
}

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(st *Store) { st.now = now }
}

// WithTemplates sets the engine used by Notify.
func WithTemplates(t *TemplateEngine) StoreOption {
	return func(st *Store) { st.templates = t }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		listeners: make(map[uint64]Listener),
		now:       time.Now,
		scheduler: timerScheduler{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		s.templates = NewTemplateEngine()
	}
	return s
}

// Add appends a toast, notifies listeners and schedules its removal after
// AutoDismissDelay.
func (s *Store) Add(t Type, title, message string) Notification {
	s.mu.Lock()
	now := s.now()
	s.seq++
	n := Notification{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), s.seq),
		Type:      t,
		Title:     title,
		Message:   message,
		Timestamp: now,
	}
	s.items = append(s.items, n)
	list, listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, list)

	id := n.ID
	s.scheduler.AfterFunc(AutoDismissDelay, func() { s.Remove(id) })
	return n
}

// Notify renders a template and adds the result.
func (s *Store) Notify(templateID string, data map[string]string) (Notification, error) {
	t, title, message, err := s.templates.Render(templateID, data)
	if err != nil {
		return Notification{}, fmt.Errorf("render template: %w", err)
	}
	return s.Add(t, title, message), nil
}

// Remove drops a toast. Unknown or already removed ids are ignored.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	idx := -1
	for i, n := range s.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	rest := make([]Notification, 0, len(s.items)-1)
	rest = append(rest, s.items[:idx]...)
	s.items = append(rest, s.items[idx+1:]...)
	list, listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, list)
}

// List returns a copy of the active toasts.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// snapshotLocked must be called with s.mu held.
func (s *Store) snapshotLocked() ([]Notification, []Listener) {
	list := make([]Notification, len(s.items))
	copy(list, s.items)
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	return list, listeners
}

func notify(listeners []Listener, list []Notification) {
	for _, l := range listeners {
		l(list)
	}
}
