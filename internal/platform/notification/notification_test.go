package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// fakeScheduler records deferred callbacks so tests can fire them.
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (f *fakeScheduler) AfterFunc(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.funcs = append(f.funcs, fn)
}

func (f *fakeScheduler) fireAll() {
	f.mu.Lock()
	funcs := f.funcs
	f.funcs = nil
	f.mu.Unlock()
	for _, fn := range funcs {
		fn()
	}
}

func newTestStore() (*Store, *fakeScheduler) {
	sched := &fakeScheduler{}
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return NewStore(WithScheduler(sched), WithClock(func() time.Time { return clock })), sched
}

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Type:    TypeInfo,
		Title:   "Hello {{name}}",
		Message: "Dear {{name}}, your room is {{room}}.",
	})

	typ, title, msg, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"room": "4B",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != TypeInfo {
		t.Errorf("type = %q, want %q", typ, TypeInfo)
	}
	if title != "Hello Alice" {
		t.Errorf("title = %q, want %q", title, "Hello Alice")
	}
	if msg != "Dear Alice, your room is 4B." {
		t.Errorf("message = %q", msg)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, _, err := eng.Render("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	builtIn := []string{
		TplQueueJoined,
		TplQueueRemoved,
		TplPatientCalled,
		TplQueueEmpty,
		TplConsultationStarted,
		TplConsultationDone,
		TplConsultationDoneTime,
		TplNoShow,
	}
	for _, id := range builtIn {
		if _, _, _, err := eng.Render(id, nil); err != nil {
			t.Errorf("built-in template %q not found: %v", id, err)
		}
	}
}

func TestTemplateEngine_QueueJoinedText(t *testing.T) {
	eng := NewTemplateEngine()
	typ, title, msg, _ := eng.Render(TplQueueJoined, map[string]string{"name": "Bob", "position": "3"})
	if typ != TypeSuccess || title != "Joined Queue" {
		t.Errorf("got %q %q", typ, title)
	}
	if msg != "Bob joined the queue at position 3" {
		t.Errorf("message = %q", msg)
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, msg, err := eng.Render(TplConsultationDoneTime, map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Consultation completed in {{minutes}} minutes" {
		t.Errorf("expected placeholder to be left as-is, got %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Store Tests
// ---------------------------------------------------------------------------

func TestStore_AddAppearsImmediately(t *testing.T) {
	s, _ := newTestStore()

	n := s.Add(TypeSuccess, "T", "M")

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	if list[0].ID != n.ID || list[0].Title != "T" || list[0].Message != "M" || list[0].Type != TypeSuccess {
		t.Errorf("unexpected notification: %+v", list[0])
	}
}

func TestStore_AutoDismissAfterDelay(t *testing.T) {
	s, sched := newTestStore()

	s.Add(TypeSuccess, "T", "M")

	if len(sched.delays) != 1 || sched.delays[0] != 5000*time.Millisecond {
		t.Fatalf("expected one removal scheduled at 5000ms, got %v", sched.delays)
	}
	sched.fireAll()
	if len(s.List()) != 0 {
		t.Errorf("expected notification to be dismissed, got %v", s.List())
	}
}

func TestStore_AutoDismissRealTimer(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the real dismiss delay")
	}
	s := NewStore()
	s.Add(TypeInfo, "T", "M")

	deadline := time.Now().Add(AutoDismissDelay + 2*time.Second)
	for time.Now().Before(deadline) {
		if len(s.List()) == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("notification was not dismissed")
}

func TestStore_IDsAreUnique(t *testing.T) {
	s, _ := newTestStore()

	a := s.Add(TypeInfo, "a", "")
	b := s.Add(TypeInfo, "b", "")

	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both %q", a.ID)
	}
}

func TestStore_InsertionOrder(t *testing.T) {
	s, _ := newTestStore()
	for _, title := range []string{"one", "two", "three"} {
		s.Add(TypeInfo, title, "")
	}

	list := s.List()
	for i, want := range []string{"one", "two", "three"} {
		if list[i].Title != want {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Title, want)
		}
	}
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	calls := 0
	n := s.Add(TypeError, "T", "M")
	s.Subscribe(func([]Notification) { calls++ })

	s.Remove(n.ID)
	s.Remove(n.ID)
	s.Remove("unknown")

	if calls != 1 {
		t.Errorf("expected 1 listener call, got %d", calls)
	}
	if len(s.List()) != 0 {
		t.Errorf("expected empty list")
	}
}

func TestStore_ManualRemoveBeforeTimer(t *testing.T) {
	s, sched := newTestStore()
	a := s.Add(TypeInfo, "a", "")
	s.Add(TypeInfo, "b", "")

	s.Remove(a.ID)
	sched.fireAll()

	if len(s.List()) != 0 {
		t.Errorf("expected both dismissed, got %v", s.List())
	}
}

func TestStore_SubscribeReceivesListSynchronously(t *testing.T) {
	s, _ := newTestStore()
	var got [][]Notification
	s.Subscribe(func(list []Notification) { got = append(got, list) })

	s.Add(TypeInfo, "a", "")
	s.Add(TypeInfo, "b", "")

	if len(got) != 2 {
		t.Fatalf("expected 2 callbacks, got %d", len(got))
	}
	if len(got[1]) != 2 || got[1][1].Title != "b" {
		t.Errorf("unexpected second snapshot: %+v", got[1])
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s, _ := newTestStore()
	calls := 0
	unsubscribe := s.Subscribe(func([]Notification) { calls++ })

	s.Add(TypeInfo, "a", "")
	unsubscribe()
	s.Add(TypeInfo, "b", "")

	if calls != 1 {
		t.Errorf("expected 1 call before unsubscribe, got %d", calls)
	}
}

func TestStore_ListenerMayCallStore(t *testing.T) {
	s, _ := newTestStore()
	var seen int
	s.Subscribe(func([]Notification) { seen = len(s.List()) })

	s.Add(TypeInfo, "a", "")

	if seen != 1 {
		t.Errorf("expected listener to read 1 item, got %d", seen)
	}
}

func TestStore_Notify(t *testing.T) {
	s, _ := newTestStore()

	n, err := s.Notify(TplPatientCalled, map[string]string{"name": "Carol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Message != "Carol has been called" || n.Type != TypeSuccess {
		t.Errorf("unexpected notification: %+v", n)
	}

	if _, err := s.Notify("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
	if len(s.List()) != 1 {
		t.Errorf("expected 1 notification, got %d", len(s.List()))
	}
}

func TestStore_ConcurrentAdd(t *testing.T) {
	s, _ := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(TypeInfo, "t", "m")
		}()
	}
	wg.Wait()

	if len(s.List()) != 50 {
		t.Errorf("expected 50 notifications, got %d", len(s.List()))
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_List(t *testing.T) {
	s, _ := newTestStore()
	s.Add(TypeWarning, "Queue Empty", "No patients waiting in queue")
	h := NewHandler(s)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var list []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Type != TypeWarning {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Dismiss(t *testing.T) {
	s, _ := newTestStore()
	n := s.Add(TypeInfo, "T", "M")
	h := NewHandler(s)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID)

	if err := h.HandleDismiss(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(s.List()) != 0 {
		t.Error("expected notification to be removed")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	s, _ := newTestStore()
	e := echo.New()
	NewHandler(s).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
