package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/tutorlink-realtime/internal/api"
	"github.com/rickgao/tutorlink-realtime/internal/notification"
)

// fakeSource counts calls and returns canned results.
type fakeSource struct {
	notifCalls  atomic.Int32
	unreadCalls atomic.Int32
	unread      atomic.Int32
	err         error
}

func (f *fakeSource) GetNotifications(context.Context) ([]notification.Notification, error) {
	f.notifCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []notification.Notification{{ID: "n1"}}, nil
}

func (f *fakeSource) GetUnreadCount(context.Context) (int, error) {
	f.unreadCalls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return int(f.unread.Load()), nil
}

// pollRecorder implements Observer.
type pollRecorder struct {
	mu      sync.Mutex
	results map[string][]error
}

func (r *pollRecorder) PollCompleted(target string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string][]error)
	}
	r.results[target] = append(r.results[target], err)
}

func (r *pollRecorder) count(target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results[target])
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func stop(t *testing.T, p *Poller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestPoller_OverlappingFetchesDeduplicate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := []string{"1", "2"}
		if calls.Add(1) > 1 {
			ids = []string{"2", "3"}
		}
		var list []map[string]any
		for _, id := range ids {
			list = append(list, map[string]any{"_id": id, "title": "n" + id})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "notifications": list})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "tok", api.WithTimeout(5*time.Second))
	store := notification.NewStore(nil, nil)

	cfg := DefaultConfig()
	p := New(cfg, client, store, nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	waitFor(t, func() bool { return store.Len() == 2 }, "first fetch")
	p.Nudge()
	waitFor(t, func() bool { return calls.Load() >= 2 && store.Len() == 3 }, "second fetch")

	got := map[string]bool{}
	for _, n := range store.List() {
		if got[n.ID] {
			t.Errorf("duplicate id %q", n.ID)
		}
		got[n.ID] = true
	}
	for _, id := range []string{"1", "2", "3"} {
		if !got[id] {
			t.Errorf("missing id %q", id)
		}
	}
}

func TestPoller_UnreadCountApplied(t *testing.T) {
	src := &fakeSource{}
	src.unread.Store(4)
	counter := notification.NewUnreadCounter("u1", nil)

	p := New(DefaultConfig(), src, nil, counter, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	waitFor(t, func() bool { return counter.Count() == 4 }, "unread count")
	if src.notifCalls.Load() != 0 {
		t.Errorf("notification poll ran without a store")
	}
}

func TestPoller_SuspendedWhileReady(t *testing.T) {
	src := &fakeSource{}
	rec := &pollRecorder{}
	cfg := Config{NotificationInterval: 10 * time.Millisecond, UnreadInterval: 10 * time.Millisecond}

	p := New(cfg, src, notification.NewStore(nil, nil), notification.NewUnreadCounter("u1", nil), nil, WithObserver(rec))
	p.SetReady(true)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	time.Sleep(60 * time.Millisecond)
	if n := src.notifCalls.Load() + src.unreadCalls.Load(); n != 0 {
		t.Fatalf("polls while ready = %d, want 0", n)
	}

	p.SetReady(false)
	waitFor(t, func() bool {
		return rec.count(TargetNotifications) > 0 && rec.count(TargetUnreadCount) > 0
	}, "polls to resume")
}

func TestPoller_NotificationsAlwaysOn(t *testing.T) {
	src := &fakeSource{}
	cfg := Config{
		NotificationInterval:  10 * time.Millisecond,
		UnreadInterval:        10 * time.Millisecond,
		NotificationsAlwaysOn: true,
	}

	p := New(cfg, src, notification.NewStore(nil, nil), notification.NewUnreadCounter("u1", nil), nil)
	p.SetReady(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	waitFor(t, func() bool { return src.notifCalls.Load() >= 2 }, "notification polls")
	if n := src.unreadCalls.Load(); n != 0 {
		t.Errorf("unread polls while ready = %d, want 0", n)
	}
}

func TestPoller_ReadyLossNudges(t *testing.T) {
	src := &fakeSource{}
	p := New(DefaultConfig(), src, notification.NewStore(nil, nil), nil, nil)
	p.SetReady(true)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	// Let the suspended initial tick pass. The interval is 10s, so only
	// the nudge can cause a poll after this.
	time.Sleep(20 * time.Millisecond)
	p.SetReady(false)
	waitFor(t, func() bool { return src.notifCalls.Load() >= 1 }, "nudged poll")
	if p.Ready() {
		t.Error("Ready() = true after SetReady(false)")
	}
}

func TestPoller_FailuresKeepState(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	store := notification.NewStore(nil, nil)
	store.Upsert(notification.Notification{ID: "kept"})
	counter := notification.NewUnreadCounter("u1", nil)
	counter.Set(2)
	rec := &pollRecorder{}

	p := New(DefaultConfig(), src, store, counter, nil, WithObserver(rec))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stop(t, p)

	waitFor(t, func() bool {
		return rec.count(TargetNotifications) == 1 && rec.count(TargetUnreadCount) == 1
	}, "failed polls")

	if _, ok := store.Get("kept"); !ok || store.Len() != 1 {
		t.Errorf("store changed after failed poll")
	}
	if counter.Count() != 2 {
		t.Errorf("count = %d, want 2", counter.Count())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.results[TargetNotifications][0] == nil {
		t.Error("observer did not see the error")
	}
}

func TestPoller_StartStop(t *testing.T) {
	p := New(DefaultConfig(), &fakeSource{}, notification.NewStore(nil, nil), nil, nil)

	// Stop before Start is a no-op.
	stop(t, p)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	stop(t, p)
	stop(t, p)
}

func TestPoller_RestartAfterStop(t *testing.T) {
	source := &fakeSource{}
	p := New(DefaultConfig(), source, notification.NewStore(nil, nil), nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return source.notifCalls.Load() == 1 }, "first poll")
	stop(t, p)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start after Stop = %v, want nil", err)
	}
	defer stop(t, p)
	waitFor(t, func() bool { return source.notifCalls.Load() == 2 }, "poll after restart")
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, &fakeSource{}, nil, nil, nil)
	want := DefaultConfig()
	if p.cfg != want {
		t.Errorf("cfg = %+v, want %+v", p.cfg, want)
	}
	if len(p.targets) != 0 {
		t.Errorf("targets = %d, want 0", len(p.targets))
	}
}
