package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/events"
	"dayline/internal/migrate"
	"dayline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, events.Writer) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, events.Writer{DB: conn}
}

func appendEvent(t *testing.T, r repo.Repo, w events.Writer, evtType, taskID string, payload events.EventPayload) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(ctx, tx, evtType, taskID, "tester", payload); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchDeliversMatchingEvents(t *testing.T) {
	r, w := newTestRepo(t)

	var got []delivery
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		var d delivery
		if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Header.Get("X-Dayline-Event") != d.Type {
			t.Errorf("event header = %q", req.Header.Get("X-Dayline-Event"))
		}
		got = append(got, d)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := &Dispatcher{
		repo: r,
		webhooks: []config.WebhookConfig{{
			URL:    srv.URL,
			Events: []string{"task.snooze"},
		}},
		client:  &http.Client{Timeout: time.Second},
		cursors: map[int]int64{0: 0},
	}

	appendEvent(t, r, w, "task.create", "t1", events.EventPayload{"title": "x"})
	appendEvent(t, r, w, "task.snooze", "t1", events.EventPayload{"minutes": 30})

	d.DispatchAll()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Type != "task.snooze" || got[0].TaskID != "t1" {
		t.Fatalf("unexpected delivery %+v", got[0])
	}

	// cursor advanced past the filtered-out event too
	d.DispatchAll()
	if len(got) != 1 {
		t.Fatalf("redelivered after cursor advance: %d", len(got))
	}
}

func TestDispatchStopsOnFailure(t *testing.T) {
	r, w := newTestRepo(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		calls++
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := &Dispatcher{
		repo:     r,
		webhooks: []config.WebhookConfig{{URL: srv.URL}},
		client:   &http.Client{Timeout: time.Second},
		cursors:  map[int]int64{0: 0},
	}
	appendEvent(t, r, w, "task.complete", "t1", nil)
	appendEvent(t, r, w, "task.undo", "t1", nil)

	d.DispatchAll()
	if calls != 1 {
		t.Fatalf("expected delivery to stop at first failure, got %d calls", calls)
	}
	// a later pass retries from the stuck cursor
	d.DispatchAll()
	if calls != 2 {
		t.Fatalf("expected retry, got %d calls", calls)
	}
}

func TestStartReturnsNilWithoutWebhooks(t *testing.T) {
	r, _ := newTestRepo(t)
	if d := Start(r, config.Default()); d != nil {
		t.Fatalf("expected nil dispatcher with no webhooks configured")
	}
}

func TestSchedulerWithoutWebhooksIsNop(t *testing.T) {
	if _, ok := NewScheduler(config.Default()).(NopScheduler); !ok {
		t.Fatal("expected NopScheduler with no webhooks configured")
	}
}

func TestWebhookSchedulerSendsInstructions(t *testing.T) {
	var got []reminderInstruction
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		var instr reminderInstruction
		if err := json.NewDecoder(req.Body).Decode(&instr); err != nil {
			t.Errorf("decode: %v", err)
		}
		got = append(got, instr)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: srv.URL}}
	sched := NewScheduler(cfg)

	fireAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := sched.ScheduleSnooze(ctx, "t1", "Water plants", "Snoozed task is due again", fireAt, map[string]any{"minutes": 30}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := sched.CancelAllForTask(ctx, "t1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("instructions = %d, want 2", len(got))
	}
	if got[0].Kind != "reminder.schedule" || got[0].TaskID != "t1" || got[0].FireAt != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected schedule instruction %+v", got[0])
	}
	if got[1].Kind != "reminder.cancel" || got[1].TaskID != "t1" {
		t.Fatalf("unexpected cancel instruction %+v", got[1])
	}
}
