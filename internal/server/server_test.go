package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/engine"
	"dayline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	if err := e.SeedTaskTypes(context.Background(), "tester"); err != nil {
		t.Fatalf("seed task types: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTask(t *testing.T, srv *testServer, body map[string]any) map[string]any {
	t.Helper()
	if _, ok := body["due_date"]; !ok {
		body["due_date"] = time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", body, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d body %s", res.StatusCode, data)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d body %s", res.StatusCode, data)
	}
}

func TestCompleteConflictEnvelope(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	task := createTask(t, srv, map[string]any{"title": "Dishes", "type": "chores"})
	id := task["id"].(string)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/complete", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: status %d body %s", res.StatusCode, data)
	}
	var completed struct {
		Task             map[string]any `json:"task"`
		NetPoints        int            `json:"net_points"`
		OfferNextRoutine bool           `json:"offer_next_routine"`
	}
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if completed.Task["status"] != "completed" || completed.NetPoints <= 0 {
		t.Fatalf("unexpected completion: %s", data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/complete", nil, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second complete: status %d body %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "already_completed" {
		t.Fatalf("code = %q body %s", envelope.Error.Code, data)
	}
}

func TestIncompleteSubtasksBlocked(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	task := createTask(t, srv, map[string]any{
		"title":    "Pack",
		"subtasks": []string{"Clothes", "Passport"},
	})
	id := task["id"].(string)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/complete", nil, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d body %s", res.StatusCode, data)
	}

	for i := 0; i < 2; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPost,
			srv.URL+"/v0/tasks/"+id+"/subtasks/"+strconv.Itoa(i)+"/toggle", nil, actorHeader)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("toggle %d: status %d body %s", i, res.StatusCode, data)
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/complete", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete after toggles: status %d body %s", res.StatusCode, data)
	}
}

func TestPostponeSnoozeAndUndoFlow(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	task := createTask(t, srv, map[string]any{"title": "Taxes", "type": "errands"})
	id := task["id"].(string)

	newDue := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/postpone",
		map[string]any{"due_date": newDue, "reason": "too much going on"}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("postpone: status %d body %s", res.StatusCode, data)
	}
	var moved map[string]any
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatal(err)
	}
	if moved["status"] != "postponed" || moved["postpone_count"].(float64) != 1 {
		t.Fatalf("postpone response: %s", data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/snooze",
		map[string]any{"minutes": 45}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snooze: status %d body %s", res.StatusCode, data)
	}
	var snoozed map[string]any
	if err := json.Unmarshal(data, &snoozed); err != nil {
		t.Fatal(err)
	}
	if snoozed["snoozed"] != true || snoozed["status"] != "postponed" {
		t.Fatalf("snooze response: %s", data)
	}

	// snooze never enters undo; undo pops the postpone
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/undo",
		map[string]any{}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("undo: status %d body %s", res.StatusCode, data)
	}
	var reverted map[string]any
	if err := json.Unmarshal(data, &reverted); err != nil {
		t.Fatal(err)
	}
	if reverted["status"] != "pending" || reverted["postpone_count"].(float64) != 0 {
		t.Fatalf("undo response: %s", data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/undo",
		map[string]any{}, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second undo: status %d body %s", res.StatusCode, data)
	}
}

func TestSnoozeDurationRejected(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	task := createTask(t, srv, map[string]any{"title": "Nap"})
	id := task["id"].(string)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+id+"/snooze",
		map[string]any{"minutes": 5000}, actorHeader)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d body %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "invalid_duration" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestSettingsAndEvents(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/settings", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("settings: status %d body %s", res.StatusCode, data)
	}
	var settings SettingsResponse
	if err := json.Unmarshal(data, &settings); err != nil {
		t.Fatal(err)
	}
	if settings.SnoozeDefault <= 0 || len(settings.NotDoneReasons) == 0 {
		t.Fatalf("settings look empty: %s", data)
	}

	task := createTask(t, srv, map[string]any{"title": "Logged"})
	id := task["id"].(string)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?task_id="+id, nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: status %d body %s", res.StatusCode, data)
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "task.create" {
		t.Fatalf("events = %s", data)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys",
		map[string]any{"name": "phone"}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: status %d body %s", res.StatusCode, data)
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Key == "" {
		t.Fatalf("raw key not returned on create")
	}

	// the raw key authenticates without the legacy header
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil,
		map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth: status %d body %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/api-keys", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys: status %d", res.StatusCode)
	}
	var keys []APIKeyResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].Key != "" {
		t.Fatalf("list must not leak raw keys: %s", data)
	}
}
