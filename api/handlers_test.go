package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/session"
	"github.com/wynnblevins/kanban/stream"
)

// headerAuth treats the bearer value as the user id.
type headerAuth struct{}

func (headerAuth) UserIDFromAuthHeader(h string) (string, error) {
	user := strings.TrimPrefix(h, "Bearer ")
	if user == "" || user == h {
		return "", errMissingAuthorization
	}
	return user, nil
}

type fakeTemplates map[string][]string

func (f fakeTemplates) Columns(_ context.Context, name string) ([]string, error) {
	titles, ok := f[name]
	if !ok {
		return nil, errors.New("template not found")
	}
	return titles, nil
}

type fakeCache map[string]domain.Snapshot

func (f fakeCache) LoadSnapshot(_ context.Context, id string) (domain.Snapshot, bool) {
	snap, ok := f[id]
	return snap, ok
}

type failingDeduper struct{}

func (failingDeduper) AddMany(context.Context, string, []string) ([]bool, error) {
	return nil, errors.New("redis down")
}

func (failingDeduper) Remove(context.Context, string, ...string) error { return nil }

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed chan struct{}
}

func (f flushRecorder) Flush() {
	select {
	case f.flushed <- struct{}{}:
	default:
	}
}

// boardBody mirrors domain.View on the client side.
type boardBody struct {
	Version int64           `json:"version"`
	Columns []domain.Column `json:"columns"`
	Tasks   []domain.Task   `json:"tasks"`
	Drag    struct {
		State string `json:"state"`
	} `json:"drag"`
}

type commandsBody struct {
	IdempotencyKeys []string   `json:"idempotencyKeys"`
	Duplicates      []string   `json:"duplicates"`
	Error           string     `json:"error"`
	FailedCommand   *int       `json:"failedCommand"`
	Board           *boardBody `json:"board"`
}

type testEnv struct {
	e      *echo.Echo
	reg    *session.Registry
	broker *stream.Broker
	hook   *test.Hook
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	broker := stream.NewBroker()
	reg := session.NewRegistry(session.NewFanout(broker, logger), session.Options{}, logger)
	d := Deps{Boards: reg, Auth: headerAuth{}, Updates: broker, Log: logger}
	for _, opt := range opts {
		opt(&d)
	}
	e := echo.New()
	Register(e, d)
	return &testEnv{e: e, reg: reg, broker: broker, hook: hook}
}

func withRedisDeduper(t *testing.T) func(*Deps) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) }
}

func (env *testEnv) do(method, target, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) createBoard(t *testing.T, user string) string {
	t.Helper()
	s, err := env.reg.Create(user, []string{"A", "B"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return s.ID()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{"/api/boards/x", "/api/boards/x/stream"} {
		if rec := env.do(http.MethodGet, target, "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", target, rec.Code)
		}
	}
}

func TestCreateBoard(t *testing.T) {
	templates := fakeTemplates{"sprint": {"Backlog", "Doing", "Done"}}
	env := newTestEnv(t, func(d *Deps) { d.Templates = templates })

	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantTemplate string
		wantColumns  []string
	}{
		{name: "empty", wantStatus: http.StatusCreated, wantTemplate: "default", wantColumns: domain.DefaultColumnTitles},
		{name: "named", body: `{"template":"sprint"}`, wantStatus: http.StatusCreated, wantTemplate: "sprint", wantColumns: []string{"Backlog", "Doing", "Done"}},
		{name: "unknownFallsBack", body: `{"template":"missing"}`, wantStatus: http.StatusCreated, wantTemplate: "default", wantColumns: domain.DefaultColumnTitles},
		{name: "unknownField", body: `{"columns":["x"]}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"template":`, wantStatus: http.StatusBadRequest},
		{name: "tooLarge", body: `{"template":"` + strings.Repeat("x", createBoardMaxSize) + `"}`, wantStatus: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/boards", "alice", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			var resp struct {
				ID       string    `json:"id"`
				Template string    `json:"template"`
				Board    boardBody `json:"board"`
			}
			decodeBody(t, rec, &resp)
			if resp.ID == "" || resp.Template != tt.wantTemplate {
				t.Fatalf("unexpected response: %+v", resp)
			}
			if len(resp.Board.Columns) != len(tt.wantColumns) {
				t.Fatalf("expected %d columns got %d", len(tt.wantColumns), len(resp.Board.Columns))
			}
			for i, col := range resp.Board.Columns {
				if col.Title != tt.wantColumns[i] {
					t.Fatalf("column %d: expected %q got %q", i, tt.wantColumns[i], col.Title)
				}
			}
			if resp.Board.Drag.State != "idle" {
				t.Fatalf("unexpected drag state: %q", resp.Board.Drag.State)
			}
			s, err := env.reg.Get(resp.ID)
			if err != nil {
				t.Fatalf("board not registered: %v", err)
			}
			if s.Owner() != "alice" {
				t.Fatalf("unexpected owner: %s", s.Owner())
			}
		})
	}
}

func TestCreateBoardWithoutTemplates(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/boards", "alice", `{"template":"sprint"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if entry := env.hook.LastEntry(); entry == nil || !strings.Contains(entry.Message, "templates not configured") {
		t.Fatalf("expected a warning about missing templates, got %#v", entry)
	}
}

func TestGetBoard(t *testing.T) {
	cache := fakeCache{"remote": {Version: 9, Columns: []domain.Column{{ID: 0, Title: "Elsewhere"}}}}
	env := newTestEnv(t, func(d *Deps) { d.Cache = cache })
	id := env.createBoard(t, "alice")

	tests := []struct {
		name       string
		target     string
		user       string
		wantStatus int
		wantTitle  string
	}{
		{name: "owner", target: "/api/boards/" + id, user: "alice", wantStatus: http.StatusOK, wantTitle: "A"},
		{name: "otherUser", target: "/api/boards/" + id, user: "bob", wantStatus: http.StatusForbidden},
		{name: "cached", target: "/api/boards/remote", user: "bob", wantStatus: http.StatusOK, wantTitle: "Elsewhere"},
		{name: "unknown", target: "/api/boards/nope", user: "alice", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.target, tt.user, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var b boardBody
			decodeBody(t, rec, &b)
			if len(b.Columns) == 0 || b.Columns[0].Title != tt.wantTitle {
				t.Fatalf("unexpected board: %+v", b)
			}
		})
	}
}

func TestDeleteBoard(t *testing.T) {
	env := newTestEnv(t)
	id := env.createBoard(t, "alice")

	if rec := env.do(http.MethodDelete, "/api/boards/"+id, "bob", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/api/boards/"+id, "alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/api/boards/"+id, "alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if env.reg.Len() != 0 {
		t.Fatalf("expected registry to be empty")
	}
}

func TestPostCommandsApplies(t *testing.T) {
	env := newTestEnv(t)
	id := env.createBoard(t, "alice")

	body := `[{"type":"create-task","data":{"columnId":0}},{"idempotencyKey":"mine","type":"create-column"}]`
	rec := env.do(http.MethodPost, "/api/boards/"+id+"/commands", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp commandsBody
	decodeBody(t, rec, &resp)
	if len(resp.IdempotencyKeys) != 2 || resp.IdempotencyKeys[0] == "" || resp.IdempotencyKeys[1] != "mine" {
		t.Fatalf("unexpected keys: %v", resp.IdempotencyKeys)
	}
	if resp.Board == nil || resp.Board.Version != 2 || len(resp.Board.Tasks) != 1 || len(resp.Board.Columns) != 3 {
		t.Fatalf("unexpected board: %+v", resp.Board)
	}
	if resp.Board.Tasks[0].ColumnID != 0 {
		t.Fatalf("task created in wrong column: %+v", resp.Board.Tasks[0])
	}
}

func TestPostCommandsRejects(t *testing.T) {
	env := newTestEnv(t)
	id := env.createBoard(t, "alice")

	tests := []struct {
		name       string
		target     string
		user       string
		body       string
		wantStatus int
	}{
		{name: "empty", target: "/api/boards/" + id + "/commands", user: "alice", body: `[]`, wantStatus: http.StatusBadRequest},
		{name: "notArray", target: "/api/boards/" + id + "/commands", user: "alice", body: `{"type":"create-column"}`, wantStatus: http.StatusBadRequest},
		{name: "unknownField", target: "/api/boards/" + id + "/commands", user: "alice", body: `[{"type":"create-column","extra":1}]`, wantStatus: http.StatusBadRequest},
		{name: "otherUser", target: "/api/boards/" + id + "/commands", user: "bob", body: `[{"type":"create-column"}]`, wantStatus: http.StatusForbidden},
		{name: "unknownBoard", target: "/api/boards/nope/commands", user: "alice", body: `[{"type":"create-column"}]`, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.target, tt.user, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
	s, _ := env.reg.Get(id)
	if v := s.View().Version; v != 0 {
		t.Fatalf("rejected requests changed the board to version %d", v)
	}
}

func TestPostCommandsGzip(t *testing.T) {
	env := newTestEnv(t)
	id := env.createBoard(t, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/boards/"+id+"/commands",
		bytes.NewReader(gzipBytes(t, `[{"type":"create-column"}]`)))
	req.Header.Set(echo.HeaderAuthorization, "Bearer alice")
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostCommandsDeduplicates(t *testing.T) {
	env := newTestEnv(t, withRedisDeduper(t))
	id := env.createBoard(t, "alice")
	target := "/api/boards/" + id + "/commands"

	body := `[{"idempotencyKey":"k1","type":"create-column"}]`
	if rec := env.do(http.MethodPost, target, "alice", body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, target, "alice", `[{"idempotencyKey":"k1","type":"create-column"},{"idempotencyKey":"k2","type":"create-column"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp commandsBody
	decodeBody(t, rec, &resp)
	if len(resp.Duplicates) != 1 || resp.Duplicates[0] != "k1" {
		t.Fatalf("unexpected duplicates: %v", resp.Duplicates)
	}
	if resp.Board.Version != 2 || len(resp.Board.Columns) != 4 {
		t.Fatalf("expected exactly one more column, got %+v", resp.Board)
	}
}

func TestPostCommandsFailureReleasesUnappliedKeys(t *testing.T) {
	env := newTestEnv(t, withRedisDeduper(t))
	id := env.createBoard(t, "alice")
	target := "/api/boards/" + id + "/commands"

	body := `[{"idempotencyKey":"a","type":"create-column"},{"idempotencyKey":"b","type":"bogus"},{"idempotencyKey":"c","type":"create-column"}]`
	rec := env.do(http.MethodPost, target, "alice", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var resp commandsBody
	decodeBody(t, rec, &resp)
	if resp.FailedCommand == nil || *resp.FailedCommand != 1 {
		t.Fatalf("expected failed command 1, got %v", resp.FailedCommand)
	}
	if resp.Error == "" || resp.Board == nil || resp.Board.Version != 1 {
		t.Fatalf("expected error and board at version 1, got %+v", resp)
	}

	retry := `[{"idempotencyKey":"a","type":"create-column"},{"idempotencyKey":"b","type":"create-column"},{"idempotencyKey":"c","type":"create-column"}]`
	rec = env.do(http.MethodPost, target, "alice", retry)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	resp = commandsBody{}
	decodeBody(t, rec, &resp)
	if len(resp.Duplicates) != 1 || resp.Duplicates[0] != "a" {
		t.Fatalf("expected only the applied key to be a duplicate, got %v", resp.Duplicates)
	}
	if resp.Board.Version != 3 {
		t.Fatalf("expected version 3 got %d", resp.Board.Version)
	}
}

func TestPostCommandsFailedIndexSkipsDuplicates(t *testing.T) {
	env := newTestEnv(t, withRedisDeduper(t))
	id := env.createBoard(t, "alice")
	target := "/api/boards/" + id + "/commands"

	if rec := env.do(http.MethodPost, target, "alice", `[{"idempotencyKey":"a","type":"create-column"}]`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, target, "alice", `[{"idempotencyKey":"a","type":"create-column"},{"idempotencyKey":"b","type":"bogus"}]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var resp commandsBody
	decodeBody(t, rec, &resp)
	if resp.FailedCommand == nil || *resp.FailedCommand != 1 {
		t.Fatalf("failed index must refer to the request, got %v", resp.FailedCommand)
	}
}

func TestPostCommandsDedupeUnavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Deduper = failingDeduper{} })
	id := env.createBoard(t, "alice")

	rec := env.do(http.MethodPost, "/api/boards/"+id+"/commands", "alice", `[{"type":"create-column"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	found := false
	for _, entry := range env.hook.AllEntries() {
		if strings.Contains(entry.Message, "dedupe unavailable") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dedupe warning")
	}
}

func TestStreamBoard(t *testing.T) {
	env := newTestEnv(t)
	id := env.createBoard(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/boards/"+id+"/stream?token=alice", nil)
	rec := flushRecorder{ResponseRecorder: httptest.NewRecorder(), flushed: make(chan struct{}, 8)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.e.ServeHTTP(rec, req)
	}()

	select {
	case <-rec.flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot flushed")
	}

	s, _ := env.reg.Get(id)
	if _, err := s.Apply([]domain.Command{{Type: domain.CmdCreateColumn}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := env.reg.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the board closed")
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	var events []string
	for _, frame := range strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n") {
		u, err := stream.DecodeUpdate([]byte(strings.TrimPrefix(frame, "data: ")))
		if err != nil {
			t.Fatalf("decode frame %q: %v", frame, err)
		}
		if u.BoardID != id {
			t.Fatalf("unexpected board id %q", u.BoardID)
		}
		events = append(events, u.Change.Event)
	}
	want := []string{eventSnapshot, domain.EventColumnCreated, domain.EventBoardClosed}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v got %v", want, events)
	}
	if env.broker.Subscribers(id) != 0 {
		t.Fatalf("stream did not unsubscribe")
	}
}

func TestStreamBoardNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/boards/nope/stream", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if env.broker.Subscribers("nope") != 0 {
		t.Fatalf("failed stream left a subscriber behind")
	}
}
