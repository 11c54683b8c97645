package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/schema"
)

func setupTestClient(t *testing.T) (*Client, *apitest.Server) {
	t.Helper()

	srv := apitest.NewServer("test-token")
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, StaticToken("test-token"), Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, srv
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New("ftp://example.com", StaticToken("x"), Options{}); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if _, err := New("http://example.com", nil, Options{}); err == nil {
		t.Error("expected error for nil token source")
	}
}

func TestTaskRoundTrip(t *testing.T) {
	client, srv := setupTestClient(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	local := &schema.Task{Title: "Ship release", Priority: schema.PriorityHigh, DueDate: &due,
		GoalIDs: []schema.ID{schema.LocalID(4), schema.BackendID("g1")}}
	local.SetDefaults()

	created, err := client.CreateTask(ctx, local)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if !created.ID.IsBackend() {
		t.Fatalf("created task should carry a backend id, got %v", created.ID)
	}
	if created.Title != "Ship release" || created.Priority != schema.PriorityHigh {
		t.Errorf("unexpected created task: %+v", created)
	}
	if !created.CreatedAt.Equal(local.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", created.CreatedAt, local.CreatedAt)
	}
	if len(created.GoalIDs) != 1 || created.GoalIDs[0] != schema.BackendID("g1") {
		t.Errorf("only backend goal ids should travel, got %v", created.GoalIDs)
	}

	created.Completed = true
	updated, err := client.UpdateTask(ctx, created.ID, created)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if !updated.Completed || updated.ID != created.ID {
		t.Errorf("unexpected updated task: %+v", updated)
	}

	got, err := client.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}

	list, err := client.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 task, got %d", len(list))
	}

	if err := client.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if srv.Len(apitest.Tasks) != 0 {
		t.Errorf("task still stored after delete")
	}
}

func TestNotFoundIsTyped(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.GetTask(context.Background(), schema.BackendID("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Kind != KindNotFound {
		t.Errorf("unexpected error detail: %#v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("not found must not match ErrUnauthorized")
	}

	_, err = client.UpdateGoal(context.Background(), schema.BackendID("missing"), &schema.Goal{Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from update, got %v", err)
	}
}

func TestLocalIDRejectedWithoutRequest(t *testing.T) {
	client, srv := setupTestClient(t)

	if _, err := client.GetTask(context.Background(), schema.LocalID(3)); err == nil {
		t.Error("expected error for local id")
	}
	if srv.RequestCount() != 0 {
		t.Errorf("expected no requests, got %d", srv.RequestCount())
	}
}

func TestWrongTokenIsUnauthorized(t *testing.T) {
	srv := apitest.NewServer("right")
	defer srv.Close()

	client, err := New(srv.URL, StaticToken("wrong"), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = client.ListTasks(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	empty, _ := New(srv.URL, StaticToken(""), Options{})
	if _, err := empty.Me(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without token, got %v", err)
	}
}

func TestServerErrorIsOther(t *testing.T) {
	client, srv := setupTestClient(t)
	srv.FailWhen(func(r apitest.Request) bool { return r.Method == http.MethodPost })

	_, err := client.CreateGoal(context.Background(), &schema.Goal{Title: "Run a marathon"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != KindOther || apiErr.Status != http.StatusInternalServerError {
		t.Errorf("unexpected error: %#v", apiErr)
	}
	if apiErr.Message != "injected failure" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestEnvelopeFailureWith200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "quota exceeded"})
	}))
	defer ts.Close()

	client, _ := New(ts.URL, StaticToken("t"), Options{})
	_, err := client.ListGoals(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindOther || apiErr.Message != "quota exceeded" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequestHeadersAndCounter(t *testing.T) {
	client, srv := setupTestClient(t)
	ctx := context.Background()

	if _, err := client.Me(ctx); err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if _, err := client.ListSessions(ctx); err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if client.Counter() != 2 {
		t.Errorf("Counter = %d, want 2", client.Counter())
	}

	reqs := srv.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 logged requests, got %d", len(reqs))
	}
	if reqs[0].RequestID == "" || reqs[0].RequestID == reqs[1].RequestID {
		t.Errorf("request ids should be set and unique: %q %q", reqs[0].RequestID, reqs[1].RequestID)
	}
}

func TestGoalLegacyTaskNumbersAreDropped(t *testing.T) {
	client, srv := setupTestClient(t)

	id := srv.Seed(apitest.Goals, map[string]interface{}{
		"title":          "Legacy goal",
		"progress":       40,
		"createdAt":      "2025-01-02",
		"relatedTaskIds": []string{"t1", "t2"},
		"relatedTasks":   []int{7, 7},
	})

	goal, err := client.GetGoal(context.Background(), schema.BackendID(id))
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	// relatedTasks holds another client's local keys; they must not alias rows here.
	want := []schema.ID{schema.BackendID("t1"), schema.BackendID("t2")}
	if len(goal.TaskIDs) != len(want) {
		t.Fatalf("TaskIDs = %v, want %v", goal.TaskIDs, want)
	}
	for i := range want {
		if goal.TaskIDs[i] != want[i] {
			t.Errorf("TaskIDs[%d] = %v, want %v", i, goal.TaskIDs[i], want[i])
		}
	}
	if !goal.CreatedAt.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date-only createdAt not normalized: %v", goal.CreatedAt)
	}

	// Encoding only sends backend ids under relatedTaskIds.
	wire := goalToWire(goal)
	if len(wire.RelatedTaskIDs) != 2 {
		t.Errorf("unexpected wire goal: %+v", wire)
	}
}

func TestSessionDurationTravelsInSeconds(t *testing.T) {
	client, srv := setupTestClient(t)

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s := &schema.TimerSession{Type: schema.SessionDeep, StartedAt: start}
	s.Stop(start.Add(50 * time.Minute))

	created, err := client.CreateSession(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.Duration != 50*time.Minute || !created.Completed {
		t.Errorf("unexpected session: %+v", created)
	}
	rec := srv.Record(apitest.Sessions, created.ID.Backend())
	if rec["duration"] != float64(3000) {
		t.Errorf("wire duration = %v, want 3000", rec["duration"])
	}
	if created.UserID == "" {
		t.Error("backend should assign a user id")
	}
}

func TestParseWireTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{in: "", wantNil: true},
		{in: "2026-02-03", want: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{in: "2026-02-03T10:11:12Z", want: time.Date(2026, 2, 3, 10, 11, 12, 0, time.UTC)},
		{in: "2026-02-03T10:11:12.345+02:00", want: time.Date(2026, 2, 3, 8, 11, 12, 345000000, time.UTC)},
		{in: "03/02/2026", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWireTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseWireTime(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseWireTime(%q) failed: %v", tt.in, err)
			continue
		}
		if tt.wantNil {
			if got != nil {
				t.Errorf("parseWireTime(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("parseWireTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
