package handler

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/model"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/task"
	"github.com/rsheldon/flatmate/internal/websocket"
)

type taskHandlerFixture struct {
	handler *TaskHandler
	tasks   *store.TaskStore
	homeA   *model.Home
	homeB   *model.Home
	ann     *model.User
	ben     *model.User
}

func setupTaskHandler(t *testing.T) *taskHandlerFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hs := store.NewHomeStore(db)
	us := store.NewUserStore(db)
	ts := store.NewTaskStore(db)

	homeA, err := hs.Create("Home A")
	if err != nil {
		t.Fatalf("create home a: %v", err)
	}
	homeB, err := hs.Create("Home B")
	if err != nil {
		t.Fatalf("create home b: %v", err)
	}
	ann, err := us.Create("ann@example.com", "h", "Ann")
	if err != nil {
		t.Fatalf("create ann: %v", err)
	}
	ben, err := us.Create("ben@example.com", "h", "Ben")
	if err != nil {
		t.Fatalf("create ben: %v", err)
	}
	if _, err := hs.AddMember(homeA.ID, ann.ID, "owner", 0); err != nil {
		t.Fatalf("add ann: %v", err)
	}
	if _, err := hs.AddMember(homeB.ID, ben.ID, "owner", 0); err != nil {
		t.Fatalf("add ben: %v", err)
	}

	logger := slog.Default()
	svc := task.NewService(ts, nil, logger)
	hub := websocket.NewHub(logger)

	return &taskHandlerFixture{
		handler: NewTaskHandler(ts, hs, svc, hub, logger),
		tasks:   ts,
		homeA:   homeA,
		homeB:   homeB,
		ann:     ann,
		ben:     ben,
	}
}

func authedRequest(method, target, body string, user *model.User, home *model.Home) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := auth.WithAuth(r.Context(), auth.AuthContext{
		UserID: user.ID,
		HomeID: home.ID,
		Role:   "owner",
	})
	return r.WithContext(ctx)
}

func TestCreateMultipleAssigneesRequiresFlag(t *testing.T) {
	f := setupTaskHandler(t)

	body := `{"title":"Deep clean","assignees":[` +
		strconv.FormatInt(f.ann.ID, 10) + `,` + strconv.FormatInt(f.ben.ID, 10) + `]}`
	w := httptest.NewRecorder()
	f.handler.Create(w, authedRequest("POST", "/api/tasks", body, f.ann, f.homeA))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	tasks, err := f.tasks.ListByHome(f.homeA.ID, "", nil)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks written, got %d", len(tasks))
	}
}

func TestCreateMultipleAssigneesWithFlag(t *testing.T) {
	f := setupTaskHandler(t)

	body := `{"title":"Move the couch","requires_multiple_people":true,"assignees":[` +
		strconv.FormatInt(f.ann.ID, 10) + `]}`
	w := httptest.NewRecorder()
	f.handler.Create(w, authedRequest("POST", "/api/tasks", body, f.ann, f.homeA))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestGetTaskFromAnotherHome(t *testing.T) {
	f := setupTaskHandler(t)

	created, err := f.tasks.Create(store.CreateTaskParams{
		HomeID: f.homeA.ID, Title: "Water plants", CreatedBy: f.ann.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	r := authedRequest("GET", "/api/tasks/"+strconv.FormatInt(created.ID, 10), "", f.ben, f.homeB)
	r.SetPathValue("id", strconv.FormatInt(created.ID, 10))
	w := httptest.NewRecorder()
	f.handler.Get(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	// Same request from the owning home succeeds.
	r = authedRequest("GET", "/api/tasks/"+strconv.FormatInt(created.ID, 10), "", f.ann, f.homeA)
	r.SetPathValue("id", strconv.FormatInt(created.ID, 10))
	w = httptest.NewRecorder()
	f.handler.Get(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
