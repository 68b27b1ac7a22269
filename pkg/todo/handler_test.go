package todo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/httpserver"
)

type memRepo struct {
	mu    sync.Mutex
	todos map[uuid.UUID]Todo
	clock time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		todos: make(map[uuid.UUID]Todo),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) List(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]Todo, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Todo
	for _, t := range m.todos {
		if t.OwnerID == ownerID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []Todo{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *memRepo) Get(_ context.Context, ownerID, id uuid.UUID) (Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.OwnerID != ownerID {
		return Todo{}, ErrNotFound
	}
	return t, nil
}

func (m *memRepo) Create(_ context.Context, ownerID uuid.UUID, p Params) (Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	t := Todo{
		ID: uuid.New(), OwnerID: ownerID,
		Title: p.Title, Description: p.Description, Completed: p.Completed,
		CreatedAt: m.clock, UpdatedAt: m.clock,
	}
	m.todos[t.ID] = t
	return t, nil
}

func (m *memRepo) Update(_ context.Context, ownerID, id uuid.UUID, p Params) (Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.OwnerID != ownerID {
		return Todo{}, ErrNotFound
	}
	t.Title, t.Description, t.Completed = p.Title, p.Description, p.Completed
	m.todos[id] = t
	return t, nil
}

func (m *memRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.todos, id)
	return nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) LogFromRequest(_ *http.Request, action, _ string, _ uuid.UUID, _ json.RawMessage) {
	a.actions = append(a.actions, action)
}

type fixture struct {
	repo   *memRepo
	audit  *recordingAudit
	router chi.Router
}

func newFixture() *fixture {
	f := &fixture{repo: newMemRepo(), audit: &recordingAudit{}}
	h := NewHandler(NewService(f.repo, slog.Default()), slog.Default(), f.audit)
	f.router = chi.NewRouter()
	f.router.Mount("/todos", h.Routes())
	return f
}

func (f *fixture) do(t *testing.T, userID uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		r = r.WithContext(auth.NewContext(r.Context(), &auth.Identity{UserID: userID}))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestCreateTodo_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing title", `{"description":"x"}`, http.StatusUnprocessableEntity},
		{"blank title", `{"title":"   "}`, http.StatusUnprocessableEntity},
		{"title too long", `{"title":"` + strings.Repeat("a", 201) + `"}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"title":"ok","owner_id":"x"}`, http.StatusBadRequest},
		{"invalid JSON", `{bad}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	f := newFixture()
	user := uuid.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, user, http.MethodPost, "/todos", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
	if len(f.repo.todos) != 0 {
		t.Errorf("invalid requests created %d todos", len(f.repo.todos))
	}
}

func TestTodoLifecycle(t *testing.T) {
	f := newFixture()
	user := uuid.New()

	w := f.do(t, user, http.MethodPost, "/todos", `{"title":"  buy milk  ","description":"2 litres"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	created := decode[Response](t, w)
	if created.Title != "buy milk" {
		t.Errorf("Title = %q, want trimmed %q", created.Title, "buy milk")
	}

	path := "/todos/" + created.ID.String()

	w = f.do(t, user, http.MethodPatch, path, `{"completed":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body: %s", w.Code, w.Body.String())
	}
	patched := decode[Response](t, w)
	if !patched.Completed || patched.Title != "buy milk" || patched.Description != "2 litres" {
		t.Errorf("patched = %+v", patched)
	}

	w = f.do(t, user, http.MethodPut, path, `{"title":"buy oat milk"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d; body: %s", w.Code, w.Body.String())
	}
	replaced := decode[Response](t, w)
	if replaced.Completed || replaced.Description != "" || replaced.Title != "buy oat milk" {
		t.Errorf("replaced = %+v", replaced)
	}

	w = f.do(t, user, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = f.do(t, user, http.MethodDelete, path, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = f.do(t, user, http.MethodGet, path, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}

	want := []string{"create", "update", "update", "delete"}
	if strings.Join(f.audit.actions, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", f.audit.actions, want)
	}
}

func TestTodo_ScopedToOwner(t *testing.T) {
	f := newFixture()
	alice, bob := uuid.New(), uuid.New()

	w := f.do(t, alice, http.MethodPost, "/todos", `{"title":"alice's"}`)
	created := decode[Response](t, w)
	path := "/todos/" + created.ID.String()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if w := f.do(t, bob, method, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s by other user status = %d, want 404", method, w.Code)
		}
	}
	if w := f.do(t, bob, http.MethodPatch, path, `{"completed":true}`); w.Code != http.StatusNotFound {
		t.Errorf("PATCH by other user status = %d, want 404", w.Code)
	}

	page := decode[httpserver.Page[Response]](t, f.do(t, bob, http.MethodGet, "/todos", ""))
	if page.TotalItems != 0 {
		t.Errorf("bob sees %d todos, want 0", page.TotalItems)
	}
}

func TestListTodos_Pagination(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	for i := 0; i < 5; i++ {
		f.do(t, user, http.MethodPost, "/todos", `{"title":"item"}`)
	}

	w := f.do(t, user, http.MethodGet, "/todos?page=2&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	page := decode[httpserver.Page[Response]](t, w)
	if page.TotalItems != 5 || page.TotalPages != 3 || len(page.Items) != 2 || page.Page != 2 {
		t.Errorf("page = %+v", page)
	}

	if w := f.do(t, user, http.MethodGet, "/todos?page=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("page=0 status = %d, want 400", w.Code)
	}
}

func TestTodo_InvalidID(t *testing.T) {
	f := newFixture()
	if w := f.do(t, uuid.New(), http.MethodGet, "/todos/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTodo_Anonymous(t *testing.T) {
	f := newFixture()
	if w := f.do(t, uuid.Nil, http.MethodGet, "/todos", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
