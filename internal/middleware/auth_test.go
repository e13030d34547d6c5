package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rsheldon/flatmate/internal/auth"
	"github.com/rsheldon/flatmate/internal/database"
	"github.com/rsheldon/flatmate/internal/store"
)

func setupAuthTest(t *testing.T) (*store.SessionStore, *store.HomeStore, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db), store.NewHomeStore(db), store.NewUserStore(db)
}

func TestRequireAuthMissingToken(t *testing.T) {
	sessions, homes, _ := setupAuthTest(t)

	handler := RequireAuth(sessions, homes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tasks", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	sessions, homes, _ := setupAuthTest(t)

	handler := RequireAuth(sessions, homes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run with a bad token")
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthPopulatesContext(t *testing.T) {
	sessions, homes, users := setupAuthTest(t)

	u, err := users.Create("ctx@example.com", "h", "Ctx")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	home, err := homes.Create("Ctx House")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	if _, err := homes.AddMember(home.ID, u.ID, "owner", 0); err != nil {
		t.Fatalf("add member: %v", err)
	}
	sess, err := sessions.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var got auth.AuthContext
	handler := RequireAuth(sessions, homes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != u.ID {
		t.Errorf("user id = %d, want %d", got.UserID, u.ID)
	}
	if got.HomeID != home.ID {
		t.Errorf("home id = %d, want %d", got.HomeID, home.ID)
	}
	if got.Role != "owner" {
		t.Errorf("role = %q, want owner", got.Role)
	}
	if got.SessionID != sess.ID {
		t.Errorf("session id = %d, want %d", got.SessionID, sess.ID)
	}
}

func TestRequireAuthNoHomeMembership(t *testing.T) {
	sessions, homes, users := setupAuthTest(t)

	u, err := users.Create("solo@example.com", "h", "Solo")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := sessions.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var got auth.AuthContext
	handler := RequireAuth(sessions, homes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated user without a home should pass, got %d", rec.Code)
	}
	if got.HomeID != 0 {
		t.Errorf("home id = %d, want 0", got.HomeID)
	}
}

func TestRequireAuthQueryTokenFallback(t *testing.T) {
	sessions, homes, users := setupAuthTest(t)

	u, _ := users.Create("ws@example.com", "h", "WS")
	sess, err := sessions.Create(u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	called := false
	handler := RequireAuth(sessions, homes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ws?token="+sess.Token, nil))

	if !called {
		t.Errorf("query token not accepted, status %d", rec.Code)
	}
}

func TestRequireHome(t *testing.T) {
	ok := httptest.NewRecorder()
	withHome := httptest.NewRequest("GET", "/api/tasks", nil)
	withHome = withHome.WithContext(auth.WithAuth(withHome.Context(), auth.AuthContext{UserID: 1, HomeID: 5}))
	RequireHome(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(ok, withHome)
	if ok.Code != http.StatusOK {
		t.Errorf("member status = %d, want 200", ok.Code)
	}

	denied := httptest.NewRecorder()
	noHome := httptest.NewRequest("GET", "/api/tasks", nil)
	noHome = noHome.WithContext(auth.WithAuth(noHome.Context(), auth.AuthContext{UserID: 1}))
	RequireHome(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a home")
	})).ServeHTTP(denied, noHome)
	if denied.Code != http.StatusForbidden {
		t.Errorf("no-home status = %d, want 403", denied.Code)
	}
}

func TestRequireOwner(t *testing.T) {
	denied := httptest.NewRecorder()
	member := httptest.NewRequest("PUT", "/api/home", nil)
	member = member.WithContext(auth.WithAuth(member.Context(), auth.AuthContext{UserID: 1, HomeID: 5, Role: "member"}))
	RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for non-owner")
	})).ServeHTTP(denied, member)
	if denied.Code != http.StatusForbidden {
		t.Errorf("member status = %d, want 403", denied.Code)
	}

	ok := httptest.NewRecorder()
	owner := httptest.NewRequest("PUT", "/api/home", nil)
	owner = owner.WithContext(auth.WithAuth(owner.Context(), auth.AuthContext{UserID: 1, HomeID: 5, Role: "owner"}))
	RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(ok, owner)
	if ok.Code != http.StatusOK {
		t.Errorf("owner status = %d, want 200", ok.Code)
	}
}
