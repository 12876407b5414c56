package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/straycat158/craftboard/internal/model"
)

// fakeSessionFinder はSessionFinderのテスト用実装。
type fakeSessionFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Session, error)
}

func (f *fakeSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return f.findByIDFunc(ctx, id)
}

// fakeUserFinder はUserFinderのテスト用実装。
type fakeUserFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (f *fakeUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if f.findByIDFunc != nil {
		return f.findByIDFunc(ctx, id)
	}
	return &model.User{ID: id, Username: "taro"}, nil
}

func TestSessionMiddleware_ValidSession_InjectsUserID(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "sess-123" {
				t.Errorf("session id = %q, want %q", id, "sess-123")
			}
			return &model.Session{
				ID:        "sess-123",
				UserID:    "user-456",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}

	mw := NewSessionMiddleware(finder, &fakeUserFinder{})

	var gotUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Fatalf("UserIDFromContext failed: %v", err)
		}
		gotUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-123"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotUserID != "user-456" {
		t.Errorf("user ID = %q, want %q", gotUserID, "user-456")
	}
}

func TestSessionMiddleware_NoCookie_Returns401(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			t.Fatal("FindByID should not be called without cookie")
			return nil, nil
		},
	}

	mw := NewSessionMiddleware(finder, &fakeUserFinder{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_SessionNotFound_Returns401(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			// 期限切れ・存在しないセッションはnilを返す
			return nil, nil
		},
	}

	mw := NewSessionMiddleware(finder, &fakeUserFinder{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "expired-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_FinderError_Returns401(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("db connection lost")
		},
	}

	mw := NewSessionMiddleware(finder, &fakeUserFinder{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-123"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_AdminUser_InjectsAdminFlag(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "admin-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	users := &fakeUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "admin", IsAdmin: true}, nil
		},
	}

	mw := NewSessionMiddleware(finder, users)

	var gotAdmin bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmin = IsAdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-admin"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !gotAdmin {
		t.Error("admin flag should be injected for admin user")
	}
}

func TestSessionMiddleware_WithdrawnUser_Returns401(t *testing.T) {
	finder := &fakeSessionFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "gone-user", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	users := &fakeUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			// 退会済みユーザーはnil
			return nil, nil
		},
	}

	mw := NewSessionMiddleware(finder, users)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-gone"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestIsAdminFromContext_Missing_ReturnsFalse(t *testing.T) {
	if IsAdminFromContext(context.Background()) {
		t.Error("missing admin flag should default to false")
	}
}

func TestUserIDFromContext_MissingUserID_ReturnsError(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	if err == nil {
		t.Fatal("expected error for context without user ID")
	}
}

func TestContextWithUserID_RoundTrip(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), "user-789")

	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("UserIDFromContext failed: %v", err)
	}
	if userID != "user-789" {
		t.Errorf("user ID = %q, want %q", userID, "user-789")
	}
}
