package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/straycat158/craftboard/internal/model"
)

// mockAuthService はAuthServiceInterfaceのテスト用実装。
type mockAuthService struct {
	signupFunc         func(ctx context.Context, email, username, password string) (*model.User, *model.Session, error)
	loginFunc          func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	logoutFunc         func(ctx context.Context, sessionID string) error
	getCurrentUserFunc func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, email, username, password string) (*model.User, *model.Session, error) {
	return m.signupFunc(ctx, email, username, password)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFunc(ctx, sessionID)
}

func testUser() *model.User {
	return &model.User{
		ID:        "user-1",
		Email:     "taro@example.com",
		Username:  "taro",
		CreatedAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func testSession() *model.Session {
	return &model.Session{
		ID:        "sess-abc",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Signup_SetsSessionCookie(t *testing.T) {
	service := &mockAuthService{
		signupFunc: func(ctx context.Context, email, username, password string) (*model.User, *model.Session, error) {
			if email != "taro@example.com" {
				t.Errorf("email = %q", email)
			}
			return testUser(), testSession(), nil
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{SessionMaxAge: 86400})

	body := `{"email":"taro@example.com","username":"taro","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	cookie := findCookie(t, resp, sessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie should be set")
	}
	if cookie.Value != "sess-abc" {
		t.Errorf("cookie value = %q, want sess-abc", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	var got currentUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Username != "taro" {
		t.Errorf("username = %q, want taro", got.Username)
	}
}

func TestAuthHandler_Signup_EmailTaken_Returns409(t *testing.T) {
	service := &mockAuthService{
		signupFunc: func(ctx context.Context, email, username, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewEmailTakenError()
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{})

	body := `{"email":"taken@example.com","username":"taro","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}

	var errResp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeEmailTaken {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeEmailTaken)
	}
}

func TestAuthHandler_Login_InvalidCredentials_Returns401(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{})

	body := `{"email":"taro@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Login_Success_SetsSessionCookie(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return testUser(), testSession(), nil
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{SessionMaxAge: 86400})

	body := `{"email":"taro@example.com","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if findCookie(t, resp, sessionCookieName) == nil {
		t.Error("session cookie should be set")
	}
}

func TestAuthHandler_Login_InvalidBody_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Logout_ClearsCookieEvenOnServiceError(t *testing.T) {
	service := &mockAuthService{
		logoutFunc: func(ctx context.Context, sessionID string) error {
			return context.DeadlineExceeded
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	cookie := findCookie(t, resp, sessionCookieName)
	if cookie == nil {
		t.Fatal("clearing cookie should be set")
	}
	if cookie.MaxAge != -1 {
		t.Errorf("cookie MaxAge = %d, want -1", cookie.MaxAge)
	}
}

func TestAuthHandler_Me_NoCookie_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_ReturnsCurrentUser(t *testing.T) {
	service := &mockAuthService{
		getCurrentUserFunc: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID != "sess-abc" {
				t.Errorf("session ID = %q, want sess-abc", sessionID)
			}
			return testUser(), nil
		},
	}
	h := NewAuthHandler(service, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-abc"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got currentUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "user-1" || got.Email != "taro@example.com" {
		t.Errorf("unexpected user: %+v", got)
	}
}
