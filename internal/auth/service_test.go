package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/straycat158/craftboard/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFunc       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFunc    func(ctx context.Context, email string) (*model.User, error)
	findByUsernameFunc func(ctx context.Context, username string) (*model.User, error)
	createFunc         func(ctx context.Context, user *model.User) error
	updateProfileFunc  func(ctx context.Context, user *model.User) error
	deleteByIDFunc     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.findByEmailFunc(ctx, email)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return m.findByUsernameFunc(ctx, username)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return m.createFunc(ctx, user)
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	return m.updateProfileFunc(ctx, user)
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

type mockSessionRepo struct {
	createFunc         func(ctx context.Context, session *model.Session) error
	findByIDFunc       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFunc     func(ctx context.Context, id string) error
	deleteByUserIDFunc func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return m.createFunc(ctx, session)
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFunc(ctx, userID)
}

// fakeHasher はテスト用の軽量なPasswordHasher実装。
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func noUserRepo() *mockUserRepo {
	return &mockUserRepo{
		findByIDFunc:       func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
		findByEmailFunc:    func(ctx context.Context, email string) (*model.User, error) { return nil, nil },
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) { return nil, nil },
		createFunc:         func(ctx context.Context, user *model.User) error { return nil },
	}
}

func acceptingSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error { return nil },
	}
}

// --- Signup ---

func TestSignup_Success(t *testing.T) {
	var createdUser *model.User
	var createdSession *model.Session

	userRepo := noUserRepo()
	userRepo.createFunc = func(ctx context.Context, user *model.User) error {
		createdUser = user
		return nil
	}

	sessionRepo := acceptingSessionRepo()
	sessionRepo.createFunc = func(ctx context.Context, session *model.Session) error {
		createdSession = session
		return nil
	}

	service := NewService(userRepo, sessionRepo, fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	user, session, err := service.Signup(context.Background(), "Taro@Example.com", "taro", "password123")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	// メールアドレスは小文字に正規化される
	if user.Email != "taro@example.com" {
		t.Errorf("email = %q, want %q", user.Email, "taro@example.com")
	}
	if user.Username != "taro" {
		t.Errorf("username = %q, want %q", user.Username, "taro")
	}
	if user.PasswordHash != "hashed:password123" {
		t.Errorf("password hash = %q, want hashed value", user.PasswordHash)
	}
	if createdUser == nil {
		t.Fatal("user should have been persisted")
	}
	if createdSession == nil {
		t.Fatal("session should have been persisted")
	}
	if session.UserID != user.ID {
		t.Errorf("session user ID = %q, want %q", session.UserID, user.ID)
	}
	if session.ID == "" {
		t.Error("session ID should not be empty")
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("session should expire in the future")
	}
}

func TestSignup_EmailTaken(t *testing.T) {
	userRepo := noUserRepo()
	userRepo.findByEmailFunc = func(ctx context.Context, email string) (*model.User, error) {
		return &model.User{ID: "existing", Email: email}, nil
	}

	service := NewService(userRepo, acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	_, _, err := service.Signup(context.Background(), "taken@example.com", "newuser", "password123")
	if err == nil {
		t.Fatal("expected error for taken email")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "EMAIL_TAKEN" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "EMAIL_TAKEN")
	}
}

func TestSignup_UsernameTaken(t *testing.T) {
	userRepo := noUserRepo()
	userRepo.findByUsernameFunc = func(ctx context.Context, username string) (*model.User, error) {
		return &model.User{ID: "existing", Username: username}, nil
	}

	service := NewService(userRepo, acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	_, _, err := service.Signup(context.Background(), "new@example.com", "taken", "password123")
	if err == nil {
		t.Fatal("expected error for taken username")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "USERNAME_TAKEN" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "USERNAME_TAKEN")
	}
}

func TestSignup_InvalidInputs(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		username string
		password string
	}{
		{"empty email", "", "taro", "password123"},
		{"malformed email", "not-an-email", "taro", "password123"},
		{"username too short", "taro@example.com", "t", "password123"},
		{"password too short", "taro@example.com", "taro", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(noUserRepo(), acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

			_, _, err := service.Signup(context.Background(), tt.email, tt.username, tt.password)
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	userRepo := noUserRepo()
	userRepo.findByEmailFunc = func(ctx context.Context, email string) (*model.User, error) {
		return &model.User{
			ID:           "user-1",
			Email:        email,
			PasswordHash: "hashed:correct-password",
		}, nil
	}

	service := NewService(userRepo, acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	user, session, err := service.Login(context.Background(), "taro@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want %q", user.ID, "user-1")
	}
	if session.UserID != "user-1" {
		t.Errorf("session user ID = %q, want %q", session.UserID, "user-1")
	}
}

func TestLogin_UnknownEmail_ReturnsInvalidCredentials(t *testing.T) {
	service := NewService(noUserRepo(), acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	_, _, err := service.Login(context.Background(), "nobody@example.com", "password123")
	if err == nil {
		t.Fatal("expected error for unknown email")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_CREDENTIALS" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "INVALID_CREDENTIALS")
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	userRepo := noUserRepo()
	userRepo.findByEmailFunc = func(ctx context.Context, email string) (*model.User, error) {
		return &model.User{
			ID:           "user-1",
			Email:        email,
			PasswordHash: "hashed:correct-password",
		}, nil
	}

	service := NewService(userRepo, acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	_, _, err := service.Login(context.Background(), "taro@example.com", "wrong-password")
	if err == nil {
		t.Fatal("expected error for wrong password")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	// 不在ユーザーとパスワード不一致は同一のエラーコード
	if apiErr.Code != "INVALID_CREDENTIALS" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "INVALID_CREDENTIALS")
	}
}

// --- Logout ---

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := acceptingSessionRepo()
	sessionRepo.deleteByIDFunc = func(ctx context.Context, id string) error {
		deletedID = id
		return nil
	}

	service := NewService(noUserRepo(), sessionRepo, fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	if err := service.Logout(context.Background(), "sess-123"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if deletedID != "sess-123" {
		t.Errorf("deleted session ID = %q, want %q", deletedID, "sess-123")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	service := NewService(noUserRepo(), acceptingSessionRepo(), fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	if err := service.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

// --- GetCurrentUser ---

func TestGetCurrentUser_Success(t *testing.T) {
	userRepo := noUserRepo()
	userRepo.findByIDFunc = func(ctx context.Context, id string) (*model.User, error) {
		if id != "user-1" {
			return nil, fmt.Errorf("unexpected user ID: %s", id)
		}
		return &model.User{ID: "user-1", Username: "taro"}, nil
	}

	sessionRepo := acceptingSessionRepo()
	sessionRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Session, error) {
		return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	service := NewService(userRepo, sessionRepo, fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	user, err := service.GetCurrentUser(context.Background(), "sess-123")
	if err != nil {
		t.Fatalf("GetCurrentUser failed: %v", err)
	}
	if user.Username != "taro" {
		t.Errorf("username = %q, want %q", user.Username, "taro")
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsUnauthorized(t *testing.T) {
	sessionRepo := acceptingSessionRepo()
	sessionRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Session, error) {
		return nil, nil
	}

	service := NewService(noUserRepo(), sessionRepo, fakeHasher{}, ServiceConfig{SessionMaxAge: 3600})

	_, err := service.GetCurrentUser(context.Background(), "expired-session")
	if err == nil {
		t.Fatal("expected error for expired session")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "UNAUTHORIZED" {
		t.Errorf("error code = %q, want %q", apiErr.Code, "UNAUTHORIZED")
	}
}

// --- BcryptHasher ---

func TestBcryptHasher_HashAndCompare(t *testing.T) {
	hasher := NewBcryptHasher(4) // テスト用に最小コスト

	hash, err := hasher.Hash("secret-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "secret-password" {
		t.Error("hash should not equal the plaintext password")
	}

	if err := hasher.Compare(hash, "secret-password"); err != nil {
		t.Errorf("Compare with correct password failed: %v", err)
	}
	if err := hasher.Compare(hash, "wrong-password"); err == nil {
		t.Error("Compare with wrong password should fail")
	}
}
