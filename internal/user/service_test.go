package user

import (
	"context"
	"strings"
	"testing"

	"github.com/straycat158/craftboard/internal/model"
)

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
	deleteByUserIDFunc func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error { return nil }

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFunc(ctx, userID)
}

func TestGetProfile_ExcludesInternalFields(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:           id,
				Email:        "taro@example.com",
				Username:     "taro",
				PasswordHash: "secret-hash",
				Bio:          "建築勢です",
			}, nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	profile, err := service.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.Username != "taro" {
		t.Errorf("username = %q, want %q", profile.Username, "taro")
	}
	if profile.Bio != "建築勢です" {
		t.Errorf("bio = %q, want %q", profile.Bio, "建築勢です")
	}
}

func TestGetProfile_MissingUser_ReturnsNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	_, err := service.GetProfile(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestUpdateProfile_Success(t *testing.T) {
	var updated *model.User
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "taro"}, nil
		},
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return nil, nil
		},
		updateProfileFunc: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	profile, err := service.UpdateProfile(context.Background(), "user-1", UpdateProfileInput{
		Username: "jiro",
		Bio:      "レッドストーン勢",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated == nil {
		t.Fatal("profile should have been persisted")
	}
	if profile.Username != "jiro" {
		t.Errorf("username = %q, want %q", profile.Username, "jiro")
	}
}

func TestUpdateProfile_UsernameTaken_ReturnsError(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "taro"}, nil
		},
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "other-user", Username: username}, nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	_, err := service.UpdateProfile(context.Background(), "user-1", UpdateProfileInput{
		Username: "taken-name",
	})
	if err == nil {
		t.Fatal("expected error for taken username")
	}
}

func TestUpdateProfile_SameUsername_SkipsDuplicateCheck(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "taro"}, nil
		},
		findByUsernameFunc: func(ctx context.Context, username string) (*model.User, error) {
			t.Fatal("FindByUsername should not be called when username unchanged")
			return nil, nil
		},
		updateProfileFunc: func(ctx context.Context, user *model.User) error { return nil },
	}

	service := NewService(userRepo, &mockSessionRepo{})

	_, err := service.UpdateProfile(context.Background(), "user-1", UpdateProfileInput{
		Username: "taro",
		Bio:      "変更なし",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
}

func TestUpdateProfile_OverlongBio_Truncated(t *testing.T) {
	var updated *model.User
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "taro"}, nil
		},
		updateProfileFunc: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	_, err := service.UpdateProfile(context.Background(), "user-1", UpdateProfileInput{
		Username: "taro",
		Bio:      strings.Repeat("あ", 500),
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if got := len([]rune(updated.Bio)); got != maxBioLength {
		t.Errorf("bio length = %d runes, want %d", got, maxBioLength)
	}
}

func TestWithdraw_DeletesSessionsThenUser(t *testing.T) {
	var order []string

	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFunc: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}

	service := NewService(userRepo, sessionRepo)

	if err := service.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	if len(order) != 2 || order[0] != "sessions" || order[1] != "user" {
		t.Errorf("deletion order = %v, want [sessions user]", order)
	}
}

func TestWithdraw_MissingUser_ReturnsNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	service := NewService(userRepo, &mockSessionRepo{})

	if err := service.Withdraw(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing user")
	}
}
