package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/security"
)

type mockResourceRepo struct {
	mu sync.Mutex

	findByIDFunc      func(ctx context.Context, id string) (*model.Resource, error)
	createFunc        func(ctx context.Context, resource *model.Resource) error
	listFunc          func(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error)
	updateFaviconFunc func(ctx context.Context, resourceID string, faviconData []byte, faviconMime string) error
	deleteByIDFunc    func(ctx context.Context, id string) error
}

func (m *mockResourceRepo) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockResourceRepo) Create(ctx context.Context, resource *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createFunc(ctx, resource)
}

func (m *mockResourceRepo) List(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error) {
	return m.listFunc(ctx, category, limit)
}

func (m *mockResourceRepo) UpdateFavicon(ctx context.Context, resourceID string, faviconData []byte, faviconMime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateFaviconFunc != nil {
		return m.updateFaviconFunc(ctx, resourceID, faviconData, faviconMime)
	}
	return nil
}

func (m *mockResourceRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

// fakeFaviconFetcher は固定のfaviconを返すテスト用実装。
type fakeFaviconFetcher struct {
	data []byte
	mime string
}

func (f *fakeFaviconFetcher) FetchFaviconForSite(ctx context.Context, siteURL string) ([]byte, string, error) {
	return f.data, f.mime, nil
}

func TestCreate_ValidInput_Succeeds(t *testing.T) {
	var created *model.Resource
	repo := &mockResourceRepo{
		createFunc: func(ctx context.Context, resource *model.Resource) error {
			created = resource
			return nil
		},
	}

	service := NewService(repo, security.NewSSRFGuard(), nil)

	resource, err := service.Create(context.Background(), "user-1", CreateInput{
		Title:       "便利な建築Mod",
		Description: "建築効率が大幅に上がるModです",
		LinkURL:     "https://mods.example.com/builder",
		Category:    model.ResourceCategoryMod,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created == nil {
		t.Fatal("resource should have been persisted")
	}
	if resource.OwnerID != "user-1" {
		t.Errorf("owner ID = %q, want %q", resource.OwnerID, "user-1")
	}
	if resource.Category != model.ResourceCategoryMod {
		t.Errorf("category = %q, want %q", resource.Category, model.ResourceCategoryMod)
	}
}

func TestCreate_PrivateIPURL_Blocked(t *testing.T) {
	repo := &mockResourceRepo{
		createFunc: func(ctx context.Context, resource *model.Resource) error {
			t.Fatal("Create should not be called for blocked URL")
			return nil
		},
	}

	service := NewService(repo, security.NewSSRFGuard(), nil)

	blockedURLs := []string{
		"http://192.168.1.1/admin",
		"http://127.0.0.1:8080/",
		"http://localhost/secret",
		"http://169.254.169.254/latest/meta-data/",
		"ftp://example.com/file",
	}

	for _, u := range blockedURLs {
		t.Run(u, func(t *testing.T) {
			_, err := service.Create(context.Background(), "user-1", CreateInput{
				Title:    "危険なリンク",
				LinkURL:  u,
				Category: model.ResourceCategoryOther,
			})
			if err == nil {
				t.Fatalf("expected error for blocked URL %s", u)
			}
		})
	}
}

func TestCreate_InvalidCategory_ReturnsError(t *testing.T) {
	service := NewService(&mockResourceRepo{}, security.NewSSRFGuard(), nil)

	_, err := service.Create(context.Background(), "user-1", CreateInput{
		Title:    "タイトル",
		LinkURL:  "https://example.com",
		Category: "invalid-category",
	})
	if err == nil {
		t.Fatal("expected error for invalid category")
	}
}

func TestCreate_EmptyLinkURL_ReturnsError(t *testing.T) {
	service := NewService(&mockResourceRepo{}, security.NewSSRFGuard(), nil)

	_, err := service.Create(context.Background(), "user-1", CreateInput{
		Title:    "タイトル",
		LinkURL:  "",
		Category: model.ResourceCategoryMod,
	})
	if err == nil {
		t.Fatal("expected error for empty link URL")
	}
}

func TestCreate_StoresFaviconAsynchronously(t *testing.T) {
	faviconStored := make(chan struct{})

	repo := &mockResourceRepo{
		createFunc: func(ctx context.Context, resource *model.Resource) error { return nil },
		updateFaviconFunc: func(ctx context.Context, resourceID string, data []byte, mime string) error {
			if mime != "image/png" {
				t.Errorf("favicon mime = %q, want %q", mime, "image/png")
			}
			close(faviconStored)
			return nil
		},
	}

	fetcher := &fakeFaviconFetcher{data: []byte{0x89, 0x50}, mime: "image/png"}
	service := NewService(repo, security.NewSSRFGuard(), fetcher)

	_, err := service.Create(context.Background(), "user-1", CreateInput{
		Title:    "タイトル",
		LinkURL:  "https://example.com/mod",
		Category: model.ResourceCategoryMod,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	select {
	case <-faviconStored:
	case <-time.After(2 * time.Second):
		t.Fatal("favicon should have been stored in background")
	}
}

func TestList_InvalidCategory_ReturnsError(t *testing.T) {
	service := NewService(&mockResourceRepo{}, security.NewSSRFGuard(), nil)

	_, err := service.List(context.Background(), "bogus", 10)
	if err == nil {
		t.Fatal("expected error for invalid category filter")
	}
}

func TestList_EmptyCategory_ReturnsAll(t *testing.T) {
	var gotCategory model.ResourceCategory
	repo := &mockResourceRepo{
		listFunc: func(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error) {
			gotCategory = category
			return []model.Resource{{ID: "r-1"}}, nil
		},
	}

	service := NewService(repo, security.NewSSRFGuard(), nil)

	resources, err := service.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if gotCategory != "" {
		t.Errorf("category filter = %q, want empty", gotCategory)
	}
	if len(resources) != 1 {
		t.Errorf("resource count = %d, want 1", len(resources))
	}
}

func TestDelete_ByOwner_Succeeds(t *testing.T) {
	var deletedID string
	repo := &mockResourceRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Resource, error) {
			return &model.Resource{ID: id, OwnerID: "user-1"}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	service := NewService(repo, security.NewSSRFGuard(), nil)

	if err := service.Delete(context.Background(), "r-1", "user-1", false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deletedID != "r-1" {
		t.Errorf("deleted ID = %q, want %q", deletedID, "r-1")
	}
}

func TestDelete_ByOtherUser_ReturnsNotOwner(t *testing.T) {
	repo := &mockResourceRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Resource, error) {
			return &model.Resource{ID: id, OwnerID: "user-1"}, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			t.Fatal("DeleteByID should not be called")
			return nil
		},
	}

	service := NewService(repo, security.NewSSRFGuard(), nil)

	if err := service.Delete(context.Background(), "r-1", "user-2", false); err == nil {
		t.Fatal("expected error for non-owner delete")
	}
}

func TestGuessDefaultFaviconURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://example.com/mods/builder?tab=files", "https://example.com/favicon.ico"},
		{"http://example.com", "http://example.com/favicon.ico"},
		{"", ""},
	}

	for _, tt := range tests {
		got := guessDefaultFaviconURL(tt.input)
		if got != tt.want {
			t.Errorf("guessDefaultFaviconURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
