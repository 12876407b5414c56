// Package model はドメインモデルを定義する。
package model

import "time"

// Resource はコミュニティのリソース一覧に掲載される外部リンクを表す。
// Mod、テクスチャ、配布ワールド等の紹介エントリ。
type Resource struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	LinkURL     string // SSRF検証済みの外部URL
	Category    ResourceCategory
	FaviconData []byte
	FaviconMime string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResourceCategory はリソースの分類を表す。
type ResourceCategory string

const (
	// ResourceCategoryMod はMod系リソース。
	ResourceCategoryMod ResourceCategory = "mod"
	// ResourceCategoryTexture はテクスチャ系リソース。
	ResourceCategoryTexture ResourceCategory = "texture"
	// ResourceCategoryWorld は配布ワールド系リソース。
	ResourceCategoryWorld ResourceCategory = "world"
	// ResourceCategoryTool はツール系リソース。
	ResourceCategoryTool ResourceCategory = "tool"
	// ResourceCategoryOther はその他のリソース。
	ResourceCategoryOther ResourceCategory = "other"
)

// ValidCategory はカテゴリが定義済みのいずれかであるかを返す。
func ValidCategory(c ResourceCategory) bool {
	switch c {
	case ResourceCategoryMod, ResourceCategoryTexture, ResourceCategoryWorld,
		ResourceCategoryTool, ResourceCategoryOther:
		return true
	}
	return false
}
