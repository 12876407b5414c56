package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/storage"
)

const (
	// maxUploadBytes はアップロード画像の最大サイズ（5MB）。
	maxUploadBytes = 5 * 1024 * 1024

	// uploadBucket は投稿画像を保存するバケット名。
	uploadBucket = "uploads"
)

// allowedImageTypes はアップロードを許可するMIMEタイプと拡張子の対応。
// MIMEタイプはファイル先頭バイトのスニッフィングで判定する。
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadHandler は画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	store storage.ObjectStore
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(store storage.ObjectStore) *UploadHandler {
	return &UploadHandler{store: store}
}

// uploadResponse はアップロード完了のレスポンス。
type uploadResponse struct {
	URL string `json:"url"`
}

// Upload はマルチパートフォームの画像ファイルを保存し、公開URLを返す。
// POST /api/uploads
// フォームフィールド名は "file"。PNG/JPEG/GIF/WebPのみ、5MBまで。
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	// ボディ全体のサイズ制限（マルチパートのオーバーヘッド分を上乗せ）
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+64*1024)

	file, _, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ファイルフィールドの読み取りに失敗しました。",
			Category: "validation",
			Action:   "multipart/form-dataのfileフィールドにファイルを指定してください。",
		})
		return
	}
	defer file.Close()

	// サイズ超過判定のため上限+1バイトまで読む
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		handleServiceError(w, fmt.Errorf("アップロードファイルの読み取りに失敗しました: %w", err))
		return
	}
	if len(data) > maxUploadBytes {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewUploadTooLargeError(maxUploadBytes))
		return
	}

	// Content-Typeヘッダーは信用せず、先頭バイトから判定する
	contentType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnsupportedMediaType, model.NewUnsupportedMediaError(contentType))
		return
	}

	// ユーザーIDと年月でオブジェクトパスを区切り、ファイル名は衝突しないUUIDにする
	objectPath := path.Join(userID, time.Now().UTC().Format("200601"), uuid.New().String()+ext)

	url, err := h.store.Upload(r.Context(), uploadBucket, objectPath, bytes.NewReader(data))
	if err != nil {
		handleServiceError(w, fmt.Errorf("ファイルの保存に失敗しました: %w", err))
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}
