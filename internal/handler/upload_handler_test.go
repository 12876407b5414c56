package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
)

// fakeObjectStore はObjectStoreのテスト用実装。
type fakeObjectStore struct {
	uploadedPath string
	uploadedData []byte
	uploadErr    error
}

func (f *fakeObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	return nil
}

func (f *fakeObjectStore) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploadedPath = objectPath
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploadedData = data
	return "http://localhost:8080/files/" + bucket + "/" + objectPath, nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, bucket, objectPath string) error {
	return nil
}

func (f *fakeObjectStore) GetPublicURL(bucket, objectPath string) string {
	return "http://localhost:8080/files/" + bucket + "/" + objectPath
}

// pngHeader は最小のPNGシグネチャ。http.DetectContentTypeがimage/pngと判定する。
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newUploadRequest(t *testing.T, fieldName string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, "image.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler_Upload_PNG_Succeeds(t *testing.T) {
	store := &fakeObjectStore{}
	h := NewUploadHandler(store)

	req := newUploadRequest(t, "file", pngHeader)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.URL == "" {
		t.Error("URL should not be empty")
	}

	if !strings.HasPrefix(store.uploadedPath, "user-1/") {
		t.Errorf("object path = %q, should be prefixed with user ID", store.uploadedPath)
	}
	if !strings.HasSuffix(store.uploadedPath, ".png") {
		t.Errorf("object path = %q, should have .png extension", store.uploadedPath)
	}
	if !bytes.Equal(store.uploadedData, pngHeader) {
		t.Error("uploaded data should match input")
	}
}

func TestUploadHandler_Upload_RequiresAuth(t *testing.T) {
	h := NewUploadHandler(&fakeObjectStore{})

	req := newUploadRequest(t, "file", pngHeader)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestUploadHandler_Upload_TextFile_Returns415(t *testing.T) {
	h := NewUploadHandler(&fakeObjectStore{})

	req := newUploadRequest(t, "file", []byte("これは画像ではありません"))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Result().StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnsupportedMediaType)
	}

	var errResp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeUnsupportedMedia {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeUnsupportedMedia)
	}
}

func TestUploadHandler_Upload_TooLarge_Returns413(t *testing.T) {
	h := NewUploadHandler(&fakeObjectStore{})

	// PNGシグネチャ + 上限超えのパディング
	oversized := append([]byte{}, pngHeader...)
	oversized = append(oversized, bytes.Repeat([]byte{0}, maxUploadBytes)...)

	req := newUploadRequest(t, "file", oversized)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Result().StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusRequestEntityTooLarge)
	}
}

func TestUploadHandler_Upload_WrongFieldName_Returns400(t *testing.T) {
	h := NewUploadHandler(&fakeObjectStore{})

	req := newUploadRequest(t, "attachment", pngHeader)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
