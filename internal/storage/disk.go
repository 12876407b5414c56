// Package storage はアップロードファイルの保存機能を提供する。
//
// DiskStore はローカルディスク上のバケットディレクトリにファイルを保存し、
// /files/{bucket}/{path} 形式の公開URLを提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore はファイル保存のインターフェース。
type ObjectStore interface {
	// EnsureBucket はバケットを作成する。既に存在する場合は何もしない（冪等）。
	EnsureBucket(ctx context.Context, bucket string) error

	// Upload はファイルを保存し、公開URLを返す。
	// 同名のオブジェクトが既に存在する場合は上書きする。
	Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error)

	// Remove はオブジェクトを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, bucket, objectPath string) error

	// GetPublicURL はオブジェクトの公開URLを返す。
	GetPublicURL(bucket, objectPath string) string
}

// DiskStore はローカルディスクによるObjectStoreの実装。
type DiskStore struct {
	rootDir string
	baseURL string
}

var _ ObjectStore = (*DiskStore)(nil)

// NewDiskStore はDiskStoreを生成する。
// rootDirが存在しない場合は作成する。
func NewDiskStore(rootDir, baseURL string) (*DiskStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &DiskStore{
		rootDir: rootDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// EnsureBucket はバケットディレクトリを作成する。既に存在する場合は何もしない。
func (s *DiskStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := validateSegment(bucket); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(s.rootDir, bucket), 0o755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// Upload はファイルを保存し、公開URLを返す。
// 一時ファイルに書き込んでからrenameすることで、読み取り側に書きかけの
// ファイルが見えないようにする。
func (s *DiskStore) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error) {
	if err := validateSegment(bucket); err != nil {
		return "", err
	}
	if err := validateObjectPath(objectPath); err != nil {
		return "", err
	}

	dst := filepath.Join(s.rootDir, bucket, filepath.FromSlash(objectPath))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	return s.GetPublicURL(bucket, objectPath), nil
}

// Remove はオブジェクトを削除する。存在しない場合もエラーにしない。
func (s *DiskStore) Remove(ctx context.Context, bucket, objectPath string) error {
	if err := validateSegment(bucket); err != nil {
		return err
	}
	if err := validateObjectPath(objectPath); err != nil {
		return err
	}

	target := filepath.Join(s.rootDir, bucket, filepath.FromSlash(objectPath))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// GetPublicURL はオブジェクトの公開URLを返す。
func (s *DiskStore) GetPublicURL(bucket, objectPath string) string {
	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(objectPath, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return fmt.Sprintf("%s/files/%s/%s", s.baseURL, url.PathEscape(bucket), strings.Join(escaped, "/"))
}

// RootDir はファイル配信ハンドラー用にストレージのルートディレクトリを返す。
func (s *DiskStore) RootDir() string {
	return s.rootDir
}

// validateSegment はバケット名が安全なパスセグメントであることを検証する。
func validateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("empty path segment")
	}
	if strings.ContainsAny(segment, `/\`) || segment == "." || segment == ".." {
		return fmt.Errorf("invalid path segment: %s", segment)
	}
	return nil
}

// validateObjectPath はオブジェクトパスがディレクトリトラバーサルを
// 含まないことを検証する。
func validateObjectPath(objectPath string) error {
	if objectPath == "" {
		return fmt.Errorf("empty object path")
	}
	if strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, `\`) {
		return fmt.Errorf("invalid object path: %s", objectPath)
	}
	for _, seg := range strings.Split(objectPath, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid object path: %s", objectPath)
		}
	}
	return nil
}
