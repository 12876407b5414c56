package client

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore はJSONファイルによるLocalStoreの実装。
// 既読マーカーなどプロセスをまたいで生存すべき小さな値を保持する。
//
// ベストエフォートであり、ファイルの読み書きに失敗しても
// 決してパニックしない。書き込み不能な環境では値はプロセス内に
// のみ保持され、再起動で失われる。
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

var _ LocalStore = (*FileStore)(nil)

// NewFileStore はpathのJSONファイルを背後に持つFileStoreを生成する。
// pathが空の場合はユーザー設定ディレクトリ配下のデフォルトパスを使う。
// 既存ファイルが読めない・壊れている場合は空の状態から始める。
func NewFileStore(path string) *FileStore {
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "craftboard", "state.json")
		}
	}

	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		slog.Warn("discarding corrupt local state file",
			slog.String("path", path),
		)
		s.values = make(map[string]string)
	}
	return s
}

// GetItem は保存済みの値を返す。
func (s *FileStore) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetItem は値を保存し、ファイルへベストエフォートで書き出す。
func (s *FileStore) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	if s.path == "" {
		return
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		slog.Warn("failed to create local state directory",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		slog.Warn("failed to persist local state",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
}
