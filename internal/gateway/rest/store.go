package rest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSessionStore はセッショントークンをファイルに保存するSessionStore。
// ファイルは所有者のみ読み書きできるパーミッションで作成する。
type FileSessionStore struct {
	Path string
}

// Load は保存済みのトークンを返す。ファイルが存在しない場合は空文字列を返す。
func (s FileSessionStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save はトークンを保存する。空文字列の場合はファイルを削除する。
func (s FileSessionStore) Save(token string) error {
	if token == "" {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

var _ SessionStore = FileSessionStore{}
