package aternos

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore はユーザー名ごとのセッショントークンをファイルで保持する
// 1ユーザー名につき1ファイル、中身はトークン文字列のみ
type TokenStore struct {
	dir string
}

// NewTokenStore はトークン保存ディレクトリを用意する
func NewTokenStore(dir string) (*TokenStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &TokenStore{dir: dir}, nil
}

// Save はトークンを書き込む
func (t *TokenStore) Save(username, token string) error {
	path, err := t.tokenPath(username)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Load はトークンを読み込む。存在しない場合は ErrNoStoredSession
func (t *TokenStore) Load(username string) (string, error) {
	path, err := t.tokenPath(username)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoStoredSession
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoStoredSession
	}
	return token, nil
}

// tokenPath はユーザー名からファイルパスを決定する
// パス区切り文字を含むユーザー名は拒否（ディレクトリ外への書き込み防止）
func (t *TokenStore) tokenPath(username string) (string, error) {
	if username == "" || username == "." || username == ".." ||
		strings.ContainsAny(username, "/\\") || username != filepath.Base(username) {
		return "", fmt.Errorf("invalid username %q", username)
	}
	return filepath.Join(t.dir, username+".session"), nil
}
