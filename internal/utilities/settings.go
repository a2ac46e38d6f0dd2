package utilities

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
)

// Settings はアプリケーションの設定を保持する構造体
type Settings struct {
	LogLevel           string            `json:"log_level"`
	AdminUserID        string            `json:"admin_user_id"`
	StorePath          string            `json:"store_path"`
	SessionDir         string            `json:"session_dir"`
	AternosBaseURL     string            `json:"aternos_base_url"`
	StatusAPIURL       string            `json:"status_api_url"`
	RefreshInterval    int               `json:"refresh_interval"` // 秒、0 で無効
	MessageDeleteAfter int               `json:"message_deleteafter"`
	MetricsAddr        string            `json:"metrics_addr"` // 空で無効
	AllowedActions     AllowedActions    `json:"allowed_actions"`
	Icons              map[string]string `json:"icons"`
}

// AllowedActions は許可するアクション
type AllowedActions struct {
	PowerOn  bool `json:"power_on"`
	PowerOff bool `json:"power_off"`
}

// LoadSettings は設定ファイルを読み込む
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = os.Getenv("SETTINGS_PATH")
		if path == "" {
			path = "settings.json"
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer file.Close()

	// flock でファイルロック（読み取り共有ロック）
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_SH); err != nil {
		return nil, fmt.Errorf("failed to lock settings file: %w", err)
	}
	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	var settings Settings
	if err := json.NewDecoder(file).Decode(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}

	// バリデーション
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &settings, nil
}

// SaveSettings は設定を atomic に書き込む
func SaveSettings(path string, settings *Settings) error {
	if path == "" {
		path = os.Getenv("SETTINGS_PATH")
		if path == "" {
			path = "settings.json"
		}
	}

	// バリデーション
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// atomic write: 一時ファイル → rename
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "settings-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // 失敗時のクリーンアップ

	// flock で排他ロック
	if err := syscall.Flock(int(tmpFile.Fd()), syscall.LOCK_EX); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to lock temp file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		syscall.Flock(int(tmpFile.Fd()), syscall.LOCK_UN)
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// fsync で確実にディスクに書き込み
	if err := tmpFile.Sync(); err != nil {
		syscall.Flock(int(tmpFile.Fd()), syscall.LOCK_UN)
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	syscall.Flock(int(tmpFile.Fd()), syscall.LOCK_UN)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Validate は設定の妥当性をチェック
func (s *Settings) Validate() error {
	if s.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if s.SessionDir == "" {
		return fmt.Errorf("session_dir is required")
	}
	if s.AternosBaseURL == "" {
		return fmt.Errorf("aternos_base_url is required")
	}
	if _, err := url.Parse(s.AternosBaseURL); err != nil {
		return fmt.Errorf("aternos_base_url is not a valid URL: %w", err)
	}
	if s.StatusAPIURL == "" {
		return fmt.Errorf("status_api_url is required")
	}
	if _, err := url.Parse(s.StatusAPIURL); err != nil {
		return fmt.Errorf("status_api_url is not a valid URL: %w", err)
	}
	if s.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must be >= 0, got %d", s.RefreshInterval)
	}
	if s.MessageDeleteAfter < 0 {
		return fmt.Errorf("message_deleteafter must be >= 0, got %d", s.MessageDeleteAfter)
	}
	return nil
}
