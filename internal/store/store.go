package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// GuildRecord はギルドごとのログイン状況とデフォルトサーバー
type GuildRecord struct {
	LoggedUsers   []string `json:"logged_users"`
	DefaultServer string   `json:"default_server,omitempty"`
}

// UserRecord は Aternos アカウントとの紐付け
// Username は1ユーザーにつき1アカウント（再ログインで上書き）
type UserRecord struct {
	Username string   `json:"username"`
	Servers  []string `json:"servers"`
}

// Document は永続化される集約全体
// guilds と users の2トップレベルキーを持つ単一 JSON ドキュメント
type Document struct {
	Guilds map[string]*GuildRecord `json:"guilds"`
	Users  map[string]*UserRecord  `json:"users"`
}

// Store はセッションドキュメントを保持し、全ての読み書きを
// 単一の mutex で直列化する。各変更操作は戻る前にドキュメント
// 全体をディスクへ書き戻す
type Store struct {
	mu     sync.Mutex
	path   string
	doc    Document
	policy OwnerPolicy
}

// CorruptStateError は永続化ドキュメントがパースできない場合のエラー
// 起動時に発生した場合は復旧不能として扱う
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("session store %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Load はセッションドキュメントを読み込む
// ファイルが存在しない場合は空の集約を返す
func Load(path string) (*Store, error) {
	s := &Store{
		path: path,
		doc: Document{
			Guilds: make(map[string]*GuildRecord),
			Users:  make(map[string]*UserRecord),
		},
		policy: FirstMatchPolicy,
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	defer file.Close()

	// flock でファイルロック（読み取り共有ロック）
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_SH); err != nil {
		return nil, fmt.Errorf("failed to lock session store: %w", err)
	}
	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	if err := json.NewDecoder(file).Decode(&s.doc); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}

	if s.doc.Guilds == nil {
		s.doc.Guilds = make(map[string]*GuildRecord)
	}
	if s.doc.Users == nil {
		s.doc.Users = make(map[string]*UserRecord)
	}

	return s, nil
}

// SetOwnerPolicy は所有者解決ポリシーを差し替える
func (s *Store) SetOwnerPolicy(policy OwnerPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
}

// UpsertUser はユーザーレコードを作成または更新する
// username が空、servers が nil の場合は既存値を保持し、
// 指定されたフィールドは全置換する（マージしない）
func (s *Store) UpsertUser(userID, username string, servers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.doc.Users[userID]
	if !ok {
		rec = &UserRecord{Servers: []string{}}
		s.doc.Users[userID] = rec
	}

	if username != "" {
		rec.Username = username
	}
	if servers != nil {
		rec.Servers = append([]string{}, servers...)
	}

	return s.save()
}

// RegisterLogin はギルドのログイン済みユーザーに userID を追記する
// 追記のみで重複排除はしない（再ログインは再度追記される）
func (s *Store) RegisterLogin(guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureGuild(guildID)
	rec.LoggedUsers = append(rec.LoggedUsers, userID)

	return s.save()
}

// SetDefault はギルドのデフォルトサーバーを設定する
func (s *Store) SetDefault(guildID, server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureGuild(guildID)
	rec.DefaultServer = server

	return s.save()
}

// DistinctLoggedUsers は初回ログイン順の重複排除済みユーザー一覧を返す
func (s *Store) DistinctLoggedUsers(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.doc.Guilds[guildID]
	if !ok {
		return nil
	}
	return distinct(rec.LoggedUsers)
}

// UserServers はギルド内の1ユーザー分のサーバー一覧表示用データ
type UserServers struct {
	UserID   string
	Username string
	Servers  []string
}

// GuildServers はギルドのログイン済みユーザー（重複排除済み）の
// サーバー一覧を返す
func (s *Store) GuildServers(guildID string) []UserServers {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.doc.Guilds[guildID]
	if !ok {
		return nil
	}

	result := make([]UserServers, 0, len(rec.LoggedUsers))
	for _, userID := range distinct(rec.LoggedUsers) {
		entry := UserServers{UserID: userID}
		if user, ok := s.doc.Users[userID]; ok {
			entry.Username = user.Username
			entry.Servers = append([]string{}, user.Servers...)
		}
		result = append(result, entry)
	}
	return result
}

// Username は userID に紐付く Aternos アカウント名を返す
func (s *Store) Username(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.doc.Users[userID]
	if !ok {
		return "", false
	}
	return user.Username, true
}

// Usernames は既知の全ユーザーの userID → username を返す
// 定期リフレッシュで使用する
func (s *Store) Usernames() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]string, len(s.doc.Users))
	for id, user := range s.doc.Users {
		result[id] = user.Username
	}
	return result
}

// Snapshot は集約のディープコピーを返す
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Document{
		Guilds: make(map[string]*GuildRecord, len(s.doc.Guilds)),
		Users:  make(map[string]*UserRecord, len(s.doc.Users)),
	}
	for id, g := range s.doc.Guilds {
		snap.Guilds[id] = &GuildRecord{
			LoggedUsers:   append([]string{}, g.LoggedUsers...),
			DefaultServer: g.DefaultServer,
		}
	}
	for id, u := range s.doc.Users {
		snap.Users[id] = &UserRecord{
			Username: u.Username,
			Servers:  append([]string{}, u.Servers...),
		}
	}
	return snap
}

// Dump は永続化ドキュメントを整形 JSON で返す（showdb 用）
func (s *Store) Dump() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

// ensureGuild はギルドレコードを取得、無ければ作成する
// 呼び出し側で mutex を保持していること
func (s *Store) ensureGuild(guildID string) *GuildRecord {
	rec, ok := s.doc.Guilds[guildID]
	if !ok {
		rec = &GuildRecord{LoggedUsers: []string{}}
		s.doc.Guilds[guildID] = rec
	}
	return rec
}

// save はドキュメント全体を atomic に書き戻す
// 一時ファイル → fsync → rename。呼び出し側で mutex を保持していること
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "sessions-*.tmp")
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
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// distinct は順序を保ったまま重複を取り除く
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
