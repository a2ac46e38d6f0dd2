// Package aternos はホスティングプロバイダーへのアクセスを提供する。
// 認証プロトコル自体は再実装せず、設定されたブリッジ API に
// 資格情報またはトークンを渡してセッションを得る
package aternos

import (
	"context"
	"errors"
	"fmt"
)

// Server はアカウントが所有するサーバー1台分の情報
type Server struct {
	Address string `json:"address"`
	Domain  string `json:"domain"`
	Version string `json:"version"`
}

// ErrInvalidCredentials はユーザー名またはパスワードが不正
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrNoStoredSession は復元可能なトークンが保存されていない
var ErrNoStoredSession = errors.New("no stored session for this username")

// ActionFailedError は start/stop のプロバイダー側エラー
// 理由はそのまま利用者に提示され、再試行はしない
type ActionFailedError struct {
	Action string
	Server string
	Reason string
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s failed for %s: %s", e.Action, e.Server, e.Reason)
}

// SessionHandle は認証済みアカウントへのハンドル
type SessionHandle interface {
	// ListServers はアカウントが所有するサーバー一覧を取得
	ListServers(ctx context.Context) ([]Server, error)
	// Start はサーバーを起動する
	Start(ctx context.Context, address string) error
	// Stop はサーバーを停止する
	Stop(ctx context.Context, address string) error
	// Persist はトークンを保存し、パスワード無しで RestoreSession
	// できるようにする
	Persist(username string) error
}

// Client はセッションハンドルの取得手段
type Client interface {
	// Authenticate はユーザー名とパスワードでセッションを確立
	Authenticate(ctx context.Context, username, password string) (SessionHandle, error)
	// RestoreSession は保存済みトークンからセッションを復元
	RestoreSession(ctx context.Context, username string) (SessionHandle, error)
}
