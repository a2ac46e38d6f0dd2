package store

import (
	"errors"
	"fmt"
)

// DefaultSentinel はコマンドでサーバー指定を省略した際に使う予約語
const DefaultSentinel = "default"

// ErrNoDefaultConfigured はギルドにデフォルトサーバーが未設定
var ErrNoDefaultConfigured = errors.New("no default server configured for this guild")

// ErrServerNotClaimed は対象サーバーを持つログイン済みユーザーが居ない
var ErrServerNotClaimed = errors.New("server is not claimed by any logged-in account")

// ErrAmbiguousOwner は複数ユーザーが同一アドレスを所有している
// （UniqueOwnerPolicy でのみ発生）
var ErrAmbiguousOwner = errors.New("multiple logged-in accounts claim this server")

// OwnerPolicy は候補ユーザー（ログイン順、重複排除済み）から
// 所有者を1人選ぶポリシー
type OwnerPolicy func(candidates []string) (string, error)

// FirstMatchPolicy は最初にログインしたユーザーを所有者とする
// 同一アドレスを複数アカウントが持つ場合の既知の制限:
// 先勝ちのため後続アカウントでの操作はできない
func FirstMatchPolicy(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrServerNotClaimed
	}
	return candidates[0], nil
}

// UniqueOwnerPolicy は所有者が一意に定まる場合のみ解決を許す
func UniqueOwnerPolicy(candidates []string) (string, error) {
	switch len(candidates) {
	case 0:
		return "", ErrServerNotClaimed
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w: %d accounts", ErrAmbiguousOwner, len(candidates))
	}
}

// DefaultServer はギルドのデフォルトサーバーを返す
// 未設定または未知のギルドは ErrNoDefaultConfigured
func (s *Store) DefaultServer(guildID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.doc.Guilds[guildID]
	if !ok || guild.DefaultServer == "" {
		return "", ErrNoDefaultConfigured
	}
	return guild.DefaultServer, nil
}

// Resolve は (guild, 要求サーバーまたは "default") から実際の
// サーバーアドレスと、そのアドレスを所有するユーザーを決定する
func (s *Store) Resolve(guildID, requested string) (server, ownerUserID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.doc.Guilds[guildID]

	server = requested
	if requested == DefaultSentinel {
		if !ok || guild.DefaultServer == "" {
			return "", "", ErrNoDefaultConfigured
		}
		server = guild.DefaultServer
	}

	if !ok {
		return "", "", ErrServerNotClaimed
	}

	// ログイン順に走査し、対象アドレスを持つユーザーを候補とする
	candidates := make([]string, 0, 1)
	for _, userID := range distinct(guild.LoggedUsers) {
		user, ok := s.doc.Users[userID]
		if !ok {
			continue
		}
		for _, addr := range user.Servers {
			if addr == server {
				candidates = append(candidates, userID)
				break
			}
		}
	}

	ownerUserID, err = s.policy(candidates)
	if err != nil {
		return "", "", err
	}
	return server, ownerUserID, nil
}
