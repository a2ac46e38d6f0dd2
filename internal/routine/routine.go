package routine

import (
	"context"
	"errors"
	"time"

	"github.com/Koranoa3/aternos-agent/internal/aternos"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/rs/zerolog/log"
)

// PresenceUpdater はリフレッシュ後にプレゼンスを更新するためのフック
type PresenceUpdater interface {
	UpdatePresence()
}

// Run は定期リフレッシュループを実行
// 既知の全ユーザーについて保存済みセッションを復元し、
// サーバー一覧を取り直して store に反映する
func Run(ctx context.Context, sessions *store.Store, client aternos.Client, interval time.Duration, presence PresenceUpdater) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Refresh routine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Refresh routine shutting down")
			return

		case <-ticker.C:
			log.Debug().Msg("Routine: refreshing server lists")

			changed := false
			for userID, username := range sessions.Usernames() {
				if username == "" {
					continue
				}
				if refreshUser(ctx, sessions, client, userID, username) {
					changed = true
				}
			}

			if changed && presence != nil {
				presence.UpdatePresence()
			}
		}
	}
}

// refreshUser は1ユーザー分のサーバー一覧を取り直す
// トークンが無いユーザーはスキップ。失敗はログのみで致命にしない
func refreshUser(ctx context.Context, sessions *store.Store, client aternos.Client, userID, username string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	handle, err := client.RestoreSession(reqCtx, username)
	if err != nil {
		if errors.Is(err, aternos.ErrNoStoredSession) {
			log.Debug().Str("username", username).Msg("Routine: no stored session, skipping")
		} else {
			log.Error().Err(err).Str("username", username).Msg("Routine: failed to restore session")
		}
		return false
	}

	servers, err := handle.ListServers(reqCtx)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Routine: failed to list servers")
		return false
	}

	addresses := make([]string, 0, len(servers))
	for _, srv := range servers {
		addresses = append(addresses, srv.Address)
	}

	// username は既存値を保持、servers のみ置換
	if err := sessions.UpsertUser(userID, "", addresses); err != nil {
		log.Error().Err(err).Str("username", username).Msg("Routine: failed to update user record")
		return false
	}

	log.Debug().
		Str("username", username).
		Int("servers", len(addresses)).
		Msg("Routine: server list refreshed")
	return true
}
