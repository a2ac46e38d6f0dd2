package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// UpdatePresence はBotのステータスメッセージを更新
func (b *Bot) UpdatePresence() {
	if b.session == nil {
		return
	}

	snap := b.store.Snapshot()

	accounts := len(snap.Users)
	servers := 0
	for _, user := range snap.Users {
		servers += len(user.Servers)
	}

	var status discordgo.Status
	var activityType discordgo.ActivityType
	var message string

	if servers > 0 {
		status = discordgo.StatusOnline
		activityType = discordgo.ActivityTypeWatching
		message = fmt.Sprintf("%d servers | %d accounts", servers, accounts)
	} else {
		// 待機中
		status = discordgo.StatusIdle
		activityType = discordgo.ActivityTypeListening
		message = "/login to get started"
	}

	err := b.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(status),
		Activities: []*discordgo.Activity{
			{
				Name: message,
				Type: activityType,
			},
		},
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to update presence")
	}
}
