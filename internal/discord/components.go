package discord

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Koranoa3/aternos-agent/internal/mcstatus"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/bwmarrin/discordgo"
)

// parseEmoji はカスタム絵文字文字列をパースする
// 形式: <:name:id> または <a:name:id>
func parseEmoji(emojiStr string) *discordgo.ComponentEmoji {
	pattern := regexp.MustCompile(`<(a)?:([^:]+):(\d+)>`)
	matches := pattern.FindStringSubmatch(emojiStr)

	if len(matches) == 4 {
		// カスタム絵文字
		return &discordgo.ComponentEmoji{
			Name:     matches[2],
			ID:       matches[3],
			Animated: matches[1] == "a",
		}
	}

	// Unicode 絵文字またはパース失敗時
	return &discordgo.ComponentEmoji{
		Name: emojiStr,
	}
}

// buildServerListEmbed はギルドのログイン済みアカウントと
// サーバー一覧の Embed を構築
func (b *Bot) buildServerListEmbed(entries []store.UserServers) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(entries))

	for _, entry := range entries {
		name := entry.Username
		if name == "" {
			name = "(unknown account)"
		}

		value := "No servers on this account."
		if len(entry.Servers) > 0 {
			value = ""
			for _, addr := range entry.Servers {
				value += fmt.Sprintf("`%s`\n", addr)
			}
		}
		value += fmt.Sprintf("Logged in by <@%s>", entry.UserID)

		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  value,
			Inline: true,
		})
	}

	if len(fields) == 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "No Accounts",
			Value:  "Nobody on this guild has logged in yet. Use `/login` to claim your servers.",
			Inline: false,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "🖥️ Aternos Servers",
		Description: "Servers claimed by logged-in accounts on this guild",
		Color:       0x00ff00, // Green
		Fields:      fields,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Aternos Agent",
		},
	}
}

// buildActionButtons はサーバーごとの起動・停止ボタンを構築
func (b *Bot) buildActionButtons(entries []store.UserServers) []discordgo.MessageComponent {
	if !b.settings.AllowedActions.PowerOn && !b.settings.AllowedActions.PowerOff {
		return nil
	}

	// Start ボタン用の絵文字
	startEmoji := "▶️"
	if icon, ok := b.settings.Icons["poweron_mono"]; ok {
		startEmoji = icon
	}
	// Stop ボタン用の絵文字
	stopEmoji := "⏹️"
	if icon, ok := b.settings.Icons["poweroff_mono"]; ok {
		stopEmoji = icon
	}

	rows := make([]discordgo.MessageComponent, 0)
	seen := make(map[string]struct{})

	for _, entry := range entries {
		for _, addr := range entry.Servers {
			// 複数アカウントが同じアドレスを持つ場合は1行だけ
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}

			// ActionsRow は最大5行まで
			if len(rows) >= 5 {
				return rows
			}

			buttons := []discordgo.MessageComponent{
				discordgo.Button{
					Label:    addr,
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf("label:%s", addr),
					Disabled: true,
				},
			}

			if b.settings.AllowedActions.PowerOn {
				buttons = append(buttons, discordgo.Button{
					Label:    "Start",
					Style:    discordgo.SuccessButton,
					CustomID: fmt.Sprintf("start:%s", addr),
					Emoji:    parseEmoji(startEmoji),
				})
			}
			if b.settings.AllowedActions.PowerOff {
				buttons = append(buttons, discordgo.Button{
					Label:    "Stop",
					Style:    discordgo.DangerButton,
					CustomID: fmt.Sprintf("stop:%s", addr),
					Emoji:    parseEmoji(stopEmoji),
				})
			}

			rows = append(rows, discordgo.ActionsRow{
				Components: buttons,
			})
		}
	}

	return rows
}

// buildStatusEmbed はステータス照会結果の Embed を構築
func (b *Bot) buildStatusEmbed(status *mcstatus.Status) *discordgo.MessageEmbed {
	statusIcon := "🔴"
	statusText := "Offline"
	color := 0xff0000 // Red
	if status.Online {
		statusIcon = "🟢"
		statusText = "Online"
		color = 0x00ff00 // Green
		if icon, ok := b.settings.Icons["poweron"]; ok {
			statusIcon = icon
		}
	} else if icon, ok := b.settings.Icons["poweroff"]; ok {
		statusIcon = icon
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Status",
			Value:  fmt.Sprintf("%s **%s**", statusIcon, statusText),
			Inline: true,
		},
	}

	if status.Online {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Players",
			Value:  fmt.Sprintf("👥 %d / %d", status.PlayersOnline, status.PlayersMax),
			Inline: true,
		})
		if status.Version != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   "Version",
				Value:  status.Version,
				Inline: true,
			})
		}
		if status.MOTD != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   "MOTD",
				Value:  status.MOTD,
				Inline: false,
			})
		}
	}

	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("🖥️ %s", status.Address),
		Color:     color,
		Fields:    fields,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Aternos Agent",
		},
	}
}
