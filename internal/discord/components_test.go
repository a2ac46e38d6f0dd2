package discord

import (
	"testing"

	"github.com/Koranoa3/aternos-agent/internal/mcstatus"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/Koranoa3/aternos-agent/internal/utilities"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmoji(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *discordgo.ComponentEmoji
	}{
		{
			name:  "custom emoji",
			input: "<:poweron:123456>",
			want:  &discordgo.ComponentEmoji{Name: "poweron", ID: "123456"},
		},
		{
			name:  "animated custom emoji",
			input: "<a:loading:789>",
			want:  &discordgo.ComponentEmoji{Name: "loading", ID: "789", Animated: true},
		},
		{
			name:  "unicode emoji",
			input: "▶️",
			want:  &discordgo.ComponentEmoji{Name: "▶️"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEmoji(tt.input))
		})
	}
}

func TestBuildServerListEmbedEmpty(t *testing.T) {
	b := newTestBot(t, &utilities.Settings{})

	embed := b.buildServerListEmbed(nil)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "No Accounts", embed.Fields[0].Name)
}

func TestBuildServerListEmbed(t *testing.T) {
	b := newTestBot(t, &utilities.Settings{})

	embed := b.buildServerListEmbed([]store.UserServers{
		{UserID: "u1", Username: "alice", Servers: []string{"a.example", "b.example"}},
		{UserID: "u2", Username: "", Servers: nil},
	})

	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "alice", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, "`a.example`")
	assert.Contains(t, embed.Fields[0].Value, "`b.example`")
	assert.Contains(t, embed.Fields[0].Value, "<@u1>")
	assert.Equal(t, "(unknown account)", embed.Fields[1].Name)
}

func TestBuildActionButtons(t *testing.T) {
	entries := []store.UserServers{
		{UserID: "u1", Username: "alice", Servers: []string{"a.example"}},
		// 同じアドレスを持つ2人目はボタン行を増やさない
		{UserID: "u2", Username: "bob", Servers: []string{"a.example"}},
	}

	b := newTestBot(t, &utilities.Settings{
		AllowedActions: utilities.AllowedActions{PowerOn: true, PowerOff: true},
	})
	rows := b.buildActionButtons(entries)
	require.Len(t, rows, 1)

	row, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	// ラベル + Start + Stop
	require.Len(t, row.Components, 3)

	start, ok := row.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "start:a.example", start.CustomID)

	stop, ok := row.Components[2].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "stop:a.example", stop.CustomID)
}

func TestBuildActionButtonsDisabledActions(t *testing.T) {
	entries := []store.UserServers{
		{UserID: "u1", Username: "alice", Servers: []string{"a.example"}},
	}

	b := newTestBot(t, &utilities.Settings{})
	assert.Nil(t, b.buildActionButtons(entries))

	b = newTestBot(t, &utilities.Settings{
		AllowedActions: utilities.AllowedActions{PowerOff: true},
	})
	rows := b.buildActionButtons(entries)
	require.Len(t, rows, 1)
	row := rows[0].(discordgo.ActionsRow)
	// ラベル + Stop のみ
	require.Len(t, row.Components, 2)
}

func TestBuildStatusEmbed(t *testing.T) {
	b := newTestBot(t, &utilities.Settings{})

	embed := b.buildStatusEmbed(&mcstatus.Status{
		Address:       "mc.example.com",
		Online:        true,
		Version:       "1.21",
		MOTD:          "Welcome",
		PlayersOnline: 2,
		PlayersMax:    20,
	})

	assert.Contains(t, embed.Title, "mc.example.com")
	require.NotEmpty(t, embed.Fields)
	assert.Contains(t, embed.Fields[0].Value, "Online")

	offline := b.buildStatusEmbed(&mcstatus.Status{Address: "mc.example.com"})
	assert.Contains(t, offline.Fields[0].Value, "Offline")
	// オフライン時はプレイヤー数等を出さない
	assert.Len(t, offline.Fields, 1)
}
