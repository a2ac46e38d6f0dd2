package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/Koranoa3/aternos-agent/internal/aternos"
	"github.com/Koranoa3/aternos-agent/internal/mcstatus"
	"github.com/Koranoa3/aternos-agent/internal/metrics"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/Koranoa3/aternos-agent/internal/utilities"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Bot は Discord Bot の管理構造体
type Bot struct {
	session  *discordgo.Session
	settings *utilities.Settings
	store    *store.Store
	client   aternos.Client
	checker  *mcstatus.Checker
	metrics  *metrics.Collector
	guildID  string
	appID    string

	// コマンド登録情報
	commands           []*discordgo.ApplicationCommand
	registeredCommands []*discordgo.ApplicationCommand
	mu                 sync.RWMutex
}

// NewBot は新しい Discord Bot インスタンスを作成
func NewBot(token, guildID, appID string, settings *utilities.Settings, sessions *store.Store, client aternos.Client, checker *mcstatus.Checker, collector *metrics.Collector) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		settings: settings,
		store:    sessions,
		client:   client,
		checker:  checker,
		metrics:  collector,
		guildID:  guildID,
		appID:    appID,
	}

	// コマンド定義
	bot.defineCommands()

	// イベントハンドラー登録
	bot.registerHandlers()

	return bot, nil
}

// defineCommands はスラッシュコマンドを定義
func (b *Bot) defineCommands() {
	serverOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "server",
			Description: description,
			Required:    false,
		}
	}
	privateOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        "private",
		Description: "Show the reply only to you",
		Required:    false,
	}

	b.commands = []*discordgo.ApplicationCommand{
		{
			Name:        "login",
			Description: "Log in with your Aternos account to control your servers",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "username",
					Description: "Aternos account name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "password",
					Description: "Aternos account password",
					Required:    true,
				},
			},
		},
		{
			Name:        "list",
			Description: "Show the servers of everyone logged in on this guild",
		},
		{
			Name:        "setdefault",
			Description: "Set the default server for this guild",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "server",
					Description: "Server address used when a command omits one",
					Required:    true,
				},
			},
		},
		{
			Name:        "status",
			Description: "Query the status of a Minecraft server",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption("Server address, or omit for the guild default"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "port",
					Description: "Server port (default 25565)",
					Required:    false,
				},
				privateOption,
			},
		},
		{
			Name:        "turnon",
			Description: "Start a server through its owner's Aternos account",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption("Server address, or omit for the guild default"),
				privateOption,
			},
		},
		{
			Name:        "turnoff",
			Description: "Stop a server through its owner's Aternos account",
			Options: []*discordgo.ApplicationCommandOption{
				serverOption("Server address, or omit for the guild default"),
				privateOption,
			},
		},
		{
			Name:        "sync",
			Description: "Re-register the bot's commands (admin only)",
		},
		{
			Name:        "showdb",
			Description: "Dump the session document (admin only)",
		},
	}
}

// registerHandlers はイベントハンドラーを登録
func (b *Bot) registerHandlers() {
	// Ready イベント
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().
			Str("username", s.State.User.Username).
			Str("discriminator", s.State.User.Discriminator).
			Msg("Discord bot is ready")
		b.UpdatePresence()
	})

	// Interaction Create イベント
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			b.handleCommand(s, i)
		case discordgo.InteractionMessageComponent:
			b.handleComponent(s, i)
		}
	})
}

// Start は Discord Bot を起動
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	log.Info().Msg("Discord session opened")

	// コマンドを登録
	if err := b.RegisterCommands(); err != nil {
		b.session.Close()
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}

// Stop は Discord Bot を停止
func (b *Bot) Stop() error {
	log.Info().Msg("Stopping Discord bot")

	// コマンドを削除
	if err := b.UnregisterCommands(); err != nil {
		log.Error().Err(err).Msg("Failed to unregister commands")
	}

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}

	log.Info().Msg("Discord bot stopped")
	return nil
}

// RegisterCommands はスラッシュコマンドを Discord に登録
// guildID が空の場合はグローバル登録になる
func (b *Bot) RegisterCommands() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.Info().Int("count", len(b.commands)).Msg("Registering Discord commands")

	b.registeredCommands = make([]*discordgo.ApplicationCommand, 0, len(b.commands))

	for _, cmd := range b.commands {
		registered, err := b.session.ApplicationCommandCreate(b.appID, b.guildID, cmd)
		if err != nil {
			return fmt.Errorf("failed to register command '%s': %w", cmd.Name, err)
		}
		b.registeredCommands = append(b.registeredCommands, registered)
		log.Info().Str("name", cmd.Name).Str("id", registered.ID).Msg("Command registered")
	}

	return nil
}

// UnregisterCommands は登録したスラッシュコマンドを削除
func (b *Bot) UnregisterCommands() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.registeredCommands) == 0 {
		return nil
	}

	log.Info().Int("count", len(b.registeredCommands)).Msg("Unregistering Discord commands")

	for _, cmd := range b.registeredCommands {
		if err := b.session.ApplicationCommandDelete(b.appID, b.guildID, cmd.ID); err != nil {
			log.Error().Err(err).Str("name", cmd.Name).Msg("Failed to delete command")
		} else {
			log.Info().Str("name", cmd.Name).Msg("Command deleted")
		}
	}

	b.registeredCommands = nil
	return nil
}

// Session は Discord セッションを返す
func (b *Bot) Session() *discordgo.Session {
	return b.session
}
