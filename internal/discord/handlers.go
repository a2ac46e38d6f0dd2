package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Koranoa3/aternos-agent/internal/aternos"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// handleCommand はスラッシュコマンドを処理
func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	commandName := i.ApplicationCommandData().Name

	// ギルド外（DM）からの実行は対象外
	if i.Member == nil || i.GuildID == "" {
		b.respondError(s, i, "This command can only be used inside a guild.")
		return
	}

	log.Info().
		Str("command", commandName).
		Str("guild", i.GuildID).
		Str("user", i.Member.User.Username).
		Msg("Received command")

	started := time.Now()
	defer func() {
		b.metrics.RecordCommand(commandName, time.Since(started))
	}()

	switch commandName {
	case "login":
		b.handleLoginCommand(s, i)
	case "list":
		b.handleListCommand(s, i)
	case "setdefault":
		b.handleSetDefaultCommand(s, i)
	case "status":
		b.handleStatusCommand(s, i)
	case "turnon":
		b.handlePowerCommand(s, i, "start")
	case "turnoff":
		b.handlePowerCommand(s, i, "stop")
	case "sync":
		b.handleSyncCommand(s, i)
	case "showdb":
		b.handleShowDBCommand(s, i)
	default:
		b.respondError(s, i, "Unknown command")
	}
}

// handleComponent はボタンを処理
// CustomID の形式: "action:serverAddress" (例: "start:mc.example.com")
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || i.GuildID == "" {
		b.respondError(s, i, "Buttons can only be used inside a guild.")
		return
	}

	customID := i.MessageComponentData().CustomID

	log.Info().
		Str("custom_id", customID).
		Str("user", i.Member.User.Username).
		Msg("Received component interaction")

	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		b.respondError(s, i, "Invalid button")
		return
	}

	action := parts[0]
	address := parts[1]

	switch action {
	case "start", "stop":
		b.executePower(s, i, action, address, false)
	default:
		b.respondError(s, i, "Unknown action")
	}
}

// handleLoginCommand は /login コマンドを処理
// 認証 → トークン保存 → サーバー一覧取得 → store 登録の順
func (b *Bot) handleLoginCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	username := opts["username"].StringValue()
	password := opts["password"].StringValue()

	// 認証には時間がかかるため deferred（資格情報を含むので常に ephemeral）
	if !b.deferResponse(s, i, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := b.client.Authenticate(ctx, username, password)
	if err != nil {
		b.metrics.RecordLogin(false)
		if errors.Is(err, aternos.ErrInvalidCredentials) {
			b.followupError(s, i, "Login failed: check your username and password, then try again.")
		} else {
			log.Error().Err(err).Msg("Provider authentication failed")
			b.followupError(s, i, "Login failed: the provider could not be reached. Please try again later.")
		}
		return
	}

	if err := handle.Persist(username); err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to persist session token")
		b.followupError(s, i, "Login succeeded but the session could not be saved. Please try again.")
		return
	}

	servers, err := handle.ListServers(ctx)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to list servers after login")
		b.followupError(s, i, "Login succeeded but your server list could not be fetched. Please try again.")
		return
	}

	addresses := make([]string, 0, len(servers))
	for _, srv := range servers {
		addresses = append(addresses, srv.Address)
	}

	userID := i.Member.User.ID
	if err := b.store.UpsertUser(userID, username, addresses); err != nil {
		log.Error().Err(err).Msg("Failed to upsert user record")
		b.followupError(s, i, "Login succeeded but the session document could not be updated.")
		return
	}
	if err := b.store.RegisterLogin(i.GuildID, userID); err != nil {
		log.Error().Err(err).Msg("Failed to register login")
		b.followupError(s, i, "Login succeeded but the session document could not be updated.")
		return
	}

	b.metrics.RecordLogin(true)
	b.UpdatePresence()

	allowIcon := b.settings.Icons["allow"]
	content := fmt.Sprintf("%s Logged in as **%s**.", allowIcon, username)
	if len(addresses) > 0 {
		content += fmt.Sprintf(" Your servers: `%s`", strings.Join(addresses, "`, `"))
	} else {
		content += " No servers found on this account."
	}
	b.followup(s, i, content)
}

// handleListCommand は /list コマンドを処理
func (b *Bot) handleListCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	entries := b.store.GuildServers(i.GuildID)
	embed := b.buildServerListEmbed(entries)
	components := b.buildActionButtons(entries)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to respond to list command")
	}
}

// handleSetDefaultCommand は /setdefault コマンドを処理
func (b *Bot) handleSetDefaultCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	server := optionMap(i)["server"].StringValue()

	if err := b.store.SetDefault(i.GuildID, server); err != nil {
		log.Error().Err(err).Msg("Failed to set default server")
		b.respondError(s, i, "The default server could not be saved. Please try again.")
		return
	}

	allowIcon := b.settings.Icons["allow"]
	b.respondText(s, i, fmt.Sprintf("%s Default server for this guild is now `%s`.", allowIcon, server), false)
}

// handleStatusCommand は /status コマンドを処理
// サーバー省略時はギルドのデフォルトを使う。所有者の確認は不要
func (b *Bot) handleStatusCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	private := boolOption(opts, "private")

	address := store.DefaultSentinel
	if opt, ok := opts["server"]; ok {
		address = opt.StringValue()
	}
	if address == store.DefaultSentinel {
		resolved, err := b.store.DefaultServer(i.GuildID)
		if err != nil {
			b.respondError(s, i, userMessage(err))
			return
		}
		address = resolved
	}

	port := 0
	if opt, ok := opts["port"]; ok {
		port = int(opt.IntValue())
	}

	if !b.deferResponse(s, i, private) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	b.metrics.RecordStatusQuery()
	status, err := b.checker.Check(ctx, address, port)
	if err != nil {
		log.Error().Err(err).Str("address", address).Msg("Status query failed")
		b.followupError(s, i, fmt.Sprintf("Could not query the status of `%s`. Please try again later.", address))
		return
	}

	embed := b.buildStatusEmbed(status)
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send status followup")
	}
}

// handlePowerCommand は /turnon・/turnoff コマンドを処理
func (b *Bot) handlePowerCommand(s *discordgo.Session, i *discordgo.InteractionCreate, action string) {
	opts := optionMap(i)
	private := boolOption(opts, "private")

	requested := store.DefaultSentinel
	if opt, ok := opts["server"]; ok {
		requested = opt.StringValue()
	}

	b.executePower(s, i, action, requested, private)
}

// executePower は所有者を解決し、そのアカウントのセッションを
// 復元して起動・停止を実行する
func (b *Bot) executePower(s *discordgo.Session, i *discordgo.InteractionCreate, action, requested string, private bool) {
	if !b.isActionAllowed(action) {
		b.respondError(s, i, fmt.Sprintf("Sorry, the action `%s` is not allowed.", action))
		return
	}

	server, ownerID, err := b.store.Resolve(i.GuildID, requested)
	if err != nil {
		b.respondError(s, i, userMessage(err))
		return
	}

	username, ok := b.store.Username(ownerID)
	if !ok || username == "" {
		// logged_users に居るのに UserRecord が無い不整合
		b.respondError(s, i, "The owning account is in an inconsistent state. Please ask them to log in again.")
		return
	}

	if !b.deferResponse(s, i, private) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := b.client.RestoreSession(ctx, username)
	if err != nil {
		if errors.Is(err, aternos.ErrNoStoredSession) {
			b.followupError(s, i, fmt.Sprintf("The session for **%s** has expired. Please ask <@%s> to log in again.", username, ownerID))
		} else {
			log.Error().Err(err).Str("username", username).Msg("Failed to restore session")
			b.followupError(s, i, "The provider could not be reached. Please try again later.")
		}
		return
	}

	if action == "start" {
		err = handle.Start(ctx, server)
	} else {
		err = handle.Stop(ctx, server)
	}
	if err != nil {
		var failed *aternos.ActionFailedError
		if errors.As(err, &failed) {
			// プロバイダー側の理由はそのまま提示する（自動再試行はしない）
			b.metrics.RecordActionFailure(action)
			b.followupError(s, i, fmt.Sprintf("Could not %s `%s`: %s", action, server, failed.Reason))
		} else if errors.Is(err, aternos.ErrNoStoredSession) {
			b.followupError(s, i, fmt.Sprintf("The session for **%s** has expired. Please ask <@%s> to log in again.", username, ownerID))
		} else {
			log.Error().Err(err).Str("server", server).Msg("Power action failed")
			b.followupError(s, i, "The provider could not be reached. Please try again later.")
		}
		return
	}

	log.Info().
		Str("action", action).
		Str("server", server).
		Str("owner", ownerID).
		Msg("Power action sent")

	allowIcon := b.settings.Icons["allow"]
	verb := "Start"
	if action == "stop" {
		verb = "Stop"
	}
	b.followup(s, i, fmt.Sprintf("%s %s request sent to **%s** (account **%s**).", allowIcon, verb, server, username))
}

// handleSyncCommand は /sync コマンドを処理（管理者専用）
// スラッシュコマンドの登録を Discord とやり直す
func (b *Bot) handleSyncCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.isAdmin(i.Member) {
		b.respondError(s, i, "This command requires the bot administrator.")
		return
	}

	if !b.deferResponse(s, i, true) {
		return
	}

	if err := b.UnregisterCommands(); err != nil {
		log.Error().Err(err).Msg("Failed to unregister commands during sync")
	}
	if err := b.RegisterCommands(); err != nil {
		log.Error().Err(err).Msg("Failed to register commands during sync")
		b.followupError(s, i, "Command sync failed. Check the logs.")
		return
	}

	allowIcon := b.settings.Icons["allow"]
	b.followup(s, i, fmt.Sprintf("%s Commands re-registered.", allowIcon))
}

// handleShowDBCommand は /showdb コマンドを処理（管理者専用）
// デバッグ用の脱出ハッチであり安定した契約ではない
func (b *Bot) handleShowDBCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.isAdmin(i.Member) {
		b.respondError(s, i, "This command requires the bot administrator.")
		return
	}

	dump, err := b.store.Dump()
	if err != nil {
		log.Error().Err(err).Msg("Failed to dump session document")
		b.respondError(s, i, "The session document could not be serialized.")
		return
	}

	data := &discordgo.InteractionResponseData{
		Flags: discordgo.MessageFlagsEphemeral,
	}
	// コードブロックに収まらない場合は添付ファイルで送る
	if len(dump) <= 1900 {
		data.Content = fmt.Sprintf("```json\n%s\n```", dump)
	} else {
		data.Files = []*discordgo.File{
			{
				Name:        "sessions.json",
				ContentType: "application/json",
				Reader:      strings.NewReader(string(dump)),
			},
		}
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to respond to showdb command")
	}
}

// isActionAllowed はアクションが許可されているか確認
func (b *Bot) isActionAllowed(action string) bool {
	switch action {
	case "start":
		return b.settings.AllowedActions.PowerOn
	case "stop":
		return b.settings.AllowedActions.PowerOff
	default:
		return false
	}
}

// isAdmin は設定された管理者IDとの等値比較
func (b *Bot) isAdmin(member *discordgo.Member) bool {
	return b.settings.AdminUserID != "" && member.User.ID == b.settings.AdminUserID
}

// userMessage は store のエラーを利用者向けの案内文に変換する
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNoDefaultConfigured):
		return "This guild has no default server. Set one with `/setdefault` or name a server explicitly."
	case errors.Is(err, store.ErrAmbiguousOwner):
		return "More than one logged-in account claims this server, so the owner cannot be determined."
	case errors.Is(err, store.ErrServerNotClaimed):
		return "No logged-in account owns this server. Ask the server's Aternos account owner to `/login`."
	default:
		return "Something went wrong. Please try again later."
	}
}

// optionMap はコマンドオプションを名前で引けるようにする
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	result := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		result[opt.Name] = opt
	}
	return result
}

// boolOption は bool オプションを取得（未指定は false）
func boolOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	if opt, ok := opts[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// deferResponse は deferred response を送る。失敗時は false
func (b *Bot) deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) bool {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send deferred response")
		return false
	}
	return true
}

// followup は followup メッセージを送り、自動削除をスケジュールする
func (b *Bot) followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	msg, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send followup message")
		return
	}

	if b.settings.MessageDeleteAfter > 0 {
		go func(msg *discordgo.Message) {
			time.Sleep(time.Duration(b.settings.MessageDeleteAfter) * time.Second)
			if err := s.FollowupMessageDelete(i.Interaction, msg.ID); err != nil {
				log.Debug().Err(err).Msg("Failed to delete followup message")
			}
		}(msg)
	}
}

// followupError はエラー用の followup を送る
func (b *Bot) followupError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	denyIcon := b.settings.Icons["deny"]
	b.followup(s, i, fmt.Sprintf("%s %s", denyIcon, message))
}

// respondText は通常のレスポンスを返す
func (b *Bot) respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send response")
		return
	}

	// 自動削除スケジュール
	if b.settings.MessageDeleteAfter > 0 && !ephemeral {
		go func() {
			time.Sleep(time.Duration(b.settings.MessageDeleteAfter) * time.Second)
			if derr := s.InteractionResponseDelete(i.Interaction); derr != nil {
				log.Debug().Err(derr).Msg("Failed to delete interaction response")
			}
		}()
	}
}

// respondError はエラーレスポンスを返す
func (b *Bot) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	denyIcon := b.settings.Icons["deny"]
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("%s %s", denyIcon, message),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to send error response")
	}
}
