package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// handleCommand はコマンドメッセージを処理する。
// /start以外は管理者からの呼び出しに限って到達する。
func (d *Dispatcher) handleCommand(ctx context.Context, msg *telegram.Message, cmd string, args []string) {
	if cmd == "start" {
		d.handleStart(ctx, msg)
		return
	}

	var (
		reply string
		err   error
	)
	switch cmd {
	case "addchannel":
		reply, err = d.addChannel(ctx, msg)
	case "removechannel":
		reply, err = d.removeChannel(ctx, msg)
	case "listchannels":
		reply, err = d.listChannels(ctx)
	case "setremoval":
		reply, err = d.setRemoval(ctx, args)
	case "broadcast":
		reply, err = d.broadcast(ctx, msg)
	default:
		return
	}

	if err != nil {
		var botErr *model.BotError
		if errors.As(err, &botErr) {
			d.reply(ctx, msg.Chat.ID, botErr.Reply)
			return
		}
		d.logger.Error("管理者コマンドの実行に失敗しました",
			slog.String("command", cmd),
			slog.String("error", err.Error()),
		)
		d.reply(ctx, msg.Chat.ID, "Something went wrong. Please try again.")
		return
	}
	d.reply(ctx, msg.Chat.ID, reply)
}

// handleStart は/startコマンドによる参加リクエストを処理する。
func (d *Dispatcher) handleStart(ctx context.Context, msg *telegram.Message) {
	if msg.From.ID == d.adminID {
		return
	}
	if err := d.membership.RequestJoin(ctx, msg.From.ID, msg.From.FirstName, time.Now()); err != nil {
		d.logger.Error("参加リクエストの処理に失敗しました",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
	}
}

// addChannel はチャンネル投稿の転送への返信で対象チャンネルを登録する。
func (d *Dispatcher) addChannel(ctx context.Context, msg *telegram.Message) (string, error) {
	ch, err := forwardedChannel(msg)
	if err != nil {
		return "", err
	}

	existing, err := d.channels.FindByID(ctx, ch.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check channel: %w", err)
	}
	if existing != nil {
		return "", model.NewChannelExistsError()
	}

	if err := d.channels.Create(ctx, &model.Channel{
		ChannelID: ch.ID,
		Title:     ch.Title,
	}); err != nil {
		return "", fmt.Errorf("failed to create channel: %w", err)
	}

	d.logger.Info("チャンネルを登録しました",
		slog.Int64("channel_id", ch.ID),
		slog.String("title", ch.Title),
	)
	return fmt.Sprintf("Channel %q added.", ch.Title), nil
}

// removeChannel はチャンネル投稿の転送への返信で対象チャンネルを登録解除する。
func (d *Dispatcher) removeChannel(ctx context.Context, msg *telegram.Message) (string, error) {
	ch, err := forwardedChannel(msg)
	if err != nil {
		return "", err
	}

	deleted, err := d.channels.DeleteByID(ctx, ch.ID)
	if err != nil {
		return "", fmt.Errorf("failed to delete channel: %w", err)
	}
	if !deleted {
		return "", model.NewChannelNotFoundError()
	}

	d.logger.Info("チャンネルの登録を解除しました",
		slog.Int64("channel_id", ch.ID),
	)
	return fmt.Sprintf("Channel %q removed.", ch.Title), nil
}

// listChannels は登録済みチャンネルの一覧を整形して返す。
func (d *Dispatcher) listChannels(ctx context.Context) (string, error) {
	channels, err := d.channels.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	if len(channels) == 0 {
		return "No channels added.", nil
	}

	var b strings.Builder
	b.WriteString("Managed channels:\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "- %s (ID: %d)\n", ch.Title, ch.ChannelID)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// setRemoval は /setremoval <user_id> <days> を解析して期限を設定する。
func (d *Dispatcher) setRemoval(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", model.NewUsageError("Usage: /setremoval <user_id> <days>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", model.NewUsageError("Usage: /setremoval <user_id> <days>")
	}
	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 {
		return "", model.NewUsageError("Usage: /setremoval <user_id> <days>")
	}
	date, err := d.membership.SetRemoval(ctx, userID, days, time.Now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removal date set for user %d on %s.", userID, date), nil
}

// broadcast は返信先メッセージを全メンバーへ配信する。
func (d *Dispatcher) broadcast(ctx context.Context, msg *telegram.Message) (string, error) {
	if msg.ReplyToMessage == nil {
		return "", model.NewUsageError("Reply to the message you want to broadcast with /broadcast.")
	}
	sent, failed, err := d.relay.Broadcast(ctx, msg.Chat.ID, msg.ReplyToMessage.MessageID)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast: %w", err)
	}
	return fmt.Sprintf("Broadcast finished. Sent: %d, Failed: %d.", sent, failed), nil
}

// forwardedChannel は返信先からチャンネル投稿の転送元を取り出す。
func forwardedChannel(msg *telegram.Message) (*telegram.Chat, error) {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.ForwardFromChat == nil ||
		msg.ReplyToMessage.ForwardFromChat.Type != "channel" {
		return nil, model.NewUsageError("Reply to a message forwarded from the target channel.")
	}
	return msg.ReplyToMessage.ForwardFromChat, nil
}
