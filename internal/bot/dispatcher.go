// Package bot は受信更新イベントのディスパッチと管理者コマンド面を提供する。
// ロングポーリングで取得した更新を1件ずつ処理し、コマンド・コールバック・
// 私信をそれぞれのサービスへ振り分ける。
package bot

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// pollRetryDelay はポーリング失敗後の待機時間。
const pollRetryDelay = 3 * time.Second

// UpdateSource は更新イベント取得のインターフェース。
// ロングポーリングはレート制限ラッパーを通さずクライアントを直接使用する。
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// ReplySender はディスパッチャが使用する送信操作のインターフェース。
type ReplySender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

// MembershipService はライフサイクルエンジンのインターフェース。
type MembershipService interface {
	RequestJoin(ctx context.Context, userID int64, displayName string, now time.Time) error
	Decide(ctx context.Context, data string, promptChatID, promptMessageID int64, now time.Time) error
	SetRemoval(ctx context.Context, userID int64, days int, now time.Time) (string, error)
}

// RelayService はメッセージ中継のインターフェース。
type RelayService interface {
	HandleInbound(ctx context.Context, msg *telegram.Message, now time.Time) error
	HandleAdminReply(ctx context.Context, msg *telegram.Message) (string, error)
	Broadcast(ctx context.Context, fromChatID, messageID int64) (sent, failed int, err error)
}

// Dispatcher は更新イベントのディスパッチャ。
// 1つの論理ワーカーとして更新を逐次処理する。
type Dispatcher struct {
	source      UpdateSource
	sender      ReplySender
	membership  MembershipService
	relay       RelayService
	channels    repository.ChannelRepository
	logger      *slog.Logger
	adminID     int64
	pollTimeout time.Duration
	offset      int64
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(
	source UpdateSource,
	sender ReplySender,
	membership MembershipService,
	relay RelayService,
	channels repository.ChannelRepository,
	logger *slog.Logger,
	adminID int64,
	pollTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		source:      source,
		sender:      sender,
		membership:  membership,
		relay:       relay,
		channels:    channels,
		logger:      logger,
		adminID:     adminID,
		pollTimeout: pollTimeout,
	}
}

// Run はロングポーリングループを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 取得失敗は待機後に再試行し、個々の更新処理の失敗はループを停止させない。
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("更新ディスパッチャを開始しました",
		slog.Duration("poll_timeout", d.pollTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("更新ディスパッチャを停止しました")
			return
		default:
		}

		updates, err := d.source.GetUpdates(ctx, d.offset, d.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Error("更新イベントの取得に失敗しました",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, update := range updates {
			d.offset = update.UpdateID + 1
			d.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate は1件の更新イベントを処理する。
// panicを含むあらゆる失敗を当該イベント内に閉じ込める。
func (d *Dispatcher) handleUpdate(ctx context.Context, update telegram.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic recovered",
				slog.Any("panic", rec),
				slog.Int64("update_id", update.UpdateID),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Chat.Type == "private":
		d.handleMessage(ctx, update.Message)
	}
}

// handleCallback は管理者の承認/拒否ボタン押下を処理する。
func (d *Dispatcher) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	defer func() {
		if err := d.sender.AnswerCallbackQuery(ctx, cq.ID); err != nil {
			d.logger.Warn("コールバッククエリへの応答に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()

	if cq.From.ID != d.adminID || cq.Message == nil {
		return
	}

	err := d.membership.Decide(ctx, cq.Data, cq.Message.Chat.ID, cq.Message.MessageID, time.Now())
	if err != nil {
		var botErr *model.BotError
		if errors.As(err, &botErr) {
			d.reply(ctx, cq.Message.Chat.ID, botErr.Reply)
			return
		}
		d.logger.Error("承認/拒否の実行に失敗しました",
			slog.String("data", cq.Data),
			slog.String("error", err.Error()),
		)
	}
}

// handleMessage は私信メッセージをコマンドと中継に振り分ける。
func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}

	// 管理者以外の/start以外のコマンド風テキストは通常の私信として中継する
	if cmd, args, ok := parseCommand(msg.Text); ok && (cmd == "start" || msg.From.ID == d.adminID) {
		d.handleCommand(ctx, msg, cmd, args)
		return
	}

	if msg.From.ID == d.adminID {
		// 管理者の返信は転送メッセージへの回答として中継する
		if msg.ReplyToMessage == nil {
			return
		}
		reply, err := d.relay.HandleAdminReply(ctx, msg)
		if err != nil {
			var botErr *model.BotError
			if errors.As(err, &botErr) {
				d.reply(ctx, msg.Chat.ID, botErr.Reply)
				return
			}
			d.logger.Error("管理者返信の中継に失敗しました",
				slog.String("error", err.Error()),
			)
			return
		}
		d.reply(ctx, msg.Chat.ID, reply)
		return
	}

	if err := d.relay.HandleInbound(ctx, msg, time.Now()); err != nil {
		d.logger.Error("受信メッセージの転送に失敗しました",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
	}
}

// reply は処理結果をベストエフォートで返信する。
func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if _, err := d.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		d.logger.Error("結果返信の送信に失敗しました",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// parseCommand はメッセージテキストからコマンド名と引数を取り出す。
// コマンドでない場合はok=falseを返す。"/cmd@botname"形式も受け付ける。
func parseCommand(text string) (cmd string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd = strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:], true
}
