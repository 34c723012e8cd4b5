package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/gatekeeper/internal/metrics"
)

// API はSenderがラップするBot API操作のインターフェース。
// 本番では*Client、テストではモックを渡す。
type API interface {
	SendMessage(ctx context.Context, params SendMessageParams) (*Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*Message, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int) (*ChatInviteLink, error)
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
	BanChatMember(ctx context.Context, chatID, userID int64) error
	UnbanChatMember(ctx context.Context, chatID, userID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

// Sender はレート制限に対応した送信ラッパー。
// 全呼び出しはグローバルなレートリミッターを通過した後に実行され、
// プラットフォームがretry_afterを返した場合は指定秒数の待機を挟んで
// 上限回数まで再試行する（再帰ではなくループで実装する）。
type Sender struct {
	api         API
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	maxAttempts int
}

// NewSender はSenderの新しいインスタンスを生成する。
// maxAttemptsが0以下の場合はデフォルト値5を使用する。
func NewSender(api API, limiter *rate.Limiter, logger *slog.Logger, collector metrics.MetricsCollector, maxAttempts int) *Sender {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Sender{
		api:         api,
		limiter:     limiter,
		logger:      logger,
		metrics:     collector,
		maxAttempts: maxAttempts,
	}
}

// do はレートリミッター待機と再試行ループの中で1つのAPI呼び出しを実行する。
// レート制限以外のエラーは再試行せず呼び出し元へ返す。
func (s *Sender) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			s.metrics.RecordSend(method)
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind() == ErrKindRateLimited && attempt < s.maxAttempts {
			s.logger.Warn("レート制限を受けたため待機後に再試行します",
				slog.String("method", method),
				slog.Int("attempt", attempt),
				slog.Duration("retry_after", apiErr.RetryAfter),
			)
			s.metrics.RecordRetry(method)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(apiErr.RetryAfter):
			}
			continue
		}

		s.metrics.RecordSendFailure(method)
		return err
	}
}

// SendMessage はテキストメッセージを送信する。
func (s *Sender) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var msg *Message
	err := s.do(ctx, "sendMessage", func(ctx context.Context) error {
		var err error
		msg, err = s.api.SendMessage(ctx, params)
		return err
	})
	return msg, err
}

// DeleteMessage はメッセージを削除する。
func (s *Sender) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return s.do(ctx, "deleteMessage", func(ctx context.Context) error {
		return s.api.DeleteMessage(ctx, chatID, messageID)
	})
}

// ForwardMessage はメッセージを転送する。
func (s *Sender) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*Message, error) {
	var msg *Message
	err := s.do(ctx, "forwardMessage", func(ctx context.Context) error {
		var err error
		msg, err = s.api.ForwardMessage(ctx, toChatID, fromChatID, messageID)
		return err
	})
	return msg, err
}

// CopyMessage はメッセージを複製する。
func (s *Sender) CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	return s.do(ctx, "copyMessage", func(ctx context.Context) error {
		return s.api.CopyMessage(ctx, toChatID, fromChatID, messageID)
	})
}

// GetChat はチャット情報を取得する。
func (s *Sender) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat *Chat
	err := s.do(ctx, "getChat", func(ctx context.Context) error {
		var err error
		chat, err = s.api.GetChat(ctx, chatID)
		return err
	})
	return chat, err
}

// CreateChatInviteLink は単一使用の招待リンクを作成する。
func (s *Sender) CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int) (*ChatInviteLink, error) {
	var link *ChatInviteLink
	err := s.do(ctx, "createChatInviteLink", func(ctx context.Context) error {
		var err error
		link, err = s.api.CreateChatInviteLink(ctx, chatID, memberLimit)
		return err
	})
	return link, err
}

// RevokeChatInviteLink は招待リンクを失効させる。
func (s *Sender) RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error {
	return s.do(ctx, "revokeChatInviteLink", func(ctx context.Context) error {
		return s.api.RevokeChatInviteLink(ctx, chatID, inviteLink)
	})
}

// BanChatMember はメンバーをBANする。
func (s *Sender) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return s.do(ctx, "banChatMember", func(ctx context.Context) error {
		return s.api.BanChatMember(ctx, chatID, userID)
	})
}

// UnbanChatMember はメンバーのBANを解除する。
func (s *Sender) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	return s.do(ctx, "unbanChatMember", func(ctx context.Context) error {
		return s.api.UnbanChatMember(ctx, chatID, userID)
	})
}

// AnswerCallbackQuery はコールバッククエリへの応答を返す。
func (s *Sender) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	return s.do(ctx, "answerCallbackQuery", func(ctx context.Context) error {
		return s.api.AnswerCallbackQuery(ctx, callbackQueryID)
	})
}

// compile-time interface check
var _ API = (*Client)(nil)
