// Package relay はエンドユーザーと管理者の間のメッセージ中継を提供する。
// 受信メッセージの管理者転送、管理者返信の宛先解決、全メンバーへの
// ブロードキャストを含む。
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// msgForwarded は転送完了時にエンドユーザーへ返す定型メッセージ。
const msgForwarded = "Your message has been forwarded to the admin."

// PlatformSender は中継処理が使用する送信操作のインターフェース。
type PlatformSender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error
}

// Service はメッセージ中継サービス。
type Service struct {
	members repository.MemberRepository
	relay   repository.RelayRepository
	sender  PlatformSender
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	adminID int64
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	members repository.MemberRepository,
	relay repository.RelayRepository,
	sender PlatformSender,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	adminID int64,
) *Service {
	return &Service{
		members: members,
		relay:   relay,
		sender:  sender,
		metrics: collector,
		logger:  logger,
		adminID: adminID,
	}
}

// HandleInbound はエンドユーザーからの私信を管理者へ転送する。
// 同一メッセージIDが処理済みマーカーに存在する場合は重複として破棄する
// （プラットフォームによる同一更新の再配信への冪等対策）。
// 転送後に対応付けとマーカーを記録し、送信者へ受付を返信する。
func (s *Service) HandleInbound(ctx context.Context, msg *telegram.Message, now time.Time) error {
	if msg.From == nil || msg.From.ID == s.adminID {
		return nil
	}

	processed, err := s.relay.IsProcessed(ctx, msg.MessageID, msg.From.ID)
	if err != nil {
		return fmt.Errorf("failed to check processed marker: %w", err)
	}
	if processed {
		s.logger.Info("処理済みメッセージを重複として破棄しました",
			slog.Int64("message_id", msg.MessageID),
			slog.Int64("user_id", msg.From.ID),
		)
		s.metrics.RecordDuplicateDropped()
		return nil
	}

	forwarded, err := s.sender.ForwardMessage(ctx, s.adminID, msg.Chat.ID, msg.MessageID)
	if err != nil {
		return fmt.Errorf("failed to forward message to admin: %w", err)
	}

	if err := s.relay.CreateLink(ctx, &model.RelayLink{
		ForwardedMessageID: forwarded.MessageID,
		UserID:             msg.From.ID,
	}); err != nil {
		return fmt.Errorf("failed to record relay link: %w", err)
	}

	if err := s.relay.MarkProcessed(ctx, msg.MessageID, msg.From.ID, now); err != nil {
		return fmt.Errorf("failed to record processed marker: %w", err)
	}

	s.metrics.RecordRelayForwarded()

	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   msgForwarded,
	}); err != nil {
		// 受付返信の失敗は転送の完了を妨げない
		s.logger.Warn("転送受付の返信に失敗しました",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// HandleAdminReply は管理者の返信メッセージを元の送信者へ届ける。
// 戻り値は管理者への結果返信に使用するテキスト。
// 対応付けが見つからない場合はBotErrorを返す。
func (s *Service) HandleAdminReply(ctx context.Context, msg *telegram.Message) (string, error) {
	if msg.ReplyToMessage == nil {
		return "", model.NewUsageError("Reply to a forwarded message to answer the user.")
	}

	link, err := s.relay.FindLinkByForwardedID(ctx, msg.ReplyToMessage.MessageID)
	if err != nil {
		return "", fmt.Errorf("failed to find relay link: %w", err)
	}
	if link == nil {
		return "", model.NewNoLinkedUserError()
	}

	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: link.UserID,
		Text:   msg.Text,
	}); err != nil {
		if telegram.IsBlocked(err) {
			return "User has blocked the bot.", nil
		}
		return "", fmt.Errorf("failed to send reply to user: %w", err)
	}

	return "Reply sent to user.", nil
}

// Broadcast はテンプレートメッセージを全メンバーへ複製配信する。
// 宛先ごとの失敗は記録して継続し、配信成功数と失敗数を返す。
func (s *Service) Broadcast(ctx context.Context, fromChatID, messageID int64) (sent, failed int, err error) {
	members, err := s.members.ListAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list members: %w", err)
	}

	for _, member := range members {
		if err := s.sender.CopyMessage(ctx, member.UserID, fromChatID, messageID); err != nil {
			failed++
			if !telegram.IsBlocked(err) {
				s.logger.Warn("ブロードキャストの配信に失敗しました",
					slog.Int64("user_id", member.UserID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		sent++
	}

	s.metrics.RecordBroadcast(sent, failed)
	s.logger.Info("ブロードキャストが完了しました",
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)

	return sent, failed, nil
}
