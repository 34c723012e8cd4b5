// Package membership は参加リクエストから承認・招待・警告・追放までの
// メンバーシップライフサイクルを管理する。
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/security"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// コールバックデータのアクションプレフィックス。
const (
	actionAccept = "accept"
	actionReject = "reject"
)

// removalDateLayout は追放日時の表示フォーマット（ローカル時刻）。
const removalDateLayout = "2006-01-02 at 15:04:05"

// ユーザー向け定型メッセージ。
const (
	msgRequestReceived = "Your request has been sent to the admin, please wait for approval.\n\nThank you."
	msgAccepted        = "Congratulations!\n\nYour request has been accepted and here are the invite links:"
	msgRejected        = "Sorry, your request has been rejected.\n\nYou need to pay your monthly subscription in order to get invite links. Contact the admin for payment instructions."
)

// PlatformSender はライフサイクルエンジンが使用する送信操作のインターフェース。
type PlatformSender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	GetChat(ctx context.Context, chatID int64) (*telegram.Chat, error)
	CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int) (*telegram.ChatInviteLink, error)
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
}

// Service はメンバーシップライフサイクルエンジン。
// 参加リクエストの受付、管理者判断の実行、購読期限の設定を行う。
type Service struct {
	members   repository.MemberRepository
	channels  repository.ChannelRepository
	invites   repository.InviteRepository
	sender    PlatformSender
	sanitizer security.NameSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	pending   *PendingRegistry
	adminID   int64
	warnLead  time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// warnLeadが0以下の場合はデフォルト値24時間を使用する。
func NewService(
	members repository.MemberRepository,
	channels repository.ChannelRepository,
	invites repository.InviteRepository,
	sender PlatformSender,
	sanitizer security.NameSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	adminID int64,
	warnLead time.Duration,
) *Service {
	if warnLead <= 0 {
		warnLead = 24 * time.Hour
	}
	return &Service{
		members:   members,
		channels:  channels,
		invites:   invites,
		sender:    sender,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		pending:   NewPendingRegistry(),
		adminID:   adminID,
		warnLead:  warnLead,
	}
}

// RequestJoin は参加リクエストを受け付ける。
// 保留中判断を登録し、管理者へ承認/拒否ボタン付きのプロンプトを送信した後、
// リクエスト元のユーザーへ受付完了を返信する。ストアへの書き込みは行わない。
func (s *Service) RequestJoin(ctx context.Context, userID int64, displayName string, now time.Time) error {
	name := s.sanitizer.Sanitize(displayName)
	token := s.pending.Register(userID, name, now)

	prompt := fmt.Sprintf("New user started the bot:\nID: <code>%d</code>\nName: %s", userID, name)
	_, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    s.adminID,
		Text:      prompt,
		ParseMode: "HTML",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: "Accept User", CallbackData: actionAccept + ":" + token}},
				{{Text: "Reject User", CallbackData: actionReject + ":" + token}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send decision prompt: %w", err)
	}

	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: userID,
		Text:   msgRequestReceived,
	}); err != nil {
		// 受付返信の失敗はリクエスト自体を無効にしない
		s.logger.Warn("参加リクエストの受付返信に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// Decide はコールバックデータを解析し、承認または拒否を実行する。
// トークンが失効している場合はBotErrorを返す。
// プロンプトメッセージの削除はベストエフォートで行う。
func (s *Service) Decide(ctx context.Context, data string, promptChatID, promptMessageID int64, now time.Time) error {
	action, token, ok := strings.Cut(data, ":")
	if !ok || (action != actionAccept && action != actionReject) {
		return model.NewDecisionExpiredError()
	}

	decision := s.pending.Take(token, now)
	if decision == nil {
		return model.NewDecisionExpiredError()
	}

	// 表示名の再解決はベストエフォート。失敗しても判断を妨げない。
	name := decision.DisplayName
	if chat, err := s.sender.GetChat(ctx, decision.UserID); err == nil {
		resolved := chat.Title
		if resolved == "" {
			resolved = chat.FirstName
		}
		name = s.sanitizer.Sanitize(resolved)
	} else {
		s.logger.Warn("ユーザー表示名の解決に失敗しました",
			slog.Int64("user_id", decision.UserID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.sender.DeleteMessage(ctx, promptChatID, promptMessageID); err != nil {
		s.logger.Warn("判断プロンプトの削除に失敗しました",
			slog.Int64("message_id", promptMessageID),
			slog.String("error", err.Error()),
		)
	}

	if action == actionAccept {
		return s.accept(ctx, decision.UserID, name, now)
	}
	return s.reject(ctx, decision.UserID, name)
}

// accept は登録済みの全チャンネルに対して単一使用の招待リンクを発行し、
// 集まったリンクを1通のメッセージでユーザーへ届ける。
// チャンネルごとに独立して処理し、一部の失敗は許容する（非トランザクション）。
func (s *Service) accept(ctx context.Context, userID int64, name string, now time.Time) error {
	channels, err := s.channels.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	var buttons [][]telegram.InlineKeyboardButton
	for _, channel := range channels {
		// 同一(チャンネル, ユーザー)の既存リンクを先に失効させ、
		// 二重承認でも有効なリンクが常に1本に保たれるようにする
		s.revokeExisting(ctx, channel.ChannelID, userID)

		link, err := s.sender.CreateChatInviteLink(ctx, channel.ChannelID, 1)
		if err != nil {
			s.logger.Error("招待リンクの作成に失敗しました",
				slog.Int64("channel_id", channel.ChannelID),
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}

		invite := &model.Invite{
			ID:         uuid.NewString(),
			InviteLink: link.InviteLink,
			ChannelID:  channel.ChannelID,
			UserID:     userID,
			CreatedAt:  now,
		}
		if err := s.invites.Create(ctx, invite); err != nil {
			s.logger.Error("招待リンクの記録に失敗しました",
				slog.Int64("channel_id", channel.ChannelID),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.metrics.RecordInviteIssued()
		buttons = append(buttons, []telegram.InlineKeyboardButton{
			{Text: channel.Title, URL: link.InviteLink},
		})
	}

	params := telegram.SendMessageParams{
		ChatID: userID,
		Text:   msgAccepted,
	}
	if len(buttons) > 0 {
		params.ReplyMarkup = &telegram.InlineKeyboardMarkup{InlineKeyboard: buttons}
	}

	if _, err := s.sender.SendMessage(ctx, params); err != nil {
		if telegram.IsBlocked(err) {
			s.notifyAdmin(ctx, fmt.Sprintf(
				"User <code>%d</code> with Name: %s has blocked the bot. Cannot send invite links.", userID, name))
			return nil
		}
		return fmt.Errorf("failed to deliver invite links: %w", err)
	}

	s.notifyAdmin(ctx, fmt.Sprintf(
		"User <code>%d</code> with Name: %s has received the acceptance message.", userID, name))
	return nil
}

// reject は定型の拒否メッセージ（支払い案内）を送信する。ストアは変更しない。
func (s *Service) reject(ctx context.Context, userID int64, name string) error {
	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: userID,
		Text:   msgRejected,
	}); err != nil {
		if telegram.IsBlocked(err) {
			s.notifyAdmin(ctx, fmt.Sprintf(
				"User <code>%d</code> with Name: %s has blocked the bot. Cannot send rejection message.", userID, name))
			return nil
		}
		return fmt.Errorf("failed to send rejection message: %w", err)
	}

	s.notifyAdmin(ctx, fmt.Sprintf(
		"User <code>%d</code> with Name: %s has received the rejection message.", userID, name))
	return nil
}

// SetRemoval はメンバーの追放日時をUPSERTし、ユーザーへ通知する。
// 再設定時は警告済みフラグもリセットされる（last write wins）。
// 戻り値は管理者への確認返信に使用する追放日時の文字列。
func (s *Service) SetRemoval(ctx context.Context, userID int64, days int, now time.Time) (string, error) {
	removalDate := now.Add(time.Duration(days) * 24 * time.Hour)
	member := &model.Member{
		UserID:      userID,
		RemovalDate: removalDate,
		WarnDate:    removalDate.Add(-s.warnLead),
	}
	if err := s.members.Upsert(ctx, member); err != nil {
		return "", fmt.Errorf("failed to upsert member: %w", err)
	}

	formatted := removalDate.Local().Format(removalDateLayout)

	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: userID,
		Text:   fmt.Sprintf("You will be removed from the channel on %s.", formatted),
	}); err != nil {
		if telegram.IsBlocked(err) {
			s.notifyAdmin(ctx, fmt.Sprintf(
				"User %d has blocked the bot. Cannot send removal date notification.", userID))
		} else {
			s.logger.Warn("追放日時の通知に失敗しました",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return formatted, nil
}

// revokeExisting は(チャンネル, ユーザー)に紐づく既存の招待リンクを
// 失効させてストアから削除する。失敗はログに記録して継続する。
func (s *Service) revokeExisting(ctx context.Context, channelID, userID int64) {
	existing, err := s.invites.ListByChannelAndUser(ctx, channelID, userID)
	if err != nil {
		s.logger.Error("既存招待リンクの取得に失敗しました",
			slog.Int64("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, invite := range existing {
		if err := s.sender.RevokeChatInviteLink(ctx, channelID, invite.InviteLink); err != nil {
			s.logger.Warn("既存招待リンクの失効に失敗しました",
				slog.String("invite_link", invite.InviteLink),
				slog.String("error", err.Error()),
			)
		}
		if err := s.invites.DeleteByID(ctx, invite.ID); err != nil {
			s.logger.Error("既存招待リンクの削除に失敗しました",
				slog.String("invite_id", invite.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// notifyAdmin は管理者への通知をベストエフォートで送信する。
func (s *Service) notifyAdmin(ctx context.Context, text string) {
	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    s.adminID,
		Text:      text,
		ParseMode: "HTML",
	}); err != nil {
		s.logger.Error("管理者への通知に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
